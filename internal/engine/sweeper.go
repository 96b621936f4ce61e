package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/scrypster/questionmatch/internal/storage"
)

// CacheSweeper periodically deletes expired retrieval cache entries.
// Sweeping only touches rows that are already expired, so it is safe to run
// alongside retrievals.
type CacheSweeper struct {
	cache    storage.RetrievalCache
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	lastSweep time.Time
	removed   int
}

// NewCacheSweeper creates a sweeper. A non-positive interval defaults to 10m.
func NewCacheSweeper(cache storage.RetrievalCache, interval time.Duration) (*CacheSweeper, error) {
	if cache == nil {
		return nil, fmt.Errorf("retrieval cache is required")
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CacheSweeper{
		cache:    cache,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
// It blocks; run it in its own goroutine. The sweeper can be started again
// after either exit.
func (s *CacheSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("cache sweeper is already running")
	}
	stop := make(chan struct{})
	s.stopCh = stop
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.stopCh == stop {
			s.running = false
		}
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("engine: cache sweeper started: interval=%v", s.interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("engine: cache sweeper stopping (context cancelled)")
			return ctx.Err()

		case <-stop:
			log.Println("engine: cache sweeper stopping (stop requested)")
			return nil

		case <-ticker.C:
			if _, err := s.SweepNow(ctx); err != nil {
				log.Printf("engine: scheduled cache sweep failed: %v", err)
			}
		}
	}
}

// Stop ends a running sweep loop.
func (s *CacheSweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("cache sweeper is not running")
	}
	close(s.stopCh)
	s.stopCh = nil
	s.running = false
	return nil
}

// SweepNow removes every entry expired at the current time and reports how many.
func (s *CacheSweeper) SweepNow(ctx context.Context) (int, error) {
	now := s.now()
	n, err := s.cache.ClearExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.lastSweep = now
	s.removed += n
	s.mu.Unlock()
	if n > 0 {
		log.Printf("engine: swept %d expired cache entries", n)
	}
	return n, nil
}

// SweepStatus reports the last sweep time and the total removed so far.
func (s *CacheSweeper) SweepStatus() (time.Time, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep, s.removed
}
