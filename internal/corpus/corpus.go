// Package corpus holds the in-memory question corpus used by retrieval.
//
// Readers work against an immutable Snapshot. A reload builds a complete new
// Snapshot and swaps it in atomically, so a retrieval that started on the old
// generation finishes on it undisturbed. Concurrent reloads are collapsed into
// one storage read.
package corpus

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/internal/vecmath"
	"github.com/scrypster/questionmatch/pkg/types"
)

// Snapshot is one immutable generation of the corpus. Callers must not
// modify the questions it hands out.
type Snapshot struct {
	generation uint64
	epoch      uint64
	loadedAt   time.Time
	questions  []*types.Question
	byID       map[string]*types.Question
}

func newSnapshot(generation, epoch uint64, loadedAt time.Time, questions []*types.Question) *Snapshot {
	byID := make(map[string]*types.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &Snapshot{
		generation: generation,
		epoch:      epoch,
		loadedAt:   loadedAt,
		questions:  questions,
		byID:       byID,
	}
}

// Get looks up a question by id.
func (s *Snapshot) Get(id string) (*types.Question, bool) {
	q, ok := s.byID[id]
	return q, ok
}

// Filter returns the questions matching f in ingestion order.
func (s *Snapshot) Filter(f types.QuestionFilter) []*types.Question {
	if f.IsEmpty() {
		out := make([]*types.Question, len(s.questions))
		copy(out, s.questions)
		return out
	}
	var out []*types.Question
	for _, q := range s.questions {
		if f.Matches(q) {
			out = append(out, q)
		}
	}
	return out
}

// All returns every question in ingestion order.
func (s *Snapshot) All() []*types.Question { return s.Filter(types.QuestionFilter{}) }

// Len returns the number of questions.
func (s *Snapshot) Len() int { return len(s.questions) }

// Generation increases by one with every successful load.
func (s *Snapshot) Generation() uint64 { return s.generation }

// LoadedAt is when the snapshot was read from storage.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Options configures a Corpus.
type Options struct {
	// Dimension is the embedding length; rows with any other length are skipped.
	Dimension int

	// RefreshInterval makes snapshots older than this reload on next use.
	// Zero means snapshots only change on Reload or Invalidate.
	RefreshInterval time.Duration

	// LoadTimeout bounds one shared storage read. Zero means no bound
	// beyond the deadline of the caller that started it.
	LoadTimeout time.Duration
}

// Corpus serves snapshots of the question store.
type Corpus struct {
	source  storage.QuestionStore
	opts    Options
	current atomic.Pointer[Snapshot]
	epoch   atomic.Uint64
	gen     atomic.Uint64
	group   singleflight.Group
	now     func() time.Time
}

// New creates a corpus over source. Nothing is read until first use.
func New(source storage.QuestionStore, opts Options) *Corpus {
	return &Corpus{source: source, opts: opts, now: time.Now}
}

// Snapshot returns the current snapshot, loading it if none exists, it was
// invalidated, or it is older than RefreshInterval. When a periodic refresh
// fails the previous snapshot keeps serving.
func (c *Corpus) Snapshot(ctx context.Context) (*Snapshot, error) {
	cur := c.current.Load()
	if cur != nil && cur.epoch == c.epoch.Load() {
		if c.opts.RefreshInterval <= 0 || c.now().Sub(cur.loadedAt) < c.opts.RefreshInterval {
			return cur, nil
		}
		next, err := c.Reload(ctx)
		if err != nil {
			log.Printf("corpus: refresh failed, serving generation %d: %v", cur.generation, err)
			return cur, nil
		}
		return next, nil
	}
	return c.Reload(ctx)
}

// Reload reads the full question set and swaps it in. Concurrent callers
// within the same epoch share one storage read. The shared read does not
// inherit the starting caller's cancellation; each caller stops waiting
// when its own ctx ends.
func (c *Corpus) Reload(ctx context.Context) (*Snapshot, error) {
	epoch := c.epoch.Load()
	ch := c.group.DoChan(strconv.FormatUint(epoch, 10), func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		if c.opts.LoadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, c.opts.LoadTimeout)
			defer cancel()
		}
		return c.load(loadCtx, epoch)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("corpus: wait for load: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// Invalidate marks the current snapshot stale. Readers already holding it
// are unaffected; the next Snapshot call reloads.
func (c *Corpus) Invalidate() {
	c.epoch.Add(1)
}

// Get resolves a single question from the current snapshot.
func (c *Corpus) Get(ctx context.Context, id string) (*types.Question, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	q, ok := snap.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrQuestionNotFound, id)
	}
	return q, nil
}

func (c *Corpus) load(ctx context.Context, epoch uint64) (*Snapshot, error) {
	questions, err := c.source.ListQuestions(ctx, types.QuestionFilter{})
	if err != nil {
		return nil, fmt.Errorf("corpus: load questions: %w", err)
	}

	kept := questions[:0:0]
	for _, q := range questions {
		if c.opts.Dimension > 0 {
			if err := vecmath.CheckShape(q.Embedding, c.opts.Dimension); err != nil {
				log.Printf("corpus: skipping question %s: %v", q.ID, err)
				continue
			}
		}
		vecmath.CheckNorm("question "+q.ID, q.Embedding)
		kept = append(kept, q)
	}

	snap := newSnapshot(c.gen.Add(1), epoch, c.now(), kept)
	c.current.Store(snap)
	log.Printf("corpus: loaded generation %d with %d questions", snap.generation, snap.Len())
	return snap, nil
}
