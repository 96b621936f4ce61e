// Package engine implements question retrieval and profile evolution on top of
// the storage contracts, the corpus snapshot and the embedding collaborator.
//
// The engines hold no per-candidate state of their own: every operation reads
// what it needs from storage, and the only cross-request coordination is the
// version check performed by storage.ProfileStore.CompareAndUpdate.
package engine

import (
	"context"
	"fmt"
	"time"
)

// Cache key modes. CacheKeyCandidate keeps one slot per candidate and serves
// cached results regardless of the filters of the request; CacheKeyFiltered
// keys entries by candidate and filter signature.
const (
	CacheKeyCandidate = "candidate"
	CacheKeyFiltered  = "filtered"
)

// Config holds the tunables shared by the engines.
type Config struct {
	// Dimension is the embedding length D (default: 384).
	Dimension int

	// SimilarityThreshold is the default minimum similarity (default: 0.2).
	SimilarityThreshold float64

	// MaxQuestionsPerSession is the default result count (default: 10).
	MaxQuestionsPerSession int

	// CacheTTL is how long a cached retrieval stays fresh (default: 5m).
	CacheTTL time.Duration

	// CacheKeyMode is CacheKeyCandidate or CacheKeyFiltered (default: candidate).
	CacheKeyMode string

	// HistoryLimit bounds the history read by Update (default: 50).
	HistoryLimit int

	// UpdateOldWeight and UpdateNewWeight blend the profile with the
	// performance vector (default: 0.8 / 0.2).
	UpdateOldWeight float64
	UpdateNewWeight float64

	// KnowledgeWeight and SpeechWeight combine answer scores (default: 0.6 / 0.4).
	KnowledgeWeight float64
	SpeechWeight    float64

	// HighScoreThreshold selects the answers that shape the profile (default: 0.7).
	HighScoreThreshold float64

	// MaxPerformanceQuestions caps how many high scoring answers feed the
	// performance vector (default: 10).
	MaxPerformanceQuestions int

	// PerformanceSampleSize is the history window of PerformanceSummary (default: 10).
	PerformanceSampleSize int

	// AdaptiveMaxQuestions is the default count for adaptive retrieval (default: 5).
	AdaptiveMaxQuestions int

	// DiversePerCategory is the default per-category count (default: 3).
	DiversePerCategory int

	// StorageTimeout bounds each storage call; zero leaves the caller's
	// context alone (default: 5s).
	StorageTimeout time.Duration
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		Dimension:               384,
		SimilarityThreshold:     0.2,
		MaxQuestionsPerSession:  10,
		CacheTTL:                5 * time.Minute,
		CacheKeyMode:            CacheKeyCandidate,
		HistoryLimit:            50,
		UpdateOldWeight:         0.8,
		UpdateNewWeight:         0.2,
		KnowledgeWeight:         0.6,
		SpeechWeight:            0.4,
		HighScoreThreshold:      0.7,
		MaxPerformanceQuestions: 10,
		PerformanceSampleSize:   10,
		AdaptiveMaxQuestions:    5,
		DiversePerCategory:      3,
		StorageTimeout:          5 * time.Second,
	}
}

// Validate checks if the config is usable.
func (c *Config) Validate() error {
	if c.Dimension < 1 {
		return fmt.Errorf("Dimension must be >= 1, got %d", c.Dimension)
	}
	if c.MaxQuestionsPerSession < 1 {
		return fmt.Errorf("MaxQuestionsPerSession must be >= 1, got %d", c.MaxQuestionsPerSession)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("CacheTTL must be >= 0, got %v", c.CacheTTL)
	}
	if c.CacheKeyMode != CacheKeyCandidate && c.CacheKeyMode != CacheKeyFiltered {
		return fmt.Errorf("CacheKeyMode must be %q or %q, got %q", CacheKeyCandidate, CacheKeyFiltered, c.CacheKeyMode)
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("HistoryLimit must be >= 1, got %d", c.HistoryLimit)
	}
	if c.UpdateOldWeight < 0 || c.UpdateNewWeight < 0 {
		return fmt.Errorf("update weights must be >= 0, got %v/%v", c.UpdateOldWeight, c.UpdateNewWeight)
	}
	if c.UpdateOldWeight == 0 && c.UpdateNewWeight == 0 {
		return fmt.Errorf("update weights must not both be zero")
	}
	if c.KnowledgeWeight < 0 || c.SpeechWeight < 0 {
		return fmt.Errorf("score weights must be >= 0, got %v/%v", c.KnowledgeWeight, c.SpeechWeight)
	}
	if c.KnowledgeWeight+c.SpeechWeight > 1.0+1e-9 {
		return fmt.Errorf("KnowledgeWeight + SpeechWeight must be <= 1, got %v", c.KnowledgeWeight+c.SpeechWeight)
	}
	if c.MaxPerformanceQuestions < 1 {
		return fmt.Errorf("MaxPerformanceQuestions must be >= 1, got %d", c.MaxPerformanceQuestions)
	}
	if c.PerformanceSampleSize < 1 {
		return fmt.Errorf("PerformanceSampleSize must be >= 1, got %d", c.PerformanceSampleSize)
	}
	if c.AdaptiveMaxQuestions < 1 || c.DiversePerCategory < 1 {
		return fmt.Errorf("AdaptiveMaxQuestions and DiversePerCategory must be >= 1")
	}
	if c.StorageTimeout < 0 {
		return fmt.Errorf("StorageTimeout must be >= 0, got %v", c.StorageTimeout)
	}
	return nil
}

// TextEmbedder is the embedding collaborator as the engines see it.
// *llm.Embedder satisfies it; returned vectors are already normalized and of
// the configured dimension.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Notifier publishes cross-process events. *notify.EventWriter satisfies it.
type Notifier interface {
	Notify(eventType, subject string) error
}

// withTimeout applies d to ctx when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
