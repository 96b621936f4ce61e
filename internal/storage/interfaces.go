// Package storage defines the persistence contracts behind questionmatch.
//
// Each concern gets its own small interface (questions, profiles, history,
// cached retrievals) so that backends can be mixed: the SQL stores implement
// all of them, while the Redis backend only implements RetrievalCache.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/questionmatch/pkg/types"
)

// QuestionStore persists the question corpus. It is written by ingestion and
// read in bulk by the corpus snapshot loader.
type QuestionStore interface {
	// StoreQuestion inserts a new question. Returns types.ErrAlreadyExists if
	// the id is taken and types.ErrInvalidVector if the embedding is invalid.
	StoreQuestion(ctx context.Context, q *types.Question) error

	// ReplaceQuestionText swaps text and embedding in a single statement so
	// the two never diverge. Returns types.ErrQuestionNotFound if absent.
	ReplaceQuestionText(ctx context.Context, id, text string, embedding []float32) error

	// GetQuestion returns a question by id or types.ErrQuestionNotFound.
	GetQuestion(ctx context.Context, id string) (*types.Question, error)

	// ListQuestions returns every matching question in ingestion order.
	ListQuestions(ctx context.Context, filter types.QuestionFilter) ([]*types.Question, error)
}

// ProfileStore owns candidate profiles. CompareAndUpdate is the only path
// that mutates a profile vector.
type ProfileStore interface {
	// CreateProfile inserts a profile at version 1.
	// Returns types.ErrAlreadyExists if the candidate already has one.
	CreateProfile(ctx context.Context, p *types.CandidateProfile) error

	// GetProfile returns the stored profile or types.ErrProfileNotFound.
	GetProfile(ctx context.Context, candidateID string) (*types.CandidateProfile, error)

	// CompareAndUpdate replaces vector and metadata iff the stored version
	// equals expectedVersion, incrementing the version by exactly one.
	//
	// Checks run in order: types.ErrProfileNotFound, types.ErrVersionConflict,
	// then vector validation (types.ErrDimensionMismatch/ErrInvalidVector).
	// On any error the stored profile is left untouched.
	CompareAndUpdate(ctx context.Context, candidateID string, expectedVersion int,
		vector []float32, metadata types.ProfileMetadata) (*types.CandidateProfile, error)
}

// HistoryLog is the append-only record of interview responses.
type HistoryLog interface {
	// AppendHistory records entry and returns its monotonic history id.
	AppendHistory(ctx context.Context, entry *types.HistoryEntry) (int64, error)

	// RecentHistory returns up to limit entries for the candidate, newest first.
	RecentHistory(ctx context.Context, candidateID string, limit int) ([]*types.HistoryEntry, error)

	// HistoryStats aggregates the candidate's full history. A candidate with
	// no history yields a zero-valued result, not an error.
	HistoryStats(ctx context.Context, candidateID string) (*types.PerformanceStats, error)
}

// RetrievalCache stores ranked result sets with an expiry. Entries are never
// updated in place; expired entries are inert until swept.
type RetrievalCache interface {
	// GetFresh returns the most recently created entry for (candidateID,
	// signature) whose expires_at is after now, or nil when there is none.
	GetFresh(ctx context.Context, candidateID, signature string, now time.Time) (*types.CacheEntry, error)

	// PutCache always inserts a new entry with expires_at = now + ttl.
	PutCache(ctx context.Context, candidateID, signature string, results []types.RankedID,
		ttl time.Duration, now time.Time) (*types.CacheEntry, error)

	// ClearExpired removes entries with expires_at <= now and reports how many.
	ClearExpired(ctx context.Context, now time.Time) (int, error)

	// CountEntries returns the number of stored entries, fresh or not.
	CountEntries(ctx context.Context) (int, error)
}

// StatsProvider reports row counts across the store.
type StatsProvider interface {
	Stats(ctx context.Context) (*types.DatabaseStats, error)
}

// Store is the full persistence substrate implemented by the SQL backends.
type Store interface {
	QuestionStore
	ProfileStore
	HistoryLog
	RetrievalCache
	StatsProvider

	Close() error
}
