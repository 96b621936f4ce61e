package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/pkg/types"
)

// GetFresh returns the newest unexpired entry for (candidateID, signature), or nil.
func (s *Store) GetFresh(ctx context.Context, candidateID, signature string, now time.Time) (*types.CacheEntry, error) {
	var (
		e       types.CacheEntry
		results []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT cache_id, candidate_id, signature, results, created_at, expires_at
		FROM retrieval_cache
		WHERE candidate_id = $1 AND signature = $2 AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`, candidateID, signature, now).
		Scan(&e.CacheID, &e.CandidateID, &e.Signature, &results, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Fault(backend, "get cache", err)
	}
	if err := json.Unmarshal(results, &e.Results); err != nil {
		return nil, fmt.Errorf("cache %s: failed to unmarshal results: %w", e.CacheID, err)
	}
	return &e, nil
}

// PutCache inserts a new entry.
func (s *Store) PutCache(ctx context.Context, candidateID, signature string, results []types.RankedID,
	ttl time.Duration, now time.Time) (*types.CacheEntry, error) {
	if results == nil {
		results = []types.RankedID{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache results: %w", err)
	}
	e := &types.CacheEntry{
		CacheID:     uuid.New().String(),
		CandidateID: candidateID,
		Signature:   signature,
		Results:     results,
		CreatedAt:   now.UTC(),
		ExpiresAt:   now.Add(ttl).UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO retrieval_cache (cache_id, candidate_id, signature, results, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.CacheID, candidateID, signature, string(raw), e.CreatedAt, e.ExpiresAt)
	if err != nil {
		return nil, storage.Fault(backend, "put cache", err)
	}
	return e, nil
}

// ClearExpired deletes entries with expires_at <= now.
func (s *Store) ClearExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM retrieval_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, storage.Fault(backend, "clear expired cache", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storage.Fault(backend, "clear expired cache", err)
	}
	return int(n), nil
}

// CountEntries returns the number of cache rows.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM retrieval_cache`).Scan(&n); err != nil {
		return 0, storage.Fault(backend, "count cache", err)
	}
	return n, nil
}
