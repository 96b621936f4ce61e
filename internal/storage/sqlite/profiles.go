package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/internal/vecmath"
	"github.com/scrypster/questionmatch/pkg/types"
)

// CreateProfile inserts a new profile at version 1.
func (s *Store) CreateProfile(ctx context.Context, p *types.CandidateProfile) error {
	if p == nil || p.CandidateID == "" {
		return fmt.Errorf("%w: candidate id is required", types.ErrInvalidInput)
	}
	if err := vecmath.Validate(p.ProfileVector, s.dimension); err != nil {
		return fmt.Errorf("profile %s: %w", p.CandidateID, err)
	}
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO candidate_profiles (candidate_id, profile_vector, metadata, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(candidate_id) DO NOTHING`,
		p.CandidateID, storage.EncodeVector(p.ProfileVector), string(meta), now, now)
	if err != nil {
		return storage.Fault(backend, "create profile", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storage.Fault(backend, "create profile", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: profile %s", types.ErrAlreadyExists, p.CandidateID)
	}
	return nil
}

// GetProfile loads a profile by candidate id.
func (s *Store) GetProfile(ctx context.Context, candidateID string) (*types.CandidateProfile, error) {
	return getProfile(ctx, s.db, candidateID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getProfile(ctx context.Context, q queryRower, candidateID string) (*types.CandidateProfile, error) {
	var (
		p    types.CandidateProfile
		blob []byte
		meta string
	)
	err := q.QueryRowContext(ctx, `
		SELECT candidate_id, profile_vector, metadata, version, created_at, updated_at
		FROM candidate_profiles WHERE candidate_id = ?`, candidateID).
		Scan(&p.CandidateID, &blob, &meta, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrProfileNotFound, candidateID)
	}
	if err != nil {
		return nil, storage.Fault(backend, "get profile", err)
	}

	if p.ProfileVector, err = storage.DecodeVector(blob); err != nil {
		return nil, fmt.Errorf("profile %s: %w", candidateID, err)
	}
	if err := json.Unmarshal([]byte(meta), &p.Metadata); err != nil {
		return nil, fmt.Errorf("profile %s: failed to unmarshal metadata: %w", candidateID, err)
	}
	return &p, nil
}

// CompareAndUpdate swaps the profile vector and metadata when the stored
// version still equals expectedVersion. The read, the checks and the write
// share one transaction, and the UPDATE repeats the version guard.
func (s *Store) CompareAndUpdate(ctx context.Context, candidateID string, expectedVersion int,
	vector []float32, metadata types.ProfileMetadata) (*types.CandidateProfile, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storage.Fault(backend, "begin compare-and-update", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := getProfile(ctx, tx, candidateID)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("%w: profile %s is at version %d, expected %d",
			types.ErrVersionConflict, candidateID, current.Version, expectedVersion)
	}
	if err := vecmath.Validate(vector, s.dimension); err != nil {
		return nil, fmt.Errorf("profile %s: %w", candidateID, err)
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE candidate_profiles
		SET profile_vector = ?, metadata = ?, version = version + 1, updated_at = ?
		WHERE candidate_id = ? AND version = ?`,
		storage.EncodeVector(vector), string(meta), now, candidateID, expectedVersion)
	if err != nil {
		return nil, storage.Fault(backend, "compare-and-update", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, storage.Fault(backend, "compare-and-update", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: profile %s changed during update", types.ErrVersionConflict, candidateID)
	}
	if err := tx.Commit(); err != nil {
		return nil, storage.Fault(backend, "commit compare-and-update", err)
	}

	current.ProfileVector = append([]float32(nil), vector...)
	current.Metadata = metadata.Clone()
	current.Version = expectedVersion + 1
	current.UpdatedAt = now
	return current, nil
}
