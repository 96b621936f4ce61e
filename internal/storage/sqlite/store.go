package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/pkg/types"
)

const backend = "sqlite"

// Store implements storage.Store using SQLite.
type Store struct {
	db        *sql.DB
	dimension int
}

var _ storage.Store = (*Store)(nil)

// NewStore opens (or creates) the database at dsn. dimension is the vector
// length every stored embedding and profile vector must have.
//
// If the first open fails because a crashed process left stale WAL files
// behind, and no other process holds them, they are removed and the open is
// retried once.
func NewStore(dsn string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", types.ErrInvalidInput)
	}

	store, err := open(dsn, dimension)
	if err == nil {
		return store, nil
	}
	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}
	removeStaleWAL(dbPath)

	store, retryErr := open(dsn, dimension)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}
	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

func open(dsn string, dimension int) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, dimension: dimension}, nil
}

// Dimension returns the configured vector dimension.
func (s *Store) Dimension() int { return s.dimension }

// DB exposes the underlying handle for backups and tests.
func (s *Store) DB() *sql.DB { return s.db }

// Stats counts rows in every table.
func (s *Store) Stats(ctx context.Context) (*types.DatabaseStats, error) {
	var st types.DatabaseStats
	query := `
		SELECT
			(SELECT COUNT(*) FROM questions),
			(SELECT COUNT(*) FROM candidate_profiles),
			(SELECT COUNT(*) FROM interview_history),
			(SELECT COUNT(*) FROM retrieval_cache)
	`
	err := s.db.QueryRowContext(ctx, query).Scan(
		&st.TotalQuestions, &st.TotalCandidates, &st.TotalResponses, &st.CachedRetrievals)
	if err != nil {
		return nil, storage.Fault(backend, "stats", err)
	}
	return &st, nil
}

// Close checkpoints the WAL into the main file and releases the handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}
	return s.db.Close()
}
