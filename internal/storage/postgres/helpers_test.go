package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest empties every table. It lives in the package (not a
// _test package) so it can reach the unexported db handle.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		TRUNCATE TABLE questions, candidate_profiles, interview_history, retrieval_cache
		RESTART IDENTITY`)
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate tables: %w", err)
	}
	return nil
}
