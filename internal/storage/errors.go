package storage

import (
	"fmt"

	"github.com/scrypster/questionmatch/pkg/types"
)

// Fault wraps a substrate error so it matches types.ErrStorageFailure while
// keeping the driver error reachable through errors.Is/As.
func Fault(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %s: %w", types.ErrStorageFailure, backend, op, err)
}
