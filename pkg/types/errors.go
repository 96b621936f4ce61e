package types

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch indicates a vector whose length differs from the
	// configured dimension. Errors carrying it also match ErrInvalidVector.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidVector indicates a vector with non-finite values, or one that
	// failed the norm check at the point it was attached to a durable entity.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrProfileNotFound indicates no profile exists for the candidate.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrQuestionNotFound indicates no question exists with the given id.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrVersionConflict indicates a compare-and-update lost a race: the stored
	// version no longer matched the expected one. Callers may reload and retry.
	ErrVersionConflict = errors.New("version conflict")

	// ErrAlreadyExists indicates a create on a key that is already present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStorageFailure indicates a fault in the persistence substrate.
	ErrStorageFailure = errors.New("storage failure")

	// ErrEmbeddingUnavailable indicates the embedding collaborator timed out,
	// was unreachable, or rejected the request.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrInvalidInput indicates malformed arguments (empty ids, bad enums, scores out of range).
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError describes a single invalid field. It matches ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is reports ErrInvalidInput so callers can use errors.Is without knowing the field.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// DimensionError builds an error matching both ErrInvalidVector and ErrDimensionMismatch.
func DimensionError(name string, got, want int) error {
	return fmt.Errorf("%w: %w: %s has %d dimensions, want %d",
		ErrInvalidVector, ErrDimensionMismatch, name, got, want)
}
