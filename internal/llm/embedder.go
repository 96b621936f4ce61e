package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/questionmatch/internal/vecmath"
	"github.com/scrypster/questionmatch/pkg/types"
)

// Embedder is the single embedding collaborator shared by every component.
// It is constructed once at startup around one backend and passed by
// reference; there is no package-level instance.
//
// Every vector it returns has exactly the configured dimension, finite
// values and unit norm.
type Embedder struct {
	gen       EmbeddingGenerator
	dimension int
	timeout   time.Duration
}

// NewEmbedder wraps gen. timeout bounds each call; zero means the caller's
// context alone governs.
func NewEmbedder(gen EmbeddingGenerator, dimension int, timeout time.Duration) *Embedder {
	return &Embedder{gen: gen, dimension: dimension, timeout: timeout}
}

// Embed returns the normalized embedding of text.
//
// Backend faults, timeouts and an open circuit map to
// types.ErrEmbeddingUnavailable; a vector of the wrong length maps to
// types.ErrDimensionMismatch and is never padded or truncated.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", types.ErrInvalidInput)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vec, err := e.gen.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", types.ErrEmbeddingUnavailable, e.gen.GetModel(), err)
	}
	if err := vecmath.CheckShape(vec, e.dimension); err != nil {
		return nil, fmt.Errorf("embedding model %s: %w", e.gen.GetModel(), err)
	}
	return vecmath.Normalize(vec), nil
}

// Dimension returns the enforced vector length.
func (e *Embedder) Dimension() int { return e.dimension }

// Model returns the backend model name.
func (e *Embedder) Model() string { return e.gen.GetModel() }
