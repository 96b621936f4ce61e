// Package vecmath provides the pure vector operations behind profile matching:
// normalization, cosine similarity (single and batched) and weighted blending.
//
// Vectors are stored as float32 (the width embedding backends and pgvector
// use) while every accumulation runs in float64 so that long vectors do not
// drift. Nothing here allocates beyond its result, and nothing blocks.
package vecmath

import (
	"fmt"
	"log"
	"math"

	"github.com/scrypster/questionmatch/pkg/types"
)

const (
	// MinNorm and MaxNorm bound the L2 norm of a vector considered normalized.
	MinNorm = 0.99
	MaxNorm = 1.01
)

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned
// unchanged (as a copy) rather than divided by zero.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	norm := Norm(v)
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot returns the dot product of a and b, which must have equal length.
func Dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", types.ErrDimensionMismatch, len(a), len(b))
	}
	return dot(a, b), nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CosineSimilarity returns the similarity of two pre-normalized vectors.
// For unit vectors this is exactly their dot product.
func CosineSimilarity(a, b []float32) (float64, error) {
	return Dot(a, b)
}

// BatchCosineSimilarity scores query against every row of vectors in a
// single pass, returning one score per row in input order. Every row must
// share query's dimension; the first mismatching row fails the whole batch.
func BatchCosineSimilarity(query []float32, vectors [][]float32) ([]float64, error) {
	scores := make([]float64, len(vectors))
	d := len(query)
	for i, row := range vectors {
		if len(row) != d {
			return nil, fmt.Errorf("%w: row %d has %d dimensions, query has %d",
				types.ErrDimensionMismatch, i, len(row), d)
		}
		scores[i] = dot(query, row)
	}
	return scores, nil
}

// WeightedBlend returns normalize(old*wOld + new*wNew). Weights need not sum
// to one; only their ratio affects the result.
func WeightedBlend(old, new []float32, wOld, wNew float64) ([]float32, error) {
	if len(old) != len(new) {
		return nil, fmt.Errorf("%w: %d vs %d", types.ErrDimensionMismatch, len(old), len(new))
	}
	mixed := make([]float32, len(old))
	for i := range old {
		mixed[i] = float32(float64(old[i])*wOld + float64(new[i])*wNew)
	}
	return Normalize(mixed), nil
}

// Validate enforces the hard invariants of a vector attached to a durable
// entity: exact dimension, finite values and a norm within [MinNorm, MaxNorm].
func Validate(v []float32, dimension int) error {
	if err := CheckShape(v, dimension); err != nil {
		return err
	}
	if !IsNormalized(v) {
		return fmt.Errorf("%w: norm %.4f outside [%.2f, %.2f]", types.ErrInvalidVector, Norm(v), MinNorm, MaxNorm)
	}
	return nil
}

// CheckShape verifies dimension and finiteness without looking at the norm.
func CheckShape(v []float32, dimension int) error {
	if len(v) != dimension {
		return types.DimensionError("vector", len(v), dimension)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", types.ErrInvalidVector, i)
		}
	}
	return nil
}

// IsNormalized reports whether v's norm lies within [MinNorm, MaxNorm].
func IsNormalized(v []float32) bool {
	n := Norm(v)
	return n >= MinNorm && n <= MaxNorm
}

// CheckNorm is the soft norm check used outside the creation boundary: a
// violation is logged and reported, never returned as an error.
func CheckNorm(name string, v []float32) bool {
	if IsNormalized(v) {
		return true
	}
	log.Printf("vecmath: warning: %s norm is %.4f, expected ~1.0", name, Norm(v))
	return false
}
