package vecmath

import (
	"math"
	"math/rand"
	"testing"

	"github.com/scrypster/questionmatch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dim = 384

func randomVector(r *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func TestNormalize(t *testing.T) {
	t.Run("unit norm", func(t *testing.T) {
		v := Normalize([]float32{3, 4})
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
		assert.InDelta(t, 1.0, Norm(v), 1e-6)
	})

	t.Run("zero vector returned unchanged", func(t *testing.T) {
		zero := make([]float32, 4)
		out := Normalize(zero)
		assert.Equal(t, zero, out)
		for _, x := range out {
			assert.False(t, math.IsNaN(float64(x)))
		}
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := []float32{2, 0}
		_ = Normalize(in)
		assert.Equal(t, []float32{2, 0}, in)
	})

	t.Run("idempotent", func(t *testing.T) {
		r := rand.New(rand.NewSource(1))
		for i := 0; i < 20; i++ {
			once := Normalize(randomVector(r, dim))
			twice := Normalize(once)
			assert.InDeltaSlice(t, once, twice, 1e-6)
			assert.True(t, IsNormalized(once))
		}
	})
}

func TestCosineSimilarity(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 20; i++ {
		a := Normalize(randomVector(r, dim))
		b := Normalize(randomVector(r, dim))

		ab, err := CosineSimilarity(a, b)
		require.NoError(t, err)
		ba, err := CosineSimilarity(b, a)
		require.NoError(t, err)

		assert.Equal(t, ab, ba)
		assert.GreaterOrEqual(t, ab, -1.0-1e-6)
		assert.LessOrEqual(t, ab, 1.0+1e-6)
	}

	_, err := CosineSimilarity(make([]float32, 3), make([]float32, 4))
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestBatchCosineSimilarity(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	q := Normalize(randomVector(r, dim))
	rows := make([][]float32, 10)
	for i := range rows {
		rows[i] = Normalize(randomVector(r, dim))
	}

	scores, err := BatchCosineSimilarity(q, rows)
	require.NoError(t, err)
	require.Len(t, scores, len(rows))
	for i, row := range rows {
		single, err := CosineSimilarity(q, row)
		require.NoError(t, err)
		assert.Equal(t, single, scores[i])
	}

	t.Run("empty batch", func(t *testing.T) {
		scores, err := BatchCosineSimilarity(q, nil)
		require.NoError(t, err)
		assert.Empty(t, scores)
	})

	t.Run("mismatched row", func(t *testing.T) {
		bad := append([][]float32{}, rows...)
		bad[4] = make([]float32, dim-1)
		_, err := BatchCosineSimilarity(q, bad)
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	})
}

func TestWeightedBlend(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	a := randomVector(r, dim)
	b := randomVector(r, dim)

	t.Run("same vector yields normalize(a)", func(t *testing.T) {
		got, err := WeightedBlend(a, a, 0.8, 0.2)
		require.NoError(t, err)
		assert.InDeltaSlice(t, Normalize(a), got, 1e-6)

		got, err = WeightedBlend(a, a, 3, 7)
		require.NoError(t, err)
		assert.InDeltaSlice(t, Normalize(a), got, 1e-6)
	})

	t.Run("zero old weight is replacement", func(t *testing.T) {
		got, err := WeightedBlend(a, b, 0, 1)
		require.NoError(t, err)
		assert.InDeltaSlice(t, Normalize(b), got, 1e-6)
	})

	t.Run("zero new weight is no-op", func(t *testing.T) {
		got, err := WeightedBlend(a, b, 1, 0)
		require.NoError(t, err)
		assert.InDeltaSlice(t, Normalize(a), got, 1e-6)
	})

	t.Run("only ratio matters", func(t *testing.T) {
		x, err := WeightedBlend(a, b, 0.8, 0.2)
		require.NoError(t, err)
		y, err := WeightedBlend(a, b, 8, 2)
		require.NoError(t, err)
		assert.InDeltaSlice(t, x, y, 1e-6)
		assert.True(t, IsNormalized(x))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := WeightedBlend(a, b[:dim-1], 0.8, 0.2)
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	})
}

func TestValidate(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	good := Normalize(randomVector(r, dim))
	require.NoError(t, Validate(good, dim))

	err := Validate(good[:dim-1], dim)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	assert.ErrorIs(t, err, types.ErrInvalidVector)

	unnormalized := make([]float32, dim)
	copy(unnormalized, good)
	unnormalized[0] += 5
	err = Validate(unnormalized, dim)
	assert.ErrorIs(t, err, types.ErrInvalidVector)
	assert.NotErrorIs(t, err, types.ErrDimensionMismatch)
	assert.NoError(t, CheckShape(unnormalized, dim))

	nan := make([]float32, dim)
	copy(nan, good)
	nan[7] = float32(math.NaN())
	assert.ErrorIs(t, CheckShape(nan, dim), types.ErrInvalidVector)
}

func TestCheckNorm(t *testing.T) {
	assert.True(t, CheckNorm("unit", []float32{0, 1}))
	assert.False(t, CheckNorm("long", []float32{0, 2}))
	assert.False(t, CheckNorm("zero", []float32{0, 0}))
}
