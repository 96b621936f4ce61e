package postgres

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/pkg/types"
)

const testDim = 4

// newTestStore connects to POSTGRES_TEST_DSN, skipping when unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration test")
	}
	store, err := NewStore(dsn, testDim)
	require.NoError(t, err)
	require.NoError(t, store.TruncateForTest(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func axis(i int) []float32 {
	v := make([]float32, testDim)
	v[i] = 1
	return v
}

func TestPostgres_Questions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, cat := range []types.Category{types.CategoryTechnical, types.CategoryBehavioral, types.CategoryTechnical} {
		require.NoError(t, store.StoreQuestion(ctx, &types.Question{
			ID:         string(rune('a' + i)),
			Text:       "question",
			Category:   cat,
			Difficulty: types.DifficultyMedium,
			Topics:     []string{"go"},
			Embedding:  axis(i),
		}))
	}

	err := store.StoreQuestion(ctx, &types.Question{ID: "a", Text: "dup", Category: types.CategoryTechnical,
		Difficulty: types.DifficultyEasy, Embedding: axis(0)})
	assert.ErrorIs(t, err, types.ErrAlreadyExists)

	tech, err := store.ListQuestions(ctx, types.QuestionFilter{Category: types.CategoryTechnical, Topic: "go"})
	require.NoError(t, err)
	require.Len(t, tech, 2)
	assert.Equal(t, "a", tech[0].ID)
	assert.Equal(t, "c", tech[1].ID)
	assert.Equal(t, axis(2), tech[1].Embedding)

	require.NoError(t, store.ReplaceQuestionText(ctx, "b", "new text", axis(3)))
	q, err := store.GetQuestion(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "new text", q.Text)
	assert.Equal(t, axis(3), q.Embedding)

	_, err = store.GetQuestion(ctx, "zzz")
	assert.ErrorIs(t, err, types.ErrQuestionNotFound)
}

func TestPostgres_CompareAndUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateProfile(ctx, &types.CandidateProfile{CandidateID: "c1", ProfileVector: axis(0)}))

	_, err := store.CompareAndUpdate(ctx, "c1", 1, axis(1)[:testDim-1], types.ProfileMetadata{})
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.CompareAndUpdate(ctx, "c1", 1, axis(i), types.ProfileMetadata{})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, types.ErrVersionConflict)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, successes)

	p, err := store.GetProfile(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Version)
}

func TestPostgres_HistoryAndCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, s := range []float64{0.2, 0.8} {
		_, err := store.AppendHistory(ctx, &types.HistoryEntry{CandidateID: "c1", QuestionID: "q", TotalScore: s})
		require.NoError(t, err)
	}
	recent, err := store.RecentHistory(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 0.8, recent[0].TotalScore)

	now := time.Now().UTC()
	put, err := store.PutCache(ctx, "c1", "", []types.RankedID{{QuestionID: "q", SimilarityScore: 0.5}}, time.Minute, now)
	require.NoError(t, err)

	got, err := store.GetFresh(ctx, "c1", "", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, put.CacheID, got.CacheID)

	removed, err := store.ClearExpired(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestDecodeVector_PrefersMirror(t *testing.T) {
	mirror := sql.Null[pgvector.Vector]{V: pgvector.NewVector(axis(1)), Valid: true}
	got, err := decodeVector(mirror, storage.EncodeVector(axis(0)))
	require.NoError(t, err)
	assert.Equal(t, axis(1), got)

	got, err = decodeVector(sql.Null[pgvector.Vector]{}, storage.EncodeVector(axis(2)))
	require.NoError(t, err)
	assert.Equal(t, axis(2), got, "rows without the mirror use the blob")

	_, err = decodeVector(sql.Null[pgvector.Vector]{}, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestPostgres_ReadsVectorColumn(t *testing.T) {
	store := newTestStore(t)
	if !store.PgvectorAvailable() {
		t.Skip("pgvector extension not installed")
	}
	ctx := context.Background()

	require.NoError(t, store.StoreQuestion(ctx, &types.Question{
		ID: "v1", Text: "vector", Category: types.CategoryTechnical,
		Difficulty: types.DifficultyEasy, Embedding: axis(1),
	}))
	require.NoError(t, store.CreateProfile(ctx, &types.CandidateProfile{CandidateID: "c1", ProfileVector: axis(2)}))

	// Corrupt the blobs; reads must come from the vector columns.
	_, err := store.db.ExecContext(ctx, `UPDATE questions SET embedding = '\x010203'::bytea`)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `UPDATE candidate_profiles SET profile_vector = '\x010203'::bytea`)
	require.NoError(t, err)

	q, err := store.GetQuestion(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, axis(1), q.Embedding)

	p, err := store.GetProfile(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, axis(2), p.ProfileVector)
}
