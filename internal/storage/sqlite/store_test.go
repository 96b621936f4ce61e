package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/questionmatch/internal/vecmath"
	"github.com/scrypster/questionmatch/pkg/types"
)

const testDim = 8

// newTestStore creates an in-memory store with the full schema applied.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:", testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func axis(i int) []float32 {
	v := make([]float32, testDim)
	v[i] = 1
	return v
}

func mixed(weights ...float32) []float32 {
	v := make([]float32, testDim)
	copy(v, weights)
	return vecmath.Normalize(v)
}

func newQuestion(id string, cat types.Category, diff types.Difficulty, emb []float32, topics ...string) *types.Question {
	return &types.Question{
		ID:            id,
		Text:          "question " + id,
		Category:      cat,
		Difficulty:    diff,
		Topics:        topics,
		JobRoles:      []string{"Backend Engineer"},
		IdealKeywords: []string{"kw1", "kw2"},
		Embedding:     emb,
	}
}

func TestNewStore_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qm.db")
	store, err := NewStore(path, testDim)
	require.NoError(t, err)
	require.NoError(t, store.StoreQuestion(context.Background(),
		newQuestion("q1", types.CategoryTechnical, types.DifficultyEasy, axis(0))))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path, testDim)
	require.NoError(t, err)
	defer reopened.Close()

	q, err := reopened.GetQuestion(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, axis(0), q.Embedding)
}

func TestNewStore_RejectsBadDimension(t *testing.T) {
	_, err := NewStore(":memory:", 0)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestQuestions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreQuestion(ctx, newQuestion("q1", types.CategoryTechnical, types.DifficultyHard, axis(0), "go", "concurrency")))
	require.NoError(t, store.StoreQuestion(ctx, newQuestion("q2", types.CategoryBehavioral, types.DifficultyMedium, axis(1), "teamwork")))
	require.NoError(t, store.StoreQuestion(ctx, newQuestion("q3", types.CategoryTechnical, types.DifficultyMedium, axis(2), "go")))

	t.Run("get round-trips", func(t *testing.T) {
		q, err := store.GetQuestion(ctx, "q1")
		require.NoError(t, err)
		assert.Equal(t, "question q1", q.Text)
		assert.Equal(t, types.CategoryTechnical, q.Category)
		assert.Equal(t, []string{"go", "concurrency"}, q.Topics)
		assert.Equal(t, []string{"kw1", "kw2"}, q.IdealKeywords)
		assert.Equal(t, axis(0), q.Embedding)
		assert.False(t, q.CreatedAt.IsZero())
	})

	t.Run("missing question", func(t *testing.T) {
		_, err := store.GetQuestion(ctx, "nope")
		assert.ErrorIs(t, err, types.ErrQuestionNotFound)
	})

	t.Run("duplicate id", func(t *testing.T) {
		err := store.StoreQuestion(ctx, newQuestion("q1", types.CategoryTechnical, types.DifficultyEasy, axis(3)))
		assert.ErrorIs(t, err, types.ErrAlreadyExists)
	})

	t.Run("invalid embedding rejected at ingestion", func(t *testing.T) {
		err := store.StoreQuestion(ctx, newQuestion("short", types.CategoryTechnical, types.DifficultyEasy, make([]float32, testDim-1)))
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)

		unnormalized := axis(0)
		unnormalized[1] = 1
		err = store.StoreQuestion(ctx, newQuestion("unnorm", types.CategoryTechnical, types.DifficultyEasy, unnormalized))
		assert.ErrorIs(t, err, types.ErrInvalidVector)
	})

	t.Run("invalid enum", func(t *testing.T) {
		err := store.StoreQuestion(ctx, newQuestion("bad", "trivia", types.DifficultyEasy, axis(0)))
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("list preserves ingestion order", func(t *testing.T) {
		all, err := store.ListQuestions(ctx, types.QuestionFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"q1", "q2", "q3"}, ids(all))
	})

	t.Run("list filters", func(t *testing.T) {
		tech, err := store.ListQuestions(ctx, types.QuestionFilter{Category: types.CategoryTechnical})
		require.NoError(t, err)
		assert.Equal(t, []string{"q1", "q3"}, ids(tech))

		medTech, err := store.ListQuestions(ctx, types.QuestionFilter{Category: types.CategoryTechnical, Difficulty: types.DifficultyMedium})
		require.NoError(t, err)
		assert.Equal(t, []string{"q3"}, ids(medTech))

		goTopic, err := store.ListQuestions(ctx, types.QuestionFilter{Topic: "go"})
		require.NoError(t, err)
		assert.Equal(t, []string{"q1", "q3"}, ids(goTopic))

		none, err := store.ListQuestions(ctx, types.QuestionFilter{Category: types.CategorySituational})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("replace text swaps text and embedding together", func(t *testing.T) {
		require.NoError(t, store.ReplaceQuestionText(ctx, "q2", "rewritten", axis(5)))
		q, err := store.GetQuestion(ctx, "q2")
		require.NoError(t, err)
		assert.Equal(t, "rewritten", q.Text)
		assert.Equal(t, axis(5), q.Embedding)

		err = store.ReplaceQuestionText(ctx, "q2", "bad", make([]float32, 3))
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)
		q, err = store.GetQuestion(ctx, "q2")
		require.NoError(t, err)
		assert.Equal(t, "rewritten", q.Text)

		err = store.ReplaceQuestionText(ctx, "missing", "x", axis(0))
		assert.ErrorIs(t, err, types.ErrQuestionNotFound)
	})
}

func ids(qs []*types.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func createProfile(t *testing.T, store *Store, id string) *types.CandidateProfile {
	t.Helper()
	p := &types.CandidateProfile{
		CandidateID:   id,
		ProfileVector: axis(0),
		Metadata:      types.ProfileMetadata{Skills: []string{"Go"}, ExperienceLevel: types.ExperienceJunior},
	}
	require.NoError(t, store.CreateProfile(context.Background(), p))
	return p
}

func TestProfiles_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := createProfile(t, store, "c1")
	assert.Equal(t, 1, p.Version)

	got, err := store.GetProfile(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, axis(0), got.ProfileVector)
	assert.Equal(t, []string{"Go"}, got.Metadata.Skills)
	assert.Equal(t, types.ExperienceJunior, got.Metadata.ExperienceLevel)

	err = store.CreateProfile(ctx, &types.CandidateProfile{CandidateID: "c1", ProfileVector: axis(1)})
	assert.ErrorIs(t, err, types.ErrAlreadyExists)

	_, err = store.GetProfile(ctx, "ghost")
	assert.ErrorIs(t, err, types.ErrProfileNotFound)

	err = store.CreateProfile(ctx, &types.CandidateProfile{CandidateID: "c2", ProfileVector: make([]float32, testDim)})
	assert.ErrorIs(t, err, types.ErrInvalidVector, "zero vector fails the creation-time norm check")
}

func TestCompareAndUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("increments version by one", func(t *testing.T) {
		store := newTestStore(t)
		createProfile(t, store, "c1")

		meta := types.ProfileMetadata{AvgScore: 0.8, TotalInterviews: 3}
		updated, err := store.CompareAndUpdate(ctx, "c1", 1, axis(1), meta)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)

		got, err := store.GetProfile(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, axis(1), got.ProfileVector)
		assert.Equal(t, 0.8, got.Metadata.AvgScore)
		assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
	})

	t.Run("stale version conflicts and leaves profile unchanged", func(t *testing.T) {
		store := newTestStore(t)
		createProfile(t, store, "c1")
		_, err := store.CompareAndUpdate(ctx, "c1", 1, axis(1), types.ProfileMetadata{})
		require.NoError(t, err)

		_, err = store.CompareAndUpdate(ctx, "c1", 1, axis(2), types.ProfileMetadata{AvgScore: 0.1})
		assert.ErrorIs(t, err, types.ErrVersionConflict)
		assert.NotErrorIs(t, err, types.ErrStorageFailure)

		got, err := store.GetProfile(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, axis(1), got.ProfileVector)
		assert.Zero(t, got.Metadata.AvgScore)
	})

	t.Run("short vector fails with dimension mismatch", func(t *testing.T) {
		store := newTestStore(t)
		createProfile(t, store, "c1")

		_, err := store.CompareAndUpdate(ctx, "c1", 1, make([]float32, testDim-1), types.ProfileMetadata{})
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)

		got, err := store.GetProfile(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Version)
		assert.Equal(t, axis(0), got.ProfileVector)
	})

	t.Run("missing profile", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CompareAndUpdate(ctx, "ghost", 1, axis(0), types.ProfileMetadata{})
		assert.ErrorIs(t, err, types.ErrProfileNotFound)
	})

	t.Run("concurrent updaters from one version", func(t *testing.T) {
		store := newTestStore(t)
		createProfile(t, store, "c1")

		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.CompareAndUpdate(ctx, "c1", 1, axis(i%testDim), types.ProfileMetadata{})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
				} else if assert.ErrorIs(t, err, types.ErrVersionConflict) {
					conflicts++
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, workers-1, conflicts)

		got, err := store.GetProfile(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
	})

	t.Run("sequential contention never skips a version", func(t *testing.T) {
		store := newTestStore(t)
		createProfile(t, store, "c1")

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					p, err := store.GetProfile(ctx, "c1")
					if !assert.NoError(t, err) {
						return
					}
					_, err = store.CompareAndUpdate(ctx, "c1", p.Version, mixed(1, float32(p.Version)), types.ProfileMetadata{})
					if err == nil {
						return
					}
					if !assert.ErrorIs(t, err, types.ErrVersionConflict) {
						return
					}
				}
			}()
		}
		wg.Wait()

		got, err := store.GetProfile(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 6, got.Version)
	})
}

func TestHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scores := []float64{0.9, 0.4, 0.75}
	var lastID int64
	for i, s := range scores {
		id, err := store.AppendHistory(ctx, &types.HistoryEntry{
			CandidateID:    "c1",
			QuestionID:     "q" + string(rune('1'+i)),
			AnswerText:     "answer",
			KnowledgeScore: s,
			SpeechScore:    s,
			TotalScore:     s,
		})
		require.NoError(t, err)
		assert.Greater(t, id, lastID)
		lastID = id
	}
	_, err := store.AppendHistory(ctx, &types.HistoryEntry{CandidateID: "other", QuestionID: "q1", TotalScore: 0.5})
	require.NoError(t, err)

	recent, err := store.RecentHistory(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "q3", recent[0].QuestionID)
	assert.Equal(t, "q2", recent[1].QuestionID)

	all, err := store.RecentHistory(ctx, "c1", 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	stats, err := store.HistoryStats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalQuestions)
	assert.InDelta(t, 0.6833, stats.AvgTotalScore, 1e-3)
	assert.Equal(t, 0.9, stats.BestScore)
	assert.Equal(t, 0.4, stats.WorstScore)

	empty, err := store.HistoryStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalQuestions)
	assert.Zero(t, empty.AvgTotalScore)

	_, err = store.AppendHistory(ctx, &types.HistoryEntry{CandidateID: "c1", QuestionID: "q1", TotalScore: 1.2})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestRetrievalCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	miss, err := store.GetFresh(ctx, "c1", "", t0)
	require.NoError(t, err)
	assert.Nil(t, miss)

	first, err := store.PutCache(ctx, "c1", "", []types.RankedID{{QuestionID: "q1", SimilarityScore: 0.9}}, ttl, t0)
	require.NoError(t, err)
	assert.NotEmpty(t, first.CacheID)
	assert.Equal(t, t0.Add(ttl), first.ExpiresAt)

	second, err := store.PutCache(ctx, "c1", "", []types.RankedID{{QuestionID: "q2", SimilarityScore: 0.7}}, ttl, t0.Add(time.Minute))
	require.NoError(t, err)

	t.Run("newest fresh entry wins", func(t *testing.T) {
		got, err := store.GetFresh(ctx, "c1", "", t0.Add(2*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, second.CacheID, got.CacheID)
		assert.Equal(t, "q2", got.Results[0].QuestionID)
	})

	t.Run("never returns an expired entry", func(t *testing.T) {
		got, err := store.GetFresh(ctx, "c1", "", second.ExpiresAt)
		require.NoError(t, err)
		assert.Nil(t, got, "expires_at == now is not fresh")
	})

	t.Run("signature isolates entries", func(t *testing.T) {
		got, err := store.GetFresh(ctx, "c1", "category=technical;difficulty=;min=0.2", t0.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("clear expired", func(t *testing.T) {
		n, err := store.CountEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		removed, err := store.ClearExpired(ctx, first.ExpiresAt)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		got, err := store.GetFresh(ctx, "c1", "", t0.Add(2*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, second.CacheID, got.CacheID)
	})

	t.Run("empty result set round-trips", func(t *testing.T) {
		_, err := store.PutCache(ctx, "c2", "", nil, ttl, t0)
		require.NoError(t, err)
		got, err := store.GetFresh(ctx, "c2", "", t0)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Empty(t, got.Results)
	})
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreQuestion(ctx, newQuestion("q1", types.CategoryTechnical, types.DifficultyEasy, axis(0))))
	createProfile(t, store, "c1")
	_, err := store.AppendHistory(ctx, &types.HistoryEntry{CandidateID: "c1", QuestionID: "q1", TotalScore: 0.5})
	require.NoError(t, err)
	_, err = store.PutCache(ctx, "c1", "", nil, time.Minute, time.Now())
	require.NoError(t, err)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DatabaseStats{TotalQuestions: 1, TotalCandidates: 1, TotalResponses: 1, CachedRetrievals: 1}, *st)
}

func TestDBPathFromDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{":memory:", ""},
		{"", ""},
		{"/var/lib/qm/qm.db", "/var/lib/qm/qm.db"},
		{"file:/var/lib/qm/qm.db?mode=rwc", "/var/lib/qm/qm.db"},
		{"file::memory:?cache=shared", ""},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, dbPathFromDSN(tt.dsn))
		})
	}
}
