package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/questionmatch/pkg/types"
)

func TestRetrieve_RanksAboveThreshold(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	got, err := f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, ids(got))
	assert.Equal(t, 0.9, got[0].SimilarityScore)
	assert.Equal(t, 0.5, got[1].SimilarityScore)
	assert.Nil(t, got[0].Embedding, "embeddings are not returned to callers")
	assert.Equal(t, "Explain goroutines", got[0].Text)
}

func TestRetrieve_TruncatesAndKeepsCorpusOrderOnTies(t *testing.T) {
	f := newFixture(t)
	f.addQuestion("a", "first", types.CategoryTechnical, types.DifficultyEasy, along(0.7))
	f.addQuestion("b", "second", types.CategoryTechnical, types.DifficultyEasy, along(0.7))
	f.addQuestion("c", "third", types.CategoryTechnical, types.DifficultyEasy, along(0.7))
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	got, err := f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestRetrieve_OrdersByReportedScore(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.CacheKeyMode = CacheKeyFiltered })
	f.addQuestion("a", "first", types.CategoryTechnical, types.DifficultyEasy, along(0.80001))
	f.addQuestion("b", "second", types.CategoryTechnical, types.DifficultyEasy, along(0.80004))
	f.addQuestion("c", "third", types.CategoryTechnical, types.DifficultyEasy, along(0.9))
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	got, err := f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.80002, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(got), "the threshold compares raw scores")

	got, err = f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{Difficulty: types.DifficultyEasy}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(got), "scores equal at 4 places keep corpus order")
	assert.Equal(t, 0.8, got[1].SimilarityScore)
	assert.Equal(t, 0.8, got[2].SimilarityScore)
}

func TestRetrieve_AppliesFiltersOnMiss(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	f.addQuestion("q4", "Design a cache", types.CategoryTechnical, types.DifficultyMedium, along(0.8), "go")
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	got, err := f.retrieval.Retrieve(f.ctx, "c1",
		types.QuestionFilter{Category: types.CategoryTechnical, Difficulty: types.DifficultyMedium}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q4"}, ids(got))
}

func TestRetrieve_NoQualifyingQuestionsIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	got, err := f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.95, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRetrieve_Errors(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()

	_, err := f.retrieval.Retrieve(f.ctx, "ghost", types.QuestionFilter{}, 0.2, 10)
	assert.ErrorIs(t, err, types.ErrProfileNotFound)

	_, err = f.retrieval.Retrieve(f.ctx, "", types.QuestionFilter{}, 0.2, 10)
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.2, 0)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestRetrieve_CandidateModeServesCacheIgnoringFilters(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	first, err := f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.2, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"q1", "q2"}, ids(first))

	// A filtered request within the TTL gets the cached unfiltered ranking.
	got, err := f.retrieval.Retrieve(f.ctx, "c1",
		types.QuestionFilter{Category: types.CategorySituational}, 0.0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, ids(got))

	// maxResults still applies to a hit.
	got, err = f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, ids(got))
}

func TestRetrieve_CacheExpiresAfterTTL(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	p := f.addProfile("c1", axis(0), types.ProfileMetadata{})

	_, err := f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.2, 10)
	require.NoError(t, err)

	// Move the profile so a recomputation would rank q3 first.
	_, err = f.store.CompareAndUpdate(f.ctx, "c1", p.Version, axis(1), p.Metadata)
	require.NoError(t, err)

	got, err := f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, ids(got), "still fresh")

	f.advance(f.cfg.CacheTTL)
	got, err = f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q3", "q2", "q1"}, ids(got), "expired at exactly ttl")
}

func TestRetrieve_CacheSkipsQuestionsNoLongerInCorpus(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	_, err := f.store.PutCache(f.ctx, "c1", "", []types.RankedID{
		{QuestionID: "gone", SimilarityScore: 0.99},
		{QuestionID: "q2", SimilarityScore: 0.5},
	}, time.Minute, f.clock)
	require.NoError(t, err)

	got, err := f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q2"}, ids(got))
}

func TestRetrieve_FilteredModeKeysBySignature(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.CacheKeyMode = CacheKeyFiltered })
	f.seedScenario()
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	all, err := f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, ids(all))

	situational, err := f.retrieval.Retrieve(f.ctx, "c1",
		types.QuestionFilter{Category: types.CategorySituational}, 0.0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q3"}, ids(situational))

	n, err := f.store.CountEntries(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A different threshold is a different key.
	loose, err := f.retrieval.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2", "q3"}, ids(loose))
}

func TestRetrieve_WithoutCache(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	e, err := NewRetrievalEngine(f.store, nil, f.corpus, f.cfg)
	require.NoError(t, err)
	got, err := e.Retrieve(f.ctx, "c1", types.QuestionFilter{}, 0.2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, ids(got))

	n, err := f.store.CountEntries(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDifficultyForScore(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	tests := []struct {
		name string
		in   *float64
		want types.Difficulty
	}{
		{"no previous answer", nil, types.DifficultyMedium},
		{"strong answer", score(0.85), types.DifficultyHard},
		{"boundary hard", score(0.8), types.DifficultyHard},
		{"boundary medium", score(0.5), types.DifficultyMedium},
		{"middling answer", score(0.65), types.DifficultyMedium},
		{"weak answer", score(0.3), types.DifficultyEasy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DifficultyForScore(tt.in))
		})
	}
}

func TestRetrieveAdaptive_FiltersByDifficulty(t *testing.T) {
	f := newFixture(t)
	f.seedScenario()
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	last := 0.85
	got, err := f.retrieval.RetrieveAdaptive(f.ctx, "c1", &last, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.DifficultyHard, got[0].Difficulty)
}

func TestRetrieveDiverse_CategoryOrder(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.CacheKeyMode = CacheKeyFiltered
		c.SimilarityThreshold = 0
	})
	f.addQuestion("s1", "situational", types.CategorySituational, types.DifficultyEasy, along(0.95))
	f.addQuestion("b1", "behavioral", types.CategoryBehavioral, types.DifficultyEasy, along(0.9))
	f.addQuestion("t1", "technical one", types.CategoryTechnical, types.DifficultyEasy, along(0.3))
	f.addQuestion("t2", "technical two", types.CategoryTechnical, types.DifficultyEasy, along(0.6))
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	got, err := f.retrieval.RetrieveDiverse(f.ctx, "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "b1", "s1"}, ids(got))
}

func TestRetrieveDiverse_CandidateModeReusesFirstSlot(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SimilarityThreshold = 0 })
	f.addQuestion("t1", "technical", types.CategoryTechnical, types.DifficultyEasy, along(0.6))
	f.addQuestion("b1", "behavioral", types.CategoryBehavioral, types.DifficultyEasy, along(0.9))
	f.addProfile("c1", axis(0), types.ProfileMetadata{})

	// The technical call fills the single slot; the other categories hit it.
	got, err := f.retrieval.RetrieveDiverse(f.ctx, "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t1", "t1"}, ids(got))
}

func TestRecommendations(t *testing.T) {
	f := newFixture(t)
	f.addQuestion("q1", "one", types.CategoryTechnical, types.DifficultyEasy, along(0.9), "go", "apis")
	f.addQuestion("q2", "two", types.CategoryTechnical, types.DifficultyEasy, along(0.8), "sql")
	f.addQuestion("q3", "three", types.CategoryTechnical, types.DifficultyEasy, along(0.7), "go")
	f.addQuestion("q4", "four", types.CategoryTechnical, types.DifficultyEasy, along(0.6), "sql", "go")
	f.addQuestion("q5", "five", types.CategoryTechnical, types.DifficultyEasy, along(0.5), "apis")
	f.addQuestion("q6", "six", types.CategoryTechnical, types.DifficultyEasy, along(0.4), "k8s")
	f.addProfile("c1", axis(0), types.ProfileMetadata{ExperienceLevel: "Mid", PrimaryDomain: "Backend"})

	rec, err := f.retrieval.Recommendations(f.ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Mid", rec.ExperienceLevel)
	assert.Equal(t, "Backend", rec.PrimaryDomain)
	assert.Equal(t, 6, rec.TotalMatches)
	assert.Equal(t, []string{"q1", "q2", "q3", "q4", "q5"}, ids(rec.TopQuestions))
	assert.Equal(t, []types.TopicCount{
		{Topic: "go", Count: 3},
		{Topic: "apis", Count: 2},
		{Topic: "sql", Count: 2},
	}, rec.RecommendedTopics)
	assert.InDelta(t, 0.65, rec.AverageSimilarity, 1e-9)

	_, err = f.retrieval.Recommendations(f.ctx, "ghost")
	assert.ErrorIs(t, err, types.ErrProfileNotFound)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := []func(*Config){
		func(c *Config) { c.Dimension = 0 },
		func(c *Config) { c.CacheKeyMode = "global" },
		func(c *Config) { c.UpdateOldWeight, c.UpdateNewWeight = 0, 0 },
		func(c *Config) { c.CacheTTL = -time.Second },
		func(c *Config) { c.KnowledgeWeight = 0.9 },
		func(c *Config) { c.HistoryLimit = 0 },
	}
	for i, mutate := range bad {
		c := DefaultConfig()
		mutate(&c)
		assert.Error(t, c.Validate(), "case %d", i)
	}
}
