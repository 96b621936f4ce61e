package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/scrypster/questionmatch/internal/corpus"
	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/internal/vecmath"
	"github.com/scrypster/questionmatch/pkg/types"
)

// RetrievalEngine ranks corpus questions against a candidate's profile vector.
type RetrievalEngine struct {
	config   Config
	profiles storage.ProfileStore
	cache    storage.RetrievalCache
	corpus   *corpus.Corpus
	now      func() time.Time
}

// NewRetrievalEngine creates a retrieval engine. cache may be nil, in which
// case every retrieval is computed.
func NewRetrievalEngine(profiles storage.ProfileStore, cache storage.RetrievalCache, c *corpus.Corpus, cfg Config) (*RetrievalEngine, error) {
	if profiles == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if c == nil {
		return nil, fmt.Errorf("corpus is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &RetrievalEngine{
		config:   cfg,
		profiles: profiles,
		cache:    cache,
		corpus:   c,
		now:      time.Now,
	}, nil
}

// Retrieve returns up to maxResults questions ranked by similarity to the
// candidate's profile vector, best first.
//
// A fresh cache entry short-circuits the computation. In candidate cache mode
// the cached ranking is served as-is, ignoring filter and minSimilarity; in
// filtered mode only an entry computed under the same filter and threshold
// is used. A retrieval with no qualifying questions returns an empty slice.
func (e *RetrievalEngine) Retrieve(ctx context.Context, candidateID string, filter types.QuestionFilter,
	minSimilarity float64, maxResults int) ([]types.ScoredQuestion, error) {
	if candidateID == "" {
		return nil, types.NewValidationError("candidate_id", "is required")
	}
	if maxResults < 1 {
		return nil, types.NewValidationError("max_results", "must be >= 1")
	}
	if math.IsNaN(minSimilarity) || math.IsInf(minSimilarity, 0) {
		return nil, types.NewValidationError("min_similarity", "must be finite")
	}

	signature := e.signature(filter, minSimilarity)
	if hit, ok := e.fromCache(ctx, candidateID, signature, maxResults); ok {
		return hit, nil
	}

	profile, err := e.getProfile(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if err := vecmath.CheckShape(profile.ProfileVector, e.config.Dimension); err != nil {
		return nil, fmt.Errorf("profile %s: %w", candidateID, err)
	}

	snap, err := e.corpus.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	candidates := snap.Filter(filter)

	ranked, err := rank(profile.ProfileVector, candidates, minSimilarity, maxResults)
	if err != nil {
		return nil, err
	}
	e.store(ctx, candidateID, signature, ranked)
	return ranked, nil
}

// DifficultyForScore maps the score of the previous answer to the difficulty
// of the next questions. No score yet starts at medium.
func DifficultyForScore(lastScore *float64) types.Difficulty {
	switch {
	case lastScore == nil:
		return types.DifficultyMedium
	case *lastScore >= 0.8:
		return types.DifficultyHard
	case *lastScore >= 0.5:
		return types.DifficultyMedium
	default:
		return types.DifficultyEasy
	}
}

// RetrieveAdaptive retrieves questions whose difficulty follows lastScore.
func (e *RetrievalEngine) RetrieveAdaptive(ctx context.Context, candidateID string, lastScore *float64,
	maxResults int) ([]types.ScoredQuestion, error) {
	difficulty := DifficultyForScore(lastScore)
	log.Printf("engine: adaptive retrieval for %s at difficulty %s", candidateID, difficulty)
	return e.Retrieve(ctx, candidateID, types.QuestionFilter{Difficulty: difficulty},
		e.config.SimilarityThreshold, maxResults)
}

// RetrieveDiverse retrieves up to perCategory questions from each category,
// concatenated in the fixed category order.
func (e *RetrievalEngine) RetrieveDiverse(ctx context.Context, candidateID string, perCategory int) ([]types.ScoredQuestion, error) {
	var out []types.ScoredQuestion
	for _, cat := range types.Categories {
		qs, err := e.Retrieve(ctx, candidateID, types.QuestionFilter{Category: cat},
			e.config.SimilarityThreshold, perCategory)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat, err)
		}
		out = append(out, qs...)
	}
	if out == nil {
		out = []types.ScoredQuestion{}
	}
	return out, nil
}

// Recommendations describes what to ask a candidate next.
type Recommendations struct {
	CandidateID       string                 `json:"candidate_id"`
	ExperienceLevel   string                 `json:"experience_level"`
	PrimaryDomain     string                 `json:"primary_domain"`
	TotalMatches      int                    `json:"total_matches"`
	TopQuestions      []types.ScoredQuestion `json:"top_questions"`
	RecommendedTopics []types.TopicCount     `json:"recommended_topics"`
	AverageSimilarity float64                `json:"average_similarity"`
}

const recommendationTop = 5

// Recommendations runs an unfiltered retrieval and summarizes the best
// matches: the top five questions, the topics they cover by frequency, and
// the average similarity over every match.
func (e *RetrievalEngine) Recommendations(ctx context.Context, candidateID string) (*Recommendations, error) {
	profile, err := e.getProfile(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	questions, err := e.Retrieve(ctx, candidateID, types.QuestionFilter{},
		e.config.SimilarityThreshold, e.config.MaxQuestionsPerSession)
	if err != nil {
		return nil, err
	}

	top := questions
	if len(top) > recommendationTop {
		top = top[:recommendationTop]
	}

	var sum float64
	for _, q := range questions {
		sum += q.SimilarityScore
	}
	avg := 0.0
	if len(questions) > 0 {
		avg = round(sum/float64(len(questions)), 4)
	}

	return &Recommendations{
		CandidateID:       candidateID,
		ExperienceLevel:   profile.Metadata.ExperienceLevel,
		PrimaryDomain:     profile.Metadata.PrimaryDomain,
		TotalMatches:      len(questions),
		TopQuestions:      top,
		RecommendedTopics: countTopics(top, 0),
		AverageSimilarity: avg,
	}, nil
}

// rank scores candidates against query, keeps those at or above min, and
// returns the best max of them. The threshold sees the raw score; ordering
// uses the 4-place score callers receive, and equal scores keep corpus order.
func rank(query []float32, candidates []*types.Question, min float64, max int) ([]types.ScoredQuestion, error) {
	vectors := make([][]float32, len(candidates))
	for i, q := range candidates {
		vectors[i] = q.Embedding
	}
	scores, err := vecmath.BatchCosineSimilarity(query, vectors)
	if err != nil {
		return nil, err
	}

	type scored struct {
		q     *types.Question
		score float64
	}
	kept := make([]scored, 0, len(candidates))
	for i, q := range candidates {
		if scores[i] >= min {
			kept = append(kept, scored{q: q, score: round(scores[i], 4)})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })
	if len(kept) > max {
		kept = kept[:max]
	}

	out := make([]types.ScoredQuestion, len(kept))
	for i, k := range kept {
		out[i] = scoredQuestion(k.q, k.score)
	}
	return out, nil
}

// scoredQuestion copies q without its embedding; snapshot questions are shared.
func scoredQuestion(q *types.Question, score float64) types.ScoredQuestion {
	c := *q
	c.Embedding = nil
	return types.ScoredQuestion{Question: c, SimilarityScore: score}
}

func (e *RetrievalEngine) signature(filter types.QuestionFilter, minSimilarity float64) string {
	if e.config.CacheKeyMode != CacheKeyFiltered {
		return ""
	}
	sig := fmt.Sprintf("category=%s;difficulty=%s;min=%s",
		filter.Category, filter.Difficulty, strconv.FormatFloat(minSimilarity, 'g', -1, 64))
	if filter.Topic != "" {
		sig += ";topic=" + filter.Topic
	}
	return sig
}

// fromCache serves a fresh cached ranking. Cache faults are logged and
// treated as a miss; cached data is derived and can always be recomputed.
func (e *RetrievalEngine) fromCache(ctx context.Context, candidateID, signature string, maxResults int) ([]types.ScoredQuestion, bool) {
	if e.cache == nil {
		return nil, false
	}
	sctx, cancel := withTimeout(ctx, e.config.StorageTimeout)
	defer cancel()

	entry, err := e.cache.GetFresh(sctx, candidateID, signature, e.now())
	if err != nil {
		log.Printf("engine: cache read for %s failed, recomputing: %v", candidateID, err)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}

	snap, err := e.corpus.Snapshot(ctx)
	if err != nil {
		log.Printf("engine: corpus unavailable for cached retrieval of %s: %v", candidateID, err)
		return nil, false
	}

	results := entry.Results
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	out := make([]types.ScoredQuestion, 0, len(results))
	for _, r := range results {
		q, ok := snap.Get(r.QuestionID)
		if !ok {
			continue
		}
		out = append(out, scoredQuestion(q, r.SimilarityScore))
	}
	return out, true
}

func (e *RetrievalEngine) store(ctx context.Context, candidateID, signature string, ranked []types.ScoredQuestion) {
	if e.cache == nil {
		return
	}
	ids := make([]types.RankedID, len(ranked))
	for i, q := range ranked {
		ids[i] = types.RankedID{QuestionID: q.ID, SimilarityScore: q.SimilarityScore}
	}
	sctx, cancel := withTimeout(ctx, e.config.StorageTimeout)
	defer cancel()
	if _, err := e.cache.PutCache(sctx, candidateID, signature, ids, e.config.CacheTTL, e.now()); err != nil {
		log.Printf("engine: cache write for %s failed: %v", candidateID, err)
	}
}

func (e *RetrievalEngine) getProfile(ctx context.Context, candidateID string) (*types.CandidateProfile, error) {
	sctx, cancel := withTimeout(ctx, e.config.StorageTimeout)
	defer cancel()
	return e.profiles.GetProfile(sctx, candidateID)
}

// countTopics counts topics across questions, most frequent first with ties
// in first-seen order. limit <= 0 keeps every topic.
func countTopics(questions []types.ScoredQuestion, limit int) []types.TopicCount {
	index := make(map[string]int)
	out := []types.TopicCount{}
	for _, q := range questions {
		for _, t := range q.Topics {
			if i, ok := index[t]; ok {
				out[i].Count++
				continue
			}
			index[t] = len(out)
			out = append(out, types.TopicCount{Topic: t, Count: 1})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
