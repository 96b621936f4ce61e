package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/questionmatch/internal/corpus"
	"github.com/scrypster/questionmatch/internal/storage/sqlite"
	"github.com/scrypster/questionmatch/internal/vecmath"
	"github.com/scrypster/questionmatch/pkg/types"
)

const testDim = 4

// along returns a unit vector whose similarity to axis(0) is x.
func along(x float64) []float32 {
	return []float32{float32(x), float32(math.Sqrt(1 - x*x)), 0, 0}
}

func axis(i int) []float32 {
	v := make([]float32, testDim)
	v[i] = 1
	return v
}

// stubEmbedder returns fixed vectors per text. When gate is set, each call
// announces itself on arrived and waits for gate to close.
type stubEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    []string

	arrived chan struct{}
	gate    chan struct{}
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: map[string][]float32{}, fallback: axis(3)}
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	arrived, gate, err := s.arrived, s.gate, s.err
	vec, ok := s.vectors[text]
	if !ok {
		vec = s.fallback
	}
	s.mu.Unlock()

	if arrived != nil {
		arrived <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return vecmath.Normalize(vec), nil
}

func (s *stubEmbedder) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

var errEmbedDown = errors.New("backend down")

// fixture wires every engine over one in-memory store.
type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *sqlite.Store
	corpus   *corpus.Corpus
	embedder *stubEmbedder
	cfg      Config

	retrieval *RetrievalEngine
	update    *UpdateEngine
	creator   *ProfileCreator
	questions *QuestionManager
	clock     time.Time
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	store, err := sqlite.NewStore(":memory:", testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	cfg.Dimension = testDim
	for _, m := range mutate {
		m(&cfg)
	}

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		corpus:   corpus.New(store, corpus.Options{Dimension: testDim}),
		embedder: newStubEmbedder(),
		cfg:      cfg,
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	f.retrieval, err = NewRetrievalEngine(store, store, f.corpus, cfg)
	require.NoError(t, err)
	f.retrieval.now = f.now

	f.update, err = NewUpdateEngine(store, store, f.corpus, f.embedder, cfg)
	require.NoError(t, err)
	f.update.now = f.now

	f.creator = NewProfileCreator(store, f.embedder, cfg.StorageTimeout)
	f.questions = NewQuestionManager(store, f.corpus, f.embedder, nil, cfg.StorageTimeout)
	return f
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) addQuestion(id, text string, cat types.Category, diff types.Difficulty, emb []float32, topics ...string) {
	f.t.Helper()
	require.NoError(f.t, f.store.StoreQuestion(f.ctx, &types.Question{
		ID:         id,
		Text:       text,
		Category:   cat,
		Difficulty: diff,
		Topics:     topics,
		Embedding:  vecmath.Normalize(emb),
	}))
	f.corpus.Invalidate()
}

func (f *fixture) addProfile(id string, vec []float32, meta types.ProfileMetadata) *types.CandidateProfile {
	f.t.Helper()
	p := &types.CandidateProfile{CandidateID: id, ProfileVector: vecmath.Normalize(vec), Metadata: meta}
	require.NoError(f.t, f.store.CreateProfile(f.ctx, p))
	return p
}

func (f *fixture) addHistory(candidateID, questionID string, total float64) {
	f.t.Helper()
	_, err := f.store.AppendHistory(f.ctx, &types.HistoryEntry{
		CandidateID:    candidateID,
		QuestionID:     questionID,
		AnswerText:     "answer",
		KnowledgeScore: total,
		SpeechScore:    total,
		TotalScore:     total,
		Timestamp:      f.clock,
	})
	require.NoError(f.t, err)
}

// seedScenario stores Q1..Q3 scoring 0.9, 0.5 and 0.1 against axis(0).
func (f *fixture) seedScenario() {
	f.addQuestion("q1", "Explain goroutines", types.CategoryTechnical, types.DifficultyHard, along(0.9), "go", "concurrency")
	f.addQuestion("q2", "Describe a conflict", types.CategoryBehavioral, types.DifficultyMedium, along(0.5), "teamwork")
	f.addQuestion("q3", "Handle an outage", types.CategorySituational, types.DifficultyEasy, along(0.1), "incidents")
}

func ids(qs []types.ScoredQuestion) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}
