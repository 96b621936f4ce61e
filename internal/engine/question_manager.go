package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/questionmatch/internal/corpus"
	"github.com/scrypster/questionmatch/internal/notify"
	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/pkg/types"
)

// summaryTopTopics is how many topics Summary reports.
const summaryTopTopics = 10

// QuestionInput is a question as submitted for ingestion, without embedding.
type QuestionInput struct {
	ID            string           `json:"question_id,omitempty" yaml:"question_id,omitempty"`
	Text          string           `json:"question_text" yaml:"question_text"`
	Category      types.Category   `json:"category" yaml:"category"`
	Difficulty    types.Difficulty `json:"difficulty" yaml:"difficulty"`
	Topics        []string         `json:"topics" yaml:"topics"`
	JobRoles      []string         `json:"job_roles" yaml:"job_roles"`
	IdealKeywords []string         `json:"ideal_keywords,omitempty" yaml:"ideal_keywords,omitempty"`
}

// Validate checks the fields that do not need the embedder.
func (in *QuestionInput) Validate() error {
	if strings.TrimSpace(in.Text) == "" {
		return types.NewValidationError("question_text", "is required")
	}
	if !types.IsValidCategory(in.Category) {
		return types.NewValidationError("category", fmt.Sprintf("invalid category %q", in.Category))
	}
	if !types.IsValidDifficulty(in.Difficulty) {
		return types.NewValidationError("difficulty", fmt.Sprintf("invalid difficulty %q", in.Difficulty))
	}
	return nil
}

// QuestionManager writes to the question corpus on behalf of ingestion and
// keeps the in-memory snapshot in step with what it wrote.
type QuestionManager struct {
	store    storage.QuestionStore
	corpus   *corpus.Corpus
	embedder TextEmbedder
	notifier Notifier
	timeout  time.Duration
}

// NewQuestionManager creates a question manager. notifier may be nil.
func NewQuestionManager(store storage.QuestionStore, c *corpus.Corpus, embedder TextEmbedder,
	notifier Notifier, storageTimeout time.Duration) *QuestionManager {
	return &QuestionManager{
		store:    store,
		corpus:   c,
		embedder: embedder,
		notifier: notifier,
		timeout:  storageTimeout,
	}
}

// AddQuestion embeds and stores a single question.
func (m *QuestionManager) AddQuestion(ctx context.Context, in QuestionInput) (*types.Question, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	q, err := m.insert(ctx, in)
	if err != nil {
		return nil, err
	}
	m.changed(q.ID)
	return q, nil
}

// BulkAddQuestions validates every input before inserting any of them, then
// inserts in order. An insert failure stops the batch; questions already
// inserted stay and are returned alongside the error.
func (m *QuestionManager) BulkAddQuestions(ctx context.Context, inputs []QuestionInput) ([]*types.Question, error) {
	for i := range inputs {
		if err := inputs[i].Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
	}

	out := make([]*types.Question, 0, len(inputs))
	var err error
	for i := range inputs {
		var q *types.Question
		q, err = m.insert(ctx, inputs[i])
		if err != nil {
			err = fmt.Errorf("question %d: %w", i, err)
			break
		}
		out = append(out, q)
	}
	if len(out) > 0 {
		m.changed(fmt.Sprintf("bulk-%d", len(out)))
	}
	log.Printf("engine: bulk ingested %d of %d questions", len(out), len(inputs))
	return out, err
}

// LoadQuestionsFile ingests a JSON or YAML file holding a list of questions.
func (m *QuestionManager) LoadQuestionsFile(ctx context.Context, path string) ([]*types.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var inputs []QuestionInput
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &inputs)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &inputs)
	default:
		return nil, types.NewValidationError("path", "unsupported file format, use .json or .yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", types.ErrInvalidInput, path, err)
	}
	return m.BulkAddQuestions(ctx, inputs)
}

// ReplaceText re-embeds a question and replaces its text and embedding together.
func (m *QuestionManager) ReplaceText(ctx context.Context, id, text string) error {
	if id == "" {
		return types.NewValidationError("question_id", "is required")
	}
	if strings.TrimSpace(text) == "" {
		return types.NewValidationError("question_text", "is required")
	}
	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed question %s: %w", id, err)
	}
	sctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.store.ReplaceQuestionText(sctx, id, text, embedding); err != nil {
		return err
	}
	m.changed(id)
	return nil
}

// Summary counts the current snapshot by category and difficulty and lists
// the ten most common topics.
func (m *QuestionManager) Summary(ctx context.Context) (*types.QuestionSummary, error) {
	snap, err := m.corpus.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	summary := &types.QuestionSummary{
		TotalQuestions: snap.Len(),
		ByCategory:     make(map[types.Category]int),
		ByDifficulty:   make(map[types.Difficulty]int),
	}
	all := snap.All()
	scored := make([]types.ScoredQuestion, len(all))
	for i, q := range all {
		summary.ByCategory[q.Category]++
		summary.ByDifficulty[q.Difficulty]++
		scored[i] = types.ScoredQuestion{Question: types.Question{Topics: q.Topics}}
	}
	summary.TopTopics = countTopics(scored, summaryTopTopics)
	return summary, nil
}

func (m *QuestionManager) insert(ctx context.Context, in QuestionInput) (*types.Question, error) {
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	embedding, err := m.embedder.Embed(ctx, in.Text)
	if err != nil {
		return nil, fmt.Errorf("embed question %s: %w", id, err)
	}
	q := &types.Question{
		ID:            id,
		Text:          in.Text,
		Category:      in.Category,
		Difficulty:    in.Difficulty,
		Topics:        nonNil(in.Topics),
		JobRoles:      nonNil(in.JobRoles),
		IdealKeywords: nonNil(in.IdealKeywords),
		Embedding:     embedding,
	}
	sctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.store.StoreQuestion(sctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// changed drops the local snapshot and tells other processes to do the same.
func (m *QuestionManager) changed(subject string) {
	m.corpus.Invalidate()
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(notify.EventCorpusChanged, subject); err != nil {
		log.Printf("engine: corpus change notification failed: %v", err)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
