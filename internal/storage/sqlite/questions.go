package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/internal/vecmath"
	"github.com/scrypster/questionmatch/pkg/types"
)

const questionColumns = `question_id, question_text, category, difficulty, topics, job_roles,
	ideal_keywords, embedding, created_at, updated_at`

// StoreQuestion inserts a new question. Its embedding is validated here,
// where it is first attached to a durable row.
func (s *Store) StoreQuestion(ctx context.Context, q *types.Question) error {
	if q == nil || q.ID == "" {
		return fmt.Errorf("%w: question id is required", types.ErrInvalidInput)
	}
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question text is required", types.ErrInvalidInput)
	}
	if !types.IsValidCategory(q.Category) {
		return types.NewValidationError("category", fmt.Sprintf("invalid category %q", q.Category))
	}
	if !types.IsValidDifficulty(q.Difficulty) {
		return types.NewValidationError("difficulty", fmt.Sprintf("invalid difficulty %q", q.Difficulty))
	}
	if err := vecmath.Validate(q.Embedding, s.dimension); err != nil {
		return fmt.Errorf("question %s: %w", q.ID, err)
	}

	topics, jobRoles, keywords, err := marshalLists(q)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = q.CreatedAt
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (`+questionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(question_id) DO NOTHING`,
		q.ID, q.Text, string(q.Category), string(q.Difficulty), topics, jobRoles, keywords,
		storage.EncodeVector(q.Embedding), q.CreatedAt.UTC(), q.UpdatedAt.UTC())
	if err != nil {
		return storage.Fault(backend, "store question", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storage.Fault(backend, "store question", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: question %s", types.ErrAlreadyExists, q.ID)
	}
	return nil
}

// ReplaceQuestionText updates text and embedding together.
func (s *Store) ReplaceQuestionText(ctx context.Context, id, text string, embedding []float32) error {
	if id == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: question id and text are required", types.ErrInvalidInput)
	}
	if err := vecmath.Validate(embedding, s.dimension); err != nil {
		return fmt.Errorf("question %s: %w", id, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE questions SET question_text = ?, embedding = ?, updated_at = ?
		WHERE question_id = ?`,
		text, storage.EncodeVector(embedding), time.Now().UTC(), id)
	if err != nil {
		return storage.Fault(backend, "replace question text", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storage.Fault(backend, "replace question text", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrQuestionNotFound, id)
	}
	return nil
}

// GetQuestion returns a single question by id.
func (s *Store) GetQuestion(ctx context.Context, id string) (*types.Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE question_id = ?`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrQuestionNotFound, id)
	}
	if err != nil {
		return nil, storage.Fault(backend, "get question", err)
	}
	return q, nil
}

// ListQuestions returns every question matching filter in ingestion order.
func (s *Store) ListQuestions(ctx context.Context, filter types.QuestionFilter) ([]*types.Question, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.Difficulty != "" {
		where = append(where, "difficulty = ?")
		args = append(args, string(filter.Difficulty))
	}
	if filter.Topic != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(questions.topics) WHERE json_each.value = ?)")
		args = append(args, filter.Topic)
	}

	query := `SELECT ` + questionColumns + ` FROM questions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Fault(backend, "list questions", err)
	}
	defer rows.Close()

	var out []*types.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, storage.Fault(backend, "scan question", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Fault(backend, "list questions", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestion(row rowScanner) (*types.Question, error) {
	var (
		q                          types.Question
		category, difficulty       string
		topics, jobRoles, keywords string
		blob                       []byte
	)
	if err := row.Scan(&q.ID, &q.Text, &category, &difficulty, &topics, &jobRoles,
		&keywords, &blob, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	q.Category = types.Category(category)
	q.Difficulty = types.Difficulty(difficulty)

	for _, f := range []struct {
		raw string
		dst *[]string
	}{
		{topics, &q.Topics},
		{jobRoles, &q.JobRoles},
		{keywords, &q.IdealKeywords},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("question %s: failed to unmarshal list: %w", q.ID, err)
		}
	}

	vec, err := storage.DecodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("question %s: %w", q.ID, err)
	}
	q.Embedding = vec
	return &q, nil
}

func marshalLists(q *types.Question) (topics, jobRoles, keywords string, err error) {
	enc := func(v []string) (string, error) {
		if v == nil {
			v = []string{}
		}
		b, err := json.Marshal(v)
		return string(b), err
	}
	if topics, err = enc(q.Topics); err != nil {
		return "", "", "", fmt.Errorf("failed to marshal topics: %w", err)
	}
	if jobRoles, err = enc(q.JobRoles); err != nil {
		return "", "", "", fmt.Errorf("failed to marshal job roles: %w", err)
	}
	if keywords, err = enc(q.IdealKeywords); err != nil {
		return "", "", "", fmt.Errorf("failed to marshal keywords: %w", err)
	}
	return topics, jobRoles, keywords, nil
}
