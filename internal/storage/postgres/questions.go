package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/internal/vecmath"
	"github.com/scrypster/questionmatch/pkg/types"
)

const questionColumns = `question_id, question_text, category, difficulty, topics, job_roles,
	ideal_keywords, embedding, created_at, updated_at`

// selectQuestionColumns adds the pgvector mirror when the column exists.
func (s *Store) selectQuestionColumns() string {
	if s.pgvectorAvailable {
		return questionColumns + ", embedding_vec"
	}
	return questionColumns
}

// StoreQuestion inserts a new question after validating its embedding.
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

	topics, err := jsonList(q.Topics)
	if err != nil {
		return err
	}
	jobRoles, err := jsonList(q.JobRoles)
	if err != nil {
		return err
	}
	keywords, err := jsonList(q.IdealKeywords)
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

	cols := questionColumns
	values := "$1, $2, $3, $4, $5, $6, $7, $8, $9, $10"
	args := []interface{}{q.ID, q.Text, string(q.Category), string(q.Difficulty), string(topics), string(jobRoles),
		string(keywords), storage.EncodeVector(q.Embedding), q.CreatedAt, q.UpdatedAt}
	if s.pgvectorAvailable {
		cols += ", embedding_vec"
		values += ", $11"
		args = append(args, pgvector.NewVector(q.Embedding))
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (`+cols+`) VALUES (`+values+`)
		ON CONFLICT (question_id) DO NOTHING`, args...)
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

// ReplaceQuestionText updates text and embedding in one statement.
func (s *Store) ReplaceQuestionText(ctx context.Context, id, text string, embedding []float32) error {
	if id == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: question id and text are required", types.ErrInvalidInput)
	}
	if err := vecmath.Validate(embedding, s.dimension); err != nil {
		return fmt.Errorf("question %s: %w", id, err)
	}

	set := "question_text = $2, embedding = $3, updated_at = NOW()"
	args := []interface{}{id, text, storage.EncodeVector(embedding)}
	if s.pgvectorAvailable {
		set += ", embedding_vec = $4"
		args = append(args, pgvector.NewVector(embedding))
	}

	result, err := s.db.ExecContext(ctx, `UPDATE questions SET `+set+` WHERE question_id = $1`, args...)
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

// GetQuestion returns a question by id.
func (s *Store) GetQuestion(ctx context.Context, id string) (*types.Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+s.selectQuestionColumns()+` FROM questions WHERE question_id = $1`, id)
	q, err := scanQuestion(row, s.pgvectorAvailable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrQuestionNotFound, id)
	}
	if err != nil {
		return nil, storage.Fault(backend, "get question", err)
	}
	return q, nil
}

// ListQuestions returns matching questions in ingestion order.
func (s *Store) ListQuestions(ctx context.Context, filter types.QuestionFilter) ([]*types.Question, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Category != "" {
		add("category = $%d", string(filter.Category))
	}
	if filter.Difficulty != "" {
		add("difficulty = $%d", string(filter.Difficulty))
	}
	if filter.Topic != "" {
		add("topics @> jsonb_build_array($%d::text)", filter.Topic)
	}

	query := `SELECT ` + s.selectQuestionColumns() + ` FROM questions`
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
		q, err := scanQuestion(rows, s.pgvectorAvailable)
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

func scanQuestion(row rowScanner, withMirror bool) (*types.Question, error) {
	var (
		q                          types.Question
		category, difficulty       string
		topics, jobRoles, keywords []byte
		blob                       []byte
		mirror                     sql.Null[pgvector.Vector]
	)
	dest := []interface{}{&q.ID, &q.Text, &category, &difficulty, &topics, &jobRoles,
		&keywords, &blob, &q.CreatedAt, &q.UpdatedAt}
	if withMirror {
		dest = append(dest, &mirror)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	q.Category = types.Category(category)
	q.Difficulty = types.Difficulty(difficulty)
	if err := json.Unmarshal(topics, &q.Topics); err != nil {
		return nil, fmt.Errorf("question %s: failed to unmarshal topics: %w", q.ID, err)
	}
	if err := json.Unmarshal(jobRoles, &q.JobRoles); err != nil {
		return nil, fmt.Errorf("question %s: failed to unmarshal job roles: %w", q.ID, err)
	}
	if err := json.Unmarshal(keywords, &q.IdealKeywords); err != nil {
		return nil, fmt.Errorf("question %s: failed to unmarshal keywords: %w", q.ID, err)
	}
	vec, err := decodeVector(mirror, blob)
	if err != nil {
		return nil, fmt.Errorf("question %s: %w", q.ID, err)
	}
	q.Embedding = vec
	return &q, nil
}

// decodeVector prefers the pgvector column and falls back to the BYTEA copy
// for rows written before the extension was installed.
func decodeVector(mirror sql.Null[pgvector.Vector], blob []byte) ([]float32, error) {
	if mirror.Valid && len(mirror.V.Slice()) > 0 {
		return mirror.V.Slice(), nil
	}
	return storage.DecodeVector(blob)
}

func jsonList(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal list: %w", err)
	}
	return b, nil
}
