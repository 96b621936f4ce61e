package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/pkg/types"
)

// AppendHistory records a response. history_id comes from AUTOINCREMENT and
// is therefore strictly increasing.
func (s *Store) AppendHistory(ctx context.Context, entry *types.HistoryEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO interview_history
			(candidate_id, question_id, answer_text, knowledge_score, speech_score, total_score, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.CandidateID, entry.QuestionID, entry.AnswerText,
		entry.KnowledgeScore, entry.SpeechScore, entry.TotalScore, entry.Timestamp.UTC())
	if err != nil {
		return 0, storage.Fault(backend, "append history", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, storage.Fault(backend, "append history", err)
	}
	entry.HistoryID = id
	return id, nil
}

// RecentHistory returns up to limit entries, newest first.
func (s *Store) RecentHistory(ctx context.Context, candidateID string, limit int) ([]*types.HistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT history_id, candidate_id, question_id, answer_text,
		       knowledge_score, speech_score, total_score, timestamp
		FROM interview_history
		WHERE candidate_id = ?
		ORDER BY history_id DESC
		LIMIT ?`, candidateID, limit)
	if err != nil {
		return nil, storage.Fault(backend, "recent history", err)
	}
	defer rows.Close()

	var out []*types.HistoryEntry
	for rows.Next() {
		var h types.HistoryEntry
		if err := rows.Scan(&h.HistoryID, &h.CandidateID, &h.QuestionID, &h.AnswerText,
			&h.KnowledgeScore, &h.SpeechScore, &h.TotalScore, &h.Timestamp); err != nil {
			return nil, storage.Fault(backend, "scan history", err)
		}
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Fault(backend, "recent history", err)
	}
	return out, nil
}

// HistoryStats aggregates the candidate's full history in one query.
func (s *Store) HistoryStats(ctx context.Context, candidateID string) (*types.PerformanceStats, error) {
	var (
		st                            types.PerformanceStats
		avgK, avgS, avgT, best, worst sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(knowledge_score), AVG(speech_score), AVG(total_score),
		       MAX(total_score), MIN(total_score)
		FROM interview_history WHERE candidate_id = ?`, candidateID).
		Scan(&st.TotalQuestions, &avgK, &avgS, &avgT, &best, &worst)
	if err != nil {
		return nil, storage.Fault(backend, "history stats", err)
	}
	st.AvgKnowledgeScore = avgK.Float64
	st.AvgSpeechScore = avgS.Float64
	st.AvgTotalScore = avgT.Float64
	st.BestScore = best.Float64
	st.WorstScore = worst.Float64
	return &st, nil
}
