package types

import "time"

// HistoryEntry is one recorded interview response. Entries are append-only.
type HistoryEntry struct {
	HistoryID      int64     `json:"history_id"`
	CandidateID    string    `json:"candidate_id"`
	QuestionID     string    `json:"question_id"`
	AnswerText     string    `json:"answer_text"`
	KnowledgeScore float64   `json:"knowledge_score"`
	SpeechScore    float64   `json:"speech_score"`
	TotalScore     float64   `json:"total_score"`
	Timestamp      time.Time `json:"timestamp"`
}

// Validate checks identifiers and that all scores lie in [0, 1].
func (h *HistoryEntry) Validate() error {
	if h.CandidateID == "" {
		return NewValidationError("candidate_id", "is required")
	}
	if h.QuestionID == "" {
		return NewValidationError("question_id", "is required")
	}
	for _, s := range []struct {
		name  string
		value float64
	}{
		{"knowledge_score", h.KnowledgeScore},
		{"speech_score", h.SpeechScore},
		{"total_score", h.TotalScore},
	} {
		if s.value < 0 || s.value > 1 || s.value != s.value {
			return NewValidationError(s.name, "must be within [0, 1]")
		}
	}
	return nil
}

// PerformanceStats aggregates a candidate's full interview history.
type PerformanceStats struct {
	TotalQuestions    int     `json:"total_questions"`
	AvgKnowledgeScore float64 `json:"avg_knowledge_score"`
	AvgSpeechScore    float64 `json:"avg_speech_score"`
	AvgTotalScore     float64 `json:"avg_total_score"`
	BestScore         float64 `json:"best_score"`
	WorstScore        float64 `json:"worst_score"`
}
