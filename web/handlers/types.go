package handlers

import (
	"time"

	"github.com/scrypster/questionmatch/internal/engine"
	"github.com/scrypster/questionmatch/internal/notify"
	"github.com/scrypster/questionmatch/pkg/types"
)

// Event types pushed over the websocket feed.
const (
	EventProfileUpdated   = notify.EventProfileUpdated
	EventResponseRecorded = notify.EventResponseRecorded
	EventCorpusChanged    = notify.EventCorpusChanged
	EventCorpusReloaded   = "corpus_reloaded"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// EventMessage is one websocket event.
type EventMessage struct {
	Type    string      `json:"type"`
	Subject string      `json:"subject,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Time    time.Time   `json:"time"`
}

// NewEventMessage stamps an event with the current time.
func NewEventMessage(eventType, subject string, data interface{}) EventMessage {
	return EventMessage{Type: eventType, Subject: subject, Data: data, Time: time.Now().UTC()}
}

// CreateProfileRequest is the request body for POST /api/profiles.
type CreateProfileRequest struct {
	CandidateID string             `json:"candidate_id,omitempty"`
	Resume      types.ResumeRecord `json:"resume"`
}

// ProfileResponse wraps a profile for output. The vector is omitted unless asked for.
type ProfileResponse struct {
	Profile *types.CandidateProfile `json:"profile"`
	Created bool                    `json:"created,omitempty"`
}

// RetrievalResponse is the response format for the question retrieval endpoints.
type RetrievalResponse struct {
	CandidateID string                 `json:"candidate_id"`
	Difficulty  types.Difficulty       `json:"difficulty,omitempty"`
	Count       int                    `json:"count"`
	Questions   []types.ScoredQuestion `json:"questions"`
}

// BulkQuestionsRequest is the request body for POST /api/questions/bulk.
type BulkQuestionsRequest struct {
	Questions []engine.QuestionInput `json:"questions"`
}

// BulkQuestionsResponse reports the questions inserted by a bulk request.
type BulkQuestionsResponse struct {
	Inserted  int               `json:"inserted"`
	Questions []*types.Question `json:"questions"`
}

// ReloadResponse is the response format for POST /api/corpus/reload.
type ReloadResponse struct {
	Generation uint64    `json:"generation"`
	Questions  int       `json:"questions"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// StatsResponse is the response format for GET /api/stats.
type StatsResponse struct {
	Database         *types.DatabaseStats `json:"database"`
	CorpusGeneration uint64               `json:"corpus_generation"`
	CorpusQuestions  int                  `json:"corpus_questions"`
	CorpusLoadedAt   time.Time            `json:"corpus_loaded_at"`
	LastSweep        *time.Time           `json:"last_sweep,omitempty"`
	LastSweepRemoved int                  `json:"last_sweep_removed"`
	EmbeddingModel   string               `json:"embedding_model,omitempty"`
}

// withoutVector returns a shallow copy of p with the vector dropped.
func withoutVector(p *types.CandidateProfile) *types.CandidateProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.ProfileVector = nil
	return &out
}

// withoutEmbeddings returns copies of qs with embeddings dropped.
func withoutEmbeddings(qs []*types.Question) []*types.Question {
	out := make([]*types.Question, len(qs))
	for i, q := range qs {
		c := *q
		c.Embedding = nil
		out[i] = &c
	}
	return out
}
