package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/scrypster/questionmatch/internal/config"
	"github.com/scrypster/questionmatch/internal/corpus"
	"github.com/scrypster/questionmatch/internal/engine"
	"github.com/scrypster/questionmatch/pkg/types"
)

// maxBodyBytes caps request bodies; bulk question uploads are the largest.
const maxBodyBytes = 4 << 20

// Retriever ranks questions for a candidate.
type Retriever interface {
	Retrieve(ctx context.Context, candidateID string, filter types.QuestionFilter,
		minSimilarity float64, maxResults int) ([]types.ScoredQuestion, error)
	RetrieveAdaptive(ctx context.Context, candidateID string, lastScore *float64,
		maxResults int) ([]types.ScoredQuestion, error)
	RetrieveDiverse(ctx context.Context, candidateID string, perCategory int) ([]types.ScoredQuestion, error)
	Recommendations(ctx context.Context, candidateID string) (*engine.Recommendations, error)
}

// ProfileUpdater records answers and evolves profiles.
type ProfileUpdater interface {
	Update(ctx context.Context, candidateID string) (*engine.UpdateResult, error)
	RecordResponseAndUpdate(ctx context.Context, in engine.ResponseInput) (*engine.RecordResult, error)
	PerformanceSummary(ctx context.Context, candidateID string) (*engine.PerformanceSummary, error)
}

// ProfileSeeder creates profiles from resumes.
type ProfileSeeder interface {
	GetOrCreate(ctx context.Context, candidateID string, resume types.ResumeRecord) (*types.CandidateProfile, bool, error)
}

// ProfileReader reads stored profiles.
type ProfileReader interface {
	GetProfile(ctx context.Context, candidateID string) (*types.CandidateProfile, error)
}

// QuestionWriter ingests questions into the corpus.
type QuestionWriter interface {
	AddQuestion(ctx context.Context, in engine.QuestionInput) (*types.Question, error)
	BulkAddQuestions(ctx context.Context, inputs []engine.QuestionInput) ([]*types.Question, error)
	Summary(ctx context.Context) (*types.QuestionSummary, error)
}

// CorpusReloader forces a new corpus snapshot.
type CorpusReloader interface {
	Reload(ctx context.Context) (*corpus.Snapshot, error)
}

// Broadcaster pushes a message to every connected event client.
type Broadcaster interface {
	Broadcast(message interface{})
}

// Services bundles the collaborators behind the REST API.
type Services struct {
	Profiles  ProfileReader
	Seeder    ProfileSeeder
	Updater   ProfileUpdater
	Retriever Retriever
	Questions QuestionWriter
	Corpus    CorpusReloader
	Events    Broadcaster // optional
}

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	config *config.Config
	svc    Services
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(cfg *config.Config, svc Services) *APIHandlers {
	return &APIHandlers{config: cfg, svc: svc}
}

// Helper functions

// extractID extracts a path parameter from the request.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// parseInt parses an integer query value, returning defaultValue when absent.
func parseInt(s string, defaultValue int) (int, error) {
	if s == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(s)
}

// parseFloat parses a float query value, returning defaultValue when absent.
func parseFloat(s string, defaultValue float64) (float64, error) {
	if s == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(s, 64)
}

// decodeBody reads a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}
	return nil
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent.
		log.Printf("handlers: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}

// respondEngineError maps an engine or storage error onto its HTTP status.
func respondEngineError(w http.ResponseWriter, message string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Printf("handlers: %s: %v", message, err)
	}
	respondError(w, status, message, err)
}

// statusForError returns the HTTP status for an error kind.
func statusForError(err error) int {
	switch {
	case errors.Is(err, types.ErrProfileNotFound), errors.Is(err, types.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrAlreadyExists), errors.Is(err, types.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvalidVector):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandlers) broadcast(eventType, subject string, data interface{}) {
	if h.svc.Events == nil {
		return
	}
	h.svc.Events.Broadcast(NewEventMessage(eventType, subject, data))
}
