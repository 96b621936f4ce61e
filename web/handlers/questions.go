package handlers

import (
	"errors"
	"net/http"

	"github.com/scrypster/questionmatch/internal/engine"
	"github.com/scrypster/questionmatch/pkg/types"
)

// RetrieveQuestions handles GET /api/questions/retrieve/{id}.
// Query parameters: category, difficulty, topic, min_similarity, max.
func (h *APIHandlers) RetrieveQuestions(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "candidate ID is required", nil)
		return
	}

	q := r.URL.Query()
	category, err := types.ParseCategory(q.Get("category"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid category", err)
		return
	}
	difficulty, err := types.ParseDifficulty(q.Get("difficulty"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid difficulty", err)
		return
	}
	minSimilarity, err := parseFloat(q.Get("min_similarity"), h.config.Matching.SimilarityThreshold)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid min_similarity", err)
		return
	}
	maxResults, err := parseInt(q.Get("max"), h.config.Matching.MaxQuestionsPerSession)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid max", err)
		return
	}

	filter := types.QuestionFilter{Category: category, Difficulty: difficulty, Topic: q.Get("topic")}
	questions, err := h.svc.Retriever.Retrieve(r.Context(), id, filter, minSimilarity, maxResults)
	if err != nil {
		respondEngineError(w, "failed to retrieve questions", err)
		return
	}
	respondJSON(w, http.StatusOK, RetrievalResponse{CandidateID: id, Count: len(questions), Questions: questions})
}

// AdaptiveQuestions handles GET /api/questions/adaptive/{id}?last_score=&max=.
func (h *APIHandlers) AdaptiveQuestions(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "candidate ID is required", nil)
		return
	}

	q := r.URL.Query()
	var lastScore *float64
	if raw := q.Get("last_score"); raw != "" {
		v, err := parseFloat(raw, 0)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid last_score", err)
			return
		}
		lastScore = &v
	}
	maxResults, err := parseInt(q.Get("max"), h.config.Matching.AdaptiveMaxQuestions)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid max", err)
		return
	}

	questions, err := h.svc.Retriever.RetrieveAdaptive(r.Context(), id, lastScore, maxResults)
	if err != nil {
		respondEngineError(w, "failed to retrieve questions", err)
		return
	}
	respondJSON(w, http.StatusOK, RetrievalResponse{
		CandidateID: id,
		Difficulty:  engine.DifficultyForScore(lastScore),
		Count:       len(questions),
		Questions:   questions,
	})
}

// DiverseQuestions handles GET /api/questions/diverse/{id}?per_category=.
func (h *APIHandlers) DiverseQuestions(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "candidate ID is required", nil)
		return
	}

	perCategory, err := parseInt(r.URL.Query().Get("per_category"), h.config.Matching.DiversePerCategory)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid per_category", err)
		return
	}

	questions, err := h.svc.Retriever.RetrieveDiverse(r.Context(), id, perCategory)
	if err != nil {
		respondEngineError(w, "failed to retrieve questions", err)
		return
	}
	respondJSON(w, http.StatusOK, RetrievalResponse{CandidateID: id, Count: len(questions), Questions: questions})
}

// Recommendations handles GET /api/questions/recommendations/{id}.
func (h *APIHandlers) Recommendations(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "candidate ID is required", nil)
		return
	}

	rec, err := h.svc.Retriever.Recommendations(r.Context(), id)
	if err != nil {
		respondEngineError(w, "failed to build recommendations", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// AddQuestion handles POST /api/questions - embed and store one question.
func (h *APIHandlers) AddQuestion(w http.ResponseWriter, r *http.Request) {
	var req engine.QuestionInput
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	q, err := h.svc.Questions.AddQuestion(r.Context(), req)
	if err != nil {
		respondEngineError(w, "failed to add question", err)
		return
	}
	respondJSON(w, http.StatusCreated, withoutEmbeddings([]*types.Question{q})[0])
}

// BulkAddQuestions handles POST /api/questions/bulk. Every input is validated
// before anything is stored; a failure part way reports how many went in.
func (h *APIHandlers) BulkAddQuestions(w http.ResponseWriter, r *http.Request) {
	var req BulkQuestionsRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if len(req.Questions) == 0 {
		respondError(w, http.StatusBadRequest, "questions are required", nil)
		return
	}

	inserted, err := h.svc.Questions.BulkAddQuestions(r.Context(), req.Questions)
	if err != nil {
		status := statusForError(err)
		respondJSON(w, status, ErrorResponse{
			Error: "failed to add questions",
			Code:  http.StatusText(status),
			Details: map[string]interface{}{
				"error":    err.Error(),
				"inserted": len(inserted),
			},
		})
		return
	}
	respondJSON(w, http.StatusCreated, BulkQuestionsResponse{
		Inserted:  len(inserted),
		Questions: withoutEmbeddings(inserted),
	})
}

// QuestionSummary handles GET /api/questions/summary.
func (h *APIHandlers) QuestionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Questions.Summary(r.Context())
	if err != nil {
		respondEngineError(w, "failed to summarize questions", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// ReloadCorpus handles POST /api/corpus/reload - force a new corpus snapshot.
func (h *APIHandlers) ReloadCorpus(w http.ResponseWriter, r *http.Request) {
	if h.svc.Corpus == nil {
		respondError(w, http.StatusServiceUnavailable, "corpus is not available", errors.New("no corpus configured"))
		return
	}

	snap, err := h.svc.Corpus.Reload(r.Context())
	if err != nil {
		respondEngineError(w, "failed to reload corpus", err)
		return
	}
	resp := ReloadResponse{Generation: snap.Generation(), Questions: snap.Len(), LoadedAt: snap.LoadedAt()}
	h.broadcast(EventCorpusReloaded, "", resp)
	respondJSON(w, http.StatusOK, resp)
}
