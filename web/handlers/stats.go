package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/scrypster/questionmatch/internal/corpus"
	"github.com/scrypster/questionmatch/internal/storage"
)

// SnapshotSource exposes the current corpus snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*corpus.Snapshot, error)
}

// SweepReporter reports the last cache sweep.
type SweepReporter interface {
	SweepStatus() (time.Time, int)
}

// StatsHandler handles statistics endpoint requests.
type StatsHandler struct {
	store   storage.StatsProvider
	corpus  SnapshotSource
	sweeper SweepReporter
	model   string
}

// NewStatsHandler creates a new StatsHandler instance. sweeper may be nil.
func NewStatsHandler(store storage.StatsProvider, c SnapshotSource, sweeper SweepReporter, model string) *StatsHandler {
	return &StatsHandler{store: store, corpus: c, sweeper: sweeper, model: model}
}

// GetStats handles GET /api/stats - returns system statistics.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	db, err := h.store.Stats(ctx)
	if err != nil {
		respondEngineError(w, "failed to count rows", err)
		return
	}

	resp := StatsResponse{Database: db, EmbeddingModel: h.model}
	if h.corpus != nil {
		snap, err := h.corpus.Snapshot(ctx)
		if err != nil {
			respondEngineError(w, "failed to load corpus", err)
			return
		}
		resp.CorpusGeneration = snap.Generation()
		resp.CorpusQuestions = snap.Len()
		resp.CorpusLoadedAt = snap.LoadedAt()
	}
	if h.sweeper != nil {
		last, removed := h.sweeper.SweepStatus()
		if !last.IsZero() {
			resp.LastSweep = &last
		}
		resp.LastSweepRemoved = removed
	}

	respondJSON(w, http.StatusOK, resp)
}
