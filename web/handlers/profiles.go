package handlers

import (
	"net/http"

	"github.com/scrypster/questionmatch/internal/engine"
	"github.com/scrypster/questionmatch/pkg/types"
)

// CreateProfile handles POST /api/profiles - seed a profile from a resume.
// An existing profile is returned unchanged with 200; a new one with 201.
func (h *APIHandlers) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req CreateProfileRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	profile, created, err := h.svc.Seeder.GetOrCreate(r.Context(), req.CandidateID, req.Resume)
	if err != nil {
		respondEngineError(w, "failed to create profile", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, ProfileResponse{Profile: h.profileOut(r, profile), Created: created})
}

// GetProfile handles GET /api/profiles/{id}. Pass include_vector=true for the vector.
func (h *APIHandlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "candidate ID is required", nil)
		return
	}

	profile, err := h.svc.Profiles.GetProfile(r.Context(), id)
	if err != nil {
		respondEngineError(w, "failed to get profile", err)
		return
	}
	respondJSON(w, http.StatusOK, ProfileResponse{Profile: h.profileOut(r, profile)})
}

// UpdateProfile handles POST /api/profiles/{id}/update - recompute the profile
// vector from recent high scoring answers.
func (h *APIHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "candidate ID is required", nil)
		return
	}

	res, err := h.svc.Updater.Update(r.Context(), id)
	if err != nil {
		respondEngineError(w, "failed to update profile", err)
		return
	}
	out := *res
	out.Profile = h.profileOut(r, res.Profile)
	respondJSON(w, http.StatusOK, out)
}

// GetPerformance handles GET /api/profiles/{id}/performance.
func (h *APIHandlers) GetPerformance(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "candidate ID is required", nil)
		return
	}

	summary, err := h.svc.Updater.PerformanceSummary(r.Context(), id)
	if err != nil {
		respondEngineError(w, "failed to summarize performance", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// RecordResponse handles POST /api/responses - record an answer and update
// the candidate's profile. The answer stays recorded when the update fails;
// the failure is reported in update_error with status 201.
func (h *APIHandlers) RecordResponse(w http.ResponseWriter, r *http.Request) {
	var req engine.ResponseInput
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	res, err := h.svc.Updater.RecordResponseAndUpdate(r.Context(), req)
	if err != nil {
		respondEngineError(w, "failed to record response", err)
		return
	}

	out := *res
	if res.Update != nil {
		upd := *res.Update
		upd.Profile = withoutVector(upd.Profile)
		out.Update = &upd
	}
	respondJSON(w, http.StatusCreated, out)
}

// profileOut drops the vector unless the request asks for it.
func (h *APIHandlers) profileOut(r *http.Request, p *types.CandidateProfile) *types.CandidateProfile {
	if r.URL.Query().Get("include_vector") == "true" {
		return p
	}
	return withoutVector(p)
}
