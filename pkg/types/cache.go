package types

import "time"

// RankedID is one (question id, similarity) pair of a cached result set.
type RankedID struct {
	QuestionID      string  `json:"question_id"`
	SimilarityScore float64 `json:"similarity_score"`
}

// CacheEntry is an immutable, time-bounded ranked result set for a candidate.
// Signature is empty in single-slot mode; otherwise it identifies the filters
// the results were computed under.
type CacheEntry struct {
	CacheID     string     `json:"cache_id"`
	CandidateID string     `json:"candidate_id"`
	Signature   string     `json:"signature,omitempty"`
	Results     []RankedID `json:"results"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// FreshAt reports whether the entry is still valid at now (expires_at > now).
func (e *CacheEntry) FreshAt(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

// DatabaseStats counts rows across the persistence substrate.
type DatabaseStats struct {
	TotalQuestions   int `json:"total_questions"`
	TotalCandidates  int `json:"total_candidates"`
	TotalResponses   int `json:"total_responses"`
	CachedRetrievals int `json:"cached_retrievals"`
}
