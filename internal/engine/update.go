package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/questionmatch/internal/corpus"
	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/internal/vecmath"
	"github.com/scrypster/questionmatch/pkg/types"
)

// Reasons an Update left the profile unchanged.
const (
	SkipNoHistory     = "no_history"
	SkipNoHighScores  = "no_high_scores"
	SkipNoResolvable  = "no_resolvable_questions"
	trendSampleWindow = 5
)

// Performance trends reported by PerformanceSummary.
const (
	TrendImproving        = "improving"
	TrendDeclining        = "declining"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

// UpdateEngine evolves profile vectors from interview performance.
type UpdateEngine struct {
	config   Config
	profiles storage.ProfileStore
	history  storage.HistoryLog
	corpus   *corpus.Corpus
	embedder TextEmbedder
	now      func() time.Time

	mu                 sync.RWMutex
	onProfileUpdated   func(p *types.CandidateProfile)
	onResponseRecorded func(h *types.HistoryEntry)
}

// NewUpdateEngine creates an update engine.
func NewUpdateEngine(profiles storage.ProfileStore, history storage.HistoryLog, c *corpus.Corpus,
	embedder TextEmbedder, cfg Config) (*UpdateEngine, error) {
	if profiles == nil || history == nil {
		return nil, fmt.Errorf("profile store and history log are required")
	}
	if c == nil {
		return nil, fmt.Errorf("corpus is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &UpdateEngine{
		config:   cfg,
		profiles: profiles,
		history:  history,
		corpus:   c,
		embedder: embedder,
		now:      time.Now,
	}, nil
}

// SetOnProfileUpdated registers a callback run after every successful
// compare-and-update.
func (e *UpdateEngine) SetOnProfileUpdated(fn func(p *types.CandidateProfile)) {
	e.mu.Lock()
	e.onProfileUpdated = fn
	e.mu.Unlock()
}

// SetOnResponseRecorded registers a callback run after a response is appended.
func (e *UpdateEngine) SetOnResponseRecorded(fn func(h *types.HistoryEntry)) {
	e.mu.Lock()
	e.onResponseRecorded = fn
	e.mu.Unlock()
}

// UpdateResult is the outcome of Update. When Updated is false the profile is
// returned exactly as read and Reason says why nothing changed.
type UpdateResult struct {
	Profile *types.CandidateProfile `json:"profile"`
	Updated bool                    `json:"updated"`
	Reason  string                  `json:"reason,omitempty"`
}

// Update recomputes the candidate's profile vector from recent high scoring
// answers and refreshes the performance statistics in its metadata.
//
// Insufficient history is not an error: the profile comes back unchanged.
// A concurrent update of the same candidate makes this call fail with
// types.ErrVersionConflict; the caller decides whether to retry.
func (e *UpdateEngine) Update(ctx context.Context, candidateID string) (*UpdateResult, error) {
	if candidateID == "" {
		return nil, types.NewValidationError("candidate_id", "is required")
	}

	profile, err := e.getProfile(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	history, err := e.recent(ctx, candidateID, e.config.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return &UpdateResult{Profile: profile, Reason: SkipNoHistory}, nil
	}

	var high []*types.HistoryEntry
	for _, h := range history {
		if h.TotalScore >= e.config.HighScoreThreshold {
			high = append(high, h)
			if len(high) == e.config.MaxPerformanceQuestions {
				break
			}
		}
	}
	if len(high) == 0 {
		return &UpdateResult{Profile: profile, Reason: SkipNoHighScores}, nil
	}

	snap, err := e.corpus.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(high))
	for _, h := range high {
		if q, ok := snap.Get(h.QuestionID); ok {
			texts = append(texts, q.Text)
		}
	}
	if len(texts) == 0 {
		return &UpdateResult{Profile: profile, Reason: SkipNoResolvable}, nil
	}

	performance, err := e.embedder.Embed(ctx, strings.Join(texts, " "))
	if err != nil {
		return nil, fmt.Errorf("performance vector for %s: %w", candidateID, err)
	}
	blended, err := vecmath.WeightedBlend(profile.ProfileVector, performance,
		e.config.UpdateOldWeight, e.config.UpdateNewWeight)
	if err != nil {
		return nil, fmt.Errorf("blend profile %s: %w", candidateID, err)
	}

	stats, err := e.stats(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	meta := profile.Metadata.Clone()
	meta.Stats = stats
	meta.AvgScore = stats.AvgTotalScore
	meta.TotalInterviews = stats.TotalQuestions

	sctx, cancel := withTimeout(ctx, e.config.StorageTimeout)
	defer cancel()
	updated, err := e.profiles.CompareAndUpdate(sctx, candidateID, profile.Version, blended, meta)
	if err != nil {
		if errors.Is(err, types.ErrVersionConflict) {
			log.Printf("engine: update of %s lost race at version %d", candidateID, profile.Version)
		}
		return nil, err
	}

	log.Printf("engine: profile %s updated to version %d from %d answers", candidateID, updated.Version, len(texts))
	e.mu.RLock()
	cb := e.onProfileUpdated
	e.mu.RUnlock()
	if cb != nil {
		cb(updated)
	}
	return &UpdateResult{Profile: updated, Updated: true}, nil
}

// ResponseInput is one answer to record.
type ResponseInput struct {
	CandidateID    string  `json:"candidate_id"`
	QuestionID     string  `json:"question_id"`
	AnswerText     string  `json:"answer_text"`
	KnowledgeScore float64 `json:"knowledge_score"`
	SpeechScore    float64 `json:"speech_score"`
}

// RecordResult reports what RecordResponseAndUpdate did. The response is
// recorded whenever a RecordResult is returned; UpdateSucceeded covers only
// the profile update that follows.
type RecordResult struct {
	HistoryID       int64         `json:"history_id"`
	TotalScore      float64       `json:"total_score"`
	UpdateSucceeded bool          `json:"update_succeeded"`
	Update          *UpdateResult `json:"update,omitempty"`
	UpdateError     string        `json:"update_error,omitempty"`

	updateErr error
}

// Err returns the error of the profile update, if it failed.
func (r *RecordResult) Err() error { return r.updateErr }

// RecordResponseAndUpdate appends the answer to the history log and then
// updates the profile. The append is committed on its own and is never rolled
// back when the update fails or is skipped. A skipped update counts as success.
func (e *UpdateEngine) RecordResponseAndUpdate(ctx context.Context, in ResponseInput) (*RecordResult, error) {
	entry := &types.HistoryEntry{
		CandidateID:    in.CandidateID,
		QuestionID:     in.QuestionID,
		AnswerText:     in.AnswerText,
		KnowledgeScore: in.KnowledgeScore,
		SpeechScore:    in.SpeechScore,
		TotalScore:     in.KnowledgeScore*e.config.KnowledgeWeight + in.SpeechScore*e.config.SpeechWeight,
		Timestamp:      e.now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	sctx, cancel := withTimeout(ctx, e.config.StorageTimeout)
	id, err := e.history.AppendHistory(sctx, entry)
	cancel()
	if err != nil {
		return nil, err
	}
	entry.HistoryID = id

	e.mu.RLock()
	cb := e.onResponseRecorded
	e.mu.RUnlock()
	if cb != nil {
		cb(entry)
	}

	res := &RecordResult{HistoryID: id, TotalScore: entry.TotalScore}
	upd, err := e.Update(ctx, in.CandidateID)
	if err != nil {
		log.Printf("engine: response %d recorded but profile update for %s failed: %v", id, in.CandidateID, err)
		res.updateErr = err
		res.UpdateError = err.Error()
		return res, nil
	}
	res.Update = upd
	res.UpdateSucceeded = true
	return res, nil
}

// PerformanceSummary is a candidate's aggregate record plus a trend over the
// most recent answers.
type PerformanceSummary struct {
	CandidateID string `json:"candidate_id"`
	types.PerformanceStats
	Trend           string `json:"trend"`
	RecentResponses int    `json:"recent_responses"`
}

// PerformanceSummary compares the mean total score of the newest five answers
// with the five before them. Fewer than five answers give insufficient_data.
func (e *UpdateEngine) PerformanceSummary(ctx context.Context, candidateID string) (*PerformanceSummary, error) {
	if candidateID == "" {
		return nil, types.NewValidationError("candidate_id", "is required")
	}
	stats, err := e.stats(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	recent, err := e.recent(ctx, candidateID, e.config.PerformanceSampleSize)
	if err != nil {
		return nil, err
	}
	return &PerformanceSummary{
		CandidateID:      candidateID,
		PerformanceStats: *stats,
		Trend:            trend(recent),
		RecentResponses:  len(recent),
	}, nil
}

// trend expects history newest first.
func trend(history []*types.HistoryEntry) string {
	if len(history) < trendSampleWindow {
		return TrendInsufficientData
	}
	recentAvg := meanTotal(history[:trendSampleWindow])
	olderAvg := recentAvg
	if older := history[trendSampleWindow:]; len(older) > 0 {
		if len(older) > trendSampleWindow {
			older = older[:trendSampleWindow]
		}
		olderAvg = meanTotal(older)
	}
	switch {
	case recentAvg > olderAvg:
		return TrendImproving
	case recentAvg < olderAvg:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func meanTotal(entries []*types.HistoryEntry) float64 {
	var sum float64
	for _, h := range entries {
		sum += h.TotalScore
	}
	return sum / float64(len(entries))
}

func (e *UpdateEngine) getProfile(ctx context.Context, candidateID string) (*types.CandidateProfile, error) {
	sctx, cancel := withTimeout(ctx, e.config.StorageTimeout)
	defer cancel()
	return e.profiles.GetProfile(sctx, candidateID)
}

func (e *UpdateEngine) recent(ctx context.Context, candidateID string, limit int) ([]*types.HistoryEntry, error) {
	sctx, cancel := withTimeout(ctx, e.config.StorageTimeout)
	defer cancel()
	return e.history.RecentHistory(sctx, candidateID, limit)
}

// stats reads the aggregate history and rounds it to two places.
func (e *UpdateEngine) stats(ctx context.Context, candidateID string) (*types.PerformanceStats, error) {
	sctx, cancel := withTimeout(ctx, e.config.StorageTimeout)
	defer cancel()
	st, err := e.history.HistoryStats(sctx, candidateID)
	if err != nil {
		return nil, err
	}
	return &types.PerformanceStats{
		TotalQuestions:    st.TotalQuestions,
		AvgKnowledgeScore: round(st.AvgKnowledgeScore, 2),
		AvgSpeechScore:    round(st.AvgSpeechScore, 2),
		AvgTotalScore:     round(st.AvgTotalScore, 2),
		BestScore:         round(st.BestScore, 2),
		WorstScore:        round(st.WorstScore, 2),
	}, nil
}
