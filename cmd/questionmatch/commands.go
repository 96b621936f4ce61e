package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scrypster/questionmatch/internal/backup"
	"github.com/scrypster/questionmatch/internal/config"
	"github.com/scrypster/questionmatch/internal/engine"
	"github.com/scrypster/questionmatch/internal/notify"
	"github.com/scrypster/questionmatch/internal/server"
	"github.com/scrypster/questionmatch/pkg/types"
)

type retrieveCmd struct {
	Candidate     string   `arg:"" help:"Candidate id."`
	Category      string   `help:"Only questions in this category."`
	Difficulty    string   `help:"Only questions at this difficulty."`
	Topic         string   `help:"Only questions carrying this topic."`
	MinSimilarity *float64 `help:"Minimum similarity (default SIMILARITY_THRESHOLD)."`
	Max           int      `help:"Maximum results (default MAX_QUESTIONS_PER_SESSION)."`
}

func (c *retrieveCmd) Run(rt *runtime) error {
	category, err := types.ParseCategory(c.Category)
	if err != nil {
		return err
	}
	difficulty, err := types.ParseDifficulty(c.Difficulty)
	if err != nil {
		return err
	}
	cfg := rt.app.Config.EngineConfig()
	min := cfg.SimilarityThreshold
	if c.MinSimilarity != nil {
		min = *c.MinSimilarity
	}
	max := c.Max
	if max == 0 {
		max = cfg.MaxQuestionsPerSession
	}
	qs, err := rt.app.Retrieval.Retrieve(rt.ctx, c.Candidate,
		types.QuestionFilter{Category: category, Difficulty: difficulty, Topic: c.Topic}, min, max)
	if err != nil {
		return err
	}
	return rt.print(questionsOut(qs))
}

type adaptiveCmd struct {
	Candidate string   `arg:"" help:"Candidate id."`
	LastScore *float64 `help:"Total score of the previous answer; omit for the first question."`
	Max       int      `help:"Maximum results (default ADAPTIVE_MAX_QUESTIONS)."`
}

func (c *adaptiveCmd) Run(rt *runtime) error {
	max := c.Max
	if max == 0 {
		max = rt.app.Config.EngineConfig().AdaptiveMaxQuestions
	}
	qs, err := rt.app.Retrieval.RetrieveAdaptive(rt.ctx, c.Candidate, c.LastScore, max)
	if err != nil {
		return err
	}
	return rt.print(map[string]interface{}{
		"difficulty": engine.DifficultyForScore(c.LastScore),
		"questions":  questionsOut(qs),
	})
}

type diverseCmd struct {
	Candidate   string `arg:"" help:"Candidate id."`
	PerCategory int    `help:"Questions per category (default DIVERSE_PER_CATEGORY)."`
}

func (c *diverseCmd) Run(rt *runtime) error {
	per := c.PerCategory
	if per == 0 {
		per = rt.app.Config.EngineConfig().DiversePerCategory
	}
	qs, err := rt.app.Retrieval.RetrieveDiverse(rt.ctx, c.Candidate, per)
	if err != nil {
		return err
	}
	return rt.print(questionsOut(qs))
}

type recommendCmd struct {
	Candidate string `arg:"" help:"Candidate id."`
}

func (c *recommendCmd) Run(rt *runtime) error {
	rec, err := rt.app.Retrieval.Recommendations(rt.ctx, c.Candidate)
	if err != nil {
		return err
	}
	rec.TopQuestions = questionsOut(rec.TopQuestions)
	return rt.print(rec)
}

type profileCmd struct {
	Create profileCreateCmd `cmd:"" help:"Create a profile from a JSON resume, or return the existing one."`
	Show   profileShowCmd   `cmd:"" help:"Show a stored profile."`
}

type profileCreateCmd struct {
	Resume    string `required:"" type:"existingfile" help:"Path to a JSON resume record."`
	Candidate string `help:"Candidate id; a UUID is generated when empty."`
}

func (c *profileCreateCmd) Run(rt *runtime) error {
	data, err := os.ReadFile(c.Resume)
	if err != nil {
		return err
	}
	var resume types.ResumeRecord
	if err := json.Unmarshal(data, &resume); err != nil {
		return fmt.Errorf("%w: parse %s: %w", types.ErrInvalidInput, c.Resume, err)
	}
	p, created, err := rt.app.Creator.GetOrCreate(rt.ctx, c.Candidate, resume)
	if err != nil {
		return err
	}
	p.ProfileVector = nil
	return rt.print(map[string]interface{}{"profile": p, "created": created})
}

type profileShowCmd struct {
	Candidate     string `arg:"" help:"Candidate id."`
	IncludeVector bool   `help:"Print the profile vector too."`
}

func (c *profileShowCmd) Run(rt *runtime) error {
	p, err := rt.app.Store.GetProfile(rt.ctx, c.Candidate)
	if err != nil {
		return err
	}
	if !c.IncludeVector {
		p.ProfileVector = nil
	}
	return rt.print(p)
}

type recordCmd struct {
	Candidate string  `arg:"" help:"Candidate id."`
	Question  string  `arg:"" help:"Question id."`
	Knowledge float64 `required:"" help:"Knowledge score in [0, 1]."`
	Speech    float64 `required:"" help:"Speech score in [0, 1]."`
	Answer    string  `help:"Answer text."`
}

func (c *recordCmd) Run(rt *runtime) error {
	res, err := rt.app.Updates.RecordResponseAndUpdate(rt.ctx, engine.ResponseInput{
		CandidateID:    c.Candidate,
		QuestionID:     c.Question,
		AnswerText:     c.Answer,
		KnowledgeScore: c.Knowledge,
		SpeechScore:    c.Speech,
	})
	if err != nil {
		return err
	}
	if res.Update != nil && res.Update.Profile != nil {
		p := *res.Update.Profile
		p.ProfileVector = nil
		res.Update.Profile = &p
	}
	return rt.print(res)
}

type updateCmd struct {
	Candidate string `arg:"" help:"Candidate id."`
}

func (c *updateCmd) Run(rt *runtime) error {
	res, err := rt.app.Updates.Update(rt.ctx, c.Candidate)
	if err != nil {
		return err
	}
	p := *res.Profile
	p.ProfileVector = nil
	res.Profile = &p
	return rt.print(res)
}

type performanceCmd struct {
	Candidate string `arg:"" help:"Candidate id."`
}

func (c *performanceCmd) Run(rt *runtime) error {
	summary, err := rt.app.Updates.PerformanceSummary(rt.ctx, c.Candidate)
	if err != nil {
		return err
	}
	return rt.print(summary)
}

type ingestCmd struct {
	File string `arg:"" type:"existingfile" help:"JSON or YAML list of questions."`
}

func (c *ingestCmd) Run(rt *runtime) error {
	qs, err := rt.app.Questions.LoadQuestionsFile(rt.ctx, c.File)
	if err != nil {
		return fmt.Errorf("ingested %d questions before failing: %w", len(qs), err)
	}
	return rt.print(map[string]interface{}{"inserted": len(qs)})
}

type summaryCmd struct{}

func (c *summaryCmd) Run(rt *runtime) error {
	s, err := rt.app.Questions.Summary(rt.ctx)
	if err != nil {
		return err
	}
	return rt.print(s)
}

type reloadCmd struct{}

func (c *reloadCmd) Run(rt *runtime) error {
	snap, err := rt.app.Corpus.Reload(rt.ctx)
	if err != nil {
		return err
	}
	announce(rt.notifier, notify.EventCorpusChanged, "reload")
	return rt.print(map[string]interface{}{
		"generation": snap.Generation(),
		"questions":  snap.Len(),
	})
}

type sweepCmd struct{}

func (c *sweepCmd) Run(rt *runtime) error {
	n, err := rt.app.Sweeper.SweepNow(rt.ctx)
	if err != nil {
		return err
	}
	return rt.print(map[string]int{"removed": n})
}

type statsCmd struct{}

func (c *statsCmd) Run(rt *runtime) error {
	st, err := rt.app.Store.Stats(rt.ctx)
	if err != nil {
		return err
	}
	return rt.print(map[string]interface{}{
		"database":        st,
		"embedding_model": rt.app.Embedder.Model(),
	})
}

type backupCmd struct {
	Dir  string `help:"Backup directory (default {data path}/backups)."`
	Keep int    `default:"24" help:"Number of backups to keep."`
}

func (c *backupCmd) Run(rt *runtime) error {
	cfg := rt.app.Config
	if cfg.Storage.StorageEngine != config.StorageSQLite && cfg.Storage.StorageEngine != "" {
		return fmt.Errorf("%w: backup supports the sqlite engine only, use pg_dump for %s",
			types.ErrInvalidInput, cfg.Storage.StorageEngine)
	}
	dir := c.Dir
	if dir == "" {
		dir = filepath.Join(cfg.Storage.DataPath, "backups")
	}
	res, err := backup.Create(rt.ctx, server.SQLitePath(cfg), dir, time.Now())
	if err != nil {
		return err
	}
	pruned, err := backup.Prune(dir, c.Keep)
	if err != nil {
		return err
	}
	return rt.print(map[string]interface{}{"backup": res, "pruned": pruned})
}

// questionsOut drops embeddings, which are noise on a terminal.
func questionsOut(qs []types.ScoredQuestion) []types.ScoredQuestion {
	out := make([]types.ScoredQuestion, len(qs))
	for i, q := range qs {
		q.Embedding = nil
		out[i] = q
	}
	return out
}
