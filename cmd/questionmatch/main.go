// Command questionmatch is the operator CLI. It opens the same store as the
// web server and announces its writes through the shared events directory so
// a running server refreshes its corpus and relays the change.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/alecthomas/kong"

	"github.com/scrypster/questionmatch/internal/config"
	"github.com/scrypster/questionmatch/internal/notify"
	"github.com/scrypster/questionmatch/internal/server"
	"github.com/scrypster/questionmatch/pkg/types"
)

type cli struct {
	Retrieve    retrieveCmd    `cmd:"" help:"Rank questions for a candidate."`
	Adaptive    adaptiveCmd    `cmd:"" help:"Rank questions at the difficulty implied by the last score."`
	Diverse     diverseCmd     `cmd:"" help:"Rank questions per category."`
	Recommend   recommendCmd   `cmd:"" help:"Summarize the best matches for a candidate."`
	Profile     profileCmd     `cmd:"" help:"Create or show candidate profiles."`
	Record      recordCmd      `cmd:"" help:"Record an answer and update the profile."`
	Update      updateCmd      `cmd:"" help:"Recompute a profile from recent history."`
	Performance performanceCmd `cmd:"" help:"Show a candidate's performance summary."`
	Ingest      ingestCmd      `cmd:"" help:"Ingest questions from a JSON or YAML file."`
	Summary     summaryCmd     `cmd:"" help:"Count questions by category, difficulty and topic."`
	Reload      reloadCmd      `cmd:"" help:"Reload the corpus and tell running servers to do the same."`
	Sweep       sweepCmd       `cmd:"" help:"Remove expired cached retrievals."`
	Stats       statsCmd       `cmd:"" help:"Show row counts."`
	Backup      backupCmd      `cmd:"" help:"Copy the SQLite database and prune old copies."`
}

// runtime is bound into every command's Run method.
type runtime struct {
	ctx      context.Context
	app      *server.App
	notifier *notify.EventWriter
	out      io.Writer
}

func (rt *runtime) print(v interface{}) error {
	enc := json.NewEncoder(rt.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("questionmatch: %v", err)
	}
}

// run parses args, assembles the app from the environment and executes the
// selected command, printing its result as JSON to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("questionmatch"),
		kong.Description("Operator CLI for the questionmatch profile and retrieval engine."),
		kong.UsageOnError(),
		kong.Writers(out, out),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	writer := notify.NewEventWriter(cfg.Storage.DataPath)
	app, err := server.NewApp(ctx, cfg, server.WithNotifier(writer))
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("questionmatch: close: %v", err)
		}
	}()

	app.Updates.SetOnProfileUpdated(func(p *types.CandidateProfile) {
		announce(writer, notify.EventProfileUpdated, p.CandidateID)
	})
	app.Updates.SetOnResponseRecorded(func(h *types.HistoryEntry) {
		announce(writer, notify.EventResponseRecorded, h.CandidateID)
	})

	return kctx.Run(&runtime{ctx: ctx, app: app, notifier: writer, out: out})
}

func announce(w *notify.EventWriter, eventType, subject string) {
	if err := w.Notify(eventType, subject); err != nil {
		log.Printf("questionmatch: %s notification failed: %v", eventType, err)
	}
}
