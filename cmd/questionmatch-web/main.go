package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/questionmatch/internal/config"
	"github.com/scrypster/questionmatch/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, addr, err := startServer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("questionmatch API running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close

	if err := app.Close(); err != nil {
		log.Printf("Error closing storage: %v", err)
	}
}

// startServer assembles the app and serves it until ctx is cancelled.
// The caller closes the returned App after shutdown.
func startServer(ctx context.Context, cfg *config.Config) (*server.App, string, error) {
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	addr, _, err := server.Start(ctx, cfg, app)
	if err != nil {
		_ = app.Close()
		return nil, "", err
	}
	return app, addr, nil
}
