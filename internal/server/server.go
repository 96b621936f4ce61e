// Package server assembles questionmatch from configuration and serves its
// JSON HTTP API, websocket event feed and background maintenance.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/questionmatch/internal/config"
	"github.com/scrypster/questionmatch/internal/notify"
	"github.com/scrypster/questionmatch/pkg/types"
	"github.com/scrypster/questionmatch/web/handlers"
)

// Version is reported by /api/health.
const Version = "1.0.0"

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start serves the API for app until ctx is cancelled. Alongside the HTTP
// server it runs the cache sweeper and watches {DataPath}/events for changes
// made by other processes, such as CLI ingestion.
//
// Returns the actual address being listened on (useful for testing with port 0)
// and the WebSocketHub that engine events are broadcast on.
func Start(ctx context.Context, cfg *config.Config, app *App) (string, *handlers.WebSocketHub, error) {
	wsHub := handlers.NewWebSocketHub(handlers.LocalOrigins(cfg.Server.Port)...)
	go wsHub.Run()

	wireEngineEvents(app, wsHub)

	apiHandlers := handlers.NewAPIHandlers(cfg, handlers.Services{
		Profiles:  app.Store,
		Seeder:    app.Creator,
		Updater:   app.Updates,
		Retriever: app.Retrieval,
		Questions: app.Questions,
		Corpus:    app.Corpus,
		Events:    wsHub,
	})
	statsHandler := handlers.NewStatsHandler(app.Store, app.Corpus, app.Sweeper, app.Embedder.Model())

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/profiles", apiHandlers.CreateProfile)
	apiMux.HandleFunc("GET /api/profiles/{id}", apiHandlers.GetProfile)
	apiMux.HandleFunc("POST /api/profiles/{id}/update", apiHandlers.UpdateProfile)
	apiMux.HandleFunc("GET /api/profiles/{id}/performance", apiHandlers.GetPerformance)
	apiMux.HandleFunc("POST /api/responses", apiHandlers.RecordResponse)
	apiMux.HandleFunc("GET /api/questions/retrieve/{id}", apiHandlers.RetrieveQuestions)
	apiMux.HandleFunc("GET /api/questions/adaptive/{id}", apiHandlers.AdaptiveQuestions)
	apiMux.HandleFunc("GET /api/questions/diverse/{id}", apiHandlers.DiverseQuestions)
	apiMux.HandleFunc("GET /api/questions/recommendations/{id}", apiHandlers.Recommendations)
	apiMux.HandleFunc("POST /api/questions", apiHandlers.AddQuestion)
	apiMux.HandleFunc("POST /api/questions/bulk", apiHandlers.BulkAddQuestions)
	apiMux.HandleFunc("GET /api/questions/summary", apiHandlers.QuestionSummary)
	apiMux.HandleFunc("POST /api/corpus/reload", apiHandlers.ReloadCorpus)
	apiMux.HandleFunc("GET /api/stats", statsHandler.GetStats)

	apiMux.HandleFunc("GET "+handlers.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"healthy","version":%q}`, Version)
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// No auth on the feed; origin validation guards browsers.
	if cfg.Server.EnableEvents {
		mux.Handle("GET /ws", wsHub)
	}

	handler := handlers.RateLimitMiddleware(mux, handlers.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
	handler = securityHeadersMiddleware(handler)

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		wsHub.Stop()
		return "", nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	watcher := notify.NewEventWatcher(cfg.Storage.DataPath, eventHandler(app, wsHub))
	if err := watcher.Start(); err != nil {
		log.Printf("server: event watcher disabled: %v", err)
		watcher = nil
	}

	go func() {
		if err := app.Sweeper.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("server: cache sweeper: %v", err)
		}
	}()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		if watcher != nil {
			watcher.Stop()
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub, nil
}

// wireEngineEvents forwards engine callbacks to the websocket feed.
func wireEngineEvents(app *App, hub handlers.Broadcaster) {
	app.Updates.SetOnProfileUpdated(func(p *types.CandidateProfile) {
		hub.Broadcast(handlers.NewEventMessage(handlers.EventProfileUpdated, p.CandidateID,
			map[string]interface{}{"version": p.Version}))
	})
	app.Updates.SetOnResponseRecorded(func(h *types.HistoryEntry) {
		hub.Broadcast(handlers.NewEventMessage(handlers.EventResponseRecorded, h.CandidateID,
			map[string]interface{}{"question_id": h.QuestionID, "total_score": h.TotalScore}))
	})
}

// eventHandler applies events written by other processes: a corpus change
// invalidates the snapshot, and every event is relayed to websocket clients.
func eventHandler(app *App, hub handlers.Broadcaster) notify.Handler {
	return func(evt notify.Event) {
		if evt.Type == notify.EventCorpusChanged {
			app.Corpus.Invalidate()
		}
		hub.Broadcast(handlers.NewEventMessage(evt.Type, evt.Subject, nil))
	}
}
