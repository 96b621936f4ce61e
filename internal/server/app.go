package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/scrypster/questionmatch/internal/config"
	"github.com/scrypster/questionmatch/internal/corpus"
	"github.com/scrypster/questionmatch/internal/engine"
	"github.com/scrypster/questionmatch/internal/llm"
	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/internal/storage/postgres"
	"github.com/scrypster/questionmatch/internal/storage/redis"
	"github.com/scrypster/questionmatch/internal/storage/sqlite"
)

// sqliteFile is the database file name under the data path.
const sqliteFile = "questionmatch.db"

// App is the assembled set of collaborators shared by the web server and the
// operator CLI. Everything is constructed once and passed by reference.
type App struct {
	Config    *config.Config
	Store     storage.Store
	Cache     storage.RetrievalCache
	Embedder  *llm.Embedder
	Corpus    *corpus.Corpus
	Retrieval *engine.RetrievalEngine
	Updates   *engine.UpdateEngine
	Creator   *engine.ProfileCreator
	Questions *engine.QuestionManager
	Sweeper   *engine.CacheSweeper

	closers []func() error
}

// AppOption adjusts how NewApp assembles the App.
type AppOption func(*appOptions)

type appOptions struct {
	store     storage.Store
	generator llm.EmbeddingGenerator
	notifier  engine.Notifier
}

// WithStore uses an already open store instead of opening one from config.
// The caller keeps ownership; App.Close does not close it.
func WithStore(s storage.Store) AppOption {
	return func(o *appOptions) { o.store = s }
}

// WithEmbeddingGenerator replaces the configured embedding backend.
func WithEmbeddingGenerator(g llm.EmbeddingGenerator) AppOption {
	return func(o *appOptions) { o.generator = g }
}

// WithNotifier makes question writes announce themselves to other processes.
func WithNotifier(n engine.Notifier) AppOption {
	return func(o *appOptions) { o.notifier = n }
}

// NewApp opens storage and builds the engines described by cfg.
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppOption) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	app.Store = o.store
	if app.Store == nil {
		store, err := OpenStore(cfg)
		if err != nil {
			return nil, err
		}
		app.Store = store
		app.closers = append(app.closers, store.Close)
	}

	app.Cache = app.Store
	if cfg.Cache.Backend == config.CacheBackendRedis {
		cache, err := redis.NewCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		app.Cache = cache
		app.closers = append(app.closers, cache.Close)
	}

	gen := o.generator
	if gen == nil {
		var err error
		gen, err = llm.NewEmbeddingGenerator(cfg.ProviderConfig())
		if err != nil {
			return nil, err
		}
	}
	app.Embedder = llm.NewEmbedder(gen, cfg.Embedding.Dimension, cfg.Embedding.Timeout)

	ecfg := cfg.EngineConfig()
	app.Corpus = corpus.New(app.Store, corpus.Options{
		Dimension:       ecfg.Dimension,
		RefreshInterval: cfg.Matching.CorpusRefreshInterval,
		LoadTimeout:     ecfg.StorageTimeout,
	})

	var err error
	if app.Retrieval, err = engine.NewRetrievalEngine(app.Store, app.Cache, app.Corpus, ecfg); err != nil {
		return nil, err
	}
	if app.Updates, err = engine.NewUpdateEngine(app.Store, app.Store, app.Corpus, app.Embedder, ecfg); err != nil {
		return nil, err
	}
	app.Creator = engine.NewProfileCreator(app.Store, app.Embedder, ecfg.StorageTimeout)
	app.Questions = engine.NewQuestionManager(app.Store, app.Corpus, app.Embedder, o.notifier, ecfg.StorageTimeout)
	if app.Sweeper, err = engine.NewCacheSweeper(app.Cache, cfg.Cache.SweepInterval); err != nil {
		return nil, err
	}

	log.Printf("server: storage=%s cache=%s embedding=%s dimension=%d",
		cfg.Storage.StorageEngine, cfg.Cache.Backend, app.Embedder.Model(), ecfg.Dimension)
	ok = true
	return app, nil
}

// OpenStore opens the storage engine named in cfg.
func OpenStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case config.StoragePostgres:
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN, cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageSQLite, "":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, fmt.Errorf("create data path: %w", err)
		}
		store, err := sqlite.NewStore(SQLitePath(cfg), cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage engine: %q", cfg.Storage.StorageEngine)
	}
}

// SQLitePath is the database file used by the sqlite storage engine.
func SQLitePath(cfg *config.Config) string {
	return filepath.Join(cfg.Storage.DataPath, sqliteFile)
}

// Close releases everything NewApp opened, in reverse order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
