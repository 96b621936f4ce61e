package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/questionmatch/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for k, v := range map[string]string{
		"QM_CONFIG_FILE":        "",
		"QM_HOST":               "127.0.0.1",
		"QM_PORT":               "0",
		"QM_DATA_PATH":          t.TempDir(),
		"QM_STORAGE_ENGINE":     "sqlite",
		"QM_CACHE_BACKEND":      "store",
		"QM_EMBEDDING_PROVIDER": "hash",
		"VECTOR_DIMENSION":      "32",
		"QM_SECURITY_MODE":      "development",
		"QM_RATE_LIMIT_RPS":     "0",
		"QM_ENABLE_EVENTS":      "true",
	} {
		t.Setenv(k, v)
	}
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestMainServer_Routes(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, addr, err := startServer(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	resp, err := http.Get("http://" + addr + "/api/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// WebSocket upgrade fails via plain GET, but the route exists.
	resp, err = http.Get("http://" + addr + "/ws")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.NotEqual(t, http.StatusNotFound, resp.StatusCode)
}

func TestMainServer_GracefulShutdown(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	app, addr, err := startServer(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	cancel()
	assert.Eventually(t, func() bool {
		c := http.Client{Timeout: 200 * time.Millisecond}
		resp, err := c.Get("http://" + addr + "/api/health")
		if err == nil {
			_ = resp.Body.Close()
		}
		return err != nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestStartServer_InvalidStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.StorageEngine = "mongo"
	_, _, err := startServer(context.Background(), cfg)
	assert.Error(t, err)
}
