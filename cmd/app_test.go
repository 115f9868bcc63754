package main

import (
	"context"
	"path/filepath"
	"testing"

	"gameindex/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Provider = "tei"
	cfg.Embedding.BaseURL = "http://localhost:8080"
	cfg.Embedding.RateLimit = 5
	cfg.Store.Provider = "memory"
	cfg.Queue.Path = filepath.Join(t.TempDir(), "queue.db")
	cfg.IGDB.ClientID = "client"
	cfg.IGDB.AccessToken = "token"

	a := &app{cfg: cfg, logger: zap.NewNop()}
	t.Cleanup(a.Close)
	return a
}

func TestApp_EmbedderShared(t *testing.T) {
	a := testApp(t)

	first, err := a.embedder()
	require.NoError(t, err)
	second, err := a.embedder()
	require.NoError(t, err)
	assert.Same(t, first, second)

	server, consumer, err := a.server(context.Background())
	require.NoError(t, err)
	defer consumer.Release()
	assert.NotNil(t, server)

	third, err := a.embedder()
	require.NoError(t, err)
	assert.Same(t, first, third)
}

func TestApp_EmbedderUnknownProvider(t *testing.T) {
	a := testApp(t)
	a.cfg.Embedding.Provider = "bogus"

	_, err := a.embedder()
	assert.Error(t, err)
	assert.Nil(t, a.embed)
}
