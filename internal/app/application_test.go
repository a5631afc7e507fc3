package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledgerfeed/internal/chain"
	"github.com/R3E-Network/ledgerfeed/internal/config"
	"github.com/R3E-Network/ledgerfeed/internal/feedcache"
)

func TestNew_MemoryDefaults(t *testing.T) {
	a, err := New(context.Background(), config.Default(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &chain.MemoryLedger{}, a.Ledger)
	assert.IsType(t, &feedcache.Memory{}, a.Cache)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewLedger(t *testing.T) {
	cfg := config.Default()
	program, err := cfg.Program()
	require.NoError(t, err)

	cfg.Ledger.Kind = config.LedgerRPC
	cfg.Ledger.RPCURL = "http://127.0.0.1:8899"
	l, err := NewLedger(cfg.Ledger, program, nil)
	require.NoError(t, err)
	assert.IsType(t, &chain.Client{}, l)

	cfg.Ledger.Keypairs = []string{"/nonexistent/id.json"}
	_, err = NewLedger(cfg.Ledger, program, nil)
	assert.Error(t, err)

	cfg.Ledger.Kind = "paper"
	_, err = NewLedger(cfg.Ledger, program, nil)
	assert.Error(t, err)
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	c, closer, err := NewCache(ctx, config.CacheConfig{Kind: config.CacheNone})
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Nil(t, closer)

	c, _, err = NewCache(ctx, config.CacheConfig{Kind: config.CacheMemory, Size: 2})
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, _, err = NewCache(ctx, config.CacheConfig{Kind: "disk"})
	assert.Error(t, err)
}
