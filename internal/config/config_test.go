package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	program, err := cfg.Program()
	require.NoError(t, err)
	assert.False(t, program.IsZero())
}

func TestLoad_YAMLThenEnvironment(t *testing.T) {
	path := writeFile(t, "ledgerfeed.yaml", `
ledger:
  kind: rpc
  rpc_url: http://localhost:8899
  commitment: finalized
  timeout: 5s
feed:
  concurrency: 3
  max_follow_scan: 500
  max_post_scan: 64
cache:
  kind: none
`)
	t.Setenv("LEDGERFEED_FEED_CONCURRENCY", "12")
	t.Setenv("LEDGERFEED_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, LedgerRPC, cfg.Ledger.Kind)
	assert.Equal(t, "http://localhost:8899", cfg.Ledger.RPCURL)
	assert.Equal(t, "finalized", cfg.Ledger.Commitment)
	assert.Equal(t, 5*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, 12, cfg.Feed.Concurrency)
	assert.Equal(t, uint64(500), cfg.Feed.MaxFollowScan)
	assert.Equal(t, uint64(64), cfg.Feed.MaxPostScan)
	assert.Equal(t, CacheNone, cfg.Cache.Kind)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched defaults survive.
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DefaultProgramID, cfg.Ledger.ProgramID)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, LedgerMemory, cfg.Ledger.Kind)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "ledger: [unterminated"))
	assert.Error(t, err)

	t.Setenv("LEDGERFEED_FEED_CONCURRENCY", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"rpc without url", func(c *Config) { c.Ledger.Kind = LedgerRPC }, "rpc_url"},
		{"unknown ledger", func(c *Config) { c.Ledger.Kind = "carrier-pigeon" }, "ledger.kind"},
		{"bad program", func(c *Config) { c.Ledger.ProgramID = "not-base58!" }, "program_id"},
		{"bad commitment", func(c *Config) { c.Ledger.Commitment = "eventually" }, "commitment"},
		{"zero concurrency", func(c *Config) { c.Feed.Concurrency = 0 }, "concurrency"},
		{"redis without addr", func(c *Config) { c.Cache.Kind = CacheRedis }, "redis_addr"},
		{"unknown cache", func(c *Config) { c.Cache.Kind = "disk" }, "cache.kind"},
		{"no listen addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "ledgerfeed.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, LedgerRPC, cfg.Ledger.Kind)
	assert.Equal(t, 2*time.Minute, cfg.Ledger.ConfirmTimeout)
	assert.Equal(t, CacheRedis, cfg.Cache.Kind)
	assert.Equal(t, []string{"*.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, DefaultProgramID, cfg.Ledger.ProgramID)
	assert.Equal(t, uint64(10000), cfg.Feed.MaxPostScan)
}
