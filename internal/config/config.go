// Package config loads ledgerfeed settings from a YAML file, a .env file and
// LEDGERFEED_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/ledgerfeed/internal/ledger"
)

// DefaultProgramID is the social program used when none is configured.
const DefaultProgramID = "9jQbYS1jJTgA1XmxXC5xuKf9YoQgLUaHrqyvv1WM9y3N"

// Ledger kinds.
const (
	LedgerRPC    = "rpc"
	LedgerMemory = "memory"
)

// Cache kinds.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the full ledgerfeed configuration.
type Config struct {
	Ledger  LedgerConfig  `yaml:"ledger"`
	Feed    FeedConfig    `yaml:"feed"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// LedgerConfig selects and tunes the ledger client.
type LedgerConfig struct {
	Kind              string        `yaml:"kind" env:"LEDGERFEED_LEDGER"`
	RPCURL            string        `yaml:"rpc_url" env:"LEDGERFEED_RPC_URL"`
	WSURL             string        `yaml:"ws_url" env:"LEDGERFEED_WS_URL"`
	ProgramID         string        `yaml:"program_id" env:"LEDGERFEED_PROGRAM_ID"`
	Commitment        string        `yaml:"commitment" env:"LEDGERFEED_COMMITMENT"`
	Timeout           time.Duration `yaml:"timeout" env:"LEDGERFEED_RPC_TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"LEDGERFEED_RPC_RPS"`
	Burst             int           `yaml:"burst" env:"LEDGERFEED_RPC_BURST"`
	ConfirmTimeout    time.Duration `yaml:"confirm_timeout" env:"LEDGERFEED_CONFIRM_TIMEOUT"`
	PollInterval      time.Duration `yaml:"poll_interval" env:"LEDGERFEED_POLL_INTERVAL"`
	// Keypairs are keypair files whose identities this process may submit for.
	Keypairs []string `yaml:"keypairs" env:"LEDGERFEED_KEYPAIRS"`
}

// FeedConfig tunes aggregation.
type FeedConfig struct {
	Concurrency   int    `yaml:"concurrency" env:"LEDGERFEED_FEED_CONCURRENCY"`
	MaxFollowScan uint64 `yaml:"max_follow_scan" env:"LEDGERFEED_MAX_FOLLOW_SCAN"`
	MaxPostScan   uint64 `yaml:"max_post_scan" env:"LEDGERFEED_MAX_POST_SCAN"`
}

// CacheConfig selects the feed cache.
type CacheConfig struct {
	Kind      string        `yaml:"kind" env:"LEDGERFEED_CACHE"`
	Size      int           `yaml:"size" env:"LEDGERFEED_CACHE_SIZE"`
	RedisAddr string        `yaml:"redis_addr" env:"LEDGERFEED_REDIS_ADDR"`
	RedisDB   int           `yaml:"redis_db" env:"LEDGERFEED_REDIS_DB"`
	TTL       time.Duration `yaml:"ttl" env:"LEDGERFEED_CACHE_TTL"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"LEDGERFEED_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"LEDGERFEED_SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"LEDGERFEED_CORS_ORIGINS"`
	SubmitRPS       float64       `yaml:"submit_rps" env:"LEDGERFEED_SUBMIT_RPS"`
	SubmitBurst     int           `yaml:"submit_burst" env:"LEDGERFEED_SUBMIT_BURST"`
}

// LoggingConfig configures pkg/logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEDGERFEED_LOG_LEVEL"`
	Format string `yaml:"format" env:"LEDGERFEED_LOG_FORMAT"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Kind:              LedgerMemory,
			ProgramID:         DefaultProgramID,
			Commitment:        "confirmed",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 10,
			Burst:             20,
			ConfirmTimeout:    2 * time.Minute,
			PollInterval:      2 * time.Second,
		},
		Feed: FeedConfig{
			Concurrency:   8,
			MaxFollowScan: 10000,
			MaxPostScan:   10000,
		},
		Cache: CacheConfig{
			Kind: CacheMemory,
			Size: 1024,
			TTL:  10 * time.Minute,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			SubmitRPS:       1,
			SubmitBurst:     5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (optional), then .env (optional), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Program returns the parsed program identity.
func (c *Config) Program() (ledger.Identity, error) {
	return ledger.ParseIdentity(c.Ledger.ProgramID)
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var problems []string

	switch c.Ledger.Kind {
	case LedgerMemory:
	case LedgerRPC:
		if c.Ledger.RPCURL == "" {
			problems = append(problems, "ledger.rpc_url is required for the rpc ledger")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown ledger.kind %q", c.Ledger.Kind))
	}
	if _, err := c.Program(); err != nil {
		problems = append(problems, fmt.Sprintf("invalid ledger.program_id: %v", err))
	}
	switch c.Ledger.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		problems = append(problems, fmt.Sprintf("unknown ledger.commitment %q", c.Ledger.Commitment))
	}
	if c.Ledger.RequestsPerSecond < 0 {
		problems = append(problems, "ledger.requests_per_second must not be negative")
	}

	if c.Feed.Concurrency <= 0 {
		problems = append(problems, "feed.concurrency must be positive")
	}

	switch c.Cache.Kind {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			problems = append(problems, "cache.redis_addr is required for the redis cache")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown cache.kind %q", c.Cache.Kind))
	}

	if c.Server.SubmitRPS < 0 {
		problems = append(problems, "server.submit_rps must not be negative")
	}
	if c.Server.Addr == "" {
		problems = append(problems, "server.addr is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
