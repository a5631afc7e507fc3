package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/ledgerfeed/internal/chain"
	"github.com/R3E-Network/ledgerfeed/internal/config"
	"github.com/R3E-Network/ledgerfeed/internal/feedcache"
	"github.com/R3E-Network/ledgerfeed/internal/httpapi"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/social"
	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

// Application ties the ledger, cache and social service together.
type Application struct {
	Config  *config.Config
	Program ledger.Identity
	Ledger  chain.Ledger
	Cache   social.Cache
	Service *social.Service

	closers []func() error
	log     *logger.Logger
}

// New builds an application from cfg.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	program, err := cfg.Program()
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}

	a := &Application{Config: cfg, Program: program, log: log}

	a.Ledger, err = NewLedger(cfg.Ledger, program, log.Named("chain"))
	if err != nil {
		return nil, err
	}

	cache, closeCache, err := NewCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}
	a.Cache = cache

	a.Service = social.New(social.Config{
		Ledger:        a.Ledger,
		Program:       program,
		Cache:         cache,
		Concurrency:   cfg.Feed.Concurrency,
		MaxFollowScan: cfg.Feed.MaxFollowScan,
		MaxPostScan:   cfg.Feed.MaxPostScan,
		Logger:        log.Named("social"),
	})

	log.WithField("ledger", cfg.Ledger.Kind).
		WithField("cache", cfg.Cache.Kind).
		WithField("program", program.String()).
		Info("application ready")
	return a, nil
}

// NewLedger builds the configured ledger client.
func NewLedger(cfg config.LedgerConfig, program ledger.Identity, log *logger.Logger) (chain.Ledger, error) {
	if log == nil {
		log = logger.NewDefault("chain")
	}
	switch cfg.Kind {
	case config.LedgerMemory:
		return chain.NewMemoryLedger(program, log), nil
	case config.LedgerRPC:
		var signer chain.TxSigner
		if len(cfg.Keypairs) > 0 {
			keys := make([]*chain.Keypair, 0, len(cfg.Keypairs))
			for _, path := range cfg.Keypairs {
				kp, err := chain.LoadKeypair(path)
				if err != nil {
					return nil, err
				}
				keys = append(keys, kp)
			}
			signer = chain.NewKeypairSigner(keys...)
		} else {
			log.Warn("no keypairs configured; submissions will be rejected")
		}

		client, err := chain.NewClient(chain.Config{
			RPCURL:            cfg.RPCURL,
			WSURL:             cfg.WSURL,
			Commitment:        cfg.Commitment,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
			Signer:            signer,
			PollInterval:      cfg.PollInterval,
			WaitTimeout:       cfg.ConfirmTimeout,
			Logger:            log,
		})
		if err != nil {
			return nil, fmt.Errorf("rpc client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown ledger kind %q", cfg.Kind)
	}
}

// NewCache builds the configured feed cache. The returned close func is nil
// when there is nothing to release.
func NewCache(ctx context.Context, cfg config.CacheConfig) (social.Cache, func() error, error) {
	switch cfg.Kind {
	case config.CacheNone, "":
		return nil, nil, nil
	case config.CacheMemory:
		c, err := feedcache.NewMemory(cfg.Size)
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		c := feedcache.NewRedis(client, cfg.TTL)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.Ping(pctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return c, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache kind %q", cfg.Kind)
	}
}

// Handler returns the HTTP API for the application.
func (a *Application) Handler() http.Handler {
	return httpapi.NewRouter(a.Service, httpapi.Options{
		Logger:      a.log.Named("http"),
		CORSOrigins: a.Config.Server.CORSOrigins,
		SubmitRPS:   a.Config.Server.SubmitRPS,
		SubmitBurst: a.Config.Server.SubmitBurst,
	})
}

// Close releases external connections.
func (a *Application) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
