package social

import (
	"context"

	"github.com/R3E-Network/ledgerfeed/internal/chain"
	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

// Config wires a Service.
type Config struct {
	Ledger        chain.Ledger
	Program       ledger.Identity
	Cache         Cache
	Concurrency   int
	MaxFollowScan uint64
	MaxPostScan   uint64
	Logger        *logger.Logger
}

// Service is the read and write surface used by the HTTP layer and CLI.
type Service struct {
	Deriver    ledger.Deriver
	Fetcher    *Fetcher
	Follows    *FollowScanner
	Aggregator *Aggregator
	Mutator    *Mutator

	cache Cache
	log   *logger.Logger
}

// New builds a Service over one ledger.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("social")
	}
	d := ledger.NewDeriver(cfg.Program)
	f := NewFetcher(cfg.Ledger, log.Named("fetcher"))
	follows := NewFollowScanner(f, d, cfg.MaxFollowScan, log.Named("follows"))
	return &Service{
		Deriver: d,
		Fetcher: f,
		Follows: follows,
		Aggregator: NewAggregator(AggregatorConfig{
			Fetcher:     f,
			Deriver:     d,
			Follows:     follows,
			Concurrency: cfg.Concurrency,
			MaxPostScan: cfg.MaxPostScan,
			Logger:      log.Named("aggregator"),
		}),
		Mutator: NewMutator(cfg.Ledger, f, d, cfg.Cache, log.Named("mutator")),
		cache:   cfg.Cache,
		log:     log,
	}
}

// FeedFor returns viewer's feed, serving the cached copy unless refresh is
// set. A freshly built feed replaces the cached one.
func (s *Service) FeedFor(ctx context.Context, viewer ledger.Identity, refresh bool) ([]FeedItem, error) {
	if viewer.IsZero() {
		return nil, errors.Precondition("viewer identity required")
	}
	if s.cache != nil && !refresh {
		items, ok, err := s.cache.Feed(ctx, viewer)
		if err != nil {
			s.log.WithError(err).WithField("viewer", viewer.String()).Warn("feed cache read failed")
		} else if ok {
			return items, nil
		}
	}

	items, err := s.Aggregator.BuildFeed(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.StoreFeed(ctx, viewer, items); err != nil {
			s.log.WithError(err).WithField("viewer", viewer.String()).Warn("feed cache write failed")
		}
	}
	return items, nil
}

// IsFollowing consults the local follow flag before scanning the ledger, so
// an edge created by this process is visible before it is readable.
func (s *Service) IsFollowing(ctx context.Context, owner, candidate ledger.Identity) (bool, error) {
	if owner.IsZero() {
		return false, errors.Precondition("owner identity required")
	}
	if s.cache != nil {
		following, known, err := s.cache.Following(ctx, owner, candidate)
		if err == nil && known && following {
			return true, nil
		}
	}
	return s.Follows.IsFollowing(ctx, owner, candidate)
}
