package social

import (
	"context"
	"fmt"

	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/records"
	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

// FollowScanner reads an identity's follow edges. There is no secondary
// index: every query walks edges 0..followCount-1 as stored on the ledger.
type FollowScanner struct {
	fetcher *Fetcher
	deriver ledger.Deriver
	maxScan uint64
	log     *logger.Logger
}

// DefaultMaxFollowScan caps how many edges one query visits when none is configured.
const DefaultMaxFollowScan = 10000

// NewFollowScanner creates a scanner. maxScan caps how many edges one query
// visits; 0 means DefaultMaxFollowScan.
func NewFollowScanner(f *Fetcher, d ledger.Deriver, maxScan uint64, log *logger.Logger) *FollowScanner {
	if log == nil {
		log = logger.NewDefault("follow-scanner")
	}
	if maxScan == 0 {
		maxScan = DefaultMaxFollowScan
	}
	return &FollowScanner{fetcher: f, deriver: d, maxScan: maxScan, log: log}
}

// LoadProfile fetches owner's profile.
func LoadProfile(ctx context.Context, f *Fetcher, d ledger.Deriver, owner ledger.Identity) (records.Profile, error) {
	return FetchOne(ctx, f, d.Profile(owner), records.ProfileSchema)
}

func (s *FollowScanner) scanRange(owner ledger.Identity, followCount uint64) uint64 {
	if followCount > s.maxScan {
		s.log.WithField("owner", owner.String()).
			WithField("follow_count", followCount).
			WithField("max_scan", s.maxScan).
			Warn("follow scan truncated")
		return s.maxScan
	}
	return followCount
}

// ListFollowees returns the targets of owner's present follow edges in index
// order. Edges whose record is missing or unreadable are skipped.
func (s *FollowScanner) ListFollowees(ctx context.Context, owner ledger.Identity) ([]ledger.Identity, error) {
	if owner.IsZero() {
		return nil, errors.Precondition("owner identity required")
	}

	profile, err := LoadProfile(ctx, s.fetcher, s.deriver, owner)
	if err != nil {
		return nil, fmt.Errorf("load profile of %s: %w", owner, err)
	}
	return s.followeesOf(ctx, owner, profile)
}

// followeesOf lists followees using an already loaded profile of owner.
func (s *FollowScanner) followeesOf(ctx context.Context, owner ledger.Identity, profile records.Profile) ([]ledger.Identity, error) {
	n := s.scanRange(owner, profile.FollowCount)
	edges, err := FetchMany(ctx, s.fetcher, s.deriver.Range(ledger.NamespaceFollow, owner, n), records.FollowSchema)
	if err != nil {
		return nil, err
	}

	followees := make([]ledger.Identity, 0, len(edges))
	for i, e := range edges {
		if !e.Present {
			s.log.WithField("owner", owner.String()).WithField("index", i).Debug("follow edge absent")
			continue
		}
		followees = append(followees, e.Value.Target)
	}
	return followees, nil
}

// IsFollowing reports whether some edge of owner targets candidate. The scan
// stops at the first match.
func (s *FollowScanner) IsFollowing(ctx context.Context, owner, candidate ledger.Identity) (bool, error) {
	if owner.IsZero() {
		return false, errors.Precondition("owner identity required")
	}

	profile, err := LoadProfile(ctx, s.fetcher, s.deriver, owner)
	if err != nil {
		return false, fmt.Errorf("load profile of %s: %w", owner, err)
	}

	n := s.scanRange(owner, profile.FollowCount)
	for i := uint64(0); i < n; i++ {
		edge, err := FetchOne(ctx, s.fetcher, s.deriver.Follow(owner, i), records.FollowSchema)
		if err != nil {
			if errors.IsNotFound(err) || errors.IsDecode(err) {
				continue
			}
			return false, fmt.Errorf("follow edge %d of %s: %w", i, owner, err)
		}
		if edge.Target == candidate {
			return true, nil
		}
	}
	return false, nil
}
