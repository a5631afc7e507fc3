package social

import (
	"context"
	"fmt"
	"strings"

	"github.com/R3E-Network/ledgerfeed/internal/chain"
	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/metrics"
	"github.com/R3E-Network/ledgerfeed/internal/records"
	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

// Cache is the caller-owned local state that mutations update optimistically.
// Cached feed entries are only ever added, never rewritten.
type Cache interface {
	Feed(ctx context.Context, viewer ledger.Identity) ([]FeedItem, bool, error)
	StoreFeed(ctx context.Context, viewer ledger.Identity, items []FeedItem) error
	// PrependFeed adds item to the front of viewer's cached feed, if one is
	// cached.
	PrependFeed(ctx context.Context, viewer ledger.Identity, item FeedItem) error
	MarkFollowing(ctx context.Context, owner, target ledger.Identity) error
	Following(ctx context.Context, owner, target ledger.Identity) (following bool, known bool, err error)
}

// Mutator appends profiles, posts and follow edges.
//
// Each append reads the owner's current counter, derives the record address
// for that index and submits. Same-owner calls are not serialized: two
// concurrent CreatePost calls can read the same counter and race for one
// address, and the loser's submission is rejected by the ledger.
type Mutator struct {
	ledger  chain.Ledger
	fetcher *Fetcher
	deriver ledger.Deriver
	cache   Cache
	log     *logger.Logger
}

// NewMutator creates a Mutator. cache may be nil.
func NewMutator(l chain.Ledger, f *Fetcher, d ledger.Deriver, cache Cache, log *logger.Logger) *Mutator {
	if log == nil {
		log = logger.NewDefault("mutator")
	}
	return &Mutator{ledger: l, fetcher: f, deriver: d, cache: cache, log: log}
}

func (m *Mutator) submit(ctx context.Context, ix ledger.Instruction, owner ledger.Identity) (*chain.Confirmation, error) {
	conf, err := m.ledger.Submit(ctx, ix, owner)
	metrics.RecordSubmission(ix.Name, err)
	if err != nil {
		m.log.WithError(err).
			WithField("instruction", ix.Name).
			WithField("owner", owner.String()).
			Warn("submission failed")
		return nil, err
	}
	return conf, nil
}

// CreateProfile creates owner's profile. An existing profile is reported by
// the ledger as AlreadyExists.
func (m *Mutator) CreateProfile(ctx context.Context, owner ledger.Identity, username string) error {
	if owner.IsZero() {
		return errors.Precondition("owner identity required")
	}
	if strings.TrimSpace(username) == "" {
		return errors.Precondition("username required")
	}
	if err := records.ValidateUsername(username); err != nil {
		return err
	}

	ix, err := records.CreateProfile(m.deriver, owner, username)
	if err != nil {
		return err
	}
	if _, err := m.submit(ctx, ix, owner); err != nil {
		return err
	}
	m.log.WithField("owner", owner.String()).WithField("username", username).Info("profile created")
	return nil
}

// CreatePost appends a post at owner's current postCount and prepends it to
// owner's cached feed as a pending entry. The timestamp is the ledger's; it is
// read back from the new record, falling back to the confirmation block time.
func (m *Mutator) CreatePost(ctx context.Context, owner ledger.Identity, text string) (FeedItem, error) {
	if owner.IsZero() {
		return FeedItem{}, errors.Precondition("owner identity required")
	}
	if err := records.ValidatePostText(text); err != nil {
		return FeedItem{}, err
	}

	profile, err := LoadProfile(ctx, m.fetcher, m.deriver, owner)
	if err != nil {
		return FeedItem{}, fmt.Errorf("load profile of %s: %w", owner, err)
	}
	index := profile.PostCount

	ix, err := records.CreatePost(m.deriver, owner, index, text)
	if err != nil {
		return FeedItem{}, err
	}
	conf, err := m.submit(ctx, ix, owner)
	if err != nil {
		return FeedItem{}, err
	}

	item := FeedItem{
		Author:     owner,
		AuthorName: profile.Username,
		Index:      index,
		Text:       text,
		Timestamp:  conf.BlockTime,
		Pending:    true,
	}
	if post, err := FetchOne(ctx, m.fetcher, m.deriver.Post(owner, index), records.PostSchema); err == nil {
		item.Text = post.Text
		item.Timestamp = post.Timestamp
	} else {
		m.log.WithError(err).WithField("index", index).Debug("post not yet readable; using block time")
	}

	if m.cache != nil {
		if err := m.cache.PrependFeed(ctx, owner, item); err != nil {
			m.log.WithError(err).WithField("owner", owner.String()).Warn("cache prepend failed")
		}
	}
	return item, nil
}

// CreateFollowEdge appends an edge from owner to target and marks the local
// follow flag.
func (m *Mutator) CreateFollowEdge(ctx context.Context, owner, target ledger.Identity) error {
	if owner.IsZero() {
		return errors.Precondition("owner identity required")
	}
	if target.IsZero() {
		return errors.Precondition("follow target required")
	}
	if owner == target {
		return errors.Precondition("cannot follow yourself")
	}

	profile, err := LoadProfile(ctx, m.fetcher, m.deriver, owner)
	if err != nil {
		return fmt.Errorf("load profile of %s: %w", owner, err)
	}

	ix := records.CreateFollow(m.deriver, owner, profile.FollowCount, target)
	if _, err := m.submit(ctx, ix, owner); err != nil {
		return err
	}

	if m.cache != nil {
		if err := m.cache.MarkFollowing(ctx, owner, target); err != nil {
			m.log.WithError(err).WithField("owner", owner.String()).Warn("cache follow flag failed")
		}
	}
	return nil
}
