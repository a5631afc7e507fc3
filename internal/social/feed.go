package social

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/metrics"
	"github.com/R3E-Network/ledgerfeed/internal/records"
	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

// DefaultConcurrency bounds in-flight fetches per fan-out when none is configured.
const DefaultConcurrency = 8

// DefaultMaxPostScan caps how many posts one owner contributes to a build when
// none is configured. A postCount above the cap is treated as untrusted.
const DefaultMaxPostScan = 10000

// IndexedPost is a post with its position in the owner's sequence.
type IndexedPost struct {
	Index uint64 `json:"index"`
	records.Post
}

// FeedItem is a post tagged with its author, ready for rendering.
type FeedItem struct {
	Author     ledger.Identity `json:"author"`
	AuthorName string          `json:"author_name"`
	Index      uint64          `json:"index"`
	Text       string          `json:"text"`
	Timestamp  int64           `json:"timestamp"`
	// Pending marks an optimistic entry whose record has not been re-read
	// after the submitting client observed the counter.
	Pending bool `json:"pending,omitempty"`
}

// UserPage is one identity's profile and posts, newest index first.
type UserPage struct {
	Owner    ledger.Identity `json:"owner"`
	Username string          `json:"username"`
	Posts    []FeedItem      `json:"posts"`
}

// Aggregator builds post lists and merged feeds.
type Aggregator struct {
	fetcher     *Fetcher
	deriver     ledger.Deriver
	follows     *FollowScanner
	concurrency int
	maxPostScan uint64
	log         *logger.Logger
}

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	Fetcher     *Fetcher
	Deriver     ledger.Deriver
	Follows     *FollowScanner
	Concurrency int
	// MaxPostScan caps the posts read per owner; 0 means DefaultMaxPostScan.
	MaxPostScan uint64
	Logger      *logger.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}
	maxPostScan := cfg.MaxPostScan
	if maxPostScan == 0 {
		maxPostScan = DefaultMaxPostScan
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("aggregator")
	}
	follows := cfg.Follows
	if follows == nil {
		follows = NewFollowScanner(cfg.Fetcher, cfg.Deriver, 0, log)
	}
	return &Aggregator{
		fetcher:     cfg.Fetcher,
		deriver:     cfg.Deriver,
		follows:     follows,
		concurrency: conc,
		maxPostScan: maxPostScan,
		log:         log,
	}
}

// HasProfile reports whether owner has created a profile.
func (a *Aggregator) HasProfile(ctx context.Context, owner ledger.Identity) (bool, error) {
	if owner.IsZero() {
		return false, errors.Precondition("owner identity required")
	}
	_, err := LoadProfile(ctx, a.fetcher, a.deriver, owner)
	if errors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BuildOwnPosts returns owner's posts in index order. A post that cannot be
// fetched or decoded is logged and left out; the rest are still returned.
func (a *Aggregator) BuildOwnPosts(ctx context.Context, owner ledger.Identity) ([]IndexedPost, error) {
	if owner.IsZero() {
		return nil, errors.Precondition("owner identity required")
	}
	start := time.Now()
	defer func() { metrics.ObserveBuild("own_posts", time.Since(start)) }()

	profile, err := LoadProfile(ctx, a.fetcher, a.deriver, owner)
	if err != nil {
		return nil, fmt.Errorf("load profile of %s: %w", owner, err)
	}
	return a.collectPosts(ctx, owner, profile.PostCount)
}

// collectPosts fetches posts 0..postCount-1 with bounded parallelism. Results
// land in per-index slots so completion order never affects output order.
// Only the newest maxPostScan indices are read.
func (a *Aggregator) collectPosts(ctx context.Context, owner ledger.Identity, postCount uint64) ([]IndexedPost, error) {
	first := a.postScanStart(owner, postCount)
	slots := make([]Maybe[records.Post], postCount-first)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := first; i < postCount; i++ {
		i := i
		g.Go(func() error {
			post, err := FetchOne(gctx, a.fetcher, a.deriver.Post(owner, i), records.PostSchema)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.log.WithError(err).
					WithField("owner", owner.String()).
					WithField("index", i).
					Warn("skipping post")
				metrics.RecordSkip("post_" + fetchResult(err))
				return nil
			}
			slots[i-first] = Maybe[records.Post]{Value: post, Present: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	posts := make([]IndexedPost, 0, len(slots))
	for i, s := range slots {
		if s.Present {
			posts = append(posts, IndexedPost{Index: first + uint64(i), Post: s.Value})
		}
	}
	return posts, nil
}

// postScanStart returns the first index to read so that at most maxPostScan
// posts are fetched.
func (a *Aggregator) postScanStart(owner ledger.Identity, postCount uint64) uint64 {
	if postCount <= a.maxPostScan {
		return 0
	}
	a.log.WithField("owner", owner.String()).
		WithField("post_count", postCount).
		WithField("max_post_scan", a.maxPostScan).
		Warn("post scan truncated")
	metrics.RecordSkip("post_scan_truncated")
	return postCount - a.maxPostScan
}

func tag(posts []IndexedPost, author ledger.Identity, name string) []FeedItem {
	items := make([]FeedItem, 0, len(posts))
	for _, p := range posts {
		items = append(items, FeedItem{
			Author:     author,
			AuthorName: name,
			Index:      p.Index,
			Text:       p.Text,
			Timestamp:  p.Timestamp,
		})
	}
	return items
}

// BuildFeed merges the viewer's posts with those of every followee, newest
// first. Equal timestamps keep discovery order: the viewer's posts, then each
// followee in follow-edge order, each in index order.
//
// Partial failures never fail the call. A followee whose profile cannot be
// loaded contributes nothing; a single unreadable post is skipped. Only a
// missing viewer identity or a done context produce an error, and in the
// latter case no partial feed is returned.
func (a *Aggregator) BuildFeed(ctx context.Context, viewer ledger.Identity) ([]FeedItem, error) {
	if viewer.IsZero() {
		return nil, errors.Precondition("viewer identity required")
	}
	start := time.Now()
	defer func() { metrics.ObserveBuild("feed", time.Since(start)) }()

	profile, err := LoadProfile(ctx, a.fetcher, a.deriver, viewer)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		a.log.WithError(err).WithField("viewer", viewer.String()).Info("viewer has no readable profile; feed is empty")
		metrics.RecordSkip("viewer_profile")
		return []FeedItem{}, nil
	}

	own, err := a.collectPosts(ctx, viewer, profile.PostCount)
	if err != nil {
		return nil, err
	}
	feed := tag(own, viewer, profile.Username)

	followees, err := a.follows.followeesOf(ctx, viewer, profile)
	if err != nil {
		return nil, err
	}

	groups := make([][]FeedItem, len(followees))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, followee := range followees {
		i, followee := i, followee
		g.Go(func() error {
			items, err := a.followeePosts(gctx, followee)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.log.WithError(err).
					WithField("viewer", viewer.String()).
					WithField("followee", followee.String()).
					Warn("skipping followee")
				metrics.RecordSkip("followee_profile")
				return nil
			}
			groups[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, items := range groups {
		feed = append(feed, items...)
	}
	SortFeed(feed)
	return feed, nil
}

// followeePosts loads a followee's profile for its username and post count.
// Without a profile none of the followee's posts are used.
func (a *Aggregator) followeePosts(ctx context.Context, followee ledger.Identity) ([]FeedItem, error) {
	profile, err := LoadProfile(ctx, a.fetcher, a.deriver, followee)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	posts, err := a.collectPosts(ctx, followee, profile.PostCount)
	if err != nil {
		return nil, err
	}
	return tag(posts, followee, profile.Username), nil
}

// SortFeed orders items newest first, keeping the existing order for ties.
func SortFeed(items []FeedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp > items[j].Timestamp
	})
}

// BuildUserPage returns subject's username and posts, highest index first.
func (a *Aggregator) BuildUserPage(ctx context.Context, subject ledger.Identity) (*UserPage, error) {
	if subject.IsZero() {
		return nil, errors.Precondition("subject identity required")
	}
	profile, err := LoadProfile(ctx, a.fetcher, a.deriver, subject)
	if err != nil {
		return nil, fmt.Errorf("load profile of %s: %w", subject, err)
	}
	posts, err := a.collectPosts(ctx, subject, profile.PostCount)
	if err != nil {
		return nil, err
	}

	items := tag(posts, subject, profile.Username)
	for l, r := 0, len(items)-1; l < r; l, r = l+1, r-1 {
		items[l], items[r] = items[r], items[l]
	}
	return &UserPage{Owner: subject, Username: profile.Username, Posts: items}, nil
}
