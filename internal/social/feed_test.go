package social_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledgerfeed/internal/chain"
	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/records"
	"github.com/R3E-Network/ledgerfeed/internal/social"
)

func TestBuildOwnPosts_IndexOrderThenFeedSorted(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.user("owner")
	f.postAt(owner, "first", 100)
	f.postAt(owner, "second", 300)
	f.postAt(owner, "third", 200)

	posts, err := f.svc.Aggregator.BuildOwnPosts(f.ctx, owner)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	for i, p := range posts {
		assert.Equal(t, uint64(i), p.Index)
	}
	assert.Equal(t, []int64{100, 300, 200}, []int64{posts[0].Timestamp, posts[1].Timestamp, posts[2].Timestamp})

	feed, err := f.svc.Aggregator.BuildFeed(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []int64{300, 200, 100}, timestamps(feed))
	for _, it := range feed {
		assert.Equal(t, "owner", it.AuthorName)
		assert.False(t, it.Pending)
	}
}

func TestBuildOwnPosts_SkipsMissingAndCorruptPosts(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.user("owner")
	f.postAt(owner, "p0", 10)
	f.mem.DropNextRecordWrites(1)
	_, err := f.svc.Mutator.CreatePost(f.ctx, owner, "p1")
	require.NoError(t, err)
	f.postAt(owner, "p2", 30)
	f.postAt(owner, "p3", 40)
	f.mem.Put(f.svc.Deriver.Post(owner, 2), []byte{0xde, 0xad})

	posts, err := f.svc.Aggregator.BuildOwnPosts(f.ctx, owner)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, uint64(0), posts[0].Index)
	assert.Equal(t, uint64(3), posts[1].Index)
	assert.Equal(t, "p3", posts[1].Text)
}

func TestBuildOwnPosts_NeverReadsPastCounter(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.user("owner")
	f.postAt(owner, "p0", 1)
	f.postAt(owner, "p1", 2)

	// A record parked beyond postCount is not part of the sequence.
	stray := f.svc.Deriver.Post(owner, 2)
	raw, err := f.mem.Fetch(f.ctx, f.svc.Deriver.Post(owner, 0))
	require.NoError(t, err)
	f.mem.Put(stray, raw)

	posts, err := f.svc.Aggregator.BuildOwnPosts(f.ctx, owner)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
	for _, p := range posts {
		assert.Less(t, p.Index, uint64(2))
	}
}

func TestBuildOwnPosts_Errors(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Aggregator.BuildOwnPosts(f.ctx, ledger.Identity{})
	assert.True(t, errors.IsPrecondition(err))

	_, err = f.svc.Aggregator.BuildOwnPosts(f.ctx, identity("nobody"))
	assert.True(t, errors.IsNotFound(err))
}

func TestBuildFeed_SkipsFolloweeWithoutProfile(t *testing.T) {
	f := newFixture(t, nil)
	viewer := f.user("viewer")
	a := f.user("a")
	b := identity("b")

	f.postAt(viewer, "mine", 100)
	f.postAt(a, "from a", 500)
	f.follow(viewer, a)
	f.follow(viewer, b)

	feed, err := f.svc.Aggregator.BuildFeed(f.ctx, viewer)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, a, feed[0].Author)
	assert.Equal(t, "a", feed[0].AuthorName)
	assert.Equal(t, int64(500), feed[0].Timestamp)
	assert.Equal(t, viewer, feed[1].Author)
}

func TestBuildFeed_SkipsFolloweeWhoseProfileReadFails(t *testing.T) {
	var flaky *flakyLedger
	f := newFixtureOver(t, func(m *chain.MemoryLedger) chain.Ledger {
		flaky = &flakyLedger{MemoryLedger: m, failFetch: map[ledger.Address]bool{}}
		return flaky
	}, nil)
	viewer := f.user("viewer")
	a := f.user("a")
	b := f.user("b")
	c := f.user("c")
	f.postAt(viewer, "mine", 50)
	f.postAt(a, "a0", 500)
	f.postAt(b, "b0", 900)
	f.postAt(b, "b1", 10)
	f.postAt(c, "c0", 70)
	f.follow(viewer, a)
	f.follow(viewer, b)
	f.follow(viewer, c)

	flaky.failFetch[f.svc.Deriver.Profile(b)] = true

	feed, err := f.svc.Aggregator.BuildFeed(f.ctx, viewer)
	require.NoError(t, err)
	assert.Equal(t, []int64{500, 70, 50}, timestamps(feed))
	for _, it := range feed {
		assert.NotEqual(t, b, it.Author)
	}
}

func TestBuildFeed_SortedNonIncreasing(t *testing.T) {
	f := newFixture(t, nil)
	viewer := f.user("viewer")
	var followees []ledger.Identity
	for _, name := range []string{"a", "b", "c"} {
		followees = append(followees, f.user(name))
	}
	ts := int64(7)
	for i := 0; i < 4; i++ {
		for _, who := range append([]ledger.Identity{viewer}, followees...) {
			ts = (ts*31 + 17) % 1000
			f.postAt(who, "post", ts)
		}
	}
	for _, who := range followees {
		f.follow(viewer, who)
	}

	feed, err := f.svc.Aggregator.BuildFeed(f.ctx, viewer)
	require.NoError(t, err)
	require.Len(t, feed, 16)
	for i := 1; i < len(feed); i++ {
		assert.GreaterOrEqual(t, feed[i-1].Timestamp, feed[i].Timestamp)
	}
}

func TestBuildFeed_TiesKeepDiscoveryOrder(t *testing.T) {
	f := newFixture(t, nil)
	viewer := f.user("viewer")
	a := f.user("a")
	b := f.user("b")
	f.postAt(b, "b", 100)
	f.postAt(a, "a", 100)
	f.postAt(viewer, "v0", 100)
	f.postAt(viewer, "v1", 100)
	f.follow(viewer, a)
	f.follow(viewer, b)

	feed, err := f.svc.Aggregator.BuildFeed(f.ctx, viewer)
	require.NoError(t, err)
	var texts []string
	for _, it := range feed {
		texts = append(texts, it.Text)
	}
	assert.Equal(t, []string{"v0", "v1", "a", "b"}, texts)
}

func TestBuildFeed_ViewerWithoutProfile(t *testing.T) {
	f := newFixture(t, nil)

	feed, err := f.svc.Aggregator.BuildFeed(f.ctx, identity("ghost"))
	require.NoError(t, err)
	assert.Empty(t, feed)
}

func TestBuildFeed_RequiresViewer(t *testing.T) {
	f := newFixtureOver(t, func(*chain.MemoryLedger) chain.Ledger { return panicLedger{t} }, nil)

	_, err := f.svc.Aggregator.BuildFeed(f.ctx, ledger.Identity{})
	assert.True(t, errors.IsPrecondition(err))
}

func TestBuildFeed_CancelledContextDiscardsPartialFeed(t *testing.T) {
	f := newFixture(t, nil)
	viewer := f.user("viewer")
	f.postAt(viewer, "mine", 1)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	feed, err := f.svc.Aggregator.BuildFeed(ctx, viewer)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, feed)
}

func TestBuildUserPage_NewestIndexFirst(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.user("owner")
	f.postAt(owner, "p0", 300)
	f.postAt(owner, "p1", 100)
	f.postAt(owner, "p2", 200)

	page, err := f.svc.Aggregator.BuildUserPage(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "owner", page.Username)
	require.Len(t, page.Posts, 3)
	assert.Equal(t, []uint64{2, 1, 0}, []uint64{page.Posts[0].Index, page.Posts[1].Index, page.Posts[2].Index})
}

func TestHasProfile(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.user("owner")

	ok, err := f.svc.Aggregator.HasProfile(f.ctx, owner)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.Aggregator.HasProfile(f.ctx, identity("nobody"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSortFeed_Stable(t *testing.T) {
	items := []social.FeedItem{
		{Text: "a", Timestamp: 1},
		{Text: "b", Timestamp: 5},
		{Text: "c", Timestamp: 1},
		{Text: "d", Timestamp: 5},
	}
	social.SortFeed(items)

	var texts []string
	for _, it := range items {
		texts = append(texts, it.Text)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, texts)
}

func TestBuildFeed_HugeFolloweePostCountIsTruncated(t *testing.T) {
	f := newFixture(t, nil)
	f.svc = social.New(social.Config{Ledger: f.mem, Program: program, Concurrency: 4, MaxPostScan: 16})
	viewer := f.user("viewer")
	followee := f.user("followee")
	f.postAt(viewer, "mine", 100)
	f.postAt(followee, "theirs", 50)
	f.follow(viewer, followee)

	f.mem.Put(f.svc.Deriver.Profile(followee), records.EncodeProfile(records.Profile{Username: "followee", PostCount: 1 << 62}))

	feed, err := f.svc.Aggregator.BuildFeed(f.ctx, viewer)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "mine", feed[0].Text)
	assert.Equal(t, viewer, feed[0].Author)

	page, err := f.svc.Aggregator.BuildUserPage(f.ctx, followee)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
}

func TestBuildOwnPosts_KeepsNewestWithinScanCap(t *testing.T) {
	f := newFixture(t, nil)
	f.svc = social.New(social.Config{Ledger: f.mem, Program: program, Concurrency: 4, MaxPostScan: 2})
	owner := f.user("owner")
	f.postAt(owner, "p0", 10)
	f.postAt(owner, "p1", 20)
	f.postAt(owner, "p2", 30)

	posts, err := f.svc.Aggregator.BuildOwnPosts(f.ctx, owner)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, uint64(1), posts[0].Index)
	assert.Equal(t, "p1", posts[0].Text)
	assert.Equal(t, uint64(2), posts[1].Index)
}

func TestBuildFeed_HugeFollowCountIsTruncated(t *testing.T) {
	f := newFixture(t, nil)
	f.svc = social.New(social.Config{Ledger: f.mem, Program: program, Concurrency: 4, MaxFollowScan: 4})
	viewer := f.user("viewer")
	followee := f.user("followee")
	f.postAt(followee, "theirs", 50)
	f.follow(viewer, followee)

	f.mem.Put(f.svc.Deriver.Profile(viewer), records.EncodeProfile(records.Profile{Username: "viewer", FollowCount: 1 << 62}))

	feed, err := f.svc.Aggregator.BuildFeed(f.ctx, viewer)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "theirs", feed[0].Text)
}
