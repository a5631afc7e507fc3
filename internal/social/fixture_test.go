package social_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledgerfeed/internal/chain"
	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/social"
	"github.com/R3E-Network/ledgerfeed/pkg/testutil"
)

var program = identity("social-program")

var identity = testutil.Identity

type fixture struct {
	t   *testing.T
	ctx context.Context
	mem *chain.MemoryLedger
	svc *social.Service
}

func newFixture(t *testing.T, cache social.Cache) *fixture {
	t.Helper()
	return newFixtureOver(t, nil, cache)
}

// newFixtureOver builds a service whose reads and writes go through wrap(mem)
// when wrap is set.
func newFixtureOver(t *testing.T, wrap func(*chain.MemoryLedger) chain.Ledger, cache social.Cache) *fixture {
	t.Helper()
	mem := chain.NewMemoryLedger(program, nil)
	var l chain.Ledger = mem
	if wrap != nil {
		l = wrap(mem)
	}
	return &fixture{
		t:   t,
		ctx: context.Background(),
		mem: mem,
		svc: social.New(social.Config{Ledger: l, Program: program, Cache: cache, Concurrency: 4}),
	}
}

func (f *fixture) user(name string) ledger.Identity {
	f.t.Helper()
	id := identity(name)
	require.NoError(f.t, f.svc.Mutator.CreateProfile(f.ctx, id, name))
	return id
}

func (f *fixture) postAt(owner ledger.Identity, text string, ts int64) social.FeedItem {
	f.t.Helper()
	f.mem.Clock = testutil.FixedClock(ts)
	item, err := f.svc.Mutator.CreatePost(f.ctx, owner, text)
	require.NoError(f.t, err)
	return item
}

func (f *fixture) follow(owner, target ledger.Identity) {
	f.t.Helper()
	require.NoError(f.t, f.svc.Mutator.CreateFollowEdge(f.ctx, owner, target))
}

// flakyLedger fails single-record reads of selected addresses.
type flakyLedger struct {
	*chain.MemoryLedger
	failFetch map[ledger.Address]bool
	failBatch bool
	submitErr error
	mu        sync.Mutex
}

func (l *flakyLedger) Fetch(ctx context.Context, addr ledger.Address) ([]byte, error) {
	l.mu.Lock()
	fail := l.failFetch[addr]
	l.mu.Unlock()
	if fail {
		return nil, errors.Internal("connection reset", nil)
	}
	return l.MemoryLedger.Fetch(ctx, addr)
}

func (l *flakyLedger) FetchBatch(ctx context.Context, addrs []ledger.Address) ([][]byte, error) {
	if l.failBatch {
		return nil, errors.Internal("batch read timed out", nil)
	}
	return l.MemoryLedger.FetchBatch(ctx, addrs)
}

func (l *flakyLedger) Submit(ctx context.Context, ix ledger.Instruction, signer ledger.Identity) (*chain.Confirmation, error) {
	if l.submitErr != nil {
		return nil, l.submitErr
	}
	return l.MemoryLedger.Submit(ctx, ix, signer)
}

// panicLedger fails the test on any network access.
type panicLedger struct{ t *testing.T }

func (p panicLedger) Fetch(context.Context, ledger.Address) ([]byte, error) {
	p.t.Fatal("unexpected Fetch")
	return nil, nil
}

func (p panicLedger) FetchBatch(context.Context, []ledger.Address) ([][]byte, error) {
	p.t.Fatal("unexpected FetchBatch")
	return nil, nil
}

func (p panicLedger) Submit(context.Context, ledger.Instruction, ledger.Identity) (*chain.Confirmation, error) {
	p.t.Fatal("unexpected Submit")
	return nil, nil
}

func timestamps(items []social.FeedItem) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.Timestamp
	}
	return out
}
