// Package feedcache holds viewers' assembled feeds and locally known follow
// flags between ledger reads.
package feedcache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/social"
)

// DefaultSize is the number of viewers whose feeds are kept when none is configured.
const DefaultSize = 1024

type followKey struct {
	owner, target ledger.Identity
}

// Memory is an in-process cache bounded by viewer count. Least recently used
// viewers are evicted first.
type Memory struct {
	mu        sync.Mutex
	feeds     *lru.Cache[ledger.Identity, []social.FeedItem]
	following *lru.Cache[followKey, struct{}]
}

var _ social.Cache = (*Memory)(nil)

// NewMemory creates a cache holding up to size feeds and size*8 follow flags.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = DefaultSize
	}
	feeds, err := lru.New[ledger.Identity, []social.FeedItem](size)
	if err != nil {
		return nil, fmt.Errorf("feed cache: %w", err)
	}
	following, err := lru.New[followKey, struct{}](size * 8)
	if err != nil {
		return nil, fmt.Errorf("follow cache: %w", err)
	}
	return &Memory{feeds: feeds, following: following}, nil
}

// Feed returns a copy of viewer's cached feed.
func (m *Memory) Feed(_ context.Context, viewer ledger.Identity) ([]social.FeedItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.feeds.Get(viewer)
	if !ok {
		return nil, false, nil
	}
	return append([]social.FeedItem{}, items...), true, nil
}

// StoreFeed caches a freshly built feed for viewer.
func (m *Memory) StoreFeed(_ context.Context, viewer ledger.Identity, items []social.FeedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeds.Add(viewer, append([]social.FeedItem{}, items...))
	return nil
}

// PrependFeed puts item in front of viewer's cached feed. Nothing is stored
// when viewer has no cached feed.
func (m *Memory) PrependFeed(_ context.Context, viewer ledger.Identity, item social.FeedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.feeds.Get(viewer)
	if !ok {
		return nil
	}
	next := make([]social.FeedItem, 0, len(items)+1)
	next = append(next, item)
	next = append(next, items...)
	m.feeds.Add(viewer, next)
	return nil
}

// MarkFollowing records that owner follows target.
func (m *Memory) MarkFollowing(_ context.Context, owner, target ledger.Identity) error {
	m.following.Add(followKey{owner, target}, struct{}{})
	return nil
}

// Following reports a locally recorded follow. Only positive flags are kept,
// so a miss is reported as unknown.
func (m *Memory) Following(_ context.Context, owner, target ledger.Identity) (bool, bool, error) {
	if m.following.Contains(followKey{owner, target}) {
		return true, true, nil
	}
	return false, false, nil
}

// Len returns the number of cached feeds.
func (m *Memory) Len() int {
	return m.feeds.Len()
}
