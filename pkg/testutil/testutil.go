// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/social"
)

// Identity returns a stable identity for name.
func Identity(name string) ledger.Identity {
	return ledger.Identity(sha256.Sum256([]byte(name)))
}

// FixedClock returns a clock stuck at unix second ts.
func FixedClock(ts int64) func() time.Time {
	return func() time.Time { return time.Unix(ts, 0) }
}

// MapCache is an unbounded social.Cache backed by maps.
type MapCache struct {
	mu        sync.Mutex
	feeds     map[ledger.Identity][]social.FeedItem
	following map[[2]ledger.Identity]bool
}

// NewMapCache creates an empty MapCache.
func NewMapCache() *MapCache {
	return &MapCache{
		feeds:     make(map[ledger.Identity][]social.FeedItem),
		following: make(map[[2]ledger.Identity]bool),
	}
}

func (c *MapCache) Feed(_ context.Context, viewer ledger.Identity) ([]social.FeedItem, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, ok := c.feeds[viewer]
	return append([]social.FeedItem(nil), items...), ok, nil
}

func (c *MapCache) StoreFeed(_ context.Context, viewer ledger.Identity, items []social.FeedItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeds[viewer] = append([]social.FeedItem(nil), items...)
	return nil
}

func (c *MapCache) PrependFeed(_ context.Context, viewer ledger.Identity, item social.FeedItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if items, ok := c.feeds[viewer]; ok {
		c.feeds[viewer] = append([]social.FeedItem{item}, items...)
	}
	return nil
}

func (c *MapCache) MarkFollowing(_ context.Context, owner, target ledger.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.following[[2]ledger.Identity{owner, target}] = true
	return nil
}

func (c *MapCache) Following(_ context.Context, owner, target ledger.Identity) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.following[[2]ledger.Identity{owner, target}]
	return v, ok, nil
}
