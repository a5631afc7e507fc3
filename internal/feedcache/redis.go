package feedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/social"
)

// KeyPrefix namespaces every key written by Redis.
const KeyPrefix = "ledgerfeed:"

// DefaultTTL bounds how long a cached feed lives without a refresh.
const DefaultTTL = 10 * time.Minute

// prependScript pushes onto the feed list only while the feed's marker key
// exists, so a prepend never creates a partial feed.
var prependScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	redis.call("LPUSH", KEYS[1], ARGV[1])
	redis.call("PEXPIRE", KEYS[1], redis.call("PTTL", KEYS[2]))
	return 1
end
return 0
`)

// Redis shares feeds between processes. A feed is a list of JSON items plus a
// marker key, since Redis drops empty lists and an empty feed is still a hit.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ social.Cache = (*Redis)(nil)

// NewRedis wraps a connected client. A zero ttl uses DefaultTTL.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func feedKey(viewer ledger.Identity) string   { return KeyPrefix + "feed:" + viewer.String() }
func markerKey(viewer ledger.Identity) string { return KeyPrefix + "feed-built:" + viewer.String() }
func followKeyOf(owner ledger.Identity) string {
	return KeyPrefix + "following:" + owner.String()
}

// Feed returns viewer's cached feed.
func (r *Redis) Feed(ctx context.Context, viewer ledger.Identity) ([]social.FeedItem, bool, error) {
	var (
		exists *redis.IntCmd
		items  *redis.StringSliceCmd
	)
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		exists = p.Exists(ctx, markerKey(viewer))
		items = p.LRange(ctx, feedKey(viewer), 0, -1)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("read feed: %w", err)
	}
	if exists.Val() == 0 {
		return nil, false, nil
	}

	raw := items.Val()
	out := make([]social.FeedItem, 0, len(raw))
	for _, s := range raw {
		var it social.FeedItem
		if err := json.Unmarshal([]byte(s), &it); err != nil {
			return nil, false, fmt.Errorf("decode cached item: %w", err)
		}
		out = append(out, it)
	}
	return out, true, nil
}

// StoreFeed replaces viewer's cached feed atomically.
func (r *Redis) StoreFeed(ctx context.Context, viewer ledger.Identity, items []social.FeedItem) error {
	values := make([]interface{}, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("encode item: %w", err)
		}
		values = append(values, b)
	}

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, feedKey(viewer))
		if len(values) > 0 {
			p.RPush(ctx, feedKey(viewer), values...)
			p.Expire(ctx, feedKey(viewer), r.ttl)
		}
		p.Set(ctx, markerKey(viewer), 1, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store feed: %w", err)
	}
	return nil
}

// PrependFeed puts item in front of viewer's cached feed, if one is cached.
func (r *Redis) PrependFeed(ctx context.Context, viewer ledger.Identity, item social.FeedItem) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	keys := []string{feedKey(viewer), markerKey(viewer)}
	if err := prependScript.Run(ctx, r.client, keys, b).Err(); err != nil {
		return fmt.Errorf("prepend feed: %w", err)
	}
	return nil
}

// MarkFollowing records that owner follows target.
func (r *Redis) MarkFollowing(ctx context.Context, owner, target ledger.Identity) error {
	key := followKeyOf(owner)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, key, target.String())
		p.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark following: %w", err)
	}
	return nil
}

// Following reports a recorded follow; a miss is unknown, not false.
func (r *Redis) Following(ctx context.Context, owner, target ledger.Identity) (bool, bool, error) {
	ok, err := r.client.SIsMember(ctx, followKeyOf(owner), target.String()).Result()
	if err != nil {
		return false, false, fmt.Errorf("read following: %w", err)
	}
	if !ok {
		return false, false, nil
	}
	return true, true, nil
}
