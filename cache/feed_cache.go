package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Shivansh-Atwal/trackstack/model"

	"github.com/go-redis/redis/v8"
)

const (
	// FeedKeyPrefix prefixes the serialized feed of each generation.
	FeedKeyPrefix = "trackstack:feed:public:"
	// FeedGenerationKey is bumped on every invalidation.
	FeedGenerationKey = "trackstack:feed:generation"
)

// feedStore is the part of the redis client the feed cache needs.
type feedStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// FeedCache stores the public feed in Redis until the next song mutation.
// Entries are keyed by generation: a feed loaded before an invalidation is
// written under a generation nobody reads any more.
type FeedCache struct {
	store feedStore
	ttl   time.Duration
}

// NewFeedCache creates a feed cache on client. A non-positive ttl means one minute.
func NewFeedCache(client feedStore, ttl time.Duration) *FeedCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &FeedCache{store: client, ttl: ttl}
}

// FeedKey is the key holding the feed of generation gen.
func FeedKey(gen int64) string {
	return FeedKeyPrefix + strconv.FormatInt(gen, 10)
}

// GetFeed returns the cached feed of the current generation and whether it
// was present. On a miss the generation is still returned; pass it to
// SetFeed once the feed has been loaded.
func (c *FeedCache) GetFeed(ctx context.Context) ([]*model.PublicSong, int64, bool, error) {
	gen, err := c.store.Get(ctx, FeedGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		gen, err = 0, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to read feed generation: %w", err)
	}

	raw, err := c.store.Get(ctx, FeedKey(gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, fmt.Errorf("failed to read feed cache: %w", err)
	}

	var songs []*model.PublicSong
	if err := json.Unmarshal(raw, &songs); err != nil {
		return nil, gen, false, fmt.Errorf("failed to decode feed cache: %w", err)
	}
	return songs, gen, true, nil
}

// SetFeed stores songs as the feed of generation gen.
func (c *FeedCache) SetFeed(ctx context.Context, gen int64, songs []*model.PublicSong) error {
	if songs == nil {
		songs = []*model.PublicSong{}
	}
	raw, err := json.Marshal(songs)
	if err != nil {
		return fmt.Errorf("failed to encode feed cache: %w", err)
	}
	if err := c.store.Set(ctx, FeedKey(gen), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write feed cache: %w", err)
	}
	return nil
}

// InvalidateFeed moves readers to a new, empty generation.
func (c *FeedCache) InvalidateFeed(ctx context.Context) error {
	if err := c.store.Incr(ctx, FeedGenerationKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate feed cache: %w", err)
	}
	return nil
}
