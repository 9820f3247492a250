package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/lnbits/scrum/domain"
)

type backend interface {
	domain.BoardStore
	domain.TaskStore
}

// Cache wraps a backend with a Redis-backed cache for unscoped board lookups.
// Entries are versioned by the board's updated_at: a write never replaces a
// newer entry, so a slow read cannot put back a board an update superseded.
// Deletes leave a tombstone for one TTL.
type Cache struct {
	backend
	redis *redis.Client
	ttl   time.Duration
}

const tombstoneVersion = int64(1<<53 - 1)

// KEYS[1] entry; ARGV: version, payload, ttl ms, "1" when an equal version
// must not be replaced.
var cacheWriteScript = redis.NewScript(`
local t = redis.call("TYPE", KEYS[1])
if type(t) == "table" then t = t.ok end
if t ~= "hash" and t ~= "none" then
	redis.call("DEL", KEYS[1])
end
local cur = redis.call("HGET", KEYS[1], "v")
if cur then
	local c, n = tonumber(cur), tonumber(ARGV[1])
	if c > n or (c == n and ARGV[4] == "1") then
		return 0
	end
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1], "v", ARGV[1], "b", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{backend: base, redis: client, ttl: ttl}
}

func (c *Cache) GetBoardByID(ctx context.Context, boardID string) (*domain.Board, error) {
	if b, ok := c.loadBoard(ctx, boardID); ok {
		return b, nil
	}
	b, err := c.backend.GetBoardByID(ctx, boardID)
	if err != nil || b == nil {
		return b, err
	}
	c.fill(ctx, *b)
	return b, nil
}

func (c *Cache) UpdateBoard(ctx context.Context, b domain.Board) error {
	if err := c.backend.UpdateBoard(ctx, b); err != nil {
		return err
	}
	if !c.write(ctx, b.ID, boardVersion(b), &b, false) {
		c.evict(ctx, b.ID)
	}
	return nil
}

func (c *Cache) DeleteBoard(ctx context.Context, ownerID, boardID string) error {
	if err := c.backend.DeleteBoard(ctx, ownerID, boardID); err != nil {
		return err
	}
	if !c.write(ctx, boardID, tombstoneVersion, nil, false) {
		c.evict(ctx, boardID)
	}
	return nil
}

func (c *Cache) loadBoard(ctx context.Context, boardID string) (*domain.Board, bool) {
	if c.redis == nil {
		return nil, false
	}
	vals, err := c.redis.HMGet(ctx, boardCacheKey(boardID), "v", "b").Result()
	if err != nil {
		c.evict(ctx, boardID)
		return nil, false
	}
	payload, _ := vals[1].(string)
	if payload == "" {
		// absent or tombstoned
		return nil, false
	}
	var b domain.Board
	if err := sonic.ConfigStd.UnmarshalFromString(payload, &b); err != nil || b.ID != boardID {
		c.evict(ctx, boardID)
		return nil, false
	}
	return &b, true
}

func (c *Cache) fill(ctx context.Context, b domain.Board) {
	c.write(ctx, b.ID, boardVersion(b), &b, true)
}

// write stores b (or a tombstone when b is nil) unless the cached entry is
// newer. It reports whether Redis accepted the call, not whether it replaced
// the entry.
func (c *Cache) write(ctx context.Context, boardID string, version int64, b *domain.Board, keepEqual bool) bool {
	if c.redis == nil || c.ttl == 0 {
		return false
	}
	payload := ""
	if b != nil {
		data, err := sonic.ConfigStd.MarshalToString(b)
		if err != nil {
			return false
		}
		payload = data
	}
	strict := "0"
	if keepEqual {
		strict = "1"
	}
	err := cacheWriteScript.Run(ctx, c.redis, []string{boardCacheKey(boardID)},
		strconv.FormatInt(version, 10), payload, c.ttl.Milliseconds(), strict).Err()
	return err == nil
}

func (c *Cache) evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(boardID)).Result()
}

// boardVersion orders cache writes. Microseconds stay exact in a Lua number.
func boardVersion(b domain.Board) int64 {
	v := b.UpdatedAt.UnixMicro()
	if v < 0 {
		return 0
	}
	return v
}

func boardCacheKey(boardID string) string {
	return "scrum:board:" + boardID
}
