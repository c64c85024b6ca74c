package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	entryTTL      = 30 * 24 * time.Hour
	recentListCap = 200
)

func entryKey(gameID string) string { return "trainer:game:" + strings.TrimSpace(gameID) }

const recentKey = "trainer:games:recent"

// RedisStore persists entries in Redis with a bounded recency list.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to the given redis:// URL and pings it.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}

func (r *RedisStore) Save(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, entryKey(e.GameID), raw, entryTTL)
	pipe.LPush(ctx, recentKey, e.GameID)
	pipe.LTrim(ctx, recentKey, 0, recentListCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, gameID string) (*Entry, error) {
	raw, err := r.rdb.Get(ctx, entryKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", gameID, err)
	}
	return &e, nil
}

func (r *RedisStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	ids, err := r.rdb.LRange(ctx, recentKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
