package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the window, then admits the call only if the
// remaining count is below the limit. A rejected call leaves the set as is.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, ARGV[2])
if redis.call('ZCARD', key) < limit then
	redis.call('ZADD', key, ARGV[1], ARGV[4])
	redis.call('PEXPIRE', key, ARGV[5])
	return 1
end
return 0
`)

// RedisSlidingWindow shares counts across API instances through a sorted set
// per key.
type RedisSlidingWindow struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisSlidingWindow builds a limiter storing hits under
// "ratelimit:<prefix>:<key>". now defaults to time.Now.
func NewRedisSlidingWindow(client redis.UniversalClient, prefix string, limit int, window time.Duration, now func() time.Time) *RedisSlidingWindow {
	if now == nil {
		now = time.Now
	}
	return &RedisSlidingWindow{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    now,
	}
}

func (l *RedisSlidingWindow) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	startMs := now.Add(-l.window).UnixMilli()

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.key(key)},
		nowMs, startMs, l.limit, uuid.NewString(), (2 * l.window).Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis sliding window: %w", err)
	}
	return res == 1, nil
}

func (l *RedisSlidingWindow) key(k string) string {
	return fmt.Sprintf("ratelimit:%s:%s", l.prefix, k)
}
