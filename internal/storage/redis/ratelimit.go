package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

var _ httpmiddleware.Limiter = (*Limiter)(nil)

// slidingWindow keeps one sorted set member per admitted request scored by
// its time in milliseconds. Scores travel as strings so no float formatting
// happens inside the script. Returns {allowed, count, oldestScore}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. ARGV[2])
local count = redis.call('ZCARD', key)
local allowed = 0
if count < tonumber(ARGV[4]) then
	redis.call('ZADD', key, ARGV[1], ARGV[5])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, ARGV[3])

local oldest = ARGV[1]
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = first[2]
end
return {allowed, count, oldest}
`)

// Limiter is a sliding window rate limiter shared by every storefront
// instance pointing at the same Redis.
type Limiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewLimiter allows limit requests per key in any window-long interval.
func NewLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow records a request for key at now if it fits.
func (l *Limiter) Allow(ctx context.Context, key string, now time.Time) (httpmiddleware.Decision, error) {
	nowMs := now.UnixMilli()
	windowMs := l.window.Milliseconds()
	res, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key},
		strconv.FormatInt(nowMs, 10),
		strconv.FormatInt(nowMs-windowMs, 10),
		strconv.FormatInt(windowMs, 10),
		strconv.Itoa(l.limit),
		uuid.NewString(),
	).Slice()
	if err != nil {
		return httpmiddleware.Decision{}, fmt.Errorf("failed to check rate limit for %s: %w", key, err)
	}

	allowed, count, oldest, err := parseWindowReply(res)
	if err != nil {
		return httpmiddleware.Decision{}, err
	}
	return httpmiddleware.Decision{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: max(l.limit-int(count), 0),
		ResetAt:   time.UnixMilli(oldest + windowMs),
	}, nil
}

func parseWindowReply(res []any) (allowed bool, count, oldest int64, err error) {
	if len(res) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected rate limit reply %v", res)
	}
	a, ok1 := res[0].(int64)
	c, ok2 := res[1].(int64)
	o, ok3 := res[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return false, 0, 0, fmt.Errorf("unexpected rate limit reply %v", res)
	}
	score, err := strconv.ParseFloat(o, 64)
	if err != nil {
		return false, 0, 0, fmt.Errorf("failed to parse window start %q: %w", o, err)
	}
	return a == 1, c, int64(score), nil
}
