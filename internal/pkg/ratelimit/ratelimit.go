// Package ratelimit provides atomic per-channel rate limiting backed by
// Redis Lua scripts. The GET, check, INCR sequence races under concurrency;
// the script checks all windows and increments in a single round trip.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limits caps messages per channel across three sliding windows.
// A zero or negative value leaves that window uncapped, so the zero
// value imposes no limit at all.
type Limits struct {
	PerSecond int
	PerMinute int
	PerHour   int
}

// Unlimited reports whether no window carries a cap.
func (l Limits) Unlimited() bool {
	return l.PerSecond <= 0 && l.PerMinute <= 0 && l.PerHour <= 0
}

// Limiter tracks per-channel send counters in Redis.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
}

const windowLuaScript = `
local secondKey = KEYS[1]
local minuteKey = KEYS[2]
local hourKey = KEYS[3]
local increment = tonumber(ARGV[1])
local secondLimit = tonumber(ARGV[2])
local minuteLimit = tonumber(ARGV[3])
local hourLimit = tonumber(ARGV[4])

local secCurrent = tonumber(redis.call("GET", secondKey) or "0")
local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")
local hourCurrent = tonumber(redis.call("GET", hourKey) or "0")

-- Check every window BEFORE incrementing; a non-positive limit means
-- that window is uncapped
if secondLimit > 0 and secCurrent + increment > secondLimit then
    return {0, 1}
end
if minuteLimit > 0 and minCurrent + increment > minuteLimit then
    return {0, 2}
end
if hourLimit > 0 and hourCurrent + increment > hourLimit then
    return {0, 3}
end

local newSec = redis.call("INCRBY", secondKey, increment)
if newSec == increment then
    redis.call("EXPIRE", secondKey, 2)
end

local newMin = redis.call("INCRBY", minuteKey, increment)
if newMin == increment then
    redis.call("EXPIRE", minuteKey, 120)
end

local newHour = redis.call("INCRBY", hourKey, increment)
if newHour == increment then
    redis.call("EXPIRE", hourKey, 7200)
end

return {1, 0}
`

// New creates a limiter with the pre-compiled window script.
func New(client *redis.Client) *Limiter {
	return &Limiter{
		redis:  client,
		script: redis.NewScript(windowLuaScript),
	}
}

// NewFromURL creates a limiter by connecting to Redis and pinging it.
func NewFromURL(redisURL string) (*Limiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return New(client), nil
}

// Allow atomically checks all windows for the named channel and increments
// them when each has headroom. When denied it reports how long to wait
// before the tightest exceeded window rolls over.
func (l *Limiter) Allow(ctx context.Context, channel string, limits Limits, n int) (allowed bool, wait time.Duration, err error) {
	if limits.Unlimited() {
		return true, 0, nil
	}
	now := time.Now()

	secondKey := fmt.Sprintf("ratelimit:%s:sec:%d", channel, now.Unix())
	minuteKey := fmt.Sprintf("ratelimit:%s:min:%d", channel, now.Unix()/60)
	hourKey := fmt.Sprintf("ratelimit:%s:hour:%d", channel, now.Unix()/3600)

	result, err := l.script.Run(ctx, l.redis,
		[]string{secondKey, minuteKey, hourKey},
		n,
		limits.PerSecond,
		limits.PerMinute,
		limits.PerHour,
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	if result[0].(int64) == 1 {
		return true, 0, nil
	}

	switch result[1].(int64) {
	case 1:
		wait = time.Second
	case 2:
		wait = time.Duration(60-now.Second()) * time.Second
	case 3:
		wait = time.Duration(3600-(now.Minute()*60+now.Second())) * time.Second
	}
	return false, wait, nil
}

// Close closes the Redis connection.
func (l *Limiter) Close() error {
	return l.redis.Close()
}
