package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "presence:ratelimit:"

// slidingWindowScript prunes the window, checks quota and records the
// attempt in one atomic step, so a blocked attempt never touches the set
// and concurrent attempts for the same identity cannot both observe spare
// quota. Reply: {allowed 0|1, count after, oldest surviving score or 0}.
const slidingWindowScript = `
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[2]) then
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	local reset = 0
	if oldest[2] then reset = oldest[2] end
	return {0, count, reset}
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local reset = 0
if oldest[2] then reset = oldest[2] end
return {1, count + 1, reset}
`

// Result is the outcome of one admission attempt against the window.
type Result struct {
	Passed    bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	Blocked   bool
}

type Config struct {
	Window      time.Duration
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		Window:      60 * time.Second,
		MaxAttempts: 12,
	}
}

// Limiter is a sliding-window counter over a Redis sorted set. Each admitted
// attempt is a member scored by its nanosecond timestamp.
type Limiter struct {
	rdb    *redis.Client
	cfg    Config
	logger *zap.Logger
	nowFn  func() time.Time
}

func NewLimiter(rdb *redis.Client, cfg Config, logger *zap.Logger) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{rdb: rdb, cfg: cfg, logger: logger, nowFn: time.Now}
}

// CheckAndConsume records one attempt for identity when quota allows and
// reports the window state. An over-quota attempt is not recorded. The
// counter store being unreachable fails open: admission availability
// outranks strict enforcement during infra outages.
func (l *Limiter) CheckAndConsume(ctx context.Context, identity string) Result {
	now := l.nowFn()
	key := keyPrefix + identity
	member := strconv.FormatInt(now.UnixNano(), 10)

	raw, err := l.rdb.Eval(ctx, slidingWindowScript, []string{key},
		strconv.FormatInt(now.Add(-l.cfg.Window).UnixNano(), 10),
		strconv.Itoa(l.cfg.MaxAttempts),
		member,
		member,
		strconv.FormatInt(l.cfg.Window.Milliseconds(), 10),
	).Result()
	if err != nil {
		l.logger.Warn("rate limit store unreachable, failing open",
			zap.String("identity", identity),
			zap.Error(err),
		)
		return Result{
			Passed:    true,
			Limit:     l.cfg.MaxAttempts,
			Remaining: l.cfg.MaxAttempts - 1,
			ResetAt:   now.Add(l.cfg.Window),
		}
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 3 {
		l.logger.Warn("rate limit script returned unexpected reply, failing open",
			zap.String("identity", identity))
		return Result{
			Passed:    true,
			Limit:     l.cfg.MaxAttempts,
			Remaining: l.cfg.MaxAttempts - 1,
			ResetAt:   now.Add(l.cfg.Window),
		}
	}

	allowed := replyInt(reply[0]) == 1
	count := int(replyInt(reply[1]))

	resetAt := now.Add(l.cfg.Window)
	if oldest := replyInt(reply[2]); oldest > 0 {
		resetAt = time.Unix(0, oldest).Add(l.cfg.Window)
	}

	if !allowed {
		return Result{
			Passed:  false,
			Limit:   l.cfg.MaxAttempts,
			ResetAt: resetAt,
			Blocked: true,
		}
	}

	return Result{
		Passed:    true,
		Limit:     l.cfg.MaxAttempts,
		Remaining: l.cfg.MaxAttempts - count,
		ResetAt:   resetAt,
	}
}

// replyInt reads a script reply element that Redis may hand back as an
// integer or a bulk string (sorted-set scores come back as strings).
func replyInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return int64(f)
	}
	return 0
}

// Key exposes the storage key for an identity, used by admin tooling to
// clear a stuck window.
func Key(identity string) string {
	return fmt.Sprintf("%s%s", keyPrefix, identity)
}
