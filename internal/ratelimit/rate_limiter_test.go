package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func fixedLimiter(rdb *redis.Client, cfg Config, at time.Time) *Limiter {
	l := NewLimiter(rdb, cfg, nil)
	l.nowFn = func() time.Time { return at }
	return l
}

func scriptArgs(cfg Config, now time.Time) []interface{} {
	member := strconv.FormatInt(now.UnixNano(), 10)
	return []interface{}{
		strconv.FormatInt(now.Add(-cfg.Window).UnixNano(), 10),
		strconv.Itoa(cfg.MaxAttempts),
		member,
		member,
		strconv.FormatInt(cfg.Window.Milliseconds(), 10),
	}
}

func TestLimiter_WithinQuota(t *testing.T) {
	db, mock := redismock.NewClientMock()
	now := time.Unix(1780000000, 0)
	cfg := Config{Window: 60 * time.Second, MaxAttempts: 12}
	l := fixedLimiter(db, cfg, now)

	key := Key("user-1")
	oldest := strconv.FormatInt(now.Add(-30*time.Second).UnixNano(), 10)
	mock.ExpectEval(slidingWindowScript, []string{key}, scriptArgs(cfg, now)...).
		SetVal([]interface{}{int64(1), int64(3), oldest})

	res := l.CheckAndConsume(context.Background(), "user-1")
	assert.True(t, res.Passed)
	assert.False(t, res.Blocked)
	assert.Equal(t, 12, res.Limit)
	assert.Equal(t, 9, res.Remaining)
	assert.Equal(t, now.Add(30*time.Second).Unix(), res.ResetAt.Unix())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimiter_BlockedOverQuota(t *testing.T) {
	db, mock := redismock.NewClientMock()
	now := time.Unix(1780000000, 0)
	cfg := Config{Window: 60 * time.Second, MaxAttempts: 12}
	l := fixedLimiter(db, cfg, now)

	key := Key("user-1")
	oldest := strconv.FormatInt(now.Add(-50*time.Second).UnixNano(), 10)
	// The single script round trip is the whole interaction: a blocked
	// attempt leaves no member behind and needs no follow-up removal.
	mock.ExpectEval(slidingWindowScript, []string{key}, scriptArgs(cfg, now)...).
		SetVal([]interface{}{int64(0), int64(12), oldest})

	res := l.CheckAndConsume(context.Background(), "user-1")
	assert.False(t, res.Passed)
	assert.True(t, res.Blocked)
	assert.Equal(t, 0, res.Remaining)
	// reset at oldest surviving attempt + window
	assert.Equal(t, now.Add(10*time.Second).Unix(), res.ResetAt.Unix())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	now := time.Unix(1780000000, 0)
	cfg := DefaultConfig()
	l := fixedLimiter(db, cfg, now)

	mock.ExpectEval(slidingWindowScript, []string{Key("user-1")}, scriptArgs(cfg, now)...).
		SetErr(errors.New("connection refused"))

	res := l.CheckAndConsume(context.Background(), "user-1")
	assert.True(t, res.Passed)
	assert.False(t, res.Blocked)
	assert.Equal(t, 11, res.Remaining)
}

func TestLimiter_MissingOldestScoreFallsBackToNow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	now := time.Unix(1780000000, 0)
	cfg := Config{Window: 60 * time.Second, MaxAttempts: 12}
	l := fixedLimiter(db, cfg, now)

	mock.ExpectEval(slidingWindowScript, []string{Key("user-1")}, scriptArgs(cfg, now)...).
		SetVal([]interface{}{int64(1), int64(1), int64(0)})

	res := l.CheckAndConsume(context.Background(), "user-1")
	assert.True(t, res.Passed)
	assert.Equal(t, 11, res.Remaining)
	assert.Equal(t, now.Add(cfg.Window).Unix(), res.ResetAt.Unix())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 60*time.Second, cfg.Window)
	assert.Equal(t, 12, cfg.MaxAttempts)
}
