package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const lockTTL = 30 * time.Second

// Idempotency replays cached responses for repeated POSTs carrying the
// same Idempotency-Key, and rejects concurrent duplicates while the first
// attempt is still in flight. Check-in retries from flaky mobile networks
// must not produce a second admission attempt.
type Idempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotency(rdb *redis.Client, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Idempotency{rdb: rdb, ttl: ttl}
}

func (i *Idempotency) Guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		userID := c.GetString("user_id")
		cacheKey := fmt.Sprintf("presence:idemp:%s:%s:%s", c.FullPath(), userID, idempKey)
		lockKey := cacheKey + ":lock"
		ctx := c.Request.Context()

		if val, err := i.rdb.Get(ctx, cacheKey).Result(); err == nil {
			c.Header("X-Idempotent-Replay", "true")
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(val))
			c.Abort()
			return
		}

		// Short-lived lock so a crashed attempt does not wedge the key.
		acquired, _ := i.rdb.SetNX(ctx, lockKey, "locked", lockTTL).Result()
		if !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"code":    "PROCESSING",
				"message": "A submission with this idempotency key is already in progress",
			})
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec

		c.Next()

		status := rec.Status()
		if status >= http.StatusOK && status < http.StatusMultipleChoices {
			i.rdb.Set(ctx, cacheKey, rec.body.Bytes(), i.ttl)
		}
		i.rdb.Del(ctx, lockKey)
	}
}

type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
