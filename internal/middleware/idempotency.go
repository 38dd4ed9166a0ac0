package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	idempotencyHeader  = "Idempotency-Key"
	replayedHeader     = "Idempotent-Replayed"
	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
	maxIdempotencyKey  = 255
)

// storedReply is a finished response kept for replay.
type storedReply struct {
	Status      int             `json:"status"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body"`
}

// replayStore keeps replies and in-flight markers in Redis.
type replayStore struct {
	client *redis.Client
}

func (s replayStore) load(ctx context.Context, key string) (*storedReply, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var reply storedReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (s replayStore) save(ctx context.Context, key string, reply storedReply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, idempotencyTTL).Err()
}

// claim marks key as in flight. It returns false if another request holds it.
func (s replayStore) claim(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, key+":lock", "1", idempotencyLockTTL).Result()
}

func (s replayStore) release(ctx context.Context, key string) {
	s.client.Del(ctx, key+":lock")
}

// capturingWriter tees the response body so it can be stored.
type capturingWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response when a mutating request
// repeats an Idempotency-Key. Keys are scoped to the caller and the route.
// Server errors are not stored so the client can retry them.
func IdempotencyMiddleware(redisClient *redis.Client, logger *zap.Logger) gin.HandlerFunc {
	store := replayStore{client: redisClient}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		clientKey := c.GetHeader(idempotencyHeader)
		if clientKey == "" {
			c.Next()
			return
		}
		if len(clientKey) > maxIdempotencyKey {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Idempotency-Key is too long",
			})
			return
		}

		ctx := c.Request.Context()
		key := replayKey(c, clientKey)

		reply, err := store.load(ctx, key)
		if err != nil {
			logger.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if reply != nil {
			c.Header(replayedHeader, "true")
			c.Data(reply.Status, reply.ContentType, reply.Body)
			c.Abort()
			return
		}

		claimed, err := store.claim(ctx, key)
		if err != nil {
			logger.Warn("idempotency lock unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   "a request with this Idempotency-Key is already in progress",
			})
			return
		}

		// The write-back must survive a client disconnect.
		bg := context.WithoutCancel(ctx)
		defer store.release(bg, key)

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		err = store.save(bg, key, storedReply{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.buf.Bytes(),
		})
		if err != nil {
			logger.Warn("idempotency store write failed", zap.Error(err))
		}
	}
}

func replayKey(c *gin.Context, clientKey string) string {
	scope := "anonymous"
	if id := PrincipalID(c); id != "" {
		scope = id
	}
	return "idempotency:" + scope + ":" + c.Request.Method + ":" + c.FullPath() + ":" + clientKey
}
