package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gympay/internal/domain"
)

type idempotencyHarness struct {
	mr     *miniredis.Miniredis
	router *gin.Engine
	calls  int32
	status int32
}

func newIdempotencyHarness(t *testing.T) *idempotencyHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := &idempotencyHarness{mr: mr, status: http.StatusCreated}
	h.router = gin.New()
	h.router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-Principal"); id != "" {
			c.Set(principalKey, &domain.Principal{ID: id, Role: domain.RoleAdmin})
		}
		c.Next()
	})
	h.router.Use(IdempotencyMiddleware(client, zap.NewNop()))
	handle := func(c *gin.Context) {
		n := atomic.AddInt32(&h.calls, 1)
		c.JSON(int(atomic.LoadInt32(&h.status)), gin.H{"call": n})
	}
	h.router.POST("/orders", handle)
	h.router.GET("/orders", handle)
	return h
}

func (h *idempotencyHarness) do(method, key, principal string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/orders", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	if principal != "" {
		req.Header.Set("X-Test-Principal", principal)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	h := newIdempotencyHarness(t)

	first := h.do(http.MethodPost, "key-1", "")
	second := h.do(http.MethodPost, "key-1", "")

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	if second.Header().Get(replayedHeader) != "true" {
		t.Error("expected the replay header on the second response")
	}
	if first.Header().Get(replayedHeader) != "" {
		t.Error("did not expect the replay header on the first response")
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("expected identical bodies, got %q and %q", first.Body.String(), second.Body.String())
	}
	if !strings.HasPrefix(second.Header().Get("Content-Type"), "application/json") {
		t.Errorf("expected the stored content type, got %q", second.Header().Get("Content-Type"))
	}
	if h.calls != 1 {
		t.Errorf("expected the handler to run once, got %d", h.calls)
	}
	if h.mr.Exists("idempotency:anonymous:POST:/orders:key-1:lock") {
		t.Error("expected the in-flight marker to be released")
	}
	if ttl := h.mr.TTL("idempotency:anonymous:POST:/orders:key-1"); ttl != idempotencyTTL {
		t.Errorf("expected stored reply ttl %v, got %v", idempotencyTTL, ttl)
	}
}

func TestIdempotency_KeysAreScopedPerCaller(t *testing.T) {
	h := newIdempotencyHarness(t)

	h.do(http.MethodPost, "shared", "admin-1")
	rec := h.do(http.MethodPost, "shared", "admin-2")

	if rec.Header().Get(replayedHeader) != "" {
		t.Error("a different caller must not receive a replay")
	}
	if h.calls != 2 {
		t.Errorf("expected two handler runs, got %d", h.calls)
	}
}

func TestIdempotency_InFlightKeyConflicts(t *testing.T) {
	h := newIdempotencyHarness(t)
	if err := h.mr.Set("idempotency:anonymous:POST:/orders:key-2:lock", "1"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rec := h.do(http.MethodPost, "key-2", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if h.calls != 0 {
		t.Error("handler must not run while the key is in flight")
	}
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	h := newIdempotencyHarness(t)
	h.status = http.StatusBadGateway

	if rec := h.do(http.MethodPost, "key-3", ""); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if h.mr.Exists("idempotency:anonymous:POST:/orders:key-3") {
		t.Fatal("a 5xx response must not be stored")
	}

	h.status = http.StatusCreated
	rec := h.do(http.MethodPost, "key-3", "")
	if rec.Code != http.StatusCreated || rec.Header().Get(replayedHeader) != "" {
		t.Errorf("expected a fresh 201 on retry, got %d replayed=%q", rec.Code, rec.Header().Get(replayedHeader))
	}
	if h.calls != 2 {
		t.Errorf("expected the handler to run twice, got %d", h.calls)
	}
}

func TestIdempotency_ClientErrorsAreStored(t *testing.T) {
	h := newIdempotencyHarness(t)
	h.status = http.StatusBadRequest

	h.do(http.MethodPost, "key-4", "")
	rec := h.do(http.MethodPost, "key-4", "")
	if rec.Code != http.StatusBadRequest || rec.Header().Get(replayedHeader) != "true" {
		t.Errorf("expected a replayed 400, got %d", rec.Code)
	}
	if h.calls != 1 {
		t.Errorf("expected one handler run, got %d", h.calls)
	}
}

func TestIdempotency_Bypass(t *testing.T) {
	h := newIdempotencyHarness(t)

	h.do(http.MethodGet, "key-5", "")
	h.do(http.MethodGet, "key-5", "")
	h.do(http.MethodPost, "", "")
	h.do(http.MethodPost, "", "")
	if h.calls != 4 {
		t.Errorf("expected reads and keyless writes to run every time, got %d", h.calls)
	}
	if len(h.mr.Keys()) != 0 {
		t.Errorf("expected nothing stored, got %v", h.mr.Keys())
	}

	rec := h.do(http.MethodPost, strings.Repeat("k", maxIdempotencyKey+1), "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an oversized key, got %d", rec.Code)
	}
}

func TestIdempotency_StoreOutagePassesThrough(t *testing.T) {
	h := newIdempotencyHarness(t)
	h.mr.Close()

	rec := h.do(http.MethodPost, "key-6", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected the request to be served, got %d", rec.Code)
	}
	if h.calls != 1 {
		t.Errorf("expected one handler run, got %d", h.calls)
	}
}
