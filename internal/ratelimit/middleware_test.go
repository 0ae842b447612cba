package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bizledger/internal/tenant"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim, err := NewRedisLimiter(client, "1-M")
	require.NoError(t, err)
	counted := Handler{Limiter: lim, Key: func(*http.Request) string { return "static" }}.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr2.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))

	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &env))
	require.Equal(t, "RATE_LIMITED", env.Error.Code)
}

func TestHandlerSeparatesBusinesses(t *testing.T) {
	lim, err := NewMemoryLimiter("1-M")
	require.NoError(t, err)
	h := tenant.NewResolver("", "").Middleware(Handler{Limiter: lim}.Middleware(okHandler()))

	send := func(business string) int {
		req := httptest.NewRequest(http.MethodPost, "/sales", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		req.Header.Set(tenant.DefaultHeader, business)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	a := "6f1c2f7e-8f52-4f7c-9a55-2f3d0c1b9e01"
	b := "0b8d6a9e-1234-4c1d-8e2f-7a6b5c4d3e2f"
	require.Equal(t, http.StatusOK, send(a))
	require.Equal(t, http.StatusTooManyRequests, send(a))
	require.Equal(t, http.StatusOK, send(b))
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lim, err := NewRedisLimiter(client, "1-M")
	require.NoError(t, err)
	mr.Close()

	var got error
	h := Handler{Limiter: lim, OnError: func(err error) { got = err }}.Middleware(okHandler())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/test", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Error(t, got)
	_ = client.Close()
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4411"
	require.Equal(t, "192.0.2.7", ClientIP(req))
	req.RemoteAddr = "192.0.2.8"
	require.Equal(t, "192.0.2.8", ClientIP(req))
	require.Equal(t, "anonymous:192.0.2.8", BusinessClientKey(req))
}

func TestNewLimiterRejectsBadRate(t *testing.T) {
	_, err := NewMemoryLimiter("fast")
	require.Error(t, err)
}
