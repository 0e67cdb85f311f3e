package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"surveyhub.org/internal/audit"
	"surveyhub.org/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitExceeded(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	handler := RequestID(limiter.Middleware(okHandler()))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(context.Background()))
	assert.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(context.Background()))
	assert.Equal(t, http.StatusTooManyRequests, rr2.Code)
	assert.NotEmpty(t, rr2.Header().Get("Retry-After"))
	body := decodeBody(t, rr2)
	assert.Equal(t, "rate limit exceeded", body["error"])
	assert.NotEmpty(t, body["request_id"])

	other := req.Clone(context.Background())
	other.RemoteAddr = "10.0.0.2:1234"
	rr3 := httptest.NewRecorder()
	handler.ServeHTTP(rr3, other)
	assert.Equal(t, http.StatusOK, rr3.Code, "buckets are per client")
}

func TestRateLimiterSweepsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.allow("a"))
	now = now.Add(10 * time.Minute)
	assert.True(t, limiter.allow("b"))
	assert.NotContains(t, limiter.buckets, "a")
	assert.True(t, limiter.allow("a"), "a swept bucket starts full")
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = audit.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "req-42", seen)
}

func TestLoggingEmitsStructuredEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestID(Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request_complete").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/log-test", fields["path"])
	assert.NotEmpty(t, fields["request_id"])
	assert.Contains(t, fields, "duration_ms")
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestExtractBearerToken(t *testing.T) {
	tok, err := extractBearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = extractBearerToken("bearer   xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer ", "Basic dXNlcjpwYXNz", "Bearer"} {
		_, err := extractBearerToken(h)
		assert.Error(t, err, h)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{fmt.Errorf("%w: email is required", auth.ErrValidation), http.StatusBadRequest, "email is required"},
		{oops.Code("USER_EXISTS").Wrap(auth.ErrConflict), http.StatusConflict, "resource already exists"},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{auth.ErrAccountDeactivated, http.StatusForbidden, "account is deactivated"},
		{auth.ErrAccountUnavailable, http.StatusUnauthorized, "account not available"},
		{auth.ErrWrongPassword, http.StatusBadRequest, "current password is incorrect"},
		{auth.ErrTokenExpired, http.StatusUnauthorized, "token expired"},
		{auth.ErrTokenInvalid, http.StatusUnauthorized, "invalid token"},
		{auth.ErrTokenMalformed, http.StatusUnauthorized, "invalid token"},
		{auth.ErrTokenRevoked, http.StatusUnauthorized, "token revoked"},
		{auth.ErrForbidden, http.StatusForbidden, "insufficient permissions"},
		{auth.ErrCrossTenant, http.StatusForbidden, "resource belongs to another organization"},
		{auth.ErrNotFound, http.StatusNotFound, "not found"},
		{auth.TransactionError(errors.New("deadlock")), http.StatusInternalServerError, "internal error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		code, msg := statusFor(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.Equal(t, tc.msg, msg, tc.err.Error())
	}
}
