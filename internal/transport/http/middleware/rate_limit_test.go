package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

// recordingLimitStore counts calls so tests can assert which store
// operations the middleware performed.
type recordingLimitStore struct {
	trimErr   error
	count     int
	countErr  error
	oldest    time.Time
	hasOldest bool
	oldestErr error
	recordErr error

	trimmed  []string
	counted  []string
	recorded []string
}

func (s *recordingLimitStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	s.trimmed = append(s.trimmed, identifier)
	return s.trimErr
}

func (s *recordingLimitStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	s.counted = append(s.counted, identifier)
	return s.count, s.countErr
}

func (s *recordingLimitStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	s.recorded = append(s.recorded, identifier)
	return s.recordErr
}

func (s *recordingLimitStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	return s.oldest, s.hasOldest, s.oldestErr
}

func newLimitedRouter(t *testing.T, store RateLimitStore, now time.Time, rule RateLimitRule) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	router := gin.New()
	router.Use(limiter.RateLimit(rule))
	router.POST("/login", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return router
}

func loginRule(limit int) RateLimitRule {
	return RateLimitRule{
		Name:   "login",
		Limit:  limit,
		Window: time.Minute,
		Identifier: func(c *gin.Context) (string, bool) {
			return "198.51.100.7", true
		},
	}
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	now := time.Date(2025, 11, 3, 9, 15, 0, 0, time.UTC)
	oldest := now.Add(-30 * time.Second)

	store := &recordingLimitStore{
		count:     2,
		oldest:    oldest,
		hasOldest: true,
	}

	router := newLimitedRouter(t, store, now, loginRule(5))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("request below the limit should pass, got %d", rr.Code)
	}

	if len(store.recorded) != 1 {
		t.Fatalf("allowed request should be recorded exactly once, got %d", len(store.recorded))
	}

	if got := rr.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("limit header = %q, want 5", got)
	}

	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Fatalf("remaining header = %q, want 2", got)
	}

	wantReset := oldest.Add(time.Minute).Unix()
	if got := rr.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(wantReset, 10) {
		t.Fatalf("reset header = %q, want %d", got, wantReset)
	}

	if got := rr.Header().Get("Retry-After"); got != "" {
		t.Fatalf("allowed request must not carry Retry-After, got %q", got)
	}
}

func TestRateLimiterBlocksWhenLimitExceeded(t *testing.T) {
	now := time.Date(2025, 11, 3, 9, 15, 0, 0, time.UTC)

	store := &recordingLimitStore{
		count:     5,
		oldest:    now.Add(-30 * time.Second),
		hasOldest: true,
	}

	router := newLimitedRouter(t, store, now, loginRule(5))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("exhausted window should return 429, got %d", rr.Code)
	}

	if len(store.recorded) != 0 {
		t.Fatalf("blocked request must not be recorded, got %d records", len(store.recorded))
	}

	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("Retry-After = %q, want 30", got)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if problem.Status != http.StatusTooManyRequests {
		t.Fatalf("problem status = %d, want 429", problem.Status)
	}

	if problem.RetryAfter != 30 {
		t.Fatalf("problem retry_after = %d, want 30", problem.RetryAfter)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	now := time.Date(2025, 11, 3, 9, 15, 0, 0, time.UTC)

	store := &recordingLimitStore{
		trimErr: errors.New("redis down"),
	}

	router := newLimitedRouter(t, store, now, loginRule(5))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("store failure should fail open, got %d", rr.Code)
	}

	if len(store.recorded) != 0 {
		t.Fatalf("failed evaluation must not record an attempt, got %d records", len(store.recorded))
	}
}
