package errs

import (
	"errors"
	"testing"
	"time"
)

func TestClassifyKeywords(t *testing.T) {
	cases := []struct {
		msg  string
		want Type
	}{
		{"prisma client panicked", TypeDatabase},
		{"pq: database is starting up", TypeDatabase},
		{"sql: no rows in result set", TypeDatabase},
		{"redis: connection pool exhausted", TypeRedis},
		{"dial tcp: ECONNREFUSED", TypeNetwork},
		{"network is unreachable", TypeNetwork},
		{"operation timed out", TypeTimeout},
		{"context deadline exceeded: timeout", TypeTimeout},
		{"api returned 502", TypeExternalService},
		{"http request rejected", TypeExternalService},
		{"something very strange", TypeUnknown},
	}
	for _, tc := range cases {
		got := Classify(errors.New(tc.msg))
		if got.Type != tc.want {
			t.Fatalf("Classify(%q): got %s, want %s", tc.msg, got.Type, tc.want)
		}
	}
}

func TestClassifyPassesThroughStructured(t *testing.T) {
	orig := Fatal(TypeParsing, "bad image header")
	got := Classify(orig)
	if got != orig {
		t.Fatalf("expected structured error to pass through unchanged")
	}
	if !got.NonRetryable {
		t.Fatalf("expected NonRetryable to survive classification")
	}
}

func TestShouldRetry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: 30 * time.Second}

	retryable := New(TypeDatabase, SeverityHigh, "db down")
	if !ShouldRetry(retryable, 1, cfg) {
		t.Fatalf("attempt 1 of 3 should retry")
	}
	if !ShouldRetry(retryable, 2, cfg) {
		t.Fatalf("attempt 2 of 3 should retry")
	}
	if ShouldRetry(retryable, 3, cfg) {
		t.Fatalf("attempt 3 of 3 must not retry")
	}
	if ShouldRetry(retryable, 4, cfg) {
		t.Fatalf("attempt past budget must not retry")
	}

	if ShouldRetry(MissingField("noteId"), 1, cfg) {
		t.Fatalf("validation errors must not retry")
	}
	critical := New(TypeWorker, SeverityCritical, "invariant violated")
	if ShouldRetry(critical, 1, cfg) {
		t.Fatalf("critical errors must not retry")
	}
	if ShouldRetry(Fatal(TypeParsing, "unreadable"), 1, cfg) {
		t.Fatalf("non-retryable flag must not retry")
	}
	if !ShouldRetry(errors.New("some transient thing"), 1, cfg) {
		t.Fatalf("unknown errors retry conservatively")
	}
}

func TestBackoffMonotonicAndCapped(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 10, BaseBackoff: time.Second, MaxBackoff: 30 * time.Second}
	prev := time.Duration(0)
	for k := 0; k < 12; k++ {
		d := Backoff(k, cfg)
		if d < prev {
			t.Fatalf("backoff(%d)=%v < backoff(%d)=%v", k, d, k-1, prev)
		}
		if d > cfg.MaxBackoff {
			t.Fatalf("backoff(%d)=%v exceeds cap %v", k, d, cfg.MaxBackoff)
		}
		prev = d
	}
	if got := Backoff(0, cfg); got != time.Second {
		t.Fatalf("backoff(0): got %v, want 1s", got)
	}
	if got := Backoff(2, cfg); got != 4*time.Second {
		t.Fatalf("backoff(2): got %v, want 4s", got)
	}
	if got := Backoff(10, cfg); got != cfg.MaxBackoff {
		t.Fatalf("backoff(10): got %v, want cap", got)
	}
}

func TestValidateNamesFirstMissingField(t *testing.T) {
	data := map[string]any{"importId": "i1", "noteId": "", "path": nil}
	err := Validate(data, "importId", "noteId", "path")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if err.Type != TypeValidation {
		t.Fatalf("expected VALIDATION, got %s", err.Type)
	}
	if err.Context["field"] != "noteId" {
		t.Fatalf("expected first missing field noteId, got %v", err.Context["field"])
	}
	if Validate(map[string]any{"a": "x"}, "a") != nil {
		t.Fatalf("expected nil for complete data")
	}
}

func TestServiceUnhealthyIsRetryable(t *testing.T) {
	err := ServiceUnhealthy("image")
	if IsNonRetryable(err) {
		t.Fatalf("health rejection must be retryable")
	}
	cfg := RetryConfig{MaxRetries: 3}
	if !ShouldRetry(err, 1, cfg) {
		t.Fatalf("health rejection should go back to the queue")
	}
}
