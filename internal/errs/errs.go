package errs

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Type is the closed classification set for importer errors. Retry policy and
// log routing both key off it, so new values need a matching policy decision.
type Type string

const (
	TypeValidation      Type = "VALIDATION"
	TypeDatabase        Type = "DATABASE"
	TypeRedis           Type = "REDIS"
	TypeParsing         Type = "PARSING"
	TypeExternalService Type = "EXTERNAL_SERVICE"
	TypeNetwork         Type = "NETWORK"
	TypeTimeout         Type = "TIMEOUT"
	TypeWorker          Type = "WORKER"
	TypeUnknown         Type = "UNKNOWN"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Error is the structured error threaded through workers and pipelines.
// Context carries job/queue identifiers so a single log line is enough to
// find the invocation trail.
type Error struct {
	Type         Type
	Severity     Severity
	Message      string
	Cause        error
	Context      map[string]any
	NonRetryable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// WithContext returns the same error with merged context. The receiver is
// mutated; structured errors are not shared across jobs.
func (e *Error) WithContext(ctx map[string]any) *Error {
	if e == nil || len(ctx) == 0 {
		return e
	}
	if e.Context == nil {
		e.Context = make(map[string]any, len(ctx))
	}
	for k, v := range ctx {
		e.Context[k] = v
	}
	return e
}

func New(t Type, sev Severity, msg string) *Error {
	return &Error{Type: t, Severity: sev, Message: msg}
}

func Wrap(err error, t Type, sev Severity, msg string) *Error {
	return &Error{Type: t, Severity: sev, Message: msg, Cause: err}
}

// Fatal marks an error non-retryable regardless of its type.
func Fatal(t Type, msg string) *Error {
	return &Error{Type: t, Severity: SeverityHigh, Message: msg, NonRetryable: true}
}

// FatalWrap wraps a cause into a non-retryable structured error.
func FatalWrap(err error, t Type, msg string) *Error {
	return &Error{Type: t, Severity: SeverityHigh, Message: msg, Cause: err, NonRetryable: true}
}

// MissingField builds the VALIDATION error for a missing required input field.
func MissingField(field string) *Error {
	return &Error{
		Type:     TypeValidation,
		Severity: SeverityLow,
		Message:  fmt.Sprintf("missing required field: %s", field),
		Context:  map[string]any{"field": field},
	}
}

// Validate checks required fields in order and returns a VALIDATION error
// naming the first missing one. A field is missing when absent, nil, or an
// empty string.
func Validate(data map[string]any, required ...string) *Error {
	for _, f := range required {
		v, ok := data[f]
		if !ok || v == nil {
			return MissingField(f)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return MissingField(f)
		}
	}
	return nil
}

// ServiceUnhealthy is raised by workers that refuse a job while the process
// is degraded. It is retryable so the job returns to the queue.
func ServiceUnhealthy(queueName string) *Error {
	return &Error{
		Type:     TypeExternalService,
		Severity: SeverityMedium,
		Message:  "service unhealthy, deferring job",
		Context:  map[string]any{"queue": queueName, "reason": "ServiceUnhealthy"},
	}
}

// IsDeferral reports whether the error is a health-gate deferral. Deferred
// jobs go back to the queue without spending retry budget.
func IsDeferral(err error) bool {
	se, ok := As(err)
	if !ok {
		return false
	}
	reason, _ := se.Context["reason"].(string)
	return reason == "ServiceUnhealthy"
}

// As extracts a structured error from an error chain.
func As(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

var timeoutRe = regexp.MustCompile(`timed?\s?out|timeout`)

// Classify maps a raw error onto the taxonomy by keyword-matching its
// message. Already-structured errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if se, ok := As(err); ok {
		return se
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "prisma"), strings.Contains(msg, "database"), strings.Contains(msg, "sql"):
		return Wrap(err, TypeDatabase, SeverityHigh, "database operation failed")
	case strings.Contains(msg, "redis"):
		return Wrap(err, TypeRedis, SeverityHigh, "queue backend operation failed")
	case strings.Contains(msg, "econnrefused"), strings.Contains(msg, "network"):
		return Wrap(err, TypeNetwork, SeverityMedium, "network operation failed")
	case timeoutRe.MatchString(msg):
		return Wrap(err, TypeTimeout, SeverityMedium, "operation timed out")
	case strings.Contains(msg, "api"), strings.Contains(msg, "service"), strings.Contains(msg, "http"):
		return Wrap(err, TypeExternalService, SeverityMedium, "external service call failed")
	default:
		return Wrap(err, TypeUnknown, SeverityMedium, "unclassified error")
	}
}

// IsNonRetryable reports whether the error must never be rescheduled,
// independent of the attempt budget.
func IsNonRetryable(err error) bool {
	se := Classify(err)
	if se == nil {
		return false
	}
	return se.NonRetryable || se.Type == TypeValidation || se.Severity == SeverityCritical
}

// RetryConfig carries the retry/backoff knobs from configuration.
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// ShouldRetry decides whether a failed attempt goes back to the queue.
// attempt is 1-based: the attempt that just failed.
func ShouldRetry(err error, attempt int, cfg RetryConfig) bool {
	if attempt >= cfg.MaxRetries {
		return false
	}
	return !IsNonRetryable(err)
}

// Backoff computes the delay before the next attempt: base * 2^attempt,
// capped at MaxBackoff. Monotonic in attempt.
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := cfg.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	maxB := cfg.MaxBackoff
	if maxB <= 0 {
		maxB = 30 * time.Second
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxB {
			return maxB
		}
	}
	if d > maxB {
		return maxB
	}
	return d
}
