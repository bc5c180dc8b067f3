package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"outreach-mailer/internal/models"
)

type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"
	KindTimeout     ErrorKind = "timeout"
	KindNetwork     ErrorKind = "network"
	KindAuth        ErrorKind = "auth"
	KindBadRequest  ErrorKind = "bad_request"
	KindEmpty       ErrorKind = "empty_response"
	KindUnknown     ErrorKind = "unknown"
)

// UpstreamError is a failed completion call. Its message never carries the
// provider credential.
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	Provider   string
	Attempts   int
	msg        string
	cause      error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", models.ErrUpstream, e.Kind)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.msg != "" {
		b.WriteString(": ")
		b.WriteString(e.msg)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.cause }

func (e *UpstreamError) Is(target error) bool { return target == models.ErrUpstream }

// Retryable reports whether another attempt may succeed.
func (e *UpstreamError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindUnavailable, KindTimeout, KindNetwork:
		return true
	}
	return false
}

// classify turns a provider error into an UpstreamError. secret is scrubbed
// from the message.
func classify(provider string, err error, secret string) *UpstreamError {
	msg := redact(err.Error(), secret)
	lower := strings.ToLower(msg)
	e := &UpstreamError{Provider: provider, msg: msg, cause: err, Kind: KindUnknown}

	if code := extractStatusCode(lower); code > 0 {
		e.StatusCode = code
		e.Kind = kindForStatus(code)
		return e
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), containsAny(lower, "timeout", "timed out", "deadline exceeded"):
		e.Kind = KindTimeout
	case containsAny(lower, "rate limit", "rate-limit", "too many requests", "throttl", "quota exceeded"):
		e.Kind = KindRateLimited
		e.StatusCode = http.StatusTooManyRequests
	case containsAny(lower, "service unavailable", "temporarily unavailable", "overloaded", "try again later"):
		e.Kind = KindUnavailable
		e.StatusCode = http.StatusServiceUnavailable
	case containsAny(lower, "unauthorized", "invalid api key", "invalid_api_key", "api key", "authentication"):
		e.Kind = KindAuth
		e.StatusCode = http.StatusUnauthorized
	case containsAny(lower, "empty response", "no response"):
		e.Kind = KindEmpty
	case errors.As(err, &netErr), containsAny(lower, "connection reset", "connection refused", "no such host", "eof"):
		e.Kind = KindNetwork
	}
	return e
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindUnavailable
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code >= 400:
		return KindBadRequest
	}
	return KindUnknown
}

// extractStatusCode finds a status code after one of the prefixes providers
// put in their error strings, e.g. "status code: 429".
func extractStatusCode(msg string) int {
	prefixes := []string{"status code: ", "status code ", "status: ", "http ", "error code: "}
	for _, prefix := range prefixes {
		idx := strings.Index(msg, prefix)
		if idx < 0 {
			continue
		}
		start := idx + len(prefix)
		if start+3 > len(msg) {
			continue
		}
		code, err := strconv.Atoi(msg[start : start+3])
		if err == nil && code >= 100 && code < 600 {
			return code
		}
	}
	return 0
}

func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func redact(msg, secret string) string {
	if secret == "" {
		return msg
	}
	return strings.ReplaceAll(msg, secret, "[REDACTED]")
}
