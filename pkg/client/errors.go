package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrRetryExhausted wraps the last failure once every attempt is used.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends while waiting
	// between attempts.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrCircuitOpen is returned while the circuit breaker rejects requests.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// ErrorClass groups backend failures by how the transport reacts to them.
type ErrorClass string

const (
	// ErrorClassClient covers 4xx answers other than 408 and 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer covers 5xx answers.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit is 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork covers dial, read and timeout failures, including 408.
	ErrorClassNetwork ErrorClass = "network"
)

// Retriable reports whether another attempt can succeed.
func (c ErrorClass) Retriable() bool {
	switch c {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// APIError is a non-2xx answer of the CRM backend.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass

	// Message is the HTTP status line, e.g. "404 Not Found".
	Message string

	// Body holds the start of the response body.
	Body []byte

	// RetryAfter is the wait the backend asked for; zero when absent.
	RetryAfter time.Duration

	Err error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "crm api: %s request failed with %d", e.ErrorClass, e.StatusCode)
	if e.Message != "" {
		b.WriteString(" (" + e.Message + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not
// an *APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusRequestTimeout:
		return ErrorClassNetwork
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// classifyError returns the class of a failed attempt. Open-circuit
// rejections have no class; anything that is not an *APIError counts as a
// network failure.
func classifyError(err error) ErrorClass {
	if err == nil || errors.Is(err, ErrCircuitOpen) {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}

// parseRetryAfter reads a Retry-After header given as seconds or as an
// HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
