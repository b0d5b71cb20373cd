package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/crm-cache/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4096

// BreakerConfig configures the transport circuit breaker.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32        // requests allowed while half-open
	Interval    time.Duration // closed-state window after which counts reset
	Timeout     time.Duration // open-state duration before half-open

	// The breaker trips once MinRequests have been seen in the window and
	// the failure ratio reaches FailureThreshold.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the default circuit breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "crm-api",
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// TransportConfig holds the Transport configuration.
type TransportConfig struct {
	// BaseURL is prepended to relative request URLs.
	BaseURL string

	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// Retry overrides the per-class retry configuration when set.
	Retry *RetryConfig

	Breaker BreakerConfig

	// HTTPClient replaces the default *http.Client (for testing).
	HTTPClient *http.Client
}

// DefaultTransportConfig returns a safe default configuration.
func DefaultTransportConfig(baseURL string) TransportConfig {
	return TransportConfig{
		BaseURL:   baseURL,
		UserAgent: "crm-cache/1.0",
		Timeout:   15 * time.Second,
		Breaker:   DefaultBreakerConfig(),
	}
}

// Transport is the production HTTPClient. It sends JSON requests over
// net/http, retries retriable failures with backoff and guards the
// backend with a circuit breaker.
type Transport struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	retry      *retrier
	config     TransportConfig
	logger     zerolog.Logger
}

// NewTransport creates a Transport.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.BaseURL != "" && !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("base url must be absolute http(s) url (got %q)", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultBreakerConfig()
	}

	logger := logging.NewLogger(logging.ComponentTransport)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	bc := cfg.Breaker
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        bc.Name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			circuitState.WithLabelValues(name).Set(float64(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		// Client errors are the caller's problem, not a backend failure.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return classifyError(err) == ErrorClassClient
		},
	})
	circuitState.WithLabelValues(bc.Name).Set(float64(gobreaker.StateClosed))

	return &Transport{
		httpClient: httpClient,
		breaker:    breaker,
		retry:      newRetrier(cfg.Retry, logger),
		config:     cfg,
		logger:     logger,
	}, nil
}

// Get implements HTTPClient.
func (t *Transport) Get(ctx context.Context, url string) (*Response, error) {
	return t.Do(ctx, http.MethodGet, url, nil)
}

// Post implements HTTPClient.
func (t *Transport) Post(ctx context.Context, url string, body any) (*Response, error) {
	return t.Do(ctx, http.MethodPost, url, body)
}

// Put implements HTTPClient.
func (t *Transport) Put(ctx context.Context, url string, body any) (*Response, error) {
	return t.Do(ctx, http.MethodPut, url, body)
}

// Delete implements HTTPClient.
func (t *Transport) Delete(ctx context.Context, url string) (*Response, error) {
	return t.Do(ctx, http.MethodDelete, url, nil)
}

// BreakerState returns the current circuit breaker state.
func (t *Transport) BreakerState() gobreaker.State {
	return t.breaker.State()
}

// Do performs a request with retry and circuit breaking. The response body
// is read completely before Do returns; non-2xx statuses become *APIError.
func (t *Transport) Do(ctx context.Context, method, url string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	target := t.resolve(url)
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	t.logger.Debug().
		Str("method", method).
		Str("url", target).
		Msg("Executing request")

	var resp *Response
	err := t.retry.do(ctx, func() error {
		out, err := t.breaker.Execute(func() (interface{}, error) {
			return t.attempt(ctx, method, target, payload)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				requestsTotal.WithLabelValues(method, "circuit_open").Inc()
				return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
			}
			return err
		}
		resp = out.(*Response)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// attempt performs one HTTP round trip.
func (t *Transport) attempt(ctx context.Context, method, target string, payload []byte) (*Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.config.UserAgent != "" {
		req.Header.Set("User-Agent", t.config.UserAgent)
	}

	httpResp, err := t.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		t.logger.Warn().Err(err).Str("url", target).Msg("HTTP request failed")
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(httpResp.StatusCode)).Inc()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		class := classifyStatus(httpResp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		t.logger.Warn().
			Str("url", target).
			Int("status", httpResp.StatusCode).
			Str("error_class", string(class)).
			Msg("API request error")

		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			ErrorClass: class,
			Message:    httpResp.Status,
			Body:       data,
			RetryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After"), time.Now()),
		}
	}

	return &Response{
		Data:   data,
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
	}, nil
}

func (t *Transport) resolve(url string) string {
	if t.config.BaseURL == "" || strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return strings.TrimRight(t.config.BaseURL, "/") + "/" + strings.TrimLeft(url, "/")
}

var _ HTTPClient = (*Transport)(nil)
