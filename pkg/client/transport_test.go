package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/crm-cache/internal/testutil"
	"github.com/Sternrassler/crm-cache/pkg/client"
	"github.com/sony/gobreaker"
)

func newTestTransport(t *testing.T, baseURL string) *client.Transport {
	t.Helper()
	cfg := client.DefaultTransportConfig(baseURL)
	cfg.Retry = &client.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
	cfg.Breaker.Name = t.Name()
	tr, err := client.NewTransport(cfg)
	if err != nil {
		t.Fatalf("NewTransport() error = %v", err)
	}
	return tr
}

func TestNewTransport_Validation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"empty base url", "", false},
		{"http", "http://localhost:8080", false},
		{"https", "https://crm.example.com/api", false},
		{"relative", "crm.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.NewTransport(client.DefaultTransportConfig(tt.baseURL))
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTransport() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransport_Get(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("GET /contacts", testutil.NewJSONResponse(`[{"id":"1"}]`))

	tr := newTestTransport(t, mock.URL())
	resp, err := tr.Get(context.Background(), "/contacts")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}

	var out []map[string]string
	if err := resp.Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(out) != 1 || out[0]["id"] != "1" {
		t.Errorf("decoded = %v", out)
	}

	headers := mock.LastRequestHeader()
	if headers.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", headers.Get("Accept"))
	}
	if headers.Get("User-Agent") == "" {
		t.Error("User-Agent should be set")
	}
}

func TestTransport_PostSendsJSON(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	var received map[string]string
	mock.SetHandler("POST /contacts", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &received)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"new"}`))
	})

	tr := newTestTransport(t, mock.URL())
	resp, err := tr.Post(context.Background(), "contacts", map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if resp.Status != http.StatusCreated {
		t.Errorf("Status = %d, want 201", resp.Status)
	}
	if received["name"] != "Ada" {
		t.Errorf("server received %v", received)
	}
}

func TestTransport_ClientErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("GET /contacts/missing", testutil.NewErrorResponse(http.StatusNotFound))

	tr := newTestTransport(t, mock.URL())
	_, err := tr.Get(context.Background(), "/contacts/missing")

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.ErrorClass != client.ErrorClassClient {
		t.Errorf("APIError = %+v", apiErr)
	}
	if len(apiErr.Body) == 0 {
		t.Error("APIError should carry the response body")
	}
	if n := mock.Count(http.MethodGet, "/contacts/missing"); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestTransport_ServerErrorRetried(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetSequence("GET /leads",
		testutil.NewServerErrorResponse(),
		testutil.NewServerErrorResponse(),
		testutil.NewJSONResponse(`[]`),
	)

	tr := newTestTransport(t, mock.URL())
	if _, err := tr.Get(context.Background(), "/leads"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if n := mock.Count(http.MethodGet, "/leads"); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestTransport_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("GET /leads", testutil.NewServerErrorResponse())

	tr := newTestTransport(t, mock.URL())
	_, err := tr.Get(context.Background(), "/leads")
	if !errors.Is(err, client.ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if client.StatusCode(err) != http.StatusInternalServerError {
		t.Errorf("StatusCode() = %d, want 500", client.StatusCode(err))
	}
}

func TestTransport_CircuitBreakerOpens(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("GET /projects", testutil.NewServerErrorResponse())

	cfg := client.DefaultTransportConfig(mock.URL())
	cfg.Retry = &client.RetryConfig{MaxAttempts: 1}
	cfg.Breaker = client.BreakerConfig{
		Name:             t.Name(),
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}
	tr, err := client.NewTransport(cfg)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		tr.Get(context.Background(), "/projects")
	}
	if tr.BreakerState() != gobreaker.StateOpen {
		t.Fatalf("BreakerState() = %v, want open", tr.BreakerState())
	}

	before := mock.Count(http.MethodGet, "/projects")
	_, err = tr.Get(context.Background(), "/projects")
	if !errors.Is(err, client.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if mock.Count(http.MethodGet, "/projects") != before {
		t.Error("open breaker must not reach the server")
	}
}

func TestTransport_ClientErrorsDoNotTripBreaker(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("GET /contacts/x", testutil.NewErrorResponse(http.StatusNotFound))

	cfg := client.DefaultTransportConfig(mock.URL())
	cfg.Breaker.Name = t.Name()
	cfg.Breaker.MinRequests = 1
	tr, err := client.NewTransport(cfg)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		tr.Get(context.Background(), "/contacts/x")
	}
	if tr.BreakerState() != gobreaker.StateClosed {
		t.Errorf("BreakerState() = %v, want closed", tr.BreakerState())
	}
}

func TestTransport_ContextTimeout(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	slow := testutil.NewJSONResponse(`[]`)
	slow.Delay = 500 * time.Millisecond
	mock.SetResponse("GET /slow", slow)

	tr := newTestTransport(t, mock.URL())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tr.Get(ctx, "/slow")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 400*time.Millisecond {
		t.Errorf("Get() took %v, should stop at the deadline", time.Since(start))
	}
}

func TestTransport_RateLimitCarriesRetryAfter(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	limited := testutil.NewRateLimitResponse()
	limited.Headers = map[string]string{"Retry-After": "0"}
	mock.SetSequence("GET /contacts", limited, testutil.NewJSONResponse(`[]`))

	tr := newTestTransport(t, mock.URL())
	if _, err := tr.Get(context.Background(), "/contacts"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if n := mock.Count(http.MethodGet, "/contacts"); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}

	mock.SetResponse("GET /leads", testutil.MockAPIResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":"slow down"}`,
		Headers:    map[string]string{"Retry-After": "0"},
	})
	_, err := tr.Get(context.Background(), "/leads")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorClass != client.ErrorClassRateLimit {
		t.Fatalf("expected rate limit APIError, got %v", err)
	}
}
