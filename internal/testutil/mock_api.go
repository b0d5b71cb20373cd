// Package testutil provides testing utilities for the CRM cache client.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockAPIResponse defines the behavior for a mock endpoint response.
type MockAPIResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock CRM backend for testing.
//
// Handlers are matched on "METHOD /path" first and then on "/path". Paths
// registered with ServeCollection get a small in-memory REST collection.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int

	requestCount      int
	lastRequestHeader http.Header
}

// NewMockAPI creates and starts a mock server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.counts[r.Method+" "+r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		handler := mock.match(r)
		mock.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))

	return mock
}

func (m *MockAPI) match(r *http.Request) http.HandlerFunc {
	if h, ok := m.handlers[r.Method+" "+r.URL.Path]; ok {
		return h
	}
	if h, ok := m.handlers[r.URL.Path]; ok {
		return h
	}
	// Collection item routes are registered under their prefix.
	for pattern, h := range m.handlers {
		if strings.HasSuffix(pattern, "/") && strings.HasPrefix(r.URL.Path, pattern) {
			return h
		}
	}
	return nil
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.counts = make(map[string]int)
	m.lastRequestHeader = nil
}

// SetHandler sets a custom handler for "METHOD /path" or "/path".
func (m *MockAPI) SetHandler(pattern string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pattern] = handler
}

// SetResponse configures a fixed response for a pattern.
func (m *MockAPI) SetResponse(pattern string, resp MockAPIResponse) {
	m.SetHandler(pattern, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetSequence answers successive requests with the given responses. The
// last response repeats once the sequence is exhausted.
func (m *MockAPI) SetSequence(pattern string, responses ...MockAPIResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(pattern, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// Count returns the number of requests for method and path.
func (m *MockAPI) Count(method, path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[method+" "+path]
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// ServeCollection serves an in-memory JSON collection at path:
// GET path lists, POST path creates (assigning "id"), and GET, PUT,
// PATCH and DELETE path/{id} operate on one record. The returned
// Collection can be seeded and inspected.
func (m *MockAPI) ServeCollection(path string) *Collection {
	c := &Collection{path: strings.TrimRight(path, "/"), records: make(map[string]map[string]any)}
	m.SetHandler(c.path, c.serve)
	m.SetHandler(c.path+"/", c.serve)
	return c
}

// Collection is an in-memory REST collection served by MockAPI.
type Collection struct {
	path    string
	mu      sync.Mutex
	order   []string
	records map[string]map[string]any
}

// Seed inserts records; records without an "id" get one.
func (c *Collection) Seed(records ...map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		c.insert(r)
	}
}

// Len returns the number of stored records.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Get returns a stored record.
func (c *Collection) Get(id string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[id]
	return r, ok
}

func (c *Collection) insert(r map[string]any) map[string]any {
	id, _ := r["id"].(string)
	if id == "" {
		id = uuid.NewString()
		r["id"] = id
	}
	if _, exists := c.records[id]; !exists {
		c.order = append(c.order, id)
	}
	c.records[id] = r
	return r
}

func (c *Collection) serve(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, c.path), "/")

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case id == "" && r.Method == http.MethodGet:
		list := make([]map[string]any, 0, len(c.order))
		for _, key := range c.order {
			list = append(list, c.records[key])
		}
		writeJSON(w, http.StatusOK, list)

	case id == "" && r.Method == http.MethodPost:
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		delete(body, "id")
		writeJSON(w, http.StatusCreated, c.insert(body))

	case id != "" && r.Method == http.MethodGet:
		rec, ok := c.records[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case id != "" && (r.Method == http.MethodPut || r.Method == http.MethodPatch):
		rec, ok := c.records[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		if r.Method == http.MethodPut {
			rec = map[string]any{"id": id}
		}
		for k, v := range body {
			if k != "id" {
				rec[k] = v
			}
		}
		c.records[id] = rec
		writeJSON(w, http.StatusOK, rec)

	case id != "" && r.Method == http.MethodDelete:
		if _, ok := c.records[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		delete(c.records, id)
		for i, key := range c.order {
			if key == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func readBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, false
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(data string) MockAPIResponse {
	return MockAPIResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewErrorResponse creates a JSON error response with the given status.
func NewErrorResponse(status int) MockAPIResponse {
	return MockAPIResponse{
		StatusCode: status,
		Body:       `{"error": "` + http.StatusText(status) + `"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockAPIResponse {
	return NewErrorResponse(http.StatusTooManyRequests)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockAPIResponse {
	return NewErrorResponse(http.StatusInternalServerError)
}
