package testutil

import (
	"context"
	"net/http"
	"sync"

	"github.com/Sternrassler/crm-cache/pkg/client"
)

// FakeCall records one request made through FakeHTTPClient.
type FakeCall struct {
	Method string
	URL    string
	Body   any
}

// FakeFunc computes a response dynamically.
type FakeFunc func(ctx context.Context, method, url string, body any) (*client.Response, error)

type fakeRoute struct {
	resp *client.Response
	err  error
	fn   FakeFunc
}

// FakeHTTPClient is an in-memory client.HTTPClient. Routes are keyed by
// method and exact URL; unmatched requests return a 404 *client.APIError.
type FakeHTTPClient struct {
	mu     sync.Mutex
	routes map[string]fakeRoute
	calls  []FakeCall
}

// NewFakeHTTPClient creates an empty fake.
func NewFakeHTTPClient() *FakeHTTPClient {
	return &FakeHTTPClient{routes: make(map[string]fakeRoute)}
}

// On answers method+url with resp.
func (f *FakeHTTPClient) On(method, url string, resp *client.Response) {
	f.set(method, url, fakeRoute{resp: resp})
}

// OnJSON answers method+url with v encoded as a 200 JSON response.
func (f *FakeHTTPClient) OnJSON(method, url string, v any) {
	resp, err := client.NewJSONResponse(v)
	if err != nil {
		panic(err)
	}
	f.On(method, url, resp)
}

// OnError answers method+url with err.
func (f *FakeHTTPClient) OnError(method, url string, err error) {
	f.set(method, url, fakeRoute{err: err})
}

// OnStatus answers method+url with a *client.APIError for status.
func (f *FakeHTTPClient) OnStatus(method, url string, status int) {
	f.OnError(method, url, statusError(status))
}

// OnFunc answers method+url by calling fn.
func (f *FakeHTTPClient) OnFunc(method, url string, fn FakeFunc) {
	f.set(method, url, fakeRoute{fn: fn})
}

func (f *FakeHTTPClient) set(method, url string, r fakeRoute) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+url] = r
}

// Calls returns every recorded request.
func (f *FakeHTTPClient) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// CallCount returns how many times method+url was requested.
func (f *FakeHTTPClient) CallCount(method, url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.URL == url {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls but keeps routes.
func (f *FakeHTTPClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeHTTPClient) do(ctx context.Context, method, url string, body any) (*client.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Method: method, URL: url, Body: body})
	route, ok := f.routes[method+" "+url]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, statusError(http.StatusNotFound)
	}
	if route.fn != nil {
		return route.fn(ctx, method, url, body)
	}
	return route.resp, route.err
}

// Get implements client.HTTPClient.
func (f *FakeHTTPClient) Get(ctx context.Context, url string) (*client.Response, error) {
	return f.do(ctx, http.MethodGet, url, nil)
}

// Post implements client.HTTPClient.
func (f *FakeHTTPClient) Post(ctx context.Context, url string, body any) (*client.Response, error) {
	return f.do(ctx, http.MethodPost, url, body)
}

// Put implements client.HTTPClient.
func (f *FakeHTTPClient) Put(ctx context.Context, url string, body any) (*client.Response, error) {
	return f.do(ctx, http.MethodPut, url, body)
}

// Delete implements client.HTTPClient.
func (f *FakeHTTPClient) Delete(ctx context.Context, url string) (*client.Response, error) {
	return f.do(ctx, http.MethodDelete, url, nil)
}

func statusError(status int) error {
	class := client.ErrorClassClient
	switch {
	case status == http.StatusTooManyRequests:
		class = client.ErrorClassRateLimit
	case status >= 500:
		class = client.ErrorClassServer
	}
	return &client.APIError{
		StatusCode: status,
		ErrorClass: class,
		Message:    http.StatusText(status),
	}
}

var _ client.HTTPClient = (*FakeHTTPClient)(nil)
