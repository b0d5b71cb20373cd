package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is a complete, successfully read HTTP response.
type Response struct {
	Data   []byte
	Status int
	Header http.Header
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Data) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// HTTPClient is the network port used by CachedClient and the repository
// adapters. Implementations return *APIError for non-2xx responses.
type HTTPClient interface {
	Get(ctx context.Context, url string) (*Response, error)
	Post(ctx context.Context, url string, body any) (*Response, error)
	Put(ctx context.Context, url string, body any) (*Response, error)
	Delete(ctx context.Context, url string) (*Response, error)
}

// NewJSONResponse builds a 200 response carrying v encoded as JSON.
func NewJSONResponse(v any) (*Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return &Response{
		Data:   data,
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}
