// Package httputil provides HTTP helpers and client abstractions for
// testability.
package httputil

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPClient abstracts the HTTP operations used by remote-store adapters.
// Use StandardClient in production and MockHTTPClient in tests.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient creates a StandardClient wrapping the given http.Client.
// A nil client falls back to http.DefaultClient.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{Client: c}
}

// Do sends an HTTP request.
func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.Client.Do(req)
}

// MockResponse defines a canned HTTP response for testing.
type MockResponse struct {
	StatusCode int
	Body       string
	Err        error
}

// MockHTTPClient replays canned responses in order and records all requests.
// When the canned responses are exhausted the last one is repeated.
type MockHTTPClient struct {
	mu        sync.Mutex
	Responses []MockResponse
	Requests  []*http.Request
	idx       int
}

// NewMockHTTPClient creates a mock client with the given canned responses.
func NewMockHTTPClient(responses ...MockResponse) *MockHTTPClient {
	return &MockHTTPClient{Responses: responses}
}

// Do records the request and returns the next canned response.
func (c *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Requests = append(c.Requests, req)

	if len(c.Responses) == 0 {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("")),
			Header:     make(http.Header),
		}, nil
	}

	resp := c.Responses[c.idx]
	if c.idx < len(c.Responses)-1 {
		c.idx++
	}

	if resp.Err != nil {
		return nil, resp.Err
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(strings.NewReader(resp.Body)),
		Header:     make(http.Header),
	}, nil
}

// RequestCount returns the number of requests seen so far.
func (c *MockHTTPClient) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}
