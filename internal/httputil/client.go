// Package httputil provides HTTP client and response abstractions shared by
// the API server and the CLI tools that talk to it.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// HTTPClient abstracts HTTP operations for testability.
// Use http.DefaultClient for production; MockHTTPClient for testing.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient creates a new StandardClient wrapping the given http.Client.
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

// MockHTTPClient records requests and replays canned responses, in order.
type MockHTTPClient struct {
	mu          sync.Mutex
	Requests    []*http.Request
	Responses   []*MockResponse
	responseIdx int
	// DoFunc overrides canned responses entirely when set.
	DoFunc func(req *http.Request) (*http.Response, error)
}

// MockResponse defines a canned HTTP response for testing.
type MockResponse struct {
	StatusCode int
	Body       string
	Header     http.Header
	Err        error
}

// Do records the request and returns the next canned response.
func (c *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.Requests = append(c.Requests, req)
	if c.DoFunc != nil {
		c.mu.Unlock()
		return c.DoFunc(req)
	}
	var mr *MockResponse
	if c.responseIdx < len(c.Responses) {
		mr = c.Responses[c.responseIdx]
		c.responseIdx++
	}
	c.mu.Unlock()

	if mr == nil {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     http.Header{},
		}, nil
	}
	if mr.Err != nil {
		return nil, mr.Err
	}
	header := mr.Header
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: mr.StatusCode,
		Body:       io.NopCloser(bytes.NewReader([]byte(mr.Body))),
		Header:     header,
	}, nil
}

// RecordedRequests returns a copy of all requests seen so far.
func (c *MockHTTPClient) RecordedRequests() []*http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*http.Request, len(c.Requests))
	copy(out, c.Requests)
	return out
}
