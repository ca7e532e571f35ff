package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "bad input")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"bad input"}`, rec.Body.String())
}

func TestWriteJSONOK(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"count": 3})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ride"}`))
	var p payload
	require.NoError(t, DecodeJSONBody(req, &p))
	assert.Equal(t, "ride", p.Name)

	// Unknown fields are rejected.
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	assert.Error(t, DecodeJSONBody(req, &p))

	// Trailing garbage is rejected.
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}{"name":"y"}`))
	assert.Error(t, DecodeJSONBody(req, &p))
}

func TestMockHTTPClientReplaysCannedResponses(t *testing.T) {
	client := &MockHTTPClient{
		Responses: []*MockResponse{
			{StatusCode: http.StatusCreated, Body: `{"id":"abc"}`},
			{Err: errors.New("connection refused")},
		},
	}

	req := httptest.NewRequest(http.MethodPost, "http://example.test/logs/upload", nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	_, err = client.Do(req)
	assert.Error(t, err)

	reqs := client.RecordedRequests()
	assert.Len(t, reqs, 2)
	assert.Equal(t, "/logs/upload", reqs[0].URL.Path)
}

func TestStandardClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONOK(w, map[string]bool{"ok": true})
	}))
	defer srv.Close()

	client := NewStandardClient(nil)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
