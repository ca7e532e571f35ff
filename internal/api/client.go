package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/ridesync-data/ridesync/internal/httputil"
)

// LogSummary is the client-side view of a sensor log.
type LogSummary struct {
	ID             string  `json:"id"`
	Filename       string  `json:"filename"`
	Status         string  `json:"status"`
	ProcessedCount int64   `json:"processed_count"`
	DeclaredCount  int64   `json:"declared_count"`
	Progress       float64 `json:"progress"`
	SampleRateHz   float64 `json:"sample_rate_hz"`
	ErrorMessage   string  `json:"error_message"`
}

// MatchSummary is the client-side view of one scored association match.
type MatchSummary struct {
	ActivityLogID string   `json:"activity_log_id"`
	Confidence    float64  `json:"confidence"`
	Band          string   `json:"band"`
	DriftMs       int64    `json:"drift_ms"`
	Accepted      bool     `json:"accepted"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
}

// AssociateResult is the client-side view of an association attempt.
type AssociateResult struct {
	Matched   bool          `json:"matched"`
	Committed bool          `json:"committed"`
	Reason    string        `json:"reason"`
	Match     *MatchSummary `json:"match"`
}

// Client is a thin programmatic wrapper over the HTTP API, used by the CLI
// tools to talk to a running server.
type Client struct {
	BaseURL string
	OwnerID string
	HTTP    httputil.HTTPClient
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL, owner string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		OwnerID: owner,
		HTTP:    httputil.NewStandardClient(nil),
	}
}

func (c *Client) do(req *http.Request, out any) error {
	if c.OwnerID != "" {
		req.Header.Set("X-Owner-ID", c.OwnerID)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// UploadSensorLog uploads one IMU CSV and returns the created log.
func (c *Client) UploadSensorLog(filename string, content io.Reader, declaredCount int64) (*LogSummary, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	if declaredCount > 0 {
		if err := mw.WriteField("declared_count", strconv.FormatInt(declaredCount, 10)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/api/logs/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var view LogSummary
	if err := c.do(req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// StartIngest triggers ingestion of an uploaded log.
func (c *Client) StartIngest(logID string) error {
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/api/logs/"+logID+"/ingest", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// GetSensorLog fetches the current state of a log.
func (c *Client) GetSensorLog(logID string) (*LogSummary, error) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+"/api/logs/"+logID, nil)
	if err != nil {
		return nil, err
	}
	var view LogSummary
	if err := c.do(req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Associate asks the server to match a ready log against its activities.
func (c *Client) Associate(sensorLogID, mode string) (*AssociateResult, error) {
	body, err := json.Marshal(associateRequest{SensorLogID: sensorLogID, Mode: mode})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/api/associate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp AssociateResult
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
