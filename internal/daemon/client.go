package daemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/edgelake/sheetsink/internal/stats"
)

// Client talks to a running daemon over its ops HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an API client pointing at the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Ping reports whether the daemon's API answers at all.
func (c *Client) Ping() error {
	resp, err := c.http.Get(c.baseURL + "/healthz")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon health check: %s", resp.Status)
	}
	return nil
}

// Status fetches the live stats snapshot.
func (c *Client) Status() (*stats.Snapshot, error) {
	var snap stats.Snapshot
	if err := c.get("/api/v1/status", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Logs fetches the recent log tail.
func (c *Client) Logs() ([]stats.LogEntry, error) {
	var entries []stats.LogEntry
	if err := c.get("/api/v1/logs", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// JobStatus fetches the state of the job manager.
func (c *Client) JobStatus() (map[string]any, error) {
	var result map[string]any
	if err := c.get("/api/v1/jobs/status", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SubmitResync submits a windowed resync job.
func (c *Client) SubmitResync(payload ResyncPayload) (*JobResponse, error) {
	return c.postJob("/api/v1/jobs/resync", payload)
}

// SubmitItems submits an explicit item-list job.
func (c *Client) SubmitItems(payload ItemsPayload) (*JobResponse, error) {
	return c.postJob("/api/v1/jobs/items", payload)
}

// StopJob asks the daemon to cancel the running job.
func (c *Client) StopJob() (*JobResponse, error) {
	return c.postJob("/api/v1/jobs/stop", nil)
}

func (c *Client) get(path string, into any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

func (c *Client) postJob(path string, payload any) (*JobResponse, error) {
	body := []byte("{}")
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = data
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cannot reach daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var jr JobResponse
	if err := json.Unmarshal(respBody, &jr); err != nil {
		return nil, fmt.Errorf("unexpected response: %s", string(respBody))
	}
	return &jr, nil
}
