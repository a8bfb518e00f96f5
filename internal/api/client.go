// Package api is the HTTP client for the agentrail collector: session
// lifecycle notifications and the batched event ingest call the
// exporter drives.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/agentrail/agentrail/internal/version"
)

const (
	requestTimeout = 10 * time.Second

	// APIKeyHeader authenticates requests to the collector.
	APIKeyHeader = "X-Agentrail-Api-Key"
)

// ErrDuplicateKey reports that the collector has already ingested one of
// the submitted event ids. The exporter treats this as retryable with a
// mutated id; every other submission failure is terminal for the batch.
var ErrDuplicateKey = errors.New("duplicate event id")

// SessionPayload is the wire form of a session create/update call.
type SessionPayload struct {
	ID             string         `json:"session_id"`
	Tags           []string       `json:"tags,omitempty"`
	InitTimestamp  string         `json:"init_timestamp"`
	EndTimestamp   string         `json:"end_timestamp,omitempty"`
	EndState       string         `json:"end_state,omitempty"`
	EndStateReason string         `json:"end_state_reason,omitempty"`
	EventCounts    map[string]int `json:"event_counts,omitempty"`
}

// Client talks to one collector endpoint. The API key may be rotated at
// runtime; everything else is immutable after construction.
type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.RWMutex
	apiKey string
}

// New creates a client for the collector at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// SetAPIKey swaps the key used for subsequent requests.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

// CreateSession registers a new session with the collector.
func (c *Client) CreateSession(ctx context.Context, s SessionPayload) error {
	return c.post(ctx, "/v2/create_session", map[string]any{"session": s})
}

// UpdateSession reports a session's terminal state and event counts.
func (c *Client) UpdateSession(ctx context.Context, s SessionPayload) error {
	return c.post(ctx, "/v2/update_session", map[string]any{"session": s})
}

// CreateEvents submits one batch of event payloads. The batch is the
// unit of success and failure; the collector never applies it partially.
func (c *Client) CreateEvents(ctx context.Context, events []map[string]any) error {
	return c.post(ctx, "/v2/create_events", map[string]any{"events": events})
}

// Health probes the collector's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("collector unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "agentrail-go/"+version.Number)
	c.mu.RLock()
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusConflict || isDuplicateBody(detail) {
		return fmt.Errorf("%s: HTTP %d: %w", path, resp.StatusCode, ErrDuplicateKey)
	}
	return fmt.Errorf("collector rejected %s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail)))
}

// isDuplicateBody recognizes duplicate-key conflicts a backend reports
// without the 409 status.
func isDuplicateBody(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "duplicate event")
}
