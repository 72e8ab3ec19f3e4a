package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/casepilot/internal/reliability"
)

// Card is a worker's capability descriptor, fetched once at startup.
type Card struct {
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	SupportedActions []string `json:"supported_actions"`
	RequiresApproval bool     `json:"requires_approval,omitempty"`
}

const cardPath = "/.well-known/agent-card.json"

// Client submits tasks to workers over HTTP.
type Client struct {
	client *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		client: &http.Client{Timeout: timeout},
	}
}

// Request is one task submission to a worker.
type Request struct {
	Query       string
	SessionID   string
	WorkspaceID string
	Data        map[string]any
}

// Submit performs exactly one request against the worker and waits for its
// stable-state reply. Transport failures and timeouts come back as
// ErrWorkerUnreachable and are never retried here.
func (c *Client) Submit(ctx context.Context, workerURL string, req Request) (Result, error) {
	parts := []Part{{Kind: "text", Text: req.Query}}
	if req.Data != nil {
		parts = append(parts, Part{Kind: "data", Data: req.Data})
	}
	env := submitEnvelope{
		Method: "submit",
		Params: submitParams{
			Message: Message{
				Role:      "user",
				Parts:     parts,
				ContextID: req.SessionID,
				Metadata:  map[string]any{"workspace_id": req.WorkspaceID},
			},
		},
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return Result{}, fmt.Errorf("marshal envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, workerURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrWorkerUnreachable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrWorkerUnreachable, res.StatusCode, string(body))
	}

	var reply TaskReply
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return Result{}, fmt.Errorf("%w: decode reply: %v", ErrWorkerUnreachable, err)
	}

	return Extract(reply)
}

// DiscoverCard fetches a worker's capability descriptor. Discovery is
// read-only, so retryable statuses are retried with capped backoff.
func (c *Client) DiscoverCard(ctx context.Context, workerURL string, attempts int) (Card, error) {
	if attempts <= 0 {
		attempts = 1
	}
	url := strings.TrimRight(workerURL, "/") + cardPath

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt, 200*time.Millisecond, 2*time.Second)
			select {
			case <-ctx.Done():
				return Card{}, ctx.Err()
			case <-time.After(wait):
			}
		}

		card, retryable, err := c.fetchCard(ctx, url)
		if err == nil {
			return card, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return Card{}, fmt.Errorf("discover card %s: %w", workerURL, lastErr)
}

func (c *Client) fetchCard(ctx context.Context, url string) (Card, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Card{}, false, fmt.Errorf("create request: %w", err)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Card{}, true, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Card{}, reliability.IsRetryableHTTPStatus(res.StatusCode), fmt.Errorf("status %d", res.StatusCode)
	}

	var card Card
	if err := json.NewDecoder(res.Body).Decode(&card); err != nil {
		return Card{}, false, fmt.Errorf("decode card: %w", err)
	}
	if card.Name == "" {
		return Card{}, false, fmt.Errorf("card missing name")
	}
	return card, false, nil
}
