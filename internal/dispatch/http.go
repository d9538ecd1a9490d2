package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/outreach-engine/internal/pkg/httpretry"
)

// HTTPQueue posts work items to a channel worker endpoint. Transient
// failures are retried by the wrapped client.
type HTTPQueue struct {
	client httpretry.HTTPDoer
	url    string
	token  string
}

// NewHTTPQueue creates a queue that POSTs to url with an optional bearer
// token.
func NewHTTPQueue(client httpretry.HTTPDoer, url, token string) *HTTPQueue {
	return &HTTPQueue{client: client, url: url, token: token}
}

func (q *HTTPQueue) Publish(ctx context.Context, item WorkItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", item.ID)
	if q.token != "" {
		req.Header.Set("Authorization", "Bearer "+q.token)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("post work item: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("channel worker returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
