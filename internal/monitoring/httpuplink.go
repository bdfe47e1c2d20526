package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPUplink POSTs each publish directly to a configured endpoint URL,
// tagging the request with the topic and message id. It is the Uplink
// bothand uses when no richer monitoring backend is configured.
type HTTPUplink struct {
	endpoint string
	client   *http.Client
}

var _ Uplink = (*HTTPUplink)(nil)

// NewHTTPUplink builds an HTTPUplink posting to endpoint.
func NewHTTPUplink(endpoint string) *HTTPUplink {
	return &HTTPUplink{endpoint: endpoint, client: &http.Client{Timeout: 10 * time.Second}}
}

type publishEnvelope struct {
	ID    uuid.UUID       `json:"id"`
	Topic Topic           `json:"topic"`
	Body  json.RawMessage `json:"body"`
}

// Publish POSTs the envelope to the configured endpoint.
func (u *HTTPUplink) Publish(ctx context.Context, id uuid.UUID, topic Topic, body []byte) error {
	payload, err := json.Marshal(publishEnvelope{ID: id, Topic: topic, Body: body})
	if err != nil {
		return fmt.Errorf("monitoring: encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("monitoring: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("monitoring: post to %s: %w", topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("monitoring: %s responded %s", topic, resp.Status)
	}
	return nil
}
