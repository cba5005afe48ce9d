// Package registry implements the master-server heartbeat collaborator
// (§6 "Registry (Notifier) collaborator"). The Sequencer drives the
// timing; this package only knows how to deliver one snapshot.
package registry

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rorelay/rorelay-server/internal/core"
)

// Client posts heartbeat snapshots to an external master-server
// endpoint. It implements core.Registry.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New constructs a Client that POSTs to endpoint, attaching apiKey as a
// bearer token when non-empty. An empty endpoint makes Notify a no-op,
// so the collaborator is safe to wire up unconditionally even when the
// operator hasn't configured a master server.
func New(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

var _ core.Registry = (*Client)(nil)

// Notify implements core.Registry. Errors here are logged by the
// Sequencer and never kill a client session (§6 "Collaborator
// errors").
func (c *Client) Notify(ctx context.Context, payload string) error {
	if c.endpoint == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBufferString(payload))
	if err != nil {
		return fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("registry: notify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("registry: notify: unexpected status %s", resp.Status)
	}
	return nil
}
