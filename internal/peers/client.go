// Package peers implements the outbound half of peer federation: the
// periodic liveness heartbeat and the dispatch-health webhook. Both are
// fire-and-forget pushes; a failure is logged and the data point is
// simply missed.
package peers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/httpx"
)

// Dispatch-health webhook actions
const (
	ActionFail    = "fail"
	ActionRecover = "recover"
)

// Client pushes heartbeats and webhooks to paired remote instances
type Client struct {
	clients *httpx.Factory
}

// NewClient creates a peer client
func NewClient(clients *httpx.Factory) *Client {
	return &Client{clients: clients}
}

// Heartbeat POSTs a liveness ping keyed by the peer's heartbeat token
func (c *Client) Heartbeat(peer *database.Peer) error {
	url := fmt.Sprintf("%s/peer/heartbeat/%s", strings.TrimRight(peer.URL, "/"), peer.HeartbeatToken)
	body, err := json.Marshal(map[string]string{
		"sent_at": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return c.post(httpx.ClientPeerHeartbeat, url, body)
}

// NotifyDispatchHealth POSTs a fail/recover action keyed by the peer's
// webhook token when this instance's alert dispatch health changes
func (c *Client) NotifyDispatchHealth(peer *database.Peer, action string) error {
	url := fmt.Sprintf("%s/peer/webhook/%s/%s", strings.TrimRight(peer.URL, "/"), peer.WebhookToken, action)
	body, err := json.Marshal(map[string]string{
		"action":  action,
		"sent_at": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return c.post(httpx.ClientPeerNotification, url, body)
}

func (c *Client) post(clientName, url string, body []byte) error {
	resp, err := c.clients.Client(clientName).Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	return nil
}
