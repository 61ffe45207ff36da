package channels

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/vigilo/vigilo/internal/database"
)

// WebhookChannel delivers alerts as a JSON POST to an arbitrary URL
type WebhookChannel struct {
	url     string
	headers map[string]string
	enabled bool
	client  *http.Client
}

// NewWebhookChannel creates a webhook channel transport. The client is
// expected to carry its own timeout (see httpx).
func NewWebhookChannel(url string, headers map[string]string, enabled bool, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookChannel{
		url:     url,
		headers: headers,
		enabled: enabled,
		client:  client,
	}
}

// ChannelType returns the channel type identifier
func (c *WebhookChannel) ChannelType() string {
	return TypeWebhook
}

// IsEnabled returns whether this channel should receive alerts
func (c *WebhookChannel) IsEnabled() bool {
	return c.enabled
}

// ValidateConfiguration checks that a target URL is set
func (c *WebhookChannel) ValidateConfiguration() bool {
	return c.url != ""
}

// SendAlert posts the alert payload; any non-2xx response is a failure
func (c *WebhookChannel) SendAlert(alert *database.Alert, service *database.Service) bool {
	if !c.ValidateConfiguration() {
		log.Printf("Webhook channel has no URL, skipping alert %d", alert.ID)
		return false
	}

	payload := map[string]interface{}{
		"alert_id":     alert.ID,
		"alert_type":   alert.Type,
		"severity":     alert.Severity,
		"reason":       alert.Reason,
		"service_id":   service.ID,
		"service_name": service.Name,
		"state":        service.State,
		"raised_at":    alert.CreatedAt.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal webhook payload for alert %d: %v", alert.ID, err)
		return false
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("Failed to create webhook request for alert %d: %v", alert.ID, err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("Failed to send alert %d webhook: %v", alert.ID, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("Alert %d webhook returned status %d", alert.ID, resp.StatusCode)
		return false
	}
	return true
}
