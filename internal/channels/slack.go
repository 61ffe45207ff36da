package channels

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"

	"github.com/vigilo/vigilo/internal/database"
)

// SlackChannel posts alerts to a Slack channel via the Web API
type SlackChannel struct {
	botToken string
	channel  string
	enabled  bool
	client   *slack.Client
}

// NewSlackChannel creates a Slack channel transport
func NewSlackChannel(botToken, channel string, enabled bool) *SlackChannel {
	return &SlackChannel{
		botToken: botToken,
		channel:  channel,
		enabled:  enabled,
		client:   slack.New(botToken),
	}
}

// ChannelType returns the channel type identifier
func (c *SlackChannel) ChannelType() string {
	return TypeSlack
}

// IsEnabled returns whether this channel should receive alerts
func (c *SlackChannel) IsEnabled() bool {
	return c.enabled
}

// ValidateConfiguration checks that the required Slack settings are set
func (c *SlackChannel) ValidateConfiguration() bool {
	return c.botToken != "" && c.channel != ""
}

// SendAlert posts the alert to the configured Slack channel
func (c *SlackChannel) SendAlert(alert *database.Alert, service *database.Service) bool {
	if !c.ValidateConfiguration() {
		log.Printf("Slack channel is not configured, skipping alert %d", alert.ID)
		return false
	}

	emoji := database.GetSeverityEmoji(alert.Severity)
	message := fmt.Sprintf("%s *%s* [%s]\n%s", emoji, service.Name, alert.Type, alert.Reason)

	attachment := slack.Attachment{
		Color: severityColor(alert.Severity),
		Fields: []slack.AttachmentField{
			{Title: "Service", Value: service.Name, Short: true},
			{Title: "Severity", Value: string(alert.Severity), Short: true},
			{Title: "State", Value: string(service.State), Short: true},
			{Title: "Raised", Value: alert.CreatedAt.Format("2006-01-02 15:04:05 MST"), Short: true},
		},
	}

	_, _, err := c.client.PostMessage(
		c.channel,
		slack.MsgOptionText(message, false),
		slack.MsgOptionAttachments(attachment),
	)
	if err != nil {
		log.Printf("Failed to post alert %d to Slack: %v", alert.ID, err)
		return false
	}
	return true
}

func severityColor(severity database.Severity) string {
	switch severity {
	case database.SeverityCritical:
		return "#d50200"
	case database.SeverityHigh:
		return "#e8912d"
	case database.SeverityMedium:
		return "#f2c744"
	default:
		return "#2eb67d"
	}
}
