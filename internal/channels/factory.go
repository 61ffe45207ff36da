package channels

import (
	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/httpx"
)

// FromContactChannel builds a transport from a stored contact channel
// configuration. Returns false for unknown channel types; a channel with
// broken settings is still returned and reports itself via
// ValidateConfiguration.
func FromContactChannel(cc *database.ContactChannel, clients *httpx.Factory) (NotificationChannel, bool) {
	switch cc.ChannelType {
	case TypeSlack:
		return NewSlackChannel(
			settingString(cc.Settings, "bot_token"),
			settingString(cc.Settings, "channel"),
			cc.Enabled,
		), true
	case TypeWebhook:
		headers := make(map[string]string)
		if raw, ok := cc.Settings["headers"].(map[string]interface{}); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					headers[k] = s
				}
			}
		}
		return NewWebhookChannel(
			settingString(cc.Settings, "url"),
			headers,
			cc.Enabled,
			clients.Client(httpx.ClientNotification),
		), true
	default:
		return nil, false
	}
}

func settingString(settings database.JSONB, key string) string {
	if settings == nil {
		return ""
	}
	if s, ok := settings[key].(string); ok {
		return s
	}
	return ""
}
