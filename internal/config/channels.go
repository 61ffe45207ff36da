package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChannelConfig is one provisioned global notification channel. Global
// channels are the dispatch fallback for deployments that don't model
// contacts; most installations leave the file unset.
type ChannelConfig struct {
	Type     string            `yaml:"type"` // slack or webhook
	Enabled  bool              `yaml:"enabled"`
	BotToken string            `yaml:"bot_token,omitempty"`
	Channel  string            `yaml:"channel,omitempty"`
	URL      string            `yaml:"url,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// ChannelsFile is the on-disk provisioning format
type ChannelsFile struct {
	Channels []ChannelConfig `yaml:"channels"`
}

// LoadChannels parses a channel provisioning file. A missing path is not
// an error; it returns an empty list.
func LoadChannels(path string) ([]ChannelConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read channels file: %w", err)
	}

	var parsed ChannelsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse channels file: %w", err)
	}
	return parsed.Channels, nil
}
