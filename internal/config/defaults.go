package config

import "time"

func Defaults() *Config {
	return &Config{
		Transport: TransportDiscord,
		OpenAI: OpenAIConfig{
			Model:   "gpt-3.5-turbo",
			Timeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
