// Package config loads callscribe's environment-driven configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultDomain is the placeholder ticketing domain used when
// ZENDESK_DOMAIN is not set.
const DefaultDomain = "yourcompany.zendesk.com"

// Config holds all settings the tool needs. It is constructed once at
// startup and passed into each client; nothing reads the environment after
// FromEnv returns.
type Config struct {
	ZendeskDomain   string
	ZendeskEmail    string
	ZendeskPassword string
	OpenAIAPIKey    string
	WhisperModel    string
	ChatModel       string
	// WorkDir is where audio, transcript, and summary artifacts are kept.
	WorkDir string
}

// FromEnv reads configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment variables
// take precedence over it.
func FromEnv() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		ZendeskDomain:   getenv("ZENDESK_DOMAIN", DefaultDomain),
		ZendeskEmail:    os.Getenv("ZENDESK_EMAIL"),
		ZendeskPassword: os.Getenv("ZENDESK_PASSWORD"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		WhisperModel:    getenv("CALLSCRIBE_WHISPER_MODEL", "whisper-1"),
		ChatModel:       getenv("CALLSCRIBE_CHAT_MODEL", "gpt-5"),
		WorkDir:         getenv("CALLSCRIBE_WORK_DIR", "."),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for required fields, collecting every missing one so the
// operator can fix them all at once.
func (c *Config) Validate() error {
	var errs []string

	if c.ZendeskEmail == "" {
		errs = append(errs, "ZENDESK_EMAIL is required")
	}
	if c.ZendeskPassword == "" {
		errs = append(errs, "ZENDESK_PASSWORD is required")
	}
	if c.OpenAIAPIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required")
	}
	if c.ZendeskDomain == "" {
		errs = append(errs, "ZENDESK_DOMAIN must not be blank")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
