package flowengine

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
	// RequestsPerSecond bounds outbound calls; 0 disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

type ConfigError struct {
	Field string
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid flow engine config"
	}
	if e.Value != "" {
		return fmt.Sprintf("invalid %s=%q", e.Field, e.Value)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.APIKeyHeader) == "" {
		c.APIKeyHeader = "X-API-Key"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return &ConfigError{Field: "FLOW_ENGINE_BASE_URL"}
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{Field: "FLOW_ENGINE_BASE_URL", Value: cfg.BaseURL, Cause: err}
	}
	if cfg.RequestsPerSecond < 0 {
		return &ConfigError{Field: "FLOW_ENGINE_RPS", Value: fmt.Sprint(cfg.RequestsPerSecond)}
	}
	return nil
}
