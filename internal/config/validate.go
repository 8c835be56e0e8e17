package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGemini(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateGemini() error {
	switch c.Gemini.Backend {
	case BackendREST, BackendSDK:
	default:
		return fmt.Errorf("gemini.backend must be %q or %q, got %q", BackendREST, BackendSDK, c.Gemini.Backend)
	}
	parsed, err := url.Parse(c.Gemini.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("gemini.base_url must be an absolute URL, got %q", c.Gemini.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("gemini.base_url must use http or https, got %q", parsed.Scheme)
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return errors.New("capture.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
