package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const envGeminiAPIKey = "GEMINI_API_KEY"

// envOverrides lists the variables that override file values. GEMINI_API_KEY
// only fills an empty api_key.
type envOverrides struct {
	GeminiAPIKey   string `env:"GEMINI_API_KEY"`
	GeminiBaseURL  string `env:"PLATESCAN_GEMINI_BASE_URL"`
	GeminiModel    string `env:"PLATESCAN_GEMINI_MODEL"`
	GeminiBackend  string `env:"PLATESCAN_GEMINI_BACKEND"`
	GeminiTimeout  int    `env:"PLATESCAN_GEMINI_TIMEOUT_SECONDS"`
	DataDir        string `env:"PLATESCAN_DATA_DIR"`
	LogDir         string `env:"PLATESCAN_LOG_DIR"`
	APIBind        string `env:"PLATESCAN_API_BIND"`
	APIToken       string `env:"PLATESCAN_API_TOKEN"`
	LogLevel       string `env:"PLATESCAN_LOG_LEVEL"`
	LogFormat      string `env:"PLATESCAN_LOG_FORMAT"`
	JPEGQuality    int    `env:"PLATESCAN_JPEG_QUALITY"`
	CaptureMaxByte int    `env:"PLATESCAN_CAPTURE_MAX_BYTES"`
}

// loadDotEnv reads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		c.Gemini.APIKey = o.GeminiAPIKey
	}
	setString(&c.Gemini.BaseURL, o.GeminiBaseURL)
	setString(&c.Gemini.Model, o.GeminiModel)
	setString(&c.Gemini.Backend, o.GeminiBackend)
	setString(&c.Paths.DataDir, o.DataDir)
	setString(&c.Paths.LogDir, o.LogDir)
	setString(&c.Paths.APIBind, o.APIBind)
	setString(&c.Paths.APIToken, o.APIToken)
	setString(&c.Logging.Level, o.LogLevel)
	setString(&c.Logging.Format, o.LogFormat)
	if o.GeminiTimeout > 0 {
		c.Gemini.TimeoutSeconds = o.GeminiTimeout
	}
	if o.JPEGQuality > 0 {
		c.Capture.JPEGQuality = o.JPEGQuality
	}
	if o.CaptureMaxByte > 0 {
		c.Capture.MaxBytes = o.CaptureMaxByte
	}
	return nil
}

func setString(target *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*target = value
	}
}
