package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"platescan/internal/config"
	"platescan/internal/history"
	"platescan/internal/imaging"
	"platescan/internal/logging"
	"platescan/internal/metrics"
	"platescan/internal/scan"
	"platescan/internal/services/gemini"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	mu      sync.Mutex
	logger  *slog.Logger
	history *history.Store
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// loggerFor builds the process logger once. toFile adds the log file under
// log_dir, used by long-running commands.
func (c *commandContext) loggerFor(toFile bool) (*slog.Logger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg, toFile)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	return logger, nil
}

func (c *commandContext) openHistory() (*history.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.history != nil {
		return c.history, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	opts := []history.Option{}
	if c.logger != nil {
		opts = append(opts, history.WithLogger(c.logger))
	}
	store, err := history.Open(cfg.HistoryPath(), opts...)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	c.history = store
	return store, nil
}

// newExtractor builds the Gemini client for the configured backend. The key
// is resolved on every extraction so a missing key surfaces per call.
func (c *commandContext) newExtractor(logger *slog.Logger, observer gemini.Observer) (*gemini.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	clientCfg := gemini.Config{
		BaseURL:        cfg.Gemini.BaseURL,
		Model:          cfg.Gemini.Model,
		TimeoutSeconds: cfg.Gemini.TimeoutSeconds,
	}
	opts := []gemini.Option{
		gemini.WithCredentials(cfg.APIKey),
		gemini.WithLogger(logger),
	}
	if observer != nil {
		opts = append(opts, gemini.WithObserver(observer))
	}
	switch cfg.Gemini.Backend {
	case config.BackendSDK:
		opts = append(opts, gemini.WithTransport(gemini.NewSDKTransport(cfg.Gemini.BaseURL, cfg.Gemini.Model, nil)))
	case config.BackendREST, "":
	default:
		return nil, fmt.Errorf("unsupported gemini backend %q", cfg.Gemini.Backend)
	}
	return gemini.NewClient(clientCfg, opts...), nil
}

// newScanner wires encoder, extractor, and history. m may be nil.
func (c *commandContext) newScanner(logger *slog.Logger, m *metrics.Metrics) (*scan.Scanner, *history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	var observer gemini.Observer
	if m != nil {
		observer = m
	}
	extractor, err := c.newExtractor(logger, observer)
	if err != nil {
		return nil, nil, err
	}
	store, err := c.openHistory()
	if err != nil {
		return nil, nil, err
	}
	opts := []scan.Option{scan.WithLogger(logger)}
	if m != nil {
		opts = append(opts, scan.WithRecorder(m))
	}
	encoder := imaging.NewEncoder(cfg.Capture.JPEGQuality, cfg.Capture.MaxBytes)
	return scan.New(encoder, extractor, store, opts...), store, nil
}

func (c *commandContext) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.history != nil {
		_ = c.history.Close()
		c.history = nil
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

var errAborted = errors.New("aborted")
