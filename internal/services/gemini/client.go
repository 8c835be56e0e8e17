package gemini

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"platescan/internal/imaging"
	"platescan/internal/logging"
	"platescan/internal/retry"
	"platescan/internal/services"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultModel   = "gemini-2.5-flash-preview-05-20"

	defaultHost           = "generativelanguage.googleapis.com"
	defaultAttemptTimeout = 20 * time.Second
	maxAttempts           = 3
	backoffStep           = time.Second
)

// Config captures the runtime settings required to talk to Gemini.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Transport performs one generateContent round trip. The raw body is returned
// alongside the decoded response for diagnostics.
type Transport interface {
	Generate(ctx context.Context, apiKey string, req GenerateRequest) (GenerateResponse, []byte, error)
}

// Observer receives attempt and extraction outcomes. Kind is empty on success.
type Observer interface {
	AttemptFinished(attempt int, kind Kind, elapsed time.Duration)
	ExtractionFinished(kind Kind, attempts int, elapsed time.Duration)
}

// Client extracts plate numbers. It holds no per-call state and is safe for
// concurrent use.
type Client struct {
	cfg            Config
	transport      Transport
	httpClient     *http.Client
	credentials    func() string
	attemptTimeout time.Duration
	sleeper        func(time.Duration)
	observer       Observer
	logger         *slog.Logger
	now            func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithTransport replaces the default REST transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithHTTPClient overrides the HTTP client used by the default REST transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithCredentials sets the API key source, consulted once per Extract call.
func WithCredentials(source func() string) Option {
	return func(c *Client) {
		if source != nil {
			c.credentials = source
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithObserver registers an outcome observer such as the metrics collector.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger sets the logger; the API key is never logged.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultAttemptTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		attemptTimeout: timeout,
		logger:         logging.NewNop(),
		now:            time.Now,
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = DefaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = DefaultModel
	}
	client.credentials = func() string { return client.cfg.APIKey }
	for _, opt := range opts {
		opt(client)
	}
	if client.transport == nil {
		client.transport = NewRESTTransport(client.cfg.BaseURL, client.cfg.Model, client.httpClient)
	}
	client.logger = logging.NewComponentLogger(client.logger, "gemini")
	return client
}

// ExtractBase64 extracts a plate from base64 JPEG data.
func (c *Client) ExtractBase64(ctx context.Context, base64Image string) (string, error) {
	return c.Extract(ctx, imaging.FromBase64(base64Image))
}

// Extract returns the normalized plate number for payload, NoPlateDetected when
// the model answered with nothing usable, or a *Failure.
func (c *Client) Extract(ctx context.Context, payload imaging.Payload) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := c.now()
	logger := logging.WithContext(ctx, c.logger)

	apiKey := strings.TrimSpace(c.credentials())
	if apiKey == "" {
		failure := &Failure{
			Kind:    KindConfiguration,
			Message: msgMissingKey,
			Err:     services.Wrap(services.ErrConfiguration, "gemini", "credentials", "api key not configured", nil),
		}
		logging.ErrorWithContext(logger, "gemini api key missing", "gemini_config_missing",
			logging.String(logging.FieldErrorHint, "set gemini.api_key or GEMINI_API_KEY"),
		)
		c.finish(KindConfiguration, 0, start)
		return "", failure
	}
	if payload.IsZero() {
		failure := &Failure{
			Kind:    KindValidation,
			Message: "No image data to send.",
			Err:     imaging.ErrEmptyImage,
		}
		c.finish(KindValidation, 0, start)
		return "", failure
	}

	request := NewRequest(payload.MIMEType(), payload.Data())
	attempts := 0
	policy := retry.Policy{
		MaxAttempts: maxAttempts,
		Backoff:     retry.Linear(backoffStep),
		Sleep:       retry.Sleeper(c.sleeper),
		Retryable: func(err error) bool {
			return ctx.Err() == nil && classify(err).Retryable()
		},
		OnEvent: func(ev retry.Event) {
			if ev.State == retry.StateBackingOff {
				logger.Info("gemini retry scheduled",
					logging.Int("attempt", ev.Attempt),
					logging.Duration("delay", ev.Delay),
					logging.String("kind", string(classify(ev.Err))),
				)
			}
		},
	}
	plate, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (string, error) {
		attempts = attempt
		return c.attempt(ctx, logger, apiKey, request, attempt)
	})
	if err == nil {
		logger.Info("gemini plate extracted",
			logging.Int("attempts", attempts),
			logging.Bool("plate_detected", plate != NoPlateDetected),
			logging.Duration("elapsed", c.now().Sub(start)),
		)
		c.finish("", attempts, start)
		return plate, nil
	}

	failure := c.failure(ctx, err, attempts)
	logging.WarnWithContext(logger, "gemini extraction failed", "gemini_extract_failed",
		logging.String("kind", string(failure.Kind)),
		logging.String("last_kind", string(failure.Last)),
		logging.Int("attempts", failure.Attempts),
		logging.String("diagnostics", failure.Diagnostics.String()),
		logging.Error(failure.Err),
		logging.String(logging.FieldImpact, "no plate returned to caller"),
	)
	c.finish(failure.Kind, attempts, start)
	return "", failure
}

func (c *Client) attempt(ctx context.Context, logger *slog.Logger, apiKey string, request GenerateRequest, attempt int) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	started := c.now()
	resp, raw, err := c.transport.Generate(attemptCtx, apiKey, request)
	var plate string
	if err == nil {
		plate, err = resp.validate(raw)
	}
	elapsed := c.now().Sub(started)
	kind := classify(err)
	if c.observer != nil {
		c.observer.AttemptFinished(attempt, kind, elapsed)
	}
	if err != nil {
		logger.Warn("gemini attempt failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", maxAttempts),
			logging.String("kind", string(kind)),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
		)
		return "", err
	}
	logger.Debug("gemini attempt succeeded",
		logging.Int("attempt", attempt),
		logging.Duration("elapsed", elapsed),
	)
	return plate, nil
}

func (c *Client) failure(ctx context.Context, err error, attempts int) *Failure {
	host := hostCategory(c.cfg.BaseURL)

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		last := exhausted.Err
		return &Failure{
			Kind:        KindExhausted,
			Last:        classify(last),
			Attempts:    exhausted.Attempts,
			Message:     describe(last),
			Diagnostics: diagnose(host, last),
			Err:         last,
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		cause := err
		if !errors.Is(cause, ctxErr) {
			cause = errors.Join(ctxErr, err)
		}
		message := msgNoResponse
		if errors.Is(ctxErr, context.Canceled) {
			message = msgCancelled
		}
		return &Failure{
			Kind:        KindTransport,
			Attempts:    attempts,
			Message:     message,
			Diagnostics: diagnose(host, err),
			Err:         cause,
		}
	}

	kind := classify(err)
	return &Failure{
		Kind:        kind,
		Attempts:    attempts,
		Message:     describe(err),
		Diagnostics: diagnose(host, err),
		Err:         err,
	}
}

func (c *Client) finish(kind Kind, attempts int, start time.Time) {
	if c.observer != nil {
		c.observer.ExtractionFinished(kind, attempts, c.now().Sub(start))
	}
}
