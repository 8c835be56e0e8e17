package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"platescan/internal/history"
	"platescan/internal/imaging"
	"platescan/internal/logging"
	"platescan/internal/services"
)

var (
	// ErrBusy is returned when a scan is already in flight.
	ErrBusy = errors.New("a scan is already in progress")
	// ErrEmptyPlate is returned by Save when there is no plate text to store.
	ErrEmptyPlate = errors.New("no plate text to save")
)

// Encoder turns an image reference into a transmittable payload.
type Encoder interface {
	EncodeFile(path string) (imaging.Payload, error)
	EncodeBytes(data []byte) (imaging.Payload, error)
}

// Extractor returns the normalized plate text for a payload.
type Extractor interface {
	Extract(ctx context.Context, payload imaging.Payload) (string, error)
}

// Store persists accepted plates.
type Store interface {
	Save(ctx context.Context, plateNumber, imageURI string) (history.Record, error)
}

// Recorder observes history writes. *metrics.Metrics satisfies it.
type Recorder interface {
	HistoryWrite(op string)
}

// Result is a successful extraction awaiting the user's decision to save.
type Result struct {
	Plate    string `json:"plate_number"`
	ImageURI string `json:"image_uri"`
}

// Scanner coordinates a single scan at a time.
type Scanner struct {
	encoder   Encoder
	extractor Extractor
	store     Store
	recorder  Recorder
	logger    *slog.Logger

	inFlight atomic.Bool
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithLogger sets the scanner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder reports successful saves.
func WithRecorder(r Recorder) Option {
	return func(s *Scanner) {
		s.recorder = r
	}
}

// New constructs a Scanner. store may be nil when results are never saved.
func New(encoder Encoder, extractor Extractor, store Store, opts ...Option) *Scanner {
	s := &Scanner{
		encoder:   encoder,
		extractor: extractor,
		store:     store,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "scan")
	return s
}

// Scan encodes the image at imageURI and extracts its plate.
// imageURI may be a filesystem path or a file:// URI.
func (s *Scanner) Scan(ctx context.Context, imageURI string) (Result, error) {
	if !s.acquire() {
		return Result{}, ErrBusy
	}
	defer s.release()

	path := strings.TrimPrefix(strings.TrimSpace(imageURI), "file://")
	payload, err := s.encoder.EncodeFile(path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "scan", "encode image", "Unable to read the captured image", err)
	}
	return s.extract(ctx, payload, imageURI)
}

// ScanBytes extracts a plate from raw image bytes. imageURI is recorded
// verbatim and may be empty.
func (s *Scanner) ScanBytes(ctx context.Context, data []byte, imageURI string) (Result, error) {
	if !s.acquire() {
		return Result{}, ErrBusy
	}
	defer s.release()

	payload, err := s.encoder.EncodeBytes(data)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "scan", "encode image", "Unable to read the uploaded image", err)
	}
	return s.extract(ctx, payload, imageURI)
}

// ScanPayload extracts a plate from an already-encoded payload.
func (s *Scanner) ScanPayload(ctx context.Context, payload imaging.Payload, imageURI string) (Result, error) {
	if !s.acquire() {
		return Result{}, ErrBusy
	}
	defer s.release()
	return s.extract(ctx, payload, imageURI)
}

func (s *Scanner) extract(ctx context.Context, payload imaging.Payload, imageURI string) (Result, error) {
	logger := logging.WithContext(ctx, s.logger)
	start := time.Now()
	plate, err := s.extractor.Extract(ctx, payload)
	if err != nil {
		logger.Warn("plate extraction failed",
			logging.String(logging.FieldEventType, "scan_failed"),
			logging.Duration("elapsed", time.Since(start)),
			logging.Error(err),
		)
		return Result{}, err
	}
	logger.Info("plate extracted",
		logging.String(logging.FieldEventType, "scan_succeeded"),
		logging.String("plate", plate),
		logging.Int("payload_bytes", payload.Size()),
		logging.Duration("elapsed", time.Since(start)),
	)
	return Result{Plate: plate, ImageURI: imageURI}, nil
}

// Save stores a result in history. Blank plates are refused.
func (s *Scanner) Save(ctx context.Context, result Result) (history.Record, error) {
	if strings.TrimSpace(result.Plate) == "" {
		return history.Record{}, ErrEmptyPlate
	}
	if s.store == nil {
		return history.Record{}, errors.New("save plate: history store unavailable")
	}
	record, err := s.store.Save(ctx, result.Plate, result.ImageURI)
	if err != nil {
		return history.Record{}, fmt.Errorf("save plate: %w", err)
	}
	if s.recorder != nil {
		s.recorder.HistoryWrite("save")
	}
	logging.WithContext(ctx, s.logger).Info("plate saved",
		logging.String(logging.FieldEventType, "history_saved"),
		logging.String("record_id", record.ID),
		logging.String("plate", record.PlateNumber),
	)
	return record, nil
}

// Busy reports whether a scan is in flight.
func (s *Scanner) Busy() bool {
	return s.inFlight.Load()
}

func (s *Scanner) acquire() bool {
	return s.inFlight.CompareAndSwap(false, true)
}

func (s *Scanner) release() {
	s.inFlight.Store(false)
}

// UserMessage maps a scan or save error to the text shown to a person.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return "A scan is already in progress. Please wait for it to finish."
	case errors.Is(err, ErrEmptyPlate):
		return "No valid license plate was detected. Try again with a clearer image."
	default:
		return services.UserMessage(err)
	}
}
