// Package logging assembles structured slog loggers and formatting helpers used
// across platescan.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so scan code can tag log lines
// with correlation IDs and the originating surface. The package also provides
// a no-op logger for tests and wiring code that cannot fail.
package logging
