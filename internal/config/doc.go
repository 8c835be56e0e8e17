// Package config loads, normalizes, and validates platescan configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, loads a .env file from the working directory when present, and
// honours environment overrides such as GEMINI_API_KEY. The Config type
// centralizes every knob the CLI, HTTP server, and extraction client need.
//
// The Gemini API key is deliberately not required here: a missing key is a
// per-scan configuration failure reported by the extraction client, so
// history commands keep working without one.
package config
