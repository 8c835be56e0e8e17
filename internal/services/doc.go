// Package services defines shared utilities consumed by the extraction client,
// the scan orchestration, and the CLI/HTTP surfaces.
//
// Key responsibilities:
//   - Context helpers that stamp correlation identifiers and the originating
//     surface for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified with errors.Is (configuration vs transport vs remote).
//   - UserMessage, which turns any scan failure into the text shown to a person.
//
// Use these helpers when wiring new surfaces so error handling and
// observability stay uniform.
package services
