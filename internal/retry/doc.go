// Package retry runs an operation under a bounded attempt budget with a
// pluggable backoff, reporting each transition of its small state machine
// (attempting, backing off, succeeded, exhausted) to an optional hook.
//
// The attempt function knows nothing about timing; the policy owns the
// budget, the delay schedule, and how waiting is performed, which keeps
// callers testable with a no-op sleeper.
package retry
