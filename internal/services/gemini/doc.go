// Package gemini wraps the Gemini generateContent endpoint to read a license
// plate number from a photo.
//
// Client.Extract sends the fixed extraction instruction plus the inline JPEG,
// retries up to three attempts with a linear 1s/2s backoff (each attempt has
// its own 20 second timeout), validates the candidate/content/text shape, and
// normalizes the text into a single token with no whitespace or hyphens. An
// empty normalized result is reported as NoPlateDetected rather than an error.
//
// Every failure returned by Extract is a *Failure whose Kind classifies it as
// configuration, transport, remote, validation, or exhausted. Failures unwrap
// to the matching services sentinel so callers can use errors.Is.
//
// Two transports are available: RESTTransport posts the documented JSON body
// with the API key in the query string, and SDKTransport goes through the
// google.golang.org/genai client. Tests substitute a fake Transport and a
// no-op sleeper so the retry schedule can be observed without waiting.
package gemini
