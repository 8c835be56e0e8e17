// Package scan ties the image encoder, the Gemini extraction client, and the
// history store into the capture-to-save flow used by the CLI and HTTP API.
//
// A Scanner admits one scan at a time; callers that race a second scan get
// ErrBusy instead of queuing behind the first.
package scan
