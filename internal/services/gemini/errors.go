package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"platescan/internal/services"
)

// Kind classifies an extraction failure.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTransport     Kind = "transport"
	KindRemote        Kind = "remote"
	KindValidation    Kind = "validation"
	KindExhausted     Kind = "exhausted"
)

func (k Kind) marker() error {
	switch k {
	case KindConfiguration:
		return services.ErrConfiguration
	case KindTransport:
		return services.ErrTransport
	case KindRemote:
		return services.ErrRemote
	case KindValidation:
		return services.ErrValidation
	case KindExhausted:
		return services.ErrExhausted
	default:
		return nil
	}
}

// Retryable reports whether a single attempt that failed with this kind may be
// attempted again.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransport, KindRemote, KindValidation:
		return true
	default:
		return false
	}
}

const (
	msgMissingKey = "API key is not configured. Please check your configuration (GEMINI_API_KEY)."
	msgNoResponse = "API request failed. No response from server or network issue."
	msgCancelled  = "API request cancelled before a response was received."
	msgBadShape   = "Failed to extract license plate from response."
)

// Failure is the only error type Extract returns.
type Failure struct {
	Kind Kind
	// Last is the kind of the final attempt when Kind is KindExhausted.
	Last        Kind
	Attempts    int
	Message     string
	Diagnostics Diagnostics
	Err         error
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString("gemini extract: ")
	b.WriteString(f.Message)
	if f.Kind == KindExhausted && f.Attempts > 0 {
		fmt.Fprintf(&b, " (after %d attempts", f.Attempts)
		if diag := f.Diagnostics.String(); diag != "" {
			b.WriteString("; ")
			b.WriteString(diag)
		}
		b.WriteString(")")
	}
	return b.String()
}

// UserMessage returns the display text without diagnostics.
func (f *Failure) UserMessage() string { return f.Message }

// Unwrap exposes the kind sentinel, the final attempt's sentinel when
// exhausted, and the underlying cause.
func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, 3)
	if m := f.Kind.marker(); m != nil {
		errs = append(errs, m)
	}
	if f.Kind == KindExhausted {
		if m := f.Last.marker(); m != nil {
			errs = append(errs, m)
		}
	}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

// KindOf returns the kind of an extraction error, or "" when err is not one.
func KindOf(err error) Kind {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return ""
}

// StatusError is returned when the endpoint answered with an error.
type StatusError struct {
	StatusCode int
	Body       string
	// Message and Status are read from the {"error":{...}} body when present.
	Message string
	Status  string
}

func newStatusError(code int, body []byte) *StatusError {
	trimmed := strings.TrimSpace(string(body))
	err := &StatusError{StatusCode: code, Body: trimmed}
	if gjson.Valid(trimmed) {
		err.Message = gjson.Get(trimmed, "error.message").String()
		err.Status = gjson.Get(trimmed, "error.status").String()
		if code == 0 {
			err.StatusCode = int(gjson.Get(trimmed, "error.code").Int())
		}
	}
	return err
}

func (e *StatusError) Error() string {
	detail := e.Message
	if detail == "" {
		detail = summarizePayloadSnippet(e.Body)
	}
	if e.Status != "" {
		return fmt.Sprintf("gemini request: http %d %s: %s", e.StatusCode, e.Status, detail)
	}
	return fmt.Sprintf("gemini request: http %d: %s", e.StatusCode, detail)
}

// ResponseError reports a response that lacked the candidate/content/text shape.
type ResponseError struct {
	FinishReason  string
	SafetyRatings string
	Snippet       string
}

func (e *ResponseError) Error() string {
	msg := msgBadShape
	if e.FinishReason != "" {
		msg += " Finish Reason: " + e.FinishReason
	}
	if e.SafetyRatings != "" {
		msg += " Safety Ratings: " + e.SafetyRatings
	}
	return msg
}

// Diagnostics summarizes the final attempt of a failed extraction.
type Diagnostics struct {
	Host             string
	ResponseReceived bool
	StatusCode       int
}

func (d Diagnostics) String() string {
	if d.Host == "" && !d.ResponseReceived {
		return ""
	}
	parts := []string{fmt.Sprintf("host=%s", d.Host), fmt.Sprintf("response_received=%t", d.ResponseReceived)}
	if d.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", d.StatusCode))
	}
	return strings.Join(parts, " ")
}

// classify maps one attempt's error to its kind.
func classify(err error) Kind {
	var statusErr *StatusError
	var respErr *ResponseError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &statusErr):
		return KindRemote
	case errors.As(err, &respErr):
		return KindValidation
	default:
		return KindTransport
	}
}

// describe renders the display message for an attempt error. Remote beats
// transport beats validation; configuration never reaches here.
func describe(err error) string {
	var statusErr *StatusError
	var respErr *ResponseError
	switch {
	case errors.As(err, &statusErr):
		body := compactJSON(json.RawMessage(statusErr.Body))
		if body == "" {
			body = summarizePayloadSnippet(statusErr.Body)
		}
		return fmt.Sprintf("API request failed: %d - %s. Check API key and model name.", statusErr.StatusCode, body)
	case errors.Is(err, context.Canceled):
		return msgCancelled
	case errors.As(err, &respErr):
		return respErr.Error()
	default:
		return msgNoResponse
	}
}

func diagnose(host string, err error) Diagnostics {
	diag := Diagnostics{Host: host}
	var statusErr *StatusError
	var respErr *ResponseError
	switch {
	case errors.As(err, &statusErr):
		diag.ResponseReceived = true
		diag.StatusCode = statusErr.StatusCode
	case errors.As(err, &respErr):
		diag.ResponseReceived = true
	}
	return diag
}

// hostCategory buckets the endpoint host for diagnostics without echoing it.
func hostCategory(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}
	host := strings.ToLower(parsed.Hostname())
	if host == defaultHost {
		return "default"
	}
	if host == "localhost" {
		return "loopback"
	}
	if ip := net.ParseIP(host); ip != nil {
		switch {
		case ip.IsLoopback():
			return "loopback"
		case ip.IsPrivate(), ip.IsLinkLocalUnicast():
			return "private"
		}
	}
	return "custom"
}

func compactJSON(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return ""
	}
	return buf.String()
}

func summarizePayloadSnippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
