package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransport     = errors.New("transport error")
	ErrRemote        = errors.New("remote error")
	ErrValidation    = errors.New("validation error")
	ErrExhausted     = errors.New("retries exhausted")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// UserMessager is implemented by errors that carry text suitable for display.
type UserMessager interface {
	UserMessage() string
}

// UserMessage renders err the way the scan surfaces show it to a person.
// Configuration problems point at the API key; errors that carry display text
// use it; anything else falls back to the error string.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var detail string
	var messager UserMessager
	if errors.As(err, &messager) {
		detail = strings.TrimSpace(messager.UserMessage())
	}
	switch {
	case detail != "":
	case errors.Is(err, ErrConfiguration):
		detail = "API key is not configured. Please check your configuration (GEMINI_API_KEY)."
	default:
		detail = strings.TrimSpace(err.Error())
	}
	if detail == "" {
		detail = "An unexpected error occurred while extracting the license plate."
	}
	return "Failed to process image: " + detail
}

// IsConfiguration reports whether err should be fixed by the operator rather
// than retried.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
