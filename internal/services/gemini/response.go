package gemini

import (
	"encoding/json"
	"strings"
)

// GenerateResponse is the subset of the generateContent response the client
// reads.
type GenerateResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback json.RawMessage `json:"promptFeedback,omitempty"`
	Error          *APIErrorBody   `json:"error,omitempty"`
}

// Candidate is one generated output option.
type Candidate struct {
	Content       *Content        `json:"content,omitempty"`
	FinishReason  string          `json:"finishReason,omitempty"`
	SafetyRatings json.RawMessage `json:"safetyRatings,omitempty"`
}

// APIErrorBody is the error object Google APIs return.
type APIErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// PlateText returns the first non-empty text part of the first candidate that
// has one.
func (r GenerateResponse) PlateText() (string, bool) {
	for _, candidate := range r.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				return part.Text, true
			}
		}
	}
	return "", false
}

// validate turns a response into a plate, or a *ResponseError describing why
// the shape was wrong.
func (r GenerateResponse) validate(raw []byte) (string, error) {
	if text, ok := r.PlateText(); ok {
		return PlateOrSentinel(text), nil
	}
	respErr := &ResponseError{Snippet: summarizePayloadSnippet(string(raw))}
	if len(r.Candidates) > 0 {
		first := r.Candidates[0]
		respErr.FinishReason = strings.TrimSpace(first.FinishReason)
		respErr.SafetyRatings = compactJSON(first.SafetyRatings)
	}
	return "", respErr
}
