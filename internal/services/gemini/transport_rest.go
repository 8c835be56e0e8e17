package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RESTTransport posts the JSON request body to
// <baseURL>/<model>:generateContent?key=<apiKey>.
type RESTTransport struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewRESTTransport builds a REST transport. A nil httpClient uses a client
// without its own timeout; per-attempt deadlines come from the context.
func NewRESTTransport(baseURL, model string, httpClient *http.Client) *RESTTransport {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RESTTransport{baseURL: baseURL, model: model, httpClient: httpClient}
}

// Endpoint returns the request URL without the key parameter.
func (t *RESTTransport) Endpoint() string {
	return t.baseURL + "/" + url.PathEscape(t.model) + ":generateContent"
}

// Generate performs one request.
func (t *RESTTransport) Generate(ctx context.Context, apiKey string, req GenerateRequest) (GenerateResponse, []byte, error) {
	var decoded GenerateResponse
	endpoint, err := url.Parse(t.Endpoint())
	if err != nil {
		return decoded, nil, fmt.Errorf("gemini request: build url: %w", err)
	}
	query := endpoint.Query()
	query.Set("key", apiKey)
	endpoint.RawQuery = query.Encode()

	encoded, err := json.Marshal(req)
	if err != nil {
		return decoded, nil, fmt.Errorf("gemini request: encode body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(encoded))
	if err != nil {
		return decoded, nil, fmt.Errorf("gemini request: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return decoded, nil, fmt.Errorf("gemini request: http error: %w", redactKey(err, apiKey))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decoded, nil, fmt.Errorf("gemini request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return decoded, body, newStatusError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return decoded, body, &ResponseError{Snippet: summarizePayloadSnippet(string(body))}
	}
	if decoded.Error != nil {
		statusErr := newStatusError(decoded.Error.Code, body)
		if statusErr.StatusCode == 0 {
			statusErr.StatusCode = resp.StatusCode
		}
		return decoded, body, statusErr
	}
	return decoded, body, nil
}

// redactKey strips the key parameter from url.Error messages, which embed
// the full request URL.
func redactKey(err error, apiKey string) error {
	param := "key=" + url.QueryEscape(apiKey)
	if apiKey == "" || !strings.Contains(err.Error(), param) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), param, "key=REDACTED"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }
