package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/genai"
)

// SDKTransport sends the same request through the genai client library.
type SDKTransport struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewSDKTransport builds an SDK-backed transport. baseURL may carry the REST
// path suffix; only its scheme and host are handed to the SDK.
func NewSDKTransport(baseURL, model string, httpClient *http.Client) *SDKTransport {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return &SDKTransport{baseURL: sdkRoot(baseURL), model: model, httpClient: httpClient}
}

// Generate performs one request.
func (t *SDKTransport) Generate(ctx context.Context, apiKey string, req GenerateRequest) (GenerateResponse, []byte, error) {
	var decoded GenerateResponse
	image := req.inlineImage()
	if image == nil {
		return decoded, nil, errors.New("gemini sdk: request has no inline image")
	}
	data, err := base64.StdEncoding.DecodeString(image.Data)
	if err != nil {
		return decoded, nil, fmt.Errorf("gemini sdk: decode image: %w", err)
	}

	cfg := &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  t.httpClient,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1beta"},
	}
	if t.baseURL != "" {
		cfg.HTTPOptions.BaseURL = t.baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return decoded, nil, fmt.Errorf("gemini sdk: new client: %w", err)
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: req.instruction()},
			{InlineData: &genai.Blob{MIMEType: image.MIMEType, Data: data}},
		},
	}}
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.GenerationConfig.Temperature)),
		MaxOutputTokens: int32(req.GenerationConfig.MaxOutputTokens),
	}
	resp, err := client.Models.GenerateContent(ctx, t.model, contents, genCfg)
	if err != nil {
		if statusErr := fromAPIError(err); statusErr != nil {
			return decoded, []byte(statusErr.Body), statusErr
		}
		return decoded, nil, fmt.Errorf("gemini sdk: generate: %w", err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return decoded, nil, fmt.Errorf("gemini sdk: encode response: %w", err)
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return decoded, raw, &ResponseError{Snippet: summarizePayloadSnippet(string(raw))}
	}
	return decoded, raw, nil
}

func fromAPIError(err error) *StatusError {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return nil
	}
	body, _ := json.Marshal(map[string]any{
		"error": APIErrorBody{Code: apiErr.Code, Message: apiErr.Message, Status: apiErr.Status},
	})
	return &StatusError{
		StatusCode: apiErr.Code,
		Body:       string(body),
		Message:    apiErr.Message,
		Status:     apiErr.Status,
	}
}

// sdkRoot reduces a REST base URL to the scheme://host/ root the SDK expects.
// The public endpoint returns "" so the SDK default applies.
func sdkRoot(baseURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Host == "" {
		return ""
	}
	if strings.EqualFold(parsed.Hostname(), defaultHost) {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host + "/"
}
