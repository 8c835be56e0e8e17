package gemini

// Instruction is the fixed prompt sent with every extraction request.
const Instruction = "Extract only the license plate number from this image. Return only the plate number text as a single, continuous string without any spaces or hyphens, and without any additional information or explanation."

const (
	requestTemperature     = 0.2
	requestMaxOutputTokens = 500
)

// GenerateRequest is the generateContent request body.
type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// Content groups the parts of one turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is either text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// InlineData carries base64 bytes with their MIME type.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// GenerationConfig holds the sampling parameters.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// NewRequest builds the extraction request for one attempt. The result only
// depends on its arguments.
func NewRequest(mimeType, base64Image string) GenerateRequest {
	return GenerateRequest{
		Contents: []Content{{
			Parts: []Part{
				{Text: Instruction},
				{InlineData: &InlineData{MIMEType: mimeType, Data: base64Image}},
			},
		}},
		GenerationConfig: GenerationConfig{
			Temperature:     requestTemperature,
			MaxOutputTokens: requestMaxOutputTokens,
		},
	}
}

// inlineImage returns the first inline part of the request.
func (r GenerateRequest) inlineImage() *InlineData {
	for _, content := range r.Contents {
		for _, part := range content.Parts {
			if part.InlineData != nil {
				return part.InlineData
			}
		}
	}
	return nil
}

// instruction returns the first text part of the request.
func (r GenerateRequest) instruction() string {
	for _, content := range r.Contents {
		for _, part := range content.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}
