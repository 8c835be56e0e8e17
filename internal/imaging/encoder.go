package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"strings"
)

const (
	// MIMEType is the only payload type the extraction request declares.
	MIMEType = "image/jpeg"

	DefaultQuality  = 75
	DefaultMaxBytes = 4 << 20
)

var (
	ErrEmptyImage = errors.New("image is empty")
	ErrNotImage   = errors.New("file is not a supported image")
)

// Payload is an encoded image ready to be sent inline. The zero value is empty.
type Payload struct {
	data string
	size int
}

// Data returns the standard base64 encoding of the JPEG bytes.
func (p Payload) Data() string { return p.data }

// MIMEType returns the declared payload type.
func (p Payload) MIMEType() string { return MIMEType }

// Size is the length of the JPEG bytes before base64 encoding.
func (p Payload) Size() int { return p.size }

// IsZero reports whether the payload carries no image.
func (p Payload) IsZero() bool { return p.data == "" }

// FromBase64 wraps already-encoded JPEG data without re-validating it.
func FromBase64(data string) Payload {
	data = strings.TrimSpace(data)
	return Payload{data: data, size: base64.StdEncoding.DecodedLen(len(data))}
}

// Encoder converts image bytes to payloads.
type Encoder struct {
	quality  int
	maxBytes int
}

// NewEncoder returns an encoder; non-positive values fall back to defaults.
func NewEncoder(quality, maxBytes int) *Encoder {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Encoder{quality: quality, maxBytes: maxBytes}
}

// EncodeFile reads path and encodes it.
func (e *Encoder) EncodeFile(path string) (Payload, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Payload{}, fmt.Errorf("encode image: %w", ErrEmptyImage)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, fmt.Errorf("encode image: read %s: %w", path, err)
	}
	return e.EncodeBytes(data)
}

// EncodeBytes validates data as an image and returns its JPEG payload.
func (e *Encoder) EncodeBytes(data []byte) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, fmt.Errorf("encode image: %w", ErrEmptyImage)
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return Payload{}, fmt.Errorf("encode image: %w (detected %s)", ErrNotImage, contentType)
	}
	if contentType != MIMEType || len(data) > e.maxBytes {
		compressed, err := CompressToJPEG(data, e.quality)
		if err != nil {
			return Payload{}, fmt.Errorf("encode image: compress %s: %w", contentType, err)
		}
		data = compressed
	}
	return Payload{data: base64.StdEncoding.EncodeToString(data), size: len(data)}, nil
}

// CompressToJPEG decodes any registered format (JPEG, PNG, GIF) and re-encodes
// it as JPEG at the given quality.
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrNotImage
		}
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBase64 decodes standard base64, accepting and dropping a data URL
// prefix such as "data:image/png;base64,".
func DecodeBase64(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "data:") {
		if idx := strings.Index(value, ","); idx >= 0 {
			value = value[idx+1:]
		}
	}
	if value == "" {
		return nil, ErrEmptyImage
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return data, nil
}
