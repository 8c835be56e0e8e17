package imaging_test

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platescan/internal/imaging"
)

func sampleImage(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	buf := new(bytes.Buffer)
	var err error
	switch format {
	case "png":
		err = png.Encode(buf, img)
	case "jpeg":
		err = jpeg.Encode(buf, img, nil)
	default:
		t.Fatalf("unsupported format: %s", format)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func decodePayload(t *testing.T, p imaging.Payload) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(p.Data())
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return format
}

func TestEncodeBytesReencodesPNG(t *testing.T) {
	enc := imaging.NewEncoder(80, 0)
	payload, err := enc.EncodeBytes(sampleImage(t, "png"))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", payload.MIMEType())
	assert.Equal(t, "jpeg", decodePayload(t, payload))
	assert.Positive(t, payload.Size())
}

func TestEncodeBytesKeepsSmallJPEG(t *testing.T) {
	data := sampleImage(t, "jpeg")
	payload, err := imaging.NewEncoder(0, 0).EncodeBytes(data)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(data), payload.Data())
}

func TestEncodeBytesRecompressesLargeJPEG(t *testing.T) {
	data := sampleImage(t, "jpeg")
	payload, err := imaging.NewEncoder(10, 1).EncodeBytes(data)
	require.NoError(t, err)
	assert.NotEqual(t, base64.StdEncoding.EncodeToString(data), payload.Data())
	assert.Equal(t, "jpeg", decodePayload(t, payload))
}

func TestEncodeBytesRejectsNonImage(t *testing.T) {
	_, err := imaging.NewEncoder(0, 0).EncodeBytes([]byte("plain text, not a photo"))
	assert.ErrorIs(t, err, imaging.ErrNotImage)

	_, err = imaging.NewEncoder(0, 0).EncodeBytes(nil)
	assert.ErrorIs(t, err, imaging.ErrEmptyImage)
}

func TestEncodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plate.png")
	require.NoError(t, os.WriteFile(path, sampleImage(t, "png"), 0o644))

	payload, err := imaging.NewEncoder(0, 0).EncodeFile(path)
	require.NoError(t, err)
	assert.False(t, payload.IsZero())

	_, err = imaging.NewEncoder(0, 0).EncodeFile(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestDecodeBase64StripsDataURL(t *testing.T) {
	raw := []byte("jpeg-bytes")
	encoded := base64.StdEncoding.EncodeToString(raw)

	got, err := imaging.DecodeBase64("data:image/jpeg;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = imaging.DecodeBase64(encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = imaging.DecodeBase64("")
	assert.ErrorIs(t, err, imaging.ErrEmptyImage)

	_, err = imaging.DecodeBase64("!!not base64!!")
	assert.Error(t, err)
}

func TestFromBase64(t *testing.T) {
	p := imaging.FromBase64("  QUJD  ")
	assert.Equal(t, "QUJD", p.Data())
	assert.Equal(t, 3, p.Size())
	assert.True(t, imaging.FromBase64("").IsZero())
}
