package scan_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platescan/internal/history"
	"platescan/internal/imaging"
	"platescan/internal/scan"
	"platescan/internal/services"
	"platescan/internal/services/gemini"
	"platescan/internal/testsupport"
)

type fakeEncoder struct {
	paths []string
	err   error
}

func (f *fakeEncoder) EncodeFile(path string) (imaging.Payload, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return imaging.Payload{}, f.err
	}
	return imaging.FromBase64("aGVsbG8="), nil
}

func (f *fakeEncoder) EncodeBytes(data []byte) (imaging.Payload, error) {
	if f.err != nil {
		return imaging.Payload{}, f.err
	}
	return imaging.FromBase64("aGVsbG8="), nil
}

type fakeExtractor struct {
	plate string
	err   error
	calls int
	// gate blocks Extract until closed when non-nil.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, payload imaging.Payload) (string, error) {
	f.calls++
	if f.entered != nil {
		close(f.entered)
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.plate, f.err
}

type fakeStore struct {
	saved []history.Record
	err   error
}

func (f *fakeStore) Save(ctx context.Context, plateNumber, imageURI string) (history.Record, error) {
	if f.err != nil {
		return history.Record{}, f.err
	}
	record := history.Record{ID: "rec-1", PlateNumber: plateNumber, ImageURI: imageURI, Timestamp: 1700000000000}
	f.saved = append(f.saved, record)
	return record, nil
}

type fakeRecorder struct{ ops []string }

func (f *fakeRecorder) HistoryWrite(op string) { f.ops = append(f.ops, op) }

func TestScanReturnsPlateAndURI(t *testing.T) {
	enc := &fakeEncoder{}
	ext := &fakeExtractor{plate: "ABC123"}
	s := scan.New(enc, ext, nil)

	result, err := s.Scan(context.Background(), "file:///tmp/plate.jpg")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", result.Plate)
	assert.Equal(t, "file:///tmp/plate.jpg", result.ImageURI)
	assert.Equal(t, []string{"/tmp/plate.jpg"}, enc.paths)
	assert.False(t, s.Busy())
}

func TestScanEncodeFailureSkipsExtraction(t *testing.T) {
	ext := &fakeExtractor{plate: "ABC123"}
	s := scan.New(&fakeEncoder{err: imaging.ErrNotImage}, ext, nil)

	_, err := s.Scan(context.Background(), "/tmp/notes.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, imaging.ErrNotImage)
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Zero(t, ext.calls)
}

func TestScanPropagatesExtractionFailure(t *testing.T) {
	failure := &gemini.Failure{Kind: gemini.KindConfiguration, Message: "API key is not configured."}
	s := scan.New(&fakeEncoder{}, &fakeExtractor{err: failure}, nil)

	_, err := s.ScanBytes(context.Background(), []byte("img"), "")
	require.Error(t, err)
	assert.Equal(t, gemini.KindConfiguration, gemini.KindOf(err))
	assert.Equal(t, "Failed to process image: API key is not configured.", scan.UserMessage(err))
}

func TestScanRejectsConcurrentScan(t *testing.T) {
	ext := &fakeExtractor{plate: "XYZ9", gate: make(chan struct{}), entered: make(chan struct{})}
	s := scan.New(&fakeEncoder{}, ext, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	var first scan.Result
	var firstErr error
	go func() {
		defer wg.Done()
		first, firstErr = s.ScanPayload(context.Background(), imaging.FromBase64("eA=="), "one")
	}()
	<-ext.entered
	assert.True(t, s.Busy())

	_, err := s.ScanPayload(context.Background(), imaging.FromBase64("eA=="), "two")
	assert.ErrorIs(t, err, scan.ErrBusy)
	assert.Equal(t, "A scan is already in progress. Please wait for it to finish.", scan.UserMessage(err))

	close(ext.gate)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, "XYZ9", first.Plate)
	assert.False(t, s.Busy())
	assert.Equal(t, 1, ext.calls)
}

func TestSaveRejectsBlankPlate(t *testing.T) {
	store := &fakeStore{}
	s := scan.New(&fakeEncoder{}, &fakeExtractor{}, store)

	for _, plate := range []string{"", "   ", "\t\n"} {
		_, err := s.Save(context.Background(), scan.Result{Plate: plate, ImageURI: "x"})
		assert.ErrorIs(t, err, scan.ErrEmptyPlate)
	}
	assert.Empty(t, store.saved)
	assert.Equal(t, "No valid license plate was detected. Try again with a clearer image.", scan.UserMessage(scan.ErrEmptyPlate))
	assert.Equal(t, "No valid license plate was detected. Try again with a clearer image.", scan.UserMessage(fmt.Errorf("save: %w", scan.ErrEmptyPlate)))
}

func TestErrorStringsAreLowercase(t *testing.T) {
	for _, err := range []error{scan.ErrBusy, scan.ErrEmptyPlate} {
		msg := err.Error()
		assert.Equal(t, strings.ToLower(msg[:1]), msg[:1], msg)
		assert.False(t, strings.HasSuffix(msg, "."), msg)
	}
}

func TestSaveStoresRecordAndCountsWrite(t *testing.T) {
	store := &fakeStore{}
	rec := &fakeRecorder{}
	s := scan.New(&fakeEncoder{}, &fakeExtractor{}, store, scan.WithRecorder(rec))

	record, err := s.Save(context.Background(), scan.Result{Plate: "ABC123", ImageURI: "file:///a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", record.PlateNumber)
	assert.Equal(t, "file:///a.jpg", record.ImageURI)
	assert.Len(t, store.saved, 1)
	assert.Equal(t, []string{"save"}, rec.ops)
}

func TestSaveWrapsStoreError(t *testing.T) {
	boom := errors.New("disk full")
	rec := &fakeRecorder{}
	s := scan.New(&fakeEncoder{}, &fakeExtractor{}, &fakeStore{err: boom}, scan.WithRecorder(rec))

	_, err := s.Save(context.Background(), scan.Result{Plate: "ABC123"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rec.ops)
}

func TestSaveWithoutStore(t *testing.T) {
	s := scan.New(&fakeEncoder{}, &fakeExtractor{}, nil)
	_, err := s.Save(context.Background(), scan.Result{Plate: "ABC123"})
	assert.Error(t, err)
}

func TestScanAndSaveAgainstRealStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	imagePath := testsupport.WriteImage(t, filepath.Join(testsupport.BaseDir(cfg), "plate.png"), "png")

	s := scan.New(imaging.NewEncoder(imaging.DefaultQuality, imaging.DefaultMaxBytes), &fakeExtractor{plate: "KL01AB1234"}, store)
	result, err := s.Scan(context.Background(), imagePath)
	require.NoError(t, err)

	_, err = s.Save(context.Background(), result)
	require.NoError(t, err)

	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "KL01AB1234", records[0].PlateNumber)
	assert.Equal(t, imagePath, records[0].ImageURI)
}
