package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platescan/internal/history"
	"platescan/internal/metrics"
	"platescan/internal/scan"
	"platescan/internal/server"
	"platescan/internal/services/gemini"
	"platescan/internal/testsupport"
)

type stubScanner struct {
	result  scan.Result
	err     error
	saveErr error

	bytes  [][]byte
	labels []string
	saved  []scan.Result
}

func (s *stubScanner) ScanBytes(_ context.Context, data []byte, imageURI string) (scan.Result, error) {
	s.bytes = append(s.bytes, data)
	s.labels = append(s.labels, imageURI)
	if s.err != nil {
		return scan.Result{}, s.err
	}
	return scan.Result{Plate: s.result.Plate, ImageURI: imageURI}, nil
}

func (s *stubScanner) Save(_ context.Context, result scan.Result) (history.Record, error) {
	if s.saveErr != nil {
		return history.Record{}, s.saveErr
	}
	if strings.TrimSpace(result.Plate) == "" {
		return history.Record{}, scan.ErrEmptyPlate
	}
	s.saved = append(s.saved, result)
	return history.Record{ID: "rec-1", PlateNumber: result.Plate, ImageURI: result.ImageURI, Timestamp: 1}, nil
}

func newHistory(t *testing.T) *history.Store {
	t.Helper()
	return testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
}

func newServer(t *testing.T, scanner server.Scanner, opts ...func(*server.Options)) (*server.Server, *history.Store) {
	t.Helper()
	store := newHistory(t)
	options := server.Options{Scanner: scanner, History: store}
	for _, opt := range opts {
		opt(&options)
	}
	srv, err := server.New(options)
	require.NoError(t, err)
	return srv, store
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, &stubScanner{})
	rec := do(t, srv.Handler(), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := server.New(server.Options{History: newHistory(t)})
	assert.Error(t, err)
	_, err = server.New(server.Options{Scanner: &stubScanner{}})
	assert.Error(t, err)
}

func TestScanBase64AndSave(t *testing.T) {
	scanner := &stubScanner{result: scan.Result{Plate: "ABC123"}}
	srv, _ := newServer(t, scanner)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/scan", map[string]any{
		"image_base64": "data:image/jpeg;base64,aGVsbG8=",
		"image_uri":    "file:///photos/1.jpg",
		"save":         true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "ABC123", body["plate_number"])
	assert.Equal(t, "file:///photos/1.jpg", body["image_uri"])
	record, ok := body["record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ABC123", record["plateNumber"])
	require.Len(t, scanner.bytes, 1)
	assert.Equal(t, "hello", string(scanner.bytes[0]))
	assert.Len(t, scanner.saved, 1)
}

func TestScanWithoutSave(t *testing.T) {
	scanner := &stubScanner{result: scan.Result{Plate: "XYZ9"}}
	srv, _ := newServer(t, scanner)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/scan", map[string]any{"image_base64": "aGVsbG8="})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "XYZ9", body["plate_number"])
	assert.NotContains(t, body, "record")
	assert.Empty(t, scanner.saved)
}

func TestScanNeverReadsServerPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	outside := testsupport.WriteImage(t, filepath.Join(testsupport.BaseDir(cfg), "secret.jpg"), "jpeg")
	scanner := &stubScanner{result: scan.Result{Plate: "XYZ9"}}
	srv, _ := newServer(t, scanner)

	for _, uri := range []string{outside, "file://" + outside, "/etc/passwd", "../../etc/passwd"} {
		rec := do(t, srv.Handler(), http.MethodPost, "/api/scan", map[string]any{"image_uri": uri, "save": true})
		assert.Equal(t, http.StatusBadRequest, rec.Code, uri)
		assert.Equal(t, "bad_request", decode(t, rec)["kind"])
	}
	assert.Empty(t, scanner.bytes)
	assert.Empty(t, scanner.saved)
}

func TestScanURIIsLabelOnly(t *testing.T) {
	scanner := &stubScanner{result: scan.Result{Plate: "XYZ9"}}
	srv, _ := newServer(t, scanner)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/scan", map[string]any{
		"image_base64": "aGVsbG8=",
		"image_uri":    "/etc/passwd",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/etc/passwd", decode(t, rec)["image_uri"])
	require.Len(t, scanner.bytes, 1)
	assert.Equal(t, "hello", string(scanner.bytes[0]))
	assert.Equal(t, []string{"/etc/passwd"}, scanner.labels)
}

func TestScanMultipart(t *testing.T) {
	scanner := &stubScanner{result: scan.Result{Plate: "MH12DE1433"}}
	srv, _ := newServer(t, scanner)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "car.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("save", "true"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/scan", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "MH12DE1433", body["plate_number"])
	assert.Equal(t, "car.jpg", body["image_uri"])
	require.Len(t, scanner.bytes, 1)
	assert.Equal(t, "jpeg-bytes", string(scanner.bytes[0]))
	assert.Len(t, scanner.saved, 1)
}

func TestScanBadRequests(t *testing.T) {
	srv, _ := newServer(t, &stubScanner{})
	cases := []struct {
		name string
		body any
	}{
		{name: "empty", body: map[string]any{}},
		{name: "bad base64", body: map[string]any{"image_base64": "!!!not base64"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv.Handler(), http.MethodPost, "/api/scan", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "bad_request", decode(t, rec)["kind"])
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanUploadLimit(t *testing.T) {
	srv, _ := newServer(t, &stubScanner{}, func(o *server.Options) { o.UploadLimit = 16 })
	rec := do(t, srv.Handler(), http.MethodPost, "/api/scan", map[string]any{
		"image_base64": strings.Repeat("A", 64),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestScanErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		saveErr error
		plate   string
		save    bool
		status  int
		kind    string
		message string
	}{
		{name: "busy", err: scan.ErrBusy, status: http.StatusConflict, kind: "busy"},
		{
			name:    "configuration",
			err:     &gemini.Failure{Kind: gemini.KindConfiguration, Message: "API key is not configured."},
			status:  http.StatusServiceUnavailable,
			kind:    "configuration",
			message: "Failed to process image: API key is not configured.",
		},
		{
			name:    "exhausted",
			err:     &gemini.Failure{Kind: gemini.KindExhausted, Last: gemini.KindTransport, Attempts: 3, Message: "No response received from API."},
			status:  http.StatusBadGateway,
			kind:    "exhausted",
			message: "Failed to process image: No response received from API.",
		},
		{
			name:    "empty plate on save",
			plate:   " ",
			save:    true,
			status:  http.StatusUnprocessableEntity,
			kind:    "empty_plate",
			message: "No valid license plate was detected. Try again with a clearer image.",
		},
		{name: "store failure", plate: "ABC", save: true, saveErr: errors.New("disk"), status: http.StatusInternalServerError, kind: "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scanner := &stubScanner{err: tc.err, saveErr: tc.saveErr, result: scan.Result{Plate: tc.plate}}
			srv, _ := newServer(t, scanner)
			rec := do(t, srv.Handler(), http.MethodPost, "/api/scan", map[string]any{"image_base64": "aGVsbG8=", "save": tc.save})
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, tc.kind, body["kind"])
			if tc.message != "" {
				assert.Equal(t, tc.message, body["error"])
			}
		})
	}
}

func TestHistoryRoutes(t *testing.T) {
	srv, store := newServer(t, &stubScanner{})
	first := testsupport.SaveRecord(t, store, "AAA111", "a.jpg")
	testsupport.SaveRecord(t, store, "BBB222", "b.jpg")

	rec := do(t, srv.Handler(), http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Records []history.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Records, 2)
	assert.Equal(t, "BBB222", list.Records[0].PlateNumber)

	rec = do(t, srv.Handler(), http.MethodDelete, "/api/history/"+first.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv.Handler(), http.MethodDelete, "/api/history/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv.Handler(), http.MethodDelete, "/api/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"records":[]}`, rec.Body.String())
}

func TestBearerAuth(t *testing.T) {
	srv, _ := newServer(t, &stubScanner{}, func(o *server.Options) { o.Token = "secret" })

	rec := do(t, srv.Handler(), http.MethodGet, "/api/history", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	srv, _ := newServer(t, &stubScanner{}, func(o *server.Options) { o.Metrics = m })

	do(t, srv.Handler(), http.MethodGet, "/api/health", nil)
	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `platescan_http_requests_total{method="GET",path="/api/health",status="200"} 1`)
}

func TestServeStopsOnCancel(t *testing.T) {
	srv, _ := newServer(t, &stubScanner{})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/api/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "server.lock")
	held := flock.New(lockPath)
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = held.Unlock() })

	srv, _ := newServer(t, &stubScanner{}, func(o *server.Options) {
		o.LockPath = lockPath
		o.Bind = "127.0.0.1:0"
	})
	err = srv.Run(context.Background())
	assert.ErrorIs(t, err, server.ErrAlreadyRunning)
}
