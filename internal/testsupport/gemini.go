package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// GeminiReply is one canned answer from a GeminiServer.
type GeminiReply struct {
	Status int
	Body   string
}

// PlateReply answers with a single candidate carrying text.
func PlateReply(text string) GeminiReply {
	body, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{
				"content":      map[string]any{"parts": []any{map[string]any{"text": text}}},
				"finishReason": "STOP",
			},
		},
	})
	return GeminiReply{Status: http.StatusOK, Body: string(body)}
}

// ErrorReply answers with an API error body.
func ErrorReply(status int, message string) GeminiReply {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{"code": status, "message": message, "status": http.StatusText(status)},
	})
	return GeminiReply{Status: status, Body: string(body)}
}

// GeminiServer is an httptest stand-in for the generateContent endpoint.
// Replies are served in order; the last one repeats.
type GeminiServer struct {
	*httptest.Server

	mu      sync.Mutex
	replies []GeminiReply
	calls   int
}

// NewGeminiServer starts a server and closes it on cleanup.
func NewGeminiServer(t testing.TB, replies ...GeminiReply) *GeminiServer {
	t.Helper()

	if len(replies) == 0 {
		replies = []GeminiReply{PlateReply("TEST123")}
	}
	g := &GeminiServer{replies: replies}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.Close)
	return g
}

func (g *GeminiServer) serve(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	idx := g.calls
	if idx >= len(g.replies) {
		idx = len(g.replies) - 1
	}
	reply := g.replies[idx]
	g.calls++
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	_, _ = w.Write([]byte(reply.Body))
}

// Calls reports how many requests the server has answered.
func (g *GeminiServer) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
