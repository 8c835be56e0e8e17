package services_test

import (
	"context"
	"testing"

	"platescan/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRequestID(ctx, "req-123")
	ctx = services.WithSource(ctx, "cli")

	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
	if src, ok := services.SourceFromContext(ctx); !ok || src != "cli" {
		t.Fatalf("unexpected source: %v %v", src, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRequestID(ctx, "")
	ctx = services.WithSource(ctx, "")
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected no request id")
	}
	if _, ok := services.SourceFromContext(ctx); ok {
		t.Fatal("expected no source")
	}
}
