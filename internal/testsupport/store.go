package testsupport

import (
	"context"
	"testing"

	"platescan/internal/config"
	"platescan/internal/history"
)

// MustOpenHistory opens the history store for cfg and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SaveRecord stores a plate and fails the test on error.
func SaveRecord(t testing.TB, store *history.Store, plate, imageURI string) history.Record {
	t.Helper()

	record, err := store.Save(context.Background(), plate, imageURI)
	if err != nil {
		t.Fatalf("store.Save: %v", err)
	}
	return record
}
