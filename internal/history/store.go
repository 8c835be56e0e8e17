package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"platescan/internal/logging"
)

// HistoryKey is the key the serialized history array is stored under.
const HistoryKey = "LICENSE_PLATE_HISTORY"

// Record is one saved plate. The JSON field names are part of the stored
// format.
type Record struct {
	ID          string `json:"id"`
	PlateNumber string `json:"plateNumber"`
	ImageURI    string `json:"imageUri"`
	Timestamp   int64  `json:"timestamp"`
}

// SavedAt converts the millisecond timestamp to a time.
func (r Record) SavedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// List returns saved records, newest first. A missing or unreadable history
// yields an empty list; the undecodable case is logged rather than returned.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	ctx = ensureContext(ctx)
	records, err := s.read(ctx)
	if err != nil {
		return []Record{}, err
	}
	return records, nil
}

// Save prepends a new record and returns it.
func (s *Store) Save(ctx context.Context, plateNumber, imageURI string) (Record, error) {
	ctx = ensureContext(ctx)
	record := Record{
		ID:          s.newID(),
		PlateNumber: plateNumber,
		ImageURI:    imageURI,
		Timestamp:   s.now().UnixMilli(),
	}
	err := s.withWriteLock(ctx, func() error {
		records, err := s.read(ctx)
		if err != nil {
			return err
		}
		next := make([]Record, 0, len(records)+1)
		next = append(next, record)
		next = append(next, records...)
		return s.write(ctx, next)
	})
	if err != nil {
		return Record{}, fmt.Errorf("save plate: %w", err)
	}
	s.logger.Info("plate saved",
		logging.String("record_id", record.ID),
		logging.Int64("timestamp", record.Timestamp),
	)
	return record, nil
}

// Delete removes the record with id. It reports whether a record was removed;
// an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	var removed bool
	err := s.withWriteLock(ctx, func() error {
		records, err := s.read(ctx)
		if err != nil {
			return err
		}
		kept := make([]Record, 0, len(records))
		for _, record := range records {
			if record.ID == id {
				removed = true
				continue
			}
			kept = append(kept, record)
		}
		if !removed {
			return nil
		}
		return s.write(ctx, kept)
	})
	if err != nil {
		return false, fmt.Errorf("delete plate: %w", err)
	}
	return removed, nil
}

// Clear removes the whole history.
func (s *Store) Clear(ctx context.Context) error {
	ctx = ensureContext(ctx)
	err := s.withWriteLock(ctx, func() error {
		return s.execWithRetry(ctx, "DELETE FROM kv WHERE key = ?", HistoryKey)
	})
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	s.logger.Info("history cleared")
	return nil
}

func (s *Store) read(ctx context.Context) ([]Record, error) {
	var raw string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", HistoryKey).Scan(&raw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		logging.WarnWithContext(s.logger, "history payload unreadable; treating as empty", "history_decode_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "saved plates are hidden until the history is cleared or overwritten"),
		)
		return []Record{}, nil
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func (s *Store) write(ctx context.Context, records []Record) error {
	encoded, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return s.execWithRetry(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		HistoryKey, string(encoded), s.now().UnixMilli(),
	)
}
