package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotFound is returned when no image with the requested ID exists.
var ErrNotFound = errors.New("image not found")

// Image is a stored clothing image record. Binary fields hold PNG data.
type Image struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	OriginalImage  []byte    `db:"original_image"`
	ProcessedImage []byte    `db:"processed_image"`
	CreatedAt      time.Time `db:"created_at"`
}

type Store interface {
	EnsureSchema() error
	Ping() bool
	Close() error

	// CreateImage inserts a new image row with both original and processed
	// image in a single statement, so processed_image is never observably NULL.
	CreateImage(name string, original []byte, processed []byte) (string, error)
	SetProcessedImage(id string, processedImage []byte) error
	// GetImages returns records restricted to the named fields; with no
	// fields, all columns are selected.
	GetImages(fields ...string) ([]*Image, error)
	GetOriginalImageByID(id string) ([]byte, error)
	GetProcessedImageByID(id string) ([]byte, error)
	DeleteImage(id string) error
	// DeleteOlderThan removes images created before the cutoff and returns
	// the IDs of the removed rows.
	DeleteOlderThan(cutoff time.Time) ([]string, error)
}

// NewStore creates a store for the configured database type and ensures the
// schema exists (idempotent), which matters for in-memory SQLite.
func NewStore(databaseType, connectionString string) (Store, error) {
	var store Store
	var err error

	switch databaseType {
	case "sqlite":
		store, err = NewSQLiteStore(connectionString)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}

	slog.Info("initializing database schema", "type", databaseType)
	if err = store.EnsureSchema(); err != nil {
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}

	return store, nil
}
