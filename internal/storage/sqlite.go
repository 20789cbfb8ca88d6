package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	_ "modernc.org/sqlite"
)

// allowedFields maps projection names accepted by GetImages to columns.
var allowedFields = map[string]bool{
	"id":              true,
	"name":            true,
	"original_image":  true,
	"processed_image": true,
	"created_at":      true,
}

type SQLiteStore struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteStore(connectionString string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases coherent and avoids
	// SQLITE_BUSY on concurrent writes.
	db.SetMaxOpenConns(1)

	return &SQLiteStore{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteStore) EnsureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		original_image BLOB,
		processed_image BLOB,
		created_at TIMESTAMP NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Ping() bool {
	// The SQLite file is created on connect, so a successful ping is enough.
	return s.db.Ping() == nil
}

func (s *SQLiteStore) CreateImage(name string, original []byte, processed []byte) (string, error) {
	id := ksuid.New().String()

	_, err := s.db.Exec(
		"INSERT INTO images (id, name, original_image, processed_image, created_at) VALUES (?, ?, ?, ?, ?)",
		id, name, original, processed, time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}

	return id, nil
}

func (s *SQLiteStore) SetProcessedImage(id string, processedImage []byte) error {
	res, err := s.db.Exec("UPDATE images SET processed_image = ? WHERE id = ?", processedImage, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetImages(fields ...string) ([]*Image, error) {
	if len(fields) == 0 {
		fields = []string{"id", "name", "original_image", "processed_image", "created_at"}
	}
	for _, field := range fields {
		if !allowedFields[field] {
			return nil, fmt.Errorf("unknown image field: %s", field)
		}
	}

	query := fmt.Sprintf("SELECT %s FROM images ORDER BY id", strings.Join(fields, ", "))
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var images []*Image
	for rows.Next() {
		img := &Image{}
		dests := make([]any, 0, len(fields))
		for _, field := range fields {
			switch field {
			case "id":
				dests = append(dests, &img.ID)
			case "name":
				dests = append(dests, &img.Name)
			case "original_image":
				dests = append(dests, &img.OriginalImage)
			case "processed_image":
				dests = append(dests, &img.ProcessedImage)
			case "created_at":
				dests = append(dests, &img.CreatedAt)
			}
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *SQLiteStore) GetOriginalImageByID(id string) ([]byte, error) {
	row := s.db.QueryRow("SELECT original_image FROM images WHERE id = ?", id)
	var original []byte
	if err := row.Scan(&original); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return original, nil
}

func (s *SQLiteStore) GetProcessedImageByID(id string) ([]byte, error) {
	row := s.db.QueryRow("SELECT processed_image FROM images WHERE id = ?", id)
	var processed []byte
	if err := row.Scan(&processed); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return processed, nil
}

func (s *SQLiteStore) DeleteImage(id string) error {
	res, err := s.db.Exec("DELETE FROM images WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteOlderThan(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM images WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := s.db.Exec("DELETE FROM images WHERE created_at < ?", cutoff.UTC()); err != nil {
		return nil, err
	}
	return ids, nil
}
