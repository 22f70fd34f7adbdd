package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/golang/snappy"

	"gridlink/relay/internal/state"
)

var fileNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// FileStore keeps one snappy-compressed JSON file per room under a data
// directory. It is the default backend when no database is configured.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("data directory must be provided")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(roomID string) string {
	cleaned := fileNameCleaner.ReplaceAllString(roomID, "")
	if cleaned == "" {
		cleaned = "room"
	}
	return filepath.Join(s.dir, cleaned+".json.sz")
}

// Load reads and decompresses the room record.
func (s *FileStore) Load(ctx context.Context, roomID string) (*state.RoomState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	compressed, err := os.ReadFile(s.path(roomID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress room record: %w", err)
	}
	var st state.RoomState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode room record: %w", err)
	}
	return &st, nil
}

// Save writes the record atomically: compress to a temp file, then rename.
func (s *FileStore) Save(ctx context.Context, roomID string, st *state.RoomState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode room record: %w", err)
	}
	compressed := snappy.Encode(nil, data)
	target := s.path(roomID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }
