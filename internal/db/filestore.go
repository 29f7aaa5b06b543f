package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/david/fundingradar/internal/ingest"
)

// FileStore keeps the latest snapshot as a JSON file. It is the default
// when no DATABASE_URL is configured, which keeps local runs and CI free of
// a Postgres dependency.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) LoadLatest(_ context.Context) (*ingest.Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: reading %s: %w", s.Path, err)
	}

	var snap ingest.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("filestore: decoding %s: %w", s.Path, err)
	}
	return &snap, nil
}

func (s *FileStore) Save(_ context.Context, snap *ingest.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encoding snapshot: %w", err)
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("filestore: creating %s: %w", dir, err)
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("filestore: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("filestore: replacing %s: %w", s.Path, err)
	}
	return nil
}
