package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the board in a single indented JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(_ context.Context) (Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Board{}, nil
	}
	if err != nil {
		return nil, err
	}
	board := Board{}
	if len(data) == 0 {
		return board, nil
	}
	if err := json.Unmarshal(data, &board); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return board, nil
}

// Save writes to a temp file in the same directory and renames it over the
// old document.
func (f *FileStore) Save(_ context.Context, b Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".leaderboard-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileStore) Close() error { return nil }
