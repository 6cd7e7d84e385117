package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// FileStore keeps one file per checkpoint key under a directory, replaced atomically on write.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("checkpoint directory is required")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	name := strings.Trim(filepath.Clean("/"+key), string(filepath.Separator))
	return filepath.Join(s.dir, strings.ReplaceAll(name, string(filepath.Separator), "_"))
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read checkpoint %s: %w", key, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// Set implements Store.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	if err := renameio.WriteFile(s.path(key), []byte(value), filePerm); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", key, err)
	}
	return nil
}
