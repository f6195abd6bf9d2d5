package staging

import (
	"errors"
	"os"
	"path/filepath"

	"goods-registration/internal/domain/ports/adapter"
)

var _ adapter.PhotoStage = (*FileStage)(nil)

// FileStage keeps original photo bytes in per-attempt temp files so the
// session payload only carries the reduced display encoding. Release is
// idempotent: deleting a path twice (or an empty path) is a no-op.
type FileStage struct {
	dir    string
	prefix string
}

func NewFileStage(dir string) *FileStage {
	if dir == "" {
		dir = os.TempDir()
	}
	return &FileStage{dir: dir, prefix: "front_photo_"}
}

func (s *FileStage) Stage(data []byte) (string, error) {
	f, err := os.CreateTemp(s.dir, s.prefix+"*.jpg")
	if err != nil {
		return "", err
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *FileStage) Read(path string) ([]byte, error) {
	if path == "" {
		return nil, os.ErrNotExist
	}
	return os.ReadFile(path)
}

func (s *FileStage) Release(path string) error {
	if path == "" {
		return nil
	}
	// Refuse paths outside the staging dir; the session only ever hands
	// back paths it was given by Stage.
	if filepath.Dir(path) != filepath.Clean(s.dir) {
		return errors.New("staging: path outside staging dir")
	}
	err := os.Remove(path)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
