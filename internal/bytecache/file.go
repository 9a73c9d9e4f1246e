package bytecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps one file per key inside a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (FileStore, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return FileStore{}, fmt.Errorf("create cache dir: %w", err)
	}
	return FileStore{dir: dir}, nil
}

func (s FileStore) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || filepath.Base(key) != key {
		return "", fmt.Errorf("bytecache: invalid key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

func (s FileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put writes to a temporary file first so an interrupted run never leaves a
// truncated entry behind.
func (s FileStore) Put(_ context.Context, key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	_, err = tmp.Write(value)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	err = tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}
