package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// LocalStorage keeps files under a root directory on disk
type LocalStorage struct {
	root    string
	baseURL string
}

// NewLocalStorage creates root if it does not exist yet
func NewLocalStorage(root, baseURL string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload dir: %w", err)
	}

	s := &LocalStorage{
		root:    abs,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LocalStorage) Root() string {
	return s.root
}

func (s *LocalStorage) ensureRoot() error {
	err := os.MkdirAll(s.root, 0755)
	if err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}
	return nil
}

// resolve maps ref to a path inside root. Absolute refs are accepted only
// when they already point inside root.
func (s *LocalStorage) resolve(ref string) (string, error) {
	if ref == "" {
		return "", ErrInvalidRef
	}

	var full string
	if filepath.IsAbs(ref) {
		full = filepath.Clean(ref)
	} else {
		full = filepath.Join(s.root, filepath.FromSlash(ref))
	}

	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidRef, ref)
	}
	return full, nil
}

func (s *LocalStorage) Save(ctx context.Context, ref string, file io.Reader) error {
	full, err := s.resolve(ref)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(full), 0755)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temp file and rename so readers never see partial uploads
	err = atomic.WriteFile(full, file)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func (s *LocalStorage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	full, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, ErrNotFound
	}

	return f, nil
}

func (s *LocalStorage) Delete(ctx context.Context, ref string) (bool, error) {
	full, err := s.resolve(ref)
	if err != nil {
		return false, err
	}

	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *LocalStorage) DeleteBatch(ctx context.Context, refs []string) BatchResult {
	return deleteEach(ctx, refs, s.Delete)
}

func (s *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var refs []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		ref := filepath.ToSlash(rel)
		if strings.HasPrefix(ref, prefix) {
			refs = append(refs, ref)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return refs, nil
}

func (s *LocalStorage) Exists(ctx context.Context, ref string) (bool, error) {
	full, err := s.resolve(ref)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return !info.IsDir(), nil
}

func (s *LocalStorage) URL(ref string) string {
	return s.baseURL + "/" + path.Clean(strings.TrimPrefix(ref, "/"))
}
