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
	"time"

	"rapidsprite/pkg/models"
)

// ErrInvalidPath is returned for paths that escape the storage root
var ErrInvalidPath = errors.New("invalid storage path")

// Storage is where sheets, cue files and metadata end up. Paths are
// slash-separated and relative to the backend root, e.g. "clip/clip-0.jpg".
type Storage interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)

	// ReadSeeker opens an artifact for http.ServeContent. Callers close the
	// result when it implements io.Closer.
	ReadSeeker(ctx context.Context, path string) (io.ReadSeeker, error)

	// Delete removes an artifact; a missing one is not an error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)

	// List returns artifact names directly under dir
	List(ctx context.Context, dir string) ([]string, error)

	Close() error
}

// Signer is implemented by backends that can hand out direct download URLs
type Signer interface {
	SignedURL(path string, expiration time.Duration) (string, error)
}

// WriteError reports an output file that could not be persisted
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{models.ErrWrite, e.Err}
}

// Put writes data and wraps any failure in a *WriteError
func Put(ctx context.Context, s Storage, path string, data []byte) error {
	if err := s.Write(ctx, path, data); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// Clean normalizes a relative storage path and rejects anything that
// would leave the root.
func Clean(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// ContentType returns the MIME type for an artifact path
func ContentType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".vtt":
		return "text/vtt; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// LocalStorage keeps artifacts under a directory on disk
type LocalStorage struct {
	root string
}

// NewLocalStorage creates root if needed
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

// Write goes through a hidden temporary file renamed into place, so a
// player never loads a half-written sheet.
func (s *LocalStorage) Write(ctx context.Context, p string, data []byte) (err error) {
	target, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(0644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (s *LocalStorage) Read(ctx context.Context, p string) ([]byte, error) {
	target, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(target)
}

// ReadSeeker returns the open *os.File
func (s *LocalStorage) ReadSeeker(ctx context.Context, p string) (io.ReadSeeker, error) {
	target, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *LocalStorage) Delete(ctx context.Context, p string) error {
	target, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, p string) (bool, error) {
	target, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	switch info, err := os.Stat(target); {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	default:
		return info.Mode().IsRegular(), nil
	}
}

// List skips subdirectories and in-progress temporaries
func (s *LocalStorage) List(ctx context.Context, dir string) ([]string, error) {
	target, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (s *LocalStorage) Close() error {
	return nil
}

// GetFullPath maps an artifact path to its location on disk
func (s *LocalStorage) GetFullPath(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p))
}

func (s *LocalStorage) resolve(p string) (string, error) {
	cleaned, err := Clean(p)
	if err != nil {
		return "", err
	}
	return s.GetFullPath(cleaned), nil
}
