// Package localfs implements types.FileStorage in a local directory, one
// subdirectory per bucket.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the directory created under the data directory.
const DirName = "files"

// ErrInvalidPath is returned for bucket or object paths that would leave
// the storage root.
var ErrInvalidPath = errors.New("invalid storage path")

// Storage stores files under Root.
type Storage struct {
	root    string
	baseURL string
}

// New returns storage rooted at root. Public URLs are baseURL joined with
// bucket and path, or file:// URLs when baseURL is empty.
func New(root, baseURL string) *Storage {
	return &Storage{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *Storage) locate(bucket, path string) (string, error) {
	if bucket == "" || path == "" || strings.ContainsAny(bucket, `/\`) {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidPath, bucket, path)
	}
	clean := filepath.Clean("/" + path)
	full := filepath.Join(s.root, bucket, clean)
	rel, err := filepath.Rel(filepath.Join(s.root, bucket), full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidPath, bucket, path)
	}
	return full, nil
}

// Upload implements types.FileStorage. Existing files are replaced.
func (s *Storage) Upload(ctx context.Context, bucket, path string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.locate(bucket, path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating bucket dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing %s/%s: %w", bucket, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("renaming upload: %w", err)
	}
	return s.publicURL(full)
}

// Remove implements types.FileStorage. Removing a missing file succeeds.
func (s *Storage) Remove(ctx context.Context, bucket, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.locate(bucket, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *Storage) publicURL(full string) (string, error) {
	if s.baseURL != "" {
		rel, err := filepath.Rel(s.root, full)
		if err != nil {
			return "", err
		}
		return s.baseURL + "/" + filepath.ToSlash(rel), nil
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
