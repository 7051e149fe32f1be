// Package metadata handles discovery and storage of table metadata
// documents: a Store abstraction with local-filesystem and S3 backends, a
// Redis read-through cache, and a crawler that walks the API's navigation
// tree to populate a store.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound indicates a metadata document is absent from a store.
var ErrNotFound = errors.New("metadata document not found")

// Store persists raw metadata documents keyed by their table path under
// the API root, e.g. "OV0104/v1/doris/sv/ssd/BE/BE0101/BefolkningNy".
type Store interface {
	// Save writes one document.
	Save(ctx context.Context, path string, doc []byte) error

	// Load reads one document; ErrNotFound when absent.
	Load(ctx context.Context, path string) ([]byte, error)

	// Walk visits every stored document path in lexical order. Returning
	// an error from fn stops the walk.
	Walk(ctx context.Context, fn func(path string) error) error
}

// LocalStore keeps documents as JSON files under a root directory,
// mirroring the API path hierarchy.
type LocalStore struct {
	Root string
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Root: dir}
}

func (s *LocalStore) filename(path string) string {
	return filepath.Join(s.Root, filepath.FromSlash(strings.Trim(path, "/"))+".json")
}

// Save implements Store.
func (s *LocalStore) Save(_ context.Context, path string, doc []byte) error {
	name := s.filename(path)
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	if err := os.WriteFile(name, doc, 0o644); err != nil {
		return fmt.Errorf("write metadata file: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *LocalStore) Load(_ context.Context, path string) ([]byte, error) {
	doc, err := os.ReadFile(s.filename(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata file: %w", err)
	}
	return doc, nil
}

// Walk implements Store.
func (s *LocalStore) Walk(ctx context.Context, fn func(path string) error) error {
	return filepath.WalkDir(s.Root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(name, ".json") {
			return nil
		}
		rel, err := filepath.Rel(s.Root, name)
		if err != nil {
			return err
		}
		path := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		return fn(path)
	})
}
