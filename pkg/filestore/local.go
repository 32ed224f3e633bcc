package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// localStore serves files from a directory tree rooted at root.
type localStore struct {
	root string
}

func newLocalStore(root string) (Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve filestore root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create filestore root: %w", err)
	}
	return &localStore{root: abs}, nil
}

// Get returns the file contents for key. Keys resolving outside the root are
// rejected.
func (l *localStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: empty key", ErrNotFound)
	}

	path := filepath.Join(l.root, filepath.FromSlash(key))
	if !strings.HasPrefix(path, l.root+string(os.PathSeparator)) && path != l.root {
		return nil, fmt.Errorf("key %q escapes filestore root", key)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read file %s: %w", key, err)
	}
	return data, nil
}
