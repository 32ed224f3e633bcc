package filestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Package filestore abstracts where submitted documents live. Records only
// hold a key; the bytes are fetched on demand when a record is processed.

// ErrNotFound indicates no file exists for the given key.
var ErrNotFound = errors.New("file not found")

// Store retrieves file contents by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// NewStore creates the configured file storage backend.
func NewStore(typ, root string) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", "local":
		if strings.TrimSpace(root) == "" {
			return nil, fmt.Errorf("local filestore requires a root directory")
		}
		return newLocalStore(root)
	default:
		return nil, fmt.Errorf("unsupported filestore type %q", typ)
	}
}
