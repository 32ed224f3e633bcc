package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rentora-hq/extraction-gateway/internal/domain"
)

// Package storage provides keyed persistence for extraction records.

// ErrNotFound is returned by Update when no record exists for the given id.
var ErrNotFound = errors.New("extraction record not found")

// Store tracks extraction records and their lookup indexes.
type Store interface {
	Close() error
	// Create persists a new record and indexes it as the latest for its
	// (type, filename) pair.
	Create(rec *domain.Extraction) error
	// Get returns the record with the given id.
	Get(id string) (*domain.Extraction, bool, error)
	// Update applies fn to the stored record inside a single transaction and
	// returns the updated copy. Updating a missing id returns ErrNotFound.
	Update(id string, fn func(*domain.Extraction)) (*domain.Extraction, error)
	// GetByTaskID resolves a record through its external task id.
	GetByTaskID(taskID string) (*domain.Extraction, bool, error)
	// FindLatest returns the most recently created record for (type, filename).
	FindLatest(docType, filename string) (*domain.Extraction, bool, error)
}

// NewStore creates the configured storage backend.
func NewStore(typ, path string) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", "memory":
		return NewMemoryStore(), nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}
