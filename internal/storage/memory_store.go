package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rentora-hq/extraction-gateway/internal/domain"
)

// memoryStore keeps records in process memory. Useful for development and
// tests; data does not survive a restart.
type memoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.Extraction
	byTask  map[string]string
	latest  map[string]string
}

// NewMemoryStore builds an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[string]*domain.Extraction),
		byTask:  make(map[string]string),
		latest:  make(map[string]string),
	}
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) Create(rec *domain.Extraction) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record must have an id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := copyRecord(rec)
	if err != nil {
		return err
	}
	m.records[rec.ID] = cp
	m.latest[rec.Type+"\x00"+rec.Filename] = rec.ID
	return nil
}

func (m *memoryStore) Get(id string) (*domain.Extraction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, false, nil
	}
	cp, err := copyRecord(rec)
	if err != nil {
		return nil, false, err
	}
	return cp, true, nil
}

func (m *memoryStore) Update(id string, fn func(*domain.Extraction)) (*domain.Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	prevTaskID := rec.ExternalTaskID
	fn(rec)
	rec.ID = id
	rec.UpdatedAt = time.Now().UTC()

	if rec.ExternalTaskID != prevTaskID {
		if prevTaskID != "" {
			delete(m.byTask, prevTaskID)
		}
		if rec.ExternalTaskID != "" {
			m.byTask[rec.ExternalTaskID] = id
		}
	}

	return copyRecord(rec)
}

func (m *memoryStore) GetByTaskID(taskID string) (*domain.Extraction, bool, error) {
	if taskID == "" {
		return nil, false, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byTask[taskID]
	if !ok {
		return nil, false, nil
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, false, nil
	}
	cp, err := copyRecord(rec)
	if err != nil {
		return nil, false, err
	}
	return cp, true, nil
}

func (m *memoryStore) FindLatest(docType, filename string) (*domain.Extraction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.latest[docType+"\x00"+filename]
	if !ok {
		return nil, false, nil
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, false, nil
	}
	cp, err := copyRecord(rec)
	if err != nil {
		return nil, false, err
	}
	return cp, true, nil
}

// copyRecord round-trips through JSON so callers never share nested maps with
// the store's copy.
func copyRecord(rec *domain.Extraction) (*domain.Extraction, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var cp domain.Extraction
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &cp, nil
}
