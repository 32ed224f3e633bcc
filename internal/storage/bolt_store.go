package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rentora-hq/extraction-gateway/internal/domain"
)

const (
	recordBucket = "extractions"
	taskBucket   = "task_index"
	latestBucket = "latest_index"
)

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{recordBucket, taskBucket, latestBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// latestKey builds the (type, filename) index key. A NUL separator keeps the
// pair unambiguous for arbitrary filenames.
func latestKey(docType, filename string) []byte {
	return []byte(docType + "\x00" + filename)
}

// Create persists a new record and points the latest index at it.
func (b *boltStore) Create(rec *domain.Extraction) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record must have an id")
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(recordBucket))
		if records == nil {
			return fmt.Errorf("record bucket missing")
		}
		if err := records.Put([]byte(rec.ID), raw); err != nil {
			return err
		}
		latest := tx.Bucket([]byte(latestBucket))
		if latest == nil {
			return fmt.Errorf("latest bucket missing")
		}
		return latest.Put(latestKey(rec.Type, rec.Filename), []byte(rec.ID))
	})
}

// Get returns the record with the given id.
func (b *boltStore) Get(id string) (*domain.Extraction, bool, error) {
	var rec *domain.Extraction
	err := b.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(recordBucket))
		if records == nil {
			return fmt.Errorf("record bucket missing")
		}
		raw := records.Get([]byte(id))
		if raw == nil {
			return nil
		}
		decoded, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		rec = decoded
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rec, rec != nil, nil
}

// Update applies fn to the stored record inside one write transaction.
// Task-id index entries follow any change fn makes to ExternalTaskID.
func (b *boltStore) Update(id string, fn func(*domain.Extraction)) (*domain.Extraction, error) {
	var updated *domain.Extraction
	err := b.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(recordBucket))
		if records == nil {
			return fmt.Errorf("record bucket missing")
		}
		raw := records.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return err
		}

		prevTaskID := rec.ExternalTaskID
		fn(rec)
		rec.ID = id
		rec.UpdatedAt = time.Now().UTC()

		encoded, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if err := records.Put([]byte(id), encoded); err != nil {
			return err
		}

		if rec.ExternalTaskID != prevTaskID {
			tasks := tx.Bucket([]byte(taskBucket))
			if tasks == nil {
				return fmt.Errorf("task bucket missing")
			}
			if prevTaskID != "" {
				if err := tasks.Delete([]byte(prevTaskID)); err != nil {
					return err
				}
			}
			if rec.ExternalTaskID != "" {
				if err := tasks.Put([]byte(rec.ExternalTaskID), []byte(id)); err != nil {
					return err
				}
			}
		}

		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetByTaskID resolves a record through the task-id index.
func (b *boltStore) GetByTaskID(taskID string) (*domain.Extraction, bool, error) {
	if taskID == "" {
		return nil, false, nil
	}

	var rec *domain.Extraction
	err := b.db.View(func(tx *bolt.Tx) error {
		tasks := tx.Bucket([]byte(taskBucket))
		if tasks == nil {
			return fmt.Errorf("task bucket missing")
		}
		id := tasks.Get([]byte(taskID))
		if id == nil {
			return nil
		}
		records := tx.Bucket([]byte(recordBucket))
		if records == nil {
			return fmt.Errorf("record bucket missing")
		}
		raw := records.Get(id)
		if raw == nil {
			return nil
		}
		decoded, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		rec = decoded
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rec, rec != nil, nil
}

// FindLatest returns the most recently created record for (type, filename).
func (b *boltStore) FindLatest(docType, filename string) (*domain.Extraction, bool, error) {
	var rec *domain.Extraction
	err := b.db.View(func(tx *bolt.Tx) error {
		latest := tx.Bucket([]byte(latestBucket))
		if latest == nil {
			return fmt.Errorf("latest bucket missing")
		}
		id := latest.Get(latestKey(docType, filename))
		if id == nil {
			return nil
		}
		records := tx.Bucket([]byte(recordBucket))
		if records == nil {
			return fmt.Errorf("record bucket missing")
		}
		raw := records.Get(id)
		if raw == nil {
			return nil
		}
		decoded, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		rec = decoded
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rec, rec != nil, nil
}

func decodeRecord(raw []byte) (*domain.Extraction, error) {
	var rec domain.Extraction
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
