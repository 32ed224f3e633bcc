package storage

import (
	"testing"

	"github.com/rentora-hq/extraction-gateway/internal/domain"
)

func TestBoltStoreCreateAndLookup(t *testing.T) {
	store, err := NewStore("bbolt", t.TempDir()+"/extractions.db")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	rec := domain.NewExtraction("car_license", "uploads/license.pdf", map[string]string{
		domain.MetaTemplateID: "tpl-1",
	})
	if err := store.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok, err := store.Get(rec.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("Status = %s, want pending", got.Status)
	}
	if got.Metadata[domain.MetaTemplateID] != "tpl-1" {
		t.Fatalf("metadata lost on round trip: %#v", got.Metadata)
	}

	latest, ok, err := store.FindLatest("car_license", "uploads/license.pdf")
	if err != nil || !ok {
		t.Fatalf("FindLatest: ok=%v err=%v", ok, err)
	}
	if latest.ID != rec.ID {
		t.Fatalf("FindLatest returned %s, want %s", latest.ID, rec.ID)
	}

	if _, ok, _ := store.FindLatest("car_license", "uploads/other.pdf"); ok {
		t.Fatalf("FindLatest matched a different filename")
	}
}

func TestBoltStoreLatestIndexFollowsNewestRecord(t *testing.T) {
	store, err := NewStore("bbolt", t.TempDir()+"/extractions.db")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	first := domain.NewExtraction("car_license", "uploads/license.pdf", nil)
	second := domain.NewExtraction("car_license", "uploads/license.pdf", nil)
	if err := store.Create(first); err != nil {
		t.Fatalf("Create first: %v", err)
	}
	if err := store.Create(second); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	latest, ok, err := store.FindLatest("car_license", "uploads/license.pdf")
	if err != nil || !ok {
		t.Fatalf("FindLatest: ok=%v err=%v", ok, err)
	}
	if latest.ID != second.ID {
		t.Fatalf("FindLatest returned %s, want newest %s", latest.ID, second.ID)
	}
}

func TestBoltStoreTaskIndexTracksUpdates(t *testing.T) {
	store, err := NewStore("bbolt", t.TempDir()+"/extractions.db")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	rec := domain.NewExtraction("car_license", "uploads/license.pdf", nil)
	if err := store.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, ok, _ := store.GetByTaskID("task-1"); ok {
		t.Fatalf("task index should be empty before update")
	}

	if _, err := store.Update(rec.ID, func(e *domain.Extraction) {
		e.ExternalTaskID = "task-1"
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, ok, err := store.GetByTaskID("task-1")
	if err != nil || !ok {
		t.Fatalf("GetByTaskID: ok=%v err=%v", ok, err)
	}
	if got.ID != rec.ID {
		t.Fatalf("GetByTaskID returned %s, want %s", got.ID, rec.ID)
	}

	// Re-assigning the task id moves the index entry.
	if _, err := store.Update(rec.ID, func(e *domain.Extraction) {
		e.ExternalTaskID = "task-2"
	}); err != nil {
		t.Fatalf("Update reassign: %v", err)
	}
	if _, ok, _ := store.GetByTaskID("task-1"); ok {
		t.Fatalf("stale task index entry survived reassignment")
	}
	if _, ok, _ := store.GetByTaskID("task-2"); !ok {
		t.Fatalf("new task index entry missing")
	}
}

func TestBoltStoreUpdateMissingRecord(t *testing.T) {
	store, err := NewStore("bbolt", t.TempDir()+"/extractions.db")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	if _, err := store.Update("nope", func(*domain.Extraction) {}); err != ErrNotFound {
		t.Fatalf("Update missing record err = %v, want ErrNotFound", err)
	}
}

func TestNewStoreRejectsUnknownType(t *testing.T) {
	if _, err := NewStore("cassandra", ""); err == nil {
		t.Fatalf("expected error for unsupported storage type")
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()

	rec := domain.NewExtraction("invoice", "uploads/inv.pdf", map[string]string{"k": "v"})
	if err := store.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok, err := store.Get(rec.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	got.Metadata["k"] = "mutated"

	again, _, _ := store.Get(rec.ID)
	if again.Metadata["k"] != "v" {
		t.Fatalf("store copy was mutated through a returned record")
	}
}
