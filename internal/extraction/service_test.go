package extraction

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/rentora-hq/extraction-gateway/internal/domain"
	"github.com/rentora-hq/extraction-gateway/internal/storage"
	"github.com/rentora-hq/extraction-gateway/pkg/filestore"
	"github.com/rentora-hq/extraction-gateway/pkg/providers"
)

// fakeFiles serves file bytes from a map.
type fakeFiles struct {
	files map[string][]byte
}

func (f *fakeFiles) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", filestore.ErrNotFound, key)
	}
	return data, nil
}

// fakeProvider returns a scripted result and records calls.
type fakeProvider struct {
	result providers.UploadResult
	calls  []providers.UploadRequest
	panics bool
}

func (f *fakeProvider) ID() string { return "fake" }

func (f *fakeProvider) Upload(_ context.Context, req providers.UploadRequest) providers.UploadResult {
	f.calls = append(f.calls, req)
	if f.panics {
		panic("provider blew up")
	}
	return f.result
}

// fakeDispatcher records enqueued ids.
type fakeDispatcher struct {
	ids []string
	err error
}

func (f *fakeDispatcher) Enqueue(id string) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	return nil
}

type fixture struct {
	service    *Service
	store      storage.Store
	files      *fakeFiles
	provider   *fakeProvider
	dispatcher *fakeDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	files := &fakeFiles{files: map[string][]byte{
		"uploads/license.pdf": []byte("%PDF"),
	}}
	provider := &fakeProvider{result: providers.UploadResult{
		Status: domain.StatusPending,
		TaskID: "task-1",
	}}
	dispatcher := &fakeDispatcher{}

	service, err := NewService(store, files, provider, nil, dispatcher, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{
		service:    service,
		store:      store,
		files:      files,
		provider:   provider,
		dispatcher: dispatcher,
	}
}

func TestRequestDeduplicatesByTypeAndFilename(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.service.Request(ctx, "car_license", "uploads/license.pdf", nil, false)
	if err != nil {
		t.Fatalf("first Request: %v", err)
	}
	second, err := fx.service.Request(ctx, "car_license", "uploads/license.pdf", nil, false)
	if err != nil {
		t.Fatalf("second Request: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("dedup returned different ids: %s vs %s", first.ID, second.ID)
	}
	if len(fx.dispatcher.ids) != 1 {
		t.Fatalf("background processing scheduled %d times, want 1", len(fx.dispatcher.ids))
	}
}

func TestRequestForceCreatesFreshRecord(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.service.Request(ctx, "car_license", "uploads/license.pdf", nil, false)
	if err != nil {
		t.Fatalf("first Request: %v", err)
	}
	forced, err := fx.service.Request(ctx, "car_license", "uploads/license.pdf", nil, true)
	if err != nil {
		t.Fatalf("forced Request: %v", err)
	}

	if forced.ID == first.ID {
		t.Fatalf("force should create a distinct record")
	}

	// The prior record is untouched.
	prior, ok, _ := fx.store.Get(first.ID)
	if !ok || prior.Status != domain.StatusPending {
		t.Fatalf("prior record mutated: ok=%v status=%s", ok, prior.Status)
	}
	if len(fx.dispatcher.ids) != 2 {
		t.Fatalf("scheduled %d jobs, want 2", len(fx.dispatcher.ids))
	}
}

func TestProcessAttachesTaskID(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	rec, _ := fx.service.Request(ctx, "car_license", "uploads/license.pdf", map[string]string{
		domain.MetaTemplateID: "tpl-1",
	}, false)

	if err := fx.service.Process(ctx, rec.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _, _ := fx.store.Get(rec.ID)
	if got.Status != domain.StatusPending {
		t.Fatalf("Status = %s, want pending", got.Status)
	}
	if got.ExternalTaskID != "task-1" {
		t.Fatalf("ExternalTaskID = %q, want task-1", got.ExternalTaskID)
	}
	if len(fx.provider.calls) != 1 {
		t.Fatalf("provider called %d times, want 1", len(fx.provider.calls))
	}
	if fx.provider.calls[0].Metadata[domain.MetaTemplateID] != "tpl-1" {
		t.Fatalf("metadata not forwarded to provider: %#v", fx.provider.calls[0].Metadata)
	}
}

func TestProcessMissingFileFailsWithoutProviderCall(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	rec, _ := fx.service.Request(ctx, "car_license", "uploads/ghost.pdf", nil, false)

	if err := fx.service.Process(ctx, rec.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _, _ := fx.store.Get(rec.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatalf("ErrorMessage should describe the missing file")
	}
	if len(fx.provider.calls) != 0 {
		t.Fatalf("provider should not be called when the file is missing")
	}
}

func TestProcessProviderFailureFailsRecord(t *testing.T) {
	fx := newFixture(t)
	fx.provider.result = providers.UploadResult{
		Status:  domain.StatusFailed,
		Message: "authentication failed with Koncile AI",
	}
	ctx := context.Background()

	rec, _ := fx.service.Request(ctx, "car_license", "uploads/license.pdf", nil, false)
	if err := fx.service.Process(ctx, rec.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _, _ := fx.store.Get(rec.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if got.ErrorMessage != "authentication failed with Koncile AI" {
		t.Fatalf("ErrorMessage = %q", got.ErrorMessage)
	}
}

func TestProcessPendingWithoutTaskIDFailsRecord(t *testing.T) {
	fx := newFixture(t)
	fx.provider.result = providers.UploadResult{Status: domain.StatusPending}
	ctx := context.Background()

	rec, _ := fx.service.Request(ctx, "car_license", "uploads/license.pdf", nil, false)
	if err := fx.service.Process(ctx, rec.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _, _ := fx.store.Get(rec.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("pending result without task id should fail the record, got %s", got.Status)
	}
}

func TestProcessRecoversPanicsIntoFailure(t *testing.T) {
	fx := newFixture(t)
	fx.provider.panics = true
	ctx := context.Background()

	rec, _ := fx.service.Request(ctx, "car_license", "uploads/license.pdf", nil, false)
	if err := fx.service.Process(ctx, rec.ID); err != nil {
		t.Fatalf("Process should swallow the panic, got %v", err)
	}

	got, _, _ := fx.store.Get(rec.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
}

func TestProcessIsIdempotentOnRedelivery(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	rec, _ := fx.service.Request(ctx, "car_license", "uploads/license.pdf", nil, false)
	if err := fx.service.Process(ctx, rec.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	// At-least-once delivery may hand the same id over again.
	if err := fx.service.Process(ctx, rec.ID); err != nil {
		t.Fatalf("redelivered Process: %v", err)
	}

	if len(fx.provider.calls) != 1 {
		t.Fatalf("provider called %d times, want 1", len(fx.provider.calls))
	}
}

func TestCompleteResolvesIdentifier(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	rec, _ := fx.service.Request(ctx, "car_license", "uploads/license.pdf", map[string]string{
		domain.MetaIdentifierField: "license_number",
	}, false)
	if err := fx.service.Process(ctx, rec.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	general := map[string]any{
		"license_number": map[string]any{"value": "12-345-67", "confidence": 0.98},
	}
	updated, err := fx.service.Complete(ctx, "task-1", general, map[string]any{}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if updated == nil {
		t.Fatalf("Complete returned nil for a known task id")
	}
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("Status = %s, want completed", updated.Status)
	}
	if updated.Identifier != "12-345-67" {
		t.Fatalf("Identifier = %q, want 12-345-67", updated.Identifier)
	}
	fields, ok := updated.ExtractedData["general_fields"].(map[string]any)
	if !ok || fields["license_number"] == nil {
		t.Fatalf("ExtractedData should compose general fields: %#v", updated.ExtractedData)
	}
}

func TestCompletePrefersFullPayload(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	rec, _ := fx.service.Request(ctx, "car_license", "uploads/license.pdf", nil, false)
	if err := fx.service.Process(ctx, rec.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	full := map[string]any{"task_id": "task-1", "status": "DONE"}
	updated, err := fx.service.Complete(ctx, "task-1", map[string]any{}, map[string]any{}, full)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if updated.ExtractedData["status"] != "DONE" {
		t.Fatalf("full payload should be stored as extracted data: %#v", updated.ExtractedData)
	}
	// No identifier field configured: empty identifier, not an error.
	if updated.Identifier != "" {
		t.Fatalf("Identifier = %q, want empty", updated.Identifier)
	}
}

func TestCompleteUnknownTaskIDReturnsNil(t *testing.T) {
	fx := newFixture(t)

	updated, err := fx.service.Complete(context.Background(), "no-such-task", nil, nil, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if updated != nil {
		t.Fatalf("unknown task id should return nil, got %#v", updated)
	}
}

func TestFailByIDAndByTaskID(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	rec, _ := fx.service.Request(ctx, "car_license", "uploads/license.pdf", nil, false)
	if err := fx.service.Process(ctx, rec.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	byTask, err := fx.service.FailByTaskID(ctx, "task-1", "provider gave up")
	if err != nil {
		t.Fatalf("FailByTaskID: %v", err)
	}
	if byTask == nil || byTask.Status != domain.StatusFailed || byTask.ErrorMessage != "provider gave up" {
		t.Fatalf("unexpected record after FailByTaskID: %#v", byTask)
	}

	other, _ := fx.service.Request(ctx, "car_license", "uploads/license.pdf", nil, true)
	byID, err := fx.service.FailByID(ctx, other.ID, "manual abort")
	if err != nil {
		t.Fatalf("FailByID: %v", err)
	}
	if byID == nil || byID.Status != domain.StatusFailed || byID.ErrorMessage != "manual abort" {
		t.Fatalf("unexpected record after FailByID: %#v", byID)
	}

	if rec, err := fx.service.FailByTaskID(ctx, "no-such-task", "whatever"); err != nil || rec != nil {
		t.Fatalf("unknown task id should be (nil, nil), got %#v err=%v", rec, err)
	}
}

func TestRequestMergesDocTypeDefaults(t *testing.T) {
	reg := writeRegistry(t)
	store := storage.NewMemoryStore()
	files := &fakeFiles{files: map[string][]byte{"uploads/license.pdf": []byte("x")}}
	provider := &fakeProvider{result: providers.UploadResult{Status: domain.StatusPending, TaskID: "t"}}

	service, err := NewService(store, files, provider, reg, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	rec, err := service.Request(context.Background(), "car_license", "uploads/license.pdf", nil, false)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if rec.Metadata[domain.MetaTemplateID] != "tpl-1" {
		t.Fatalf("registry template_id not merged: %#v", rec.Metadata)
	}
	if rec.Metadata[domain.MetaIdentifierField] != "license_number" {
		t.Fatalf("registry identifier_field not merged: %#v", rec.Metadata)
	}
}

func writeRegistry(t *testing.T) *providers.DocTypeRegistry {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/doctypes.yaml"
	content := `
document_types:
  - type: car_license
    template_id: tpl-1
    identifier_field: license_number
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write doctypes: %v", err)
	}
	reg, err := providers.LoadDocTypes(path)
	if err != nil {
		t.Fatalf("LoadDocTypes: %v", err)
	}
	return reg
}
