package extraction

import (
	"context"
	"fmt"

	"github.com/rentora-hq/extraction-gateway/internal/dispatch"
	"github.com/rentora-hq/extraction-gateway/internal/domain"
	"github.com/rentora-hq/extraction-gateway/internal/logger"
	"github.com/rentora-hq/extraction-gateway/internal/storage"
	"github.com/rentora-hq/extraction-gateway/pkg/filestore"
	"github.com/rentora-hq/extraction-gateway/pkg/providers"
	"github.com/rentora-hq/extraction-gateway/pkg/publishers"
)

// Service drives extraction records through their lifecycle: create and
// deduplicate requests, push files to the provider, and reconcile webhook
// callbacks onto the stored record.
type Service struct {
	store      storage.Store
	files      filestore.Store
	provider   providers.Provider
	doctypes   *providers.DocTypeRegistry
	dispatcher dispatch.Dispatcher
	fanout     *publishers.Fanout
	log        logger.Logger
}

// NewService wires the orchestrator with its collaborators. The dispatcher
// and fanout may be nil (synchronous tests, no event sinks).
func NewService(
	store storage.Store,
	files filestore.Store,
	provider providers.Provider,
	doctypes *providers.DocTypeRegistry,
	dispatcher dispatch.Dispatcher,
	fanout *publishers.Fanout,
	log logger.Logger,
) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("record store must not be nil")
	}
	if files == nil {
		return nil, fmt.Errorf("file store must not be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}

	return &Service{
		store:      store,
		files:      files,
		provider:   provider,
		doctypes:   doctypes,
		dispatcher: dispatcher,
		fanout:     fanout,
		log:        log,
	}, nil
}

// Request finds the latest record for (docType, filename) or creates a new
// pending one. New records are scheduled for background processing before the
// call returns. force always creates a fresh record, leaving prior ones
// untouched.
func (s *Service) Request(ctx context.Context, docType, filename string, metadata map[string]string, force bool) (*domain.Extraction, error) {
	if docType == "" || filename == "" {
		return nil, fmt.Errorf("document type and filename are required")
	}

	if !force {
		existing, ok, err := s.store.FindLatest(docType, filename)
		if err != nil {
			return nil, fmt.Errorf("lookup existing record: %w", err)
		}
		if ok {
			s.log.DebugObj("extraction request deduplicated", "extraction_request", map[string]any{
				"extraction_id": existing.ID,
				"document_type": docType,
				"filename":      filename,
			})
			return existing, nil
		}
	}

	if s.doctypes != nil {
		metadata = s.doctypes.MergeMetadata(docType, metadata)
	}

	rec := domain.NewExtraction(docType, filename, metadata)
	if err := s.store.Create(rec); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	s.log.InfoObj("extraction requested", "extraction_request", map[string]any{
		"extraction_id": rec.ID,
		"document_type": docType,
		"filename":      filename,
	})
	s.publish(ctx, rec)

	if s.dispatcher != nil {
		if err := s.dispatcher.Enqueue(rec.ID); err != nil {
			// The record stays pending and visible in the store; operators can
			// requeue it once the backlog clears.
			s.log.ErrorObj("extraction dispatch failed", "dispatch_error", map[string]any{
				"extraction_id": rec.ID,
				"error":         err.Error(),
			})
		}
	}

	return rec, nil
}

// Process fetches the file and uploads it to the provider, attaching the
// returned task id to the record. Domain failures land on the record as a
// failed transition and are not returned; the error return exists solely for
// store I/O so the dispatcher can retry infrastructure hiccups. Re-delivery
// of an already-terminal or already-submitted record is a no-op.
func (s *Service) Process(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.ErrorObj("extraction processing panicked", "process_error", map[string]any{
				"extraction_id": id,
				"panic":         fmt.Sprint(r),
			})
			_, err = s.failByID(ctx, id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	rec, ok, err := s.store.Get(id)
	if err != nil {
		return fmt.Errorf("load record %s: %w", id, err)
	}
	if !ok {
		s.log.WarnObj("no extraction found for processing", "process_warning", map[string]any{
			"extraction_id": id,
		})
		return nil
	}
	if rec.Status.Terminal() || rec.ExternalTaskID != "" {
		s.log.DebugObj("extraction already processed, skipping", "process_result", map[string]any{
			"extraction_id":    id,
			"status":           rec.Status,
			"external_task_id": rec.ExternalTaskID,
		})
		return nil
	}

	contents, err := s.files.Get(ctx, rec.Filename)
	if err != nil {
		_, ferr := s.failByID(ctx, id, fmt.Sprintf("file not retrievable from storage: %s: %v", rec.Filename, err))
		return ferr
	}

	result := s.provider.Upload(ctx, providers.UploadRequest{
		Filename:     rec.Filename,
		Contents:     contents,
		DocumentType: rec.Type,
		Metadata:     rec.Metadata,
	})

	if result.Status != domain.StatusPending || result.TaskID == "" {
		message := result.Message
		if message == "" {
			message = "unexpected provider response"
		}
		_, ferr := s.failByID(ctx, id, message)
		return ferr
	}

	updated, err := s.store.Update(id, func(e *domain.Extraction) {
		e.ExternalTaskID = result.TaskID
	})
	if err != nil {
		return fmt.Errorf("store task id on %s: %w", id, err)
	}

	s.log.InfoObj("extraction submitted to provider", "process_result", map[string]any{
		"extraction_id":    updated.ID,
		"external_task_id": updated.ExternalTaskID,
	})
	return nil
}

// Complete marks the record matching taskID as completed, resolving the
// business identifier from the general fields. An unknown task id returns
// (nil, nil): the webhook sender only needs delivery confirmation.
func (s *Service) Complete(ctx context.Context, taskID string, generalFields, lineFields, fullPayload map[string]any) (*domain.Extraction, error) {
	rec, ok, err := s.store.GetByTaskID(taskID)
	if err != nil {
		return nil, fmt.Errorf("lookup record by task id: %w", err)
	}
	if !ok {
		s.log.WarnObj("no extraction found for task id", "completion_warning", map[string]any{
			"task_id": taskID,
		})
		return nil, nil
	}

	extracted := fullPayload
	if len(extracted) == 0 {
		extracted = map[string]any{
			"general_fields": generalFields,
			"line_fields":    lineFields,
		}
	}
	identifier := resolveIdentifier(rec, generalFields)

	updated, err := s.store.Update(rec.ID, func(e *domain.Extraction) {
		e.Status = domain.StatusCompleted
		e.Identifier = identifier
		e.ExtractedData = extracted
		e.ErrorMessage = ""
	})
	if err != nil {
		return nil, fmt.Errorf("complete record %s: %w", rec.ID, err)
	}

	s.log.InfoObj("extraction completed", "completion_result", map[string]any{
		"extraction_id":    updated.ID,
		"external_task_id": taskID,
		"identifier":       identifier,
	})
	s.publish(ctx, updated)
	return updated, nil
}

// FailByID marks the record with the given id as failed.
func (s *Service) FailByID(ctx context.Context, id, message string) (*domain.Extraction, error) {
	return s.failByID(ctx, id, message)
}

// FailByTaskID resolves a record through its external task id and marks it
// failed. An unknown task id returns (nil, nil).
func (s *Service) FailByTaskID(ctx context.Context, taskID, message string) (*domain.Extraction, error) {
	rec, ok, err := s.store.GetByTaskID(taskID)
	if err != nil {
		return nil, fmt.Errorf("lookup record by task id: %w", err)
	}
	if !ok {
		s.log.WarnObj("no extraction found for failure", "failure_warning", map[string]any{
			"task_id": taskID,
			"message": message,
		})
		return nil, nil
	}
	return s.failByID(ctx, rec.ID, message)
}

func (s *Service) failByID(ctx context.Context, id, message string) (*domain.Extraction, error) {
	updated, err := s.store.Update(id, func(e *domain.Extraction) {
		e.Status = domain.StatusFailed
		e.ErrorMessage = message
	})
	if err == storage.ErrNotFound {
		s.log.WarnObj("no extraction found for failure", "failure_warning", map[string]any{
			"extraction_id": id,
			"message":       message,
		})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fail record %s: %w", id, err)
	}

	s.log.ErrorObj("extraction failed", "failure_result", map[string]any{
		"extraction_id": id,
		"error_message": message,
	})
	s.publish(ctx, updated)
	return updated, nil
}

// publish fans the record's current state out to configured sinks. Publish
// failures are logged, never propagated: lifecycle transitions must not
// depend on downstream availability.
func (s *Service) publish(ctx context.Context, rec *domain.Extraction) {
	if s.fanout == nil || s.fanout.Size() == 0 {
		return
	}
	if _, err := s.fanout.Publish(ctx, publishers.NewEvent(rec)); err != nil {
		s.log.WarnObj("lifecycle event delivery incomplete", "publish_warning", map[string]any{
			"extraction_id": rec.ID,
			"error":         err.Error(),
		})
	}
}

// resolveIdentifier reads the configured identifier field name from the
// record's metadata and looks its value up in the provider's general fields.
// A missing field or unset metadata key yields an empty identifier.
func resolveIdentifier(rec *domain.Extraction, generalFields map[string]any) string {
	fieldName := rec.MetaValue(domain.MetaIdentifierField)
	if fieldName == "" {
		return ""
	}

	field, ok := generalFields[fieldName].(map[string]any)
	if !ok {
		return ""
	}
	value, ok := field["value"]
	if !ok || value == nil {
		return ""
	}
	return fmt.Sprint(value)
}
