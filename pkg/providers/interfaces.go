package providers

import (
	"context"

	"github.com/rentora-hq/extraction-gateway/internal/domain"
)

// UploadRequest carries one document to an extraction provider.
type UploadRequest struct {
	Filename     string
	Contents     []byte
	DocumentType string
	Metadata     map[string]string
}

// UploadResult is the normalized outcome of a provider upload. Status is
// pending (the provider accepted the file and assigned TaskID) or failed.
type UploadResult struct {
	Status  domain.Status
	TaskID  string
	Message string
}

// Provider submits documents to an external extraction API. Concrete
// implementations live in provider-specific files (e.g., koncile.go).
type Provider interface {
	ID() string
	Upload(ctx context.Context, req UploadRequest) UploadResult
}

func pendingResult(taskID, message string) UploadResult {
	return UploadResult{Status: domain.StatusPending, TaskID: taskID, Message: message}
}

func failedResult(message string) UploadResult {
	return UploadResult{Status: domain.StatusFailed, Message: message}
}
