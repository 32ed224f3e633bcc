package domain

import (
	"time"

	"github.com/google/uuid"
)

// Domain contains core models shared across packages.

// Status tracks an extraction through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Metadata keys recognized by the provider adapters.
const (
	MetaTemplateID      = "template_id"
	MetaFolderID        = "folder_id"
	MetaIdentifierField = "identifier_field"
)

// Extraction is the persisted unit of work tracking one document's
// extraction attempt against an external provider.
type Extraction struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Filename       string            `json:"filename"`
	Identifier     string            `json:"identifier"`
	ExtractedData  map[string]any    `json:"extracted_data"`
	Metadata       map[string]string `json:"metadata"`
	Status         Status            `json:"status"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	ExternalTaskID string            `json:"external_task_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewExtraction builds a pending record for the given document type and file key.
func NewExtraction(docType, filename string, metadata map[string]string) *Extraction {
	if metadata == nil {
		metadata = map[string]string{}
	}
	now := time.Now().UTC()
	return &Extraction{
		ID:            uuid.NewString(),
		Type:          docType,
		Filename:      filename,
		Identifier:    "",
		ExtractedData: map[string]any{},
		Metadata:      metadata,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MetaValue returns the metadata value for key, or "" when absent.
func (e *Extraction) MetaValue(key string) string {
	if e == nil || e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}
