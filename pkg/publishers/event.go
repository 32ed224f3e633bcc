package publishers

import (
	"time"

	"github.com/rentora-hq/extraction-gateway/internal/domain"
)

// Event represents one extraction lifecycle transition published downstream.
type Event struct {
	ExtractionID   string    `json:"extraction_id"`
	DocumentType   string    `json:"document_type"`
	Filename       string    `json:"filename"`
	Status         string    `json:"status"`
	ExternalTaskID string    `json:"external_task_id,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEvent constructs an Event snapshot from the record's current state.
func NewEvent(rec *domain.Extraction) Event {
	if rec == nil {
		return Event{OccurredAt: time.Now().UTC()}
	}
	return Event{
		ExtractionID:   rec.ID,
		DocumentType:   rec.Type,
		Filename:       rec.Filename,
		Status:         string(rec.Status),
		ExternalTaskID: rec.ExternalTaskID,
		ErrorMessage:   rec.ErrorMessage,
		OccurredAt:     time.Now().UTC(),
	}
}
