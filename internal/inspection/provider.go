package inspection

import (
	"context"
	"encoding/json"
)

// Task identifies one of the three analysis tasks.
type Task string

const (
	TaskExtractDocument  Task = "extract_document"
	TaskAssessDocument   Task = "assess_authenticity"
	TaskFacialSimilarity Task = "facial_similarity"
)

// Schema tags the provider must echo back. The response schema is a contract
// we validate, not a promise we trust.
const (
	SchemaDocumentExtraction = "document_extraction.v1"
	SchemaAuthenticity       = "authenticity_assessment.v1"
	SchemaFacialSimilarity   = "facial_similarity.v1"
)

// Image is one encoded input image for an analysis task.
type Image struct {
	Role     string `json:"role"` // "document" or "selfie"
	Data     []byte `json:"data"` // raw bytes; transport encodes as base64
	MimeType string `json:"mime_type"`
}

// TaskRequest is a structured request for one analysis task.
type TaskRequest struct {
	Task   Task
	Schema string
	Prompt string
	Images []Image
}

// Provider submits analysis tasks to the external multimodal inspection
// service and returns its schema-tagged structured payload.
type Provider interface {
	Submit(ctx context.Context, req TaskRequest) (json.RawMessage, error)
}
