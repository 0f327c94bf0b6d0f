package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/idverify/internal/inspection"
)

// Ingestor validates and persists uploaded image bytes.
type Ingestor interface {
	Ingest(ctx context.Context, data []byte, declaredMimeType string) (string, error)
}

// The granular endpoints run exactly one analysis task each. Images still
// pass through ingestion so the same validation and audit trail applies.

// ExtractDocument runs the document extraction task alone.
func (uc *VerificationUseCase) ExtractDocument(ctx context.Context, doc []byte, mimeType string) (*inspection.DocumentExtraction, error) {
	requestID := uuid.NewString()
	if _, err := uc.ingestor.Ingest(ctx, doc, mimeType); err != nil {
		return nil, err
	}
	return uc.analysis.ExtractDocument(ctx, requestID, inspection.Image{Role: "document", Data: doc, MimeType: mimeType})
}

// AnalyzeDocument runs the authenticity assessment alone.
func (uc *VerificationUseCase) AnalyzeDocument(ctx context.Context, doc []byte, mimeType string) (*inspection.AuthenticityAssessment, error) {
	requestID := uuid.NewString()
	if _, err := uc.ingestor.Ingest(ctx, doc, mimeType); err != nil {
		return nil, err
	}
	return uc.analysis.AssessAuthenticity(ctx, requestID, inspection.Image{Role: "document", Data: doc, MimeType: mimeType})
}

// FacialSimilarity runs the face comparison alone.
func (uc *VerificationUseCase) FacialSimilarity(ctx context.Context, selfie, doc []byte, selfieMime, docMime string) (*inspection.FacialSimilarityAssessment, error) {
	requestID := uuid.NewString()
	if _, err := uc.ingestor.Ingest(ctx, selfie, selfieMime); err != nil {
		return nil, err
	}
	if _, err := uc.ingestor.Ingest(ctx, doc, docMime); err != nil {
		return nil, err
	}
	return uc.analysis.AssessFacialSimilarity(ctx, requestID,
		inspection.Image{Role: "selfie", Data: selfie, MimeType: selfieMime},
		inspection.Image{Role: "document", Data: doc, MimeType: docMime})
}
