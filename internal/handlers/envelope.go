package handlers

import (
	"time"

	"github.com/example/idverify/internal/inspection"
	"github.com/example/idverify/internal/usecase"
)

// verifyResponse is the full result envelope for POST /verify.
type verifyResponse struct {
	Code                       string                                 `json:"code"`
	Status                     string                                 `json:"status"`
	Reason                     string                                 `json:"reason,omitempty"`
	Timestamp                  time.Time                              `json:"timestamp"`
	AttemptNumber              int                                    `json:"attempt_number"`
	DocumentInfo               *inspection.DocumentExtraction         `json:"documentInfo,omitempty"`
	DocumentAuthenticityResult *inspection.AuthenticityAssessment     `json:"documentAuthenticityResult,omitempty"`
	FacialSimilarityResult     *inspection.FacialSimilarityAssessment `json:"facialSimilarityResult,omitempty"`
	OverallResult              *overallResult                         `json:"overallResult,omitempty"`
}

type overallResult struct {
	Verified        bool    `json:"verified"`
	ConfidenceScore float64 `json:"confidenceScore"`
	Details         string  `json:"details"`
}

func buildVerifyResponse(result *usecase.VerificationResult) verifyResponse {
	sess := result.Session
	resp := verifyResponse{
		Code:          result.Code,
		Status:        string(sess.Status),
		Reason:        string(sess.Reason),
		Timestamp:     time.Now().UTC(),
		AttemptNumber: sess.AttemptNumber,
	}
	resp.DocumentInfo = sess.Signals.Document
	resp.DocumentAuthenticityResult = sess.Signals.Authenticity
	resp.FacialSimilarityResult = sess.Signals.Facial
	if sess.Verdict != nil {
		resp.OverallResult = &overallResult{
			Verified:        sess.Verdict.Verified,
			ConfidenceScore: sess.Verdict.ConfidenceScore,
			Details:         sess.Verdict.Summary,
		}
	}
	return resp
}
