// Package confidence combines the available analysis signals into one
// weighted confidence score and boolean verdict.
package confidence

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/idverify/internal/inspection"
)

// ErrInconclusive means no usable signal was available. This is distinct
// from a rejection: nothing could be evaluated at all.
var ErrInconclusive = errors.New("confidence: inconclusive, no usable signals")

// Weights is the signal weighting policy. The 0.30/0.30/0.40 split is a
// product decision carried as a named constant, not a derived value.
type Weights struct {
	Document     float64
	Authenticity float64
	Facial       float64
}

// DefaultWeights is the nominal production weighting.
var DefaultWeights = Weights{Document: 0.30, Authenticity: 0.30, Facial: 0.40}

// Verdict is the final outcome for one verification attempt.
type Verdict struct {
	ConfidenceScore float64 `json:"confidence_score"`
	Verified        bool    `json:"verified"`
	Summary         string  `json:"summary"`
}

// Aggregate computes the verdict from whichever signals are present,
// renormalizing weights over the available ones. It is pure and
// deterministic: the same signal set always yields the same verdict.
func Aggregate(signals inspection.SignalSet, weights Weights) (*Verdict, error) {
	type contribution struct {
		weight float64
		score  float64
	}
	var parts []contribution

	if signals.Document != nil {
		score := 0.0
		if signals.Document.IsValid {
			score = 1.0
		}
		parts = append(parts, contribution{weights.Document, score})
	}
	if signals.Authenticity != nil {
		parts = append(parts, contribution{weights.Authenticity, signals.Authenticity.Score})
	}
	if signals.Facial != nil {
		parts = append(parts, contribution{weights.Facial, signals.Facial.Score})
	}

	if len(parts) == 0 {
		return nil, ErrInconclusive
	}

	var totalWeight float64
	for _, p := range parts {
		totalWeight += p.weight
	}

	var score float64
	for _, p := range parts {
		score += (p.weight / totalWeight) * p.score
	}
	score = math.Round(score*100) / 100
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	// The boolean gate is strict: every signal must be present and agree.
	// A high score never overrides a missing or failed gate.
	verified := signals.Document != nil && signals.Document.IsValid &&
		signals.Authenticity != nil && signals.Authenticity.IsAuthentic &&
		signals.Facial != nil && signals.Facial.Match

	return &Verdict{
		ConfidenceScore: score,
		Verified:        verified,
		Summary:         summarize(signals, verified, score),
	}, nil
}

// summarize renders a deterministic templated sentence for audit/display.
func summarize(signals inspection.SignalSet, verified bool, score float64) string {
	docStatus := "document extraction unavailable"
	if signals.Document != nil {
		if signals.Document.IsValid {
			docStatus = "document valid"
		} else {
			docStatus = "document invalid"
		}
	}

	authStatus := "authenticity unavailable"
	if signals.Authenticity != nil {
		if signals.Authenticity.IsAuthentic {
			authStatus = "document authentic"
		} else {
			authStatus = "document not authentic"
		}
	}

	faceStatus := "facial comparison unavailable"
	if signals.Facial != nil {
		if signals.Facial.Match {
			faceStatus = fmt.Sprintf("faces match (%s confidence)", signals.Facial.ConfidenceLabel)
		} else {
			faceStatus = fmt.Sprintf("faces do not match (%s confidence)", signals.Facial.ConfidenceLabel)
		}
	}

	outcome := "not verified"
	if verified {
		outcome = "verified"
	}
	return fmt.Sprintf("%s; %s; %s; overall %s with confidence %.2f",
		docStatus, authStatus, faceStatus, outcome, score)
}
