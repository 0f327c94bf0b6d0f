package inspection

// ConfidenceLabel is the provider's qualitative confidence in a signal.
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "high"
	ConfidenceMedium ConfidenceLabel = "medium"
	ConfidenceLow    ConfidenceLabel = "low"
)

// normalizeConfidence coerces arbitrary provider output to a known label.
// Anything unrecognized degrades to low rather than failing the signal.
func normalizeConfidence(raw string) ConfidenceLabel {
	switch ConfidenceLabel(raw) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return ConfidenceLabel(raw)
	default:
		return ConfidenceLow
	}
}

// DocumentExtraction holds the structured fields read from a document image.
type DocumentExtraction struct {
	DocumentType    string          `json:"document_type"`
	DocumentNumber  string          `json:"document_number"`
	FullName        string          `json:"full_name"`
	BirthDate       string          `json:"birth_date"`
	ExpiryDate      string          `json:"expiry_date"`
	Nationality     string          `json:"nationality"`
	IsValid         bool            `json:"is_valid"`
	ConfidenceLabel ConfidenceLabel `json:"confidence_label"`
	Rationale       string          `json:"rationale"`
}

// AuthenticityAssessment holds the provider's tamper/forgery judgement.
type AuthenticityAssessment struct {
	IsAuthentic           bool            `json:"is_authentic"`
	Score                 float64         `json:"score"`
	ConfidenceLabel       ConfidenceLabel `json:"confidence_label"`
	SecurityFeaturesFound []string        `json:"security_features_found"`
	ManipulationSigns     []string        `json:"manipulation_signs"`
	Rationale             string          `json:"rationale"`
}

// FacialSimilarityAssessment compares the selfie to the document portrait.
type FacialSimilarityAssessment struct {
	Score           float64         `json:"score"`
	Match           bool            `json:"match"`
	ConfidenceLabel ConfidenceLabel `json:"confidence_label"`
	Rationale       string          `json:"rationale"`
}

// SignalSet carries whichever of the three signals resolved for one attempt.
// A nil entry means that signal was unavailable; partial sets are valid
// aggregator input.
type SignalSet struct {
	Document     *DocumentExtraction
	Authenticity *AuthenticityAssessment
	Facial       *FacialSimilarityAssessment
}

// Empty reports whether no signal resolved at all.
func (s SignalSet) Empty() bool {
	return s.Document == nil && s.Authenticity == nil && s.Facial == nil
}
