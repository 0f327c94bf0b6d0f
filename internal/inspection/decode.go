package inspection

import "encoding/json"

// The provider is a best-effort model, not a deterministic parser. Decoding
// is therefore field-by-field: a missing or type-mangled field is coerced to
// a safe default and the rest of the signal survives.

type looseFields map[string]json.RawMessage

func parseLoose(raw json.RawMessage) looseFields {
	var fields looseFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return looseFields{}
	}
	return fields
}

func (f looseFields) str(key string) string {
	var s string
	if raw, ok := f[key]; ok {
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
	}
	return s
}

func (f looseFields) boolean(key string) bool {
	var b bool
	if raw, ok := f[key]; ok {
		if err := json.Unmarshal(raw, &b); err != nil {
			return false
		}
	}
	return b
}

// score defaults to 0 and clamps into [0,1].
func (f looseFields) score(key string) float64 {
	var v float64
	if raw, ok := f[key]; ok {
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0
		}
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (f looseFields) strings(key string) []string {
	var values []string
	if raw, ok := f[key]; ok {
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil
		}
	}
	return values
}

func (f looseFields) confidence(key string) ConfidenceLabel {
	return normalizeConfidence(f.str(key))
}

func decodeDocumentExtraction(raw json.RawMessage) *DocumentExtraction {
	fields := parseLoose(raw)
	return &DocumentExtraction{
		DocumentType:    fields.str("document_type"),
		DocumentNumber:  fields.str("document_number"),
		FullName:        fields.str("full_name"),
		BirthDate:       fields.str("birth_date"),
		ExpiryDate:      fields.str("expiry_date"),
		Nationality:     fields.str("nationality"),
		IsValid:         fields.boolean("is_valid"),
		ConfidenceLabel: fields.confidence("confidence_label"),
		Rationale:       fields.str("rationale"),
	}
}

func decodeAuthenticityAssessment(raw json.RawMessage) *AuthenticityAssessment {
	fields := parseLoose(raw)
	return &AuthenticityAssessment{
		IsAuthentic:           fields.boolean("is_authentic"),
		Score:                 fields.score("score"),
		ConfidenceLabel:       fields.confidence("confidence_label"),
		SecurityFeaturesFound: fields.strings("security_features_found"),
		ManipulationSigns:     fields.strings("manipulation_signs"),
		Rationale:             fields.str("rationale"),
	}
}

func decodeFacialSimilarity(raw json.RawMessage) *FacialSimilarityAssessment {
	fields := parseLoose(raw)
	return &FacialSimilarityAssessment{
		Score:           fields.score("score"),
		Match:           fields.boolean("match"),
		ConfidenceLabel: fields.confidence("confidence_label"),
		Rationale:       fields.str("rationale"),
	}
}
