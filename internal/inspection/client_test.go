package inspection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubProvider struct {
	responses []json.RawMessage
	errs      []error
	calls     int
	tasks     []Task
}

func (s *stubProvider) Submit(ctx context.Context, req TaskRequest) (json.RawMessage, error) {
	idx := s.calls
	s.calls++
	s.tasks = append(s.tasks, req.Task)
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	if err != nil {
		return nil, err
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return json.RawMessage(`{}`), nil
}

func fastRetry() Option {
	return WithRetry(3, time.Millisecond, 2*time.Millisecond)
}

func TestExtractDocumentDecodesFullResponse(t *testing.T) {
	provider := &stubProvider{responses: []json.RawMessage{[]byte(`{
		"document_type": "passport",
		"document_number": "X123456",
		"full_name": "Jane Roe",
		"birth_date": "1990-04-02",
		"expiry_date": "2030-04-02",
		"nationality": "NLD",
		"is_valid": true,
		"confidence_label": "high",
		"rationale": "all fields legible"
	}`)}}
	client := NewClient(provider, zap.NewNop(), fastRetry())

	signal, err := client.ExtractDocument(context.Background(), "sess-1", Image{Role: "document"})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if signal.DocumentNumber != "X123456" || !signal.IsValid || signal.ConfidenceLabel != ConfidenceHigh {
		t.Fatalf("unexpected signal: %+v", signal)
	}
}

func TestMalformedFieldsCoercedToDefaults(t *testing.T) {
	// score is a string, confidence is unknown, match is missing entirely.
	provider := &stubProvider{responses: []json.RawMessage{[]byte(`{
		"score": "not-a-number",
		"confidence_label": "very sure",
		"rationale": 42
	}`)}}
	client := NewClient(provider, zap.NewNop(), fastRetry())

	signal, err := client.AssessFacialSimilarity(context.Background(), "sess-1", Image{}, Image{})
	if err != nil {
		t.Fatalf("malformed fields must not fail the signal: %v", err)
	}
	if signal.Score != 0 {
		t.Fatalf("expected default score 0, got %f", signal.Score)
	}
	if signal.Match {
		t.Fatal("expected default match=false")
	}
	if signal.ConfidenceLabel != ConfidenceLow {
		t.Fatalf("expected confidence to degrade to low, got %s", signal.ConfidenceLabel)
	}
	if signal.Rationale != "" {
		t.Fatalf("expected empty rationale, got %q", signal.Rationale)
	}
}

func TestScoreClampedToUnitInterval(t *testing.T) {
	provider := &stubProvider{responses: []json.RawMessage{[]byte(`{"score": 3.5, "is_authentic": true}`)}}
	client := NewClient(provider, zap.NewNop(), fastRetry())

	signal, err := client.AssessAuthenticity(context.Background(), "sess-1", Image{})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if signal.Score != 1 {
		t.Fatalf("expected clamped score 1, got %f", signal.Score)
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	provider := &stubProvider{
		errs:      []error{errors.New("connection reset"), nil},
		responses: []json.RawMessage{nil, []byte(`{"is_valid": true}`)},
	}
	client := NewClient(provider, zap.NewNop(), fastRetry())

	signal, err := client.ExtractDocument(context.Background(), "sess-1", Image{})
	if err != nil {
		t.Fatalf("expected recovery after retry, got error: %v", err)
	}
	if !signal.IsValid {
		t.Fatal("expected decoded signal after retry")
	}
	if provider.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", provider.calls)
	}
}

func TestExhaustedRetriesBecomeSignalUnavailable(t *testing.T) {
	boom := errors.New("boom")
	provider := &stubProvider{errs: []error{boom, boom, boom}}
	client := NewClient(provider, zap.NewNop(), fastRetry())

	_, err := client.ExtractDocument(context.Background(), "sess-1", Image{})
	if !errors.Is(err, ErrSignalUnavailable) {
		t.Fatalf("expected ErrSignalUnavailable, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying cause preserved, got %v", err)
	}
	if provider.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", provider.calls)
	}
}

func TestAnalyzeAllOneFailureDoesNotCancelOthers(t *testing.T) {
	// The provider fails every extract_document call but serves the rest.
	provider := &failingTaskProvider{failTask: TaskExtractDocument}
	client := NewClient(provider, zap.NewNop(), fastRetry())

	signals, errs := client.AnalyzeAll(context.Background(), "sess-1", Image{Role: "selfie"}, Image{Role: "document"})
	if signals.Document != nil {
		t.Fatal("expected document signal to be unavailable")
	}
	if signals.Authenticity == nil || signals.Facial == nil {
		t.Fatal("expected the other two signals to survive")
	}
	if !errors.Is(errs[0], ErrSignalUnavailable) {
		t.Fatalf("expected document slot error, got %v", errs[0])
	}
	if errs[1] != nil || errs[2] != nil {
		t.Fatalf("expected nil errors for surviving signals, got %v, %v", errs[1], errs[2])
	}
}

type failingTaskProvider struct {
	failTask Task
}

func (p *failingTaskProvider) Submit(ctx context.Context, req TaskRequest) (json.RawMessage, error) {
	if req.Task == p.failTask {
		return nil, errors.New("task rejected")
	}
	switch req.Task {
	case TaskAssessDocument:
		return json.RawMessage(`{"is_authentic": true, "score": 0.9}`), nil
	default:
		return json.RawMessage(`{"match": true, "score": 0.95}`), nil
	}
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	boom := errors.New("boom")
	provider := &stubProvider{errs: []error{boom, boom, boom}}
	client := NewClient(provider, zap.NewNop(), WithRetry(3, 50*time.Millisecond, 100*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ExtractDocument(ctx, "sess-1", Image{})
	if !errors.Is(err, ErrSignalUnavailable) {
		t.Fatalf("expected ErrSignalUnavailable, got %v", err)
	}
	if provider.calls > 1 {
		t.Fatalf("expected no retries after cancellation, got %d calls", provider.calls)
	}
}
