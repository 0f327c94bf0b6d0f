// Package session drives one identity verification attempt through an
// explicit finite-state machine: device probing, capture, upload, analysis,
// and a single terminal outcome. Illegal transitions are rejected outright
// rather than tolerated as flag combinations.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/idverify/internal/confidence"
	"github.com/example/idverify/internal/inspection"
)

// State is one stage of the verification workflow.
type State string

const (
	StateIdle            State = "idle"
	StateProbingDevice   State = "probingDevice"
	StateAwaitingCapture State = "awaitingCapture"
	StateCapturing       State = "capturing"
	StateUploading       State = "uploading"
	StateAnalyzing       State = "analyzing"
	StateAlternativeFlow State = "alternativeFlow"
	StateSucceeded       State = "succeeded"
	StateFailed          State = "failed"
	StateCancelled       State = "cancelled"
)

// Terminal reports whether no further transitions are accepted from s.
// A retry never mutates a terminal session; it starts a new attempt.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Reason distinguishes why an attempt reached its terminal state.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonDeviceUnavailable   Reason = "device_unavailable"
	ReasonDeviceError         Reason = "device_error"
	ReasonInputRejected       Reason = "input_rejected"
	ReasonProviderUnreachable Reason = "provider_unreachable"
	ReasonRejected            Reason = "rejected"
	ReasonInconclusive        Reason = "inconclusive"
	ReasonCancelled           Reason = "cancelled"
)

// transitions is the full table of legal state changes. Anything not listed
// here is an impossible state combination and is rejected.
var transitions = map[State][]State{
	StateIdle:            {StateProbingDevice, StateCancelled},
	StateProbingDevice:   {StateAwaitingCapture, StateAlternativeFlow, StateFailed, StateCancelled},
	StateAwaitingCapture: {StateCapturing, StateFailed, StateCancelled},
	StateCapturing:       {StateUploading, StateFailed, StateCancelled},
	StateUploading:       {StateAnalyzing, StateFailed, StateCancelled},
	StateAnalyzing:       {StateSucceeded, StateFailed, StateCancelled},
	StateAlternativeFlow: {StateUploading, StateFailed, StateCancelled},
}

// TransitionError reports an attempted transition outside the table.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: illegal transition %s -> %s", e.From, e.To)
}

// Session is one immutable-once-terminal verification attempt.
type Session struct {
	ID            string
	RequestID     string // logical verification request shared across retries
	AttemptNumber int
	CreatedAt     time.Time

	// SubjectClaim is the operator-entered, unverified identity claim.
	SubjectClaim string

	SelfieRef   string
	DocumentRef string

	Status  State
	Reason  Reason
	Detail  string
	Signals inspection.SignalSet
	Verdict *confidence.Verdict

	signalsSet bool
}

// New creates the first attempt of a logical verification request.
func New(subjectClaim string) *Session {
	return &Session{
		ID:            uuid.NewString(),
		RequestID:     uuid.NewString(),
		AttemptNumber: 1,
		CreatedAt:     time.Now().UTC(),
		SubjectClaim:  subjectClaim,
		Status:        StateIdle,
	}
}

// Retry starts the next attempt of the same logical request. It is only
// allowed from a failed attempt; the prior attempt is left untouched.
func (s *Session) Retry() (*Session, error) {
	if s.Status != StateFailed {
		return nil, fmt.Errorf("session: retry only allowed from %s, got %s", StateFailed, s.Status)
	}
	return &Session{
		ID:            uuid.NewString(),
		RequestID:     s.RequestID,
		AttemptNumber: s.AttemptNumber + 1,
		CreatedAt:     time.Now().UTC(),
		SubjectClaim:  s.SubjectClaim,
		Status:        StateIdle,
	}, nil
}

// transition moves the session to a new state, enforcing the table.
func (s *Session) transition(to State) error {
	for _, allowed := range transitions[s.Status] {
		if allowed == to {
			s.Status = to
			return nil
		}
	}
	return &TransitionError{From: s.Status, To: to}
}

// setSignals records the analysis outcome. Signals are write-once per
// attempt.
func (s *Session) setSignals(signals inspection.SignalSet) error {
	if s.signalsSet {
		return fmt.Errorf("session %s: signals already recorded", s.ID)
	}
	s.Signals = signals
	s.signalsSet = true
	return nil
}

// setVerdict records the aggregator outcome. Computed exactly once per
// attempt, never mutated afterwards.
func (s *Session) setVerdict(v *confidence.Verdict) error {
	if s.Verdict != nil {
		return fmt.Errorf("session %s: verdict already set", s.ID)
	}
	s.Verdict = v
	return nil
}

// fail moves to the failed terminal state carrying a reason.
func (s *Session) fail(reason Reason, detail string) error {
	if err := s.transition(StateFailed); err != nil {
		return err
	}
	s.Reason = reason
	s.Detail = detail
	return nil
}

// cancel moves to the cancelled terminal state.
func (s *Session) cancel() error {
	if err := s.transition(StateCancelled); err != nil {
		return err
	}
	s.Reason = ReasonCancelled
	return nil
}
