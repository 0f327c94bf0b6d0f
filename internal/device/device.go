package device

import (
	"context"
	"fmt"
	"time"
)

// Capability identifies a class of capture hardware.
type Capability string

const (
	Camera    Capability = "camera"
	NFCReader Capability = "nfc_reader"
)

// Availability reports the outcome of a best-effort capability probe.
type Availability struct {
	Available bool
	Reason    string
}

// ErrorCode classifies device failures.
type ErrorCode string

const (
	CodePermissionDenied ErrorCode = "permission_denied"
	CodeNotPresent       ErrorCode = "not_present"
	CodeReadTimeout      ErrorCode = "read_timeout"
	CodeReadFailure      ErrorCode = "read_failure"
	CodeBusy             ErrorCode = "busy"
)

// Error is a classified device failure. It drives the session workflow to a
// recoverable terminal state rather than crashing the attempt.
type Error struct {
	Code       ErrorCode
	Capability Capability
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device %s: %s: %v", e.Capability, e.Code, e.Err)
	}
	return fmt.Sprintf("device %s: %s", e.Capability, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified device error.
func NewError(code ErrorCode, capability Capability, err error) *Error {
	return &Error{Code: code, Capability: capability, Err: err}
}

// RawImage is an unprocessed frame captured from a camera.
type RawImage struct {
	Bytes      []byte
	MimeType   string
	CapturedAt time.Time
}

// ChipData holds the structured identity fields read from a contactless
// document chip. It is an alternative capture path to a document photo.
type ChipData struct {
	DocumentType   string
	DocumentNumber string
	FullName       string
	BirthDate      string
	ExpiryDate     string
	Nationality    string
	FacePhoto      []byte
	ReadAt         time.Time
}

// ReadStatus is reported to the workflow while an NFC read is in progress so
// callers can render genuine progress, not timer-driven approximations.
type ReadStatus string

const (
	ReadWaiting ReadStatus = "waiting"
	ReadReading ReadStatus = "reading"
	ReadSuccess ReadStatus = "success"
	ReadError   ReadStatus = "error"
)

// StatusFunc receives proximity/status callbacks during a chip read.
type StatusFunc func(ReadStatus)

// ActiveDevice is an exclusively held handle on acquired hardware. Whoever
// acquires it owns the matching Release.
type ActiveDevice interface {
	Capability() Capability

	// Capture grabs one frame. Valid for Camera devices.
	Capture(ctx context.Context) (*RawImage, error)

	// ReadChip performs a bounded chip read. Valid for NFCReader devices.
	// The status callback may be nil.
	ReadChip(ctx context.Context, status StatusFunc) (*ChipData, error)

	// Release frees the hardware. Idempotent; must be called on every exit
	// path before the device can be reacquired.
	Release()
}

// Adapter abstracts probing and acquisition for one capability.
type Adapter interface {
	Capability() Capability

	// Probe never blocks on hardware; it is a best-effort capability check.
	Probe(ctx context.Context) Availability

	// Acquire takes exclusive ownership. A second Acquire while a handle is
	// held fails fast with CodeBusy.
	Acquire(ctx context.Context) (ActiveDevice, error)
}
