// Package devicetest provides scripted device adapters for tests. Simulated
// behavior lives here, injected into test harnesses only; production code
// paths never consult a simulation toggle.
package devicetest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/example/idverify/internal/device"
)

// Script describes the behavior of a scripted adapter.
type Script struct {
	Capability   device.Capability
	ProbeResult  device.Availability
	AcquireErr   error
	CaptureImage *device.RawImage
	CaptureErr   error
	CaptureDelay time.Duration
	Chip         *device.ChipData
	ChipErr      error
}

// Adapter is a scripted device.Adapter recording call counts.
type Adapter struct {
	Script Script

	ProbeCalls   atomic.Int32
	AcquireCalls atomic.Int32
	ReleaseCalls atomic.Int32
	CaptureCalls atomic.Int32
}

// New builds a scripted adapter. A zero ProbeResult defaults to available.
func New(script Script) *Adapter {
	if script.Capability == "" {
		script.Capability = device.Camera
	}
	return &Adapter{Script: script}
}

func (a *Adapter) Capability() device.Capability { return a.Script.Capability }

func (a *Adapter) Probe(ctx context.Context) device.Availability {
	a.ProbeCalls.Add(1)
	if a.Script.ProbeResult == (device.Availability{}) {
		return device.Availability{Available: true}
	}
	return a.Script.ProbeResult
}

func (a *Adapter) Acquire(ctx context.Context) (device.ActiveDevice, error) {
	a.AcquireCalls.Add(1)
	if a.Script.AcquireErr != nil {
		return nil, a.Script.AcquireErr
	}
	return &handle{adapter: a}, nil
}

type handle struct {
	adapter *Adapter
}

func (h *handle) Capability() device.Capability { return h.adapter.Script.Capability }

func (h *handle) Capture(ctx context.Context) (*device.RawImage, error) {
	h.adapter.CaptureCalls.Add(1)
	s := h.adapter.Script
	if s.CaptureDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, device.NewError(device.CodeReadTimeout, s.Capability, ctx.Err())
		case <-time.After(s.CaptureDelay):
		}
	}
	if s.CaptureErr != nil {
		return nil, s.CaptureErr
	}
	if s.CaptureImage != nil {
		return s.CaptureImage, nil
	}
	return &device.RawImage{Bytes: []byte("frame"), MimeType: "image/jpeg", CapturedAt: time.Now().UTC()}, nil
}

func (h *handle) ReadChip(ctx context.Context, status device.StatusFunc) (*device.ChipData, error) {
	s := h.adapter.Script
	if status != nil {
		status(device.ReadWaiting)
		status(device.ReadReading)
	}
	if s.ChipErr != nil {
		if status != nil {
			status(device.ReadError)
		}
		return nil, s.ChipErr
	}
	if status != nil {
		status(device.ReadSuccess)
	}
	if s.Chip != nil {
		return s.Chip, nil
	}
	return &device.ChipData{DocumentType: "passport", ReadAt: time.Now().UTC()}, nil
}

func (h *handle) Release() {
	h.adapter.ReleaseCalls.Add(1)
}
