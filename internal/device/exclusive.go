package device

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Exclusive wraps an Adapter and enforces the single-holder contract: at
// most one ActiveDevice exists at a time, and Release is idempotent. The
// wrapped adapter only has to implement raw acquisition.
type Exclusive struct {
	inner  Adapter
	logger *zap.Logger

	mu   sync.Mutex
	held bool
}

// NewExclusive wraps an adapter with exclusivity enforcement.
func NewExclusive(inner Adapter, logger *zap.Logger) *Exclusive {
	return &Exclusive{
		inner:  inner,
		logger: logger.Named("device").With(zap.String("capability", string(inner.Capability()))),
	}
}

func (e *Exclusive) Capability() Capability { return e.inner.Capability() }

func (e *Exclusive) Probe(ctx context.Context) Availability {
	return e.inner.Probe(ctx)
}

// Acquire takes the device if nobody holds it. A concurrent holder causes a
// fast CodeBusy failure instead of blocking.
func (e *Exclusive) Acquire(ctx context.Context) (ActiveDevice, error) {
	e.mu.Lock()
	if e.held {
		e.mu.Unlock()
		return nil, NewError(CodeBusy, e.inner.Capability(), nil)
	}
	e.held = true
	e.mu.Unlock()

	handle, err := e.inner.Acquire(ctx)
	if err != nil {
		e.mu.Lock()
		e.held = false
		e.mu.Unlock()
		return nil, err
	}

	e.logger.Debug("device acquired")
	return &exclusiveHandle{inner: handle, owner: e}, nil
}

type exclusiveHandle struct {
	inner ActiveDevice
	owner *Exclusive

	releaseOnce sync.Once
}

func (h *exclusiveHandle) Capability() Capability { return h.inner.Capability() }

func (h *exclusiveHandle) Capture(ctx context.Context) (*RawImage, error) {
	return h.inner.Capture(ctx)
}

func (h *exclusiveHandle) ReadChip(ctx context.Context, status StatusFunc) (*ChipData, error) {
	return h.inner.ReadChip(ctx, status)
}

func (h *exclusiveHandle) Release() {
	h.releaseOnce.Do(func() {
		h.inner.Release()
		h.owner.mu.Lock()
		h.owner.held = false
		h.owner.mu.Unlock()
		h.owner.logger.Debug("device released")
	})
}
