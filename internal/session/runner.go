package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/idverify/internal/confidence"
	"github.com/example/idverify/internal/device"
	"github.com/example/idverify/internal/inspection"
	"github.com/example/idverify/internal/logging"
)

// Ingestor persists captured image bytes and returns a stable reference.
type Ingestor interface {
	Ingest(ctx context.Context, data []byte, declaredMimeType string) (string, error)
}

// Analyzer dispatches the three analysis calls and joins them.
type Analyzer interface {
	AnalyzeAll(ctx context.Context, sessionID string, selfie, doc inspection.Image) (inspection.SignalSet, []error)
}

// ManualImages is the non-device fallback input: the operator supplies both
// images directly instead of driving attached hardware.
type ManualImages struct {
	Selfie       []byte
	SelfieMime   string
	Document     []byte
	DocumentMime string
}

// Runner drives one verification attempt end to end. It is single-threaded
// per session: at most one state transition is in flight at a time, and the
// only intra-session concurrency is the analysis fan-out behind Analyzer.
type Runner struct {
	camera   device.Adapter
	nfc      device.Adapter
	ingestor Ingestor
	analyzer Analyzer
	weights  confidence.Weights
	logger   *zap.Logger

	captureTimeout time.Duration
	chipReadWindow time.Duration
}

// RunnerOption tunes a Runner.
type RunnerOption func(*Runner)

// WithNFC attaches an optional chip reader. When present and available, a
// successful chip read supplies the document extraction signal directly.
func WithNFC(adapter device.Adapter) RunnerOption {
	return func(r *Runner) { r.nfc = adapter }
}

// WithWeights overrides the aggregation weighting policy.
func WithWeights(w confidence.Weights) RunnerOption {
	return func(r *Runner) { r.weights = w }
}

// WithCaptureTimeout bounds each camera capture.
func WithCaptureTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.captureTimeout = d }
}

// WithChipReadWindow bounds the NFC read.
func WithChipReadWindow(d time.Duration) RunnerOption {
	return func(r *Runner) { r.chipReadWindow = d }
}

// NewRunner constructs a Runner. camera may be nil when only the manual
// fallback path is in use.
func NewRunner(camera device.Adapter, ingestor Ingestor, analyzer Analyzer, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		camera:         camera,
		ingestor:       ingestor,
		analyzer:       analyzer,
		weights:        confidence.DefaultWeights,
		logger:         logger.Named("session_runner"),
		captureTimeout: 20 * time.Second,
		chipReadWindow: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one attempt. The session always ends in a terminal state;
// the returned error reports invariant violations only, never ordinary
// verification outcomes. Cancellation is cooperative: ctx cancellation
// observed at a suspension point releases any held device and moves the
// session to cancelled, discarding in-flight analysis results.
func (r *Runner) Run(ctx context.Context, sess *Session, manual *ManualImages) error {
	opLogger := logging.WithOperation(r.logger, "session.run", sess.ID).
		With(zap.Int("attempt", sess.AttemptNumber))

	if err := sess.transition(StateProbingDevice); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return sess.cancel()
	}

	capture, err := r.captureStage(ctx, sess, manual, opLogger)
	if err != nil || sess.Status.Terminal() {
		return err
	}

	if err := r.uploadStage(ctx, sess, capture, opLogger); err != nil || sess.Status.Terminal() {
		return err
	}

	return r.analyzeStage(ctx, sess, capture, opLogger)
}

// captured holds the raw products of the capture stage.
type captured struct {
	selfie     []byte
	selfieMime string
	doc        []byte
	docMime    string
	chip       *device.ChipData
}

// captureStage resolves both images, either from attached hardware or the
// manual fallback. It guarantees every acquired device is released before
// the stage returns, on every path.
func (r *Runner) captureStage(ctx context.Context, sess *Session, manual *ManualImages, opLogger *zap.Logger) (*captured, error) {
	if r.camera == nil {
		return r.alternativeFlow(ctx, sess, manual, "no capture device configured", opLogger)
	}

	avail := r.camera.Probe(ctx)
	if !avail.Available {
		return r.alternativeFlow(ctx, sess, manual, avail.Reason, opLogger)
	}

	handle, err := r.camera.Acquire(ctx)
	if err != nil {
		opLogger.Warn("camera acquisition failed", zap.Error(err))
		return nil, sess.fail(ReasonDeviceError, err.Error())
	}
	// Release is idempotent; the defer covers panic and early-return paths
	// while the explicit calls below keep the handle window tight.
	defer handle.Release()

	if err := sess.transition(StateAwaitingCapture); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		handle.Release()
		return nil, sess.cancel()
	}
	if err := sess.transition(StateCapturing); err != nil {
		return nil, err
	}

	selfie, err := r.captureFrame(ctx, handle)
	if err != nil {
		handle.Release()
		if ctx.Err() != nil {
			return nil, sess.cancel()
		}
		opLogger.Warn("selfie capture failed", zap.Error(err))
		return nil, sess.fail(ReasonDeviceError, err.Error())
	}

	doc, err := r.captureFrame(ctx, handle)
	if err != nil {
		handle.Release()
		if ctx.Err() != nil {
			return nil, sess.cancel()
		}
		opLogger.Warn("document capture failed", zap.Error(err))
		return nil, sess.fail(ReasonDeviceError, err.Error())
	}
	handle.Release()

	capt := &captured{
		selfie:     selfie.Bytes,
		selfieMime: selfie.MimeType,
		doc:        doc.Bytes,
		docMime:    doc.MimeType,
	}

	// Chip read is supplementary: a failing reader degrades to the photo
	// path instead of failing the attempt.
	if r.nfc != nil {
		capt.chip = r.readChip(ctx, opLogger)
		if ctx.Err() != nil {
			return nil, sess.cancel()
		}
	}

	return capt, nil
}

// alternativeFlow is entered when no capture device is usable. With manual
// images present the attempt continues; otherwise it fails as device
// unavailable rather than blocking.
func (r *Runner) alternativeFlow(ctx context.Context, sess *Session, manual *ManualImages, reason string, opLogger *zap.Logger) (*captured, error) {
	if err := sess.transition(StateAlternativeFlow); err != nil {
		return nil, err
	}
	opLogger.Info("entering alternative flow", zap.String("reason", reason))

	if manual == nil || len(manual.Selfie) == 0 || len(manual.Document) == 0 {
		return nil, sess.fail(ReasonDeviceUnavailable, reason)
	}
	if ctx.Err() != nil {
		return nil, sess.cancel()
	}
	return &captured{
		selfie:     manual.Selfie,
		selfieMime: manual.SelfieMime,
		doc:        manual.Document,
		docMime:    manual.DocumentMime,
	}, nil
}

func (r *Runner) captureFrame(ctx context.Context, handle device.ActiveDevice) (*device.RawImage, error) {
	captureCtx, cancel := context.WithTimeout(ctx, r.captureTimeout)
	defer cancel()
	return handle.Capture(captureCtx)
}

// readChip acquires the reader, performs one bounded read, and always
// releases. Status callbacks surface genuine progress to the caller's logs.
func (r *Runner) readChip(ctx context.Context, opLogger *zap.Logger) *device.ChipData {
	avail := r.nfc.Probe(ctx)
	if !avail.Available {
		opLogger.Debug("chip reader not available", zap.String("reason", avail.Reason))
		return nil
	}

	handle, err := r.nfc.Acquire(ctx)
	if err != nil {
		opLogger.Warn("chip reader acquisition failed", zap.Error(err))
		return nil
	}
	defer handle.Release()

	readCtx, cancel := context.WithTimeout(ctx, r.chipReadWindow)
	defer cancel()

	chip, err := handle.ReadChip(readCtx, func(status device.ReadStatus) {
		opLogger.Debug("chip read status", zap.String("status", string(status)))
	})
	if err != nil {
		opLogger.Warn("chip read failed", zap.Error(err))
		return nil
	}
	return chip
}

// uploadStage ingests both captured images and records their references.
func (r *Runner) uploadStage(ctx context.Context, sess *Session, capt *captured, opLogger *zap.Logger) error {
	if err := sess.transition(StateUploading); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return sess.cancel()
	}

	selfieRef, err := r.ingestor.Ingest(ctx, capt.selfie, capt.selfieMime)
	if err != nil {
		opLogger.Warn("selfie ingestion rejected", zap.Error(err))
		return sess.fail(ReasonInputRejected, err.Error())
	}
	docRef, err := r.ingestor.Ingest(ctx, capt.doc, capt.docMime)
	if err != nil {
		opLogger.Warn("document ingestion rejected", zap.Error(err))
		return sess.fail(ReasonInputRejected, err.Error())
	}

	sess.SelfieRef = selfieRef
	sess.DocumentRef = docRef
	return nil
}

// analyzeStage dispatches the three analysis calls, joins them, aggregates
// the verdict, and settles the terminal state.
func (r *Runner) analyzeStage(ctx context.Context, sess *Session, capt *captured, opLogger *zap.Logger) error {
	// Analysis must never be dispatched without both stored references.
	if sess.SelfieRef == "" || sess.DocumentRef == "" {
		return errors.New("session: analysis dispatched without both image refs")
	}
	if err := sess.transition(StateAnalyzing); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return sess.cancel()
	}

	signals, errs := r.analyzer.AnalyzeAll(ctx, sess.ID,
		inspection.Image{Role: "selfie", Data: capt.selfie, MimeType: capt.selfieMime},
		inspection.Image{Role: "document", Data: capt.doc, MimeType: capt.docMime},
	)

	// A cancellation observed at the join discards whatever the provider
	// returned; already-dispatched calls may have completed, their results
	// are not recorded.
	if ctx.Err() != nil {
		return sess.cancel()
	}

	if capt.chip != nil {
		signals.Document = chipExtraction(capt.chip)
	}

	if err := sess.setSignals(signals); err != nil {
		return err
	}

	verdict, err := confidence.Aggregate(signals, r.weights)
	if err != nil {
		if errors.Is(err, confidence.ErrInconclusive) {
			reason := ReasonInconclusive
			if allTransportFailures(errs) {
				reason = ReasonProviderUnreachable
			}
			opLogger.Warn("no usable signals", zap.String("reason", string(reason)))
			return sess.fail(reason, err.Error())
		}
		return err
	}

	if err := sess.setVerdict(verdict); err != nil {
		return err
	}

	opLogger.Info("verdict computed",
		zap.Float64("confidence_score", verdict.ConfidenceScore),
		zap.Bool("verified", verdict.Verified))

	if verdict.Verified {
		return sess.transition(StateSucceeded)
	}
	return sess.fail(ReasonRejected, verdict.Summary)
}

// chipExtraction converts chip-read identity fields to a document
// extraction signal. Chip data is authoritative for the printed fields, so
// it takes precedence over the provider's read of the photo.
func chipExtraction(chip *device.ChipData) *inspection.DocumentExtraction {
	return &inspection.DocumentExtraction{
		DocumentType:    chip.DocumentType,
		DocumentNumber:  chip.DocumentNumber,
		FullName:        chip.FullName,
		BirthDate:       chip.BirthDate,
		ExpiryDate:      chip.ExpiryDate,
		Nationality:     chip.Nationality,
		IsValid:         true,
		ConfidenceLabel: inspection.ConfidenceHigh,
		Rationale:       "fields read from document chip",
	}
}

func allTransportFailures(errs []error) bool {
	seen := false
	for _, err := range errs {
		if err == nil {
			continue
		}
		seen = true
		if !inspection.IsTransportFailure(err) {
			return false
		}
	}
	return seen
}
