package inspection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/idverify/internal/logging"
)

// ErrSignalUnavailable marks an analysis call that produced no usable signal
// after the retry budget: provider unreachable, or no parseable structure.
// A merely malformed field never causes it; those are coerced to defaults.
var ErrSignalUnavailable = errors.New("inspection: signal unavailable")

const (
	promptExtractDocument = "Extract the identity document fields from the supplied document image. " +
		"Report the document type, number, holder name, birth date, expiry date and nationality, " +
		"whether the document appears valid, and your confidence."
	promptAssessAuthenticity = "Assess whether the supplied identity document image is authentic. " +
		"Report an authenticity score between 0 and 1, security features found, signs of manipulation, " +
		"and your confidence."
	promptFacialSimilarity = "Compare the face in the selfie image against the portrait in the document image. " +
		"Report a similarity score between 0 and 1, whether they match, and your confidence."
)

// Client wraps the three analysis tasks with retry, per-call timeout, and
// lenient response decoding.
type Client struct {
	provider       Provider
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	callTimeout    time.Duration
}

// Option tunes a Client.
type Option func(*Client)

// WithRetry overrides the retry budget.
func WithRetry(attempts int, initial, max time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.initialBackoff = initial
		c.maxBackoff = max
	}
}

// WithCallTimeout bounds each provider attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// NewClient constructs an analysis client.
func NewClient(provider Provider, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		provider:       provider,
		logger:         logger.Named("inspection_client"),
		retryAttempts:  3,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     5 * time.Second,
		callTimeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExtractDocument reads the identity fields off a document image.
func (c *Client) ExtractDocument(ctx context.Context, sessionID string, doc Image) (*DocumentExtraction, error) {
	raw, err := c.submitWithRetry(ctx, sessionID, TaskRequest{
		Task:   TaskExtractDocument,
		Schema: SchemaDocumentExtraction,
		Prompt: promptExtractDocument,
		Images: []Image{doc},
	})
	if err != nil {
		return nil, err
	}
	return decodeDocumentExtraction(raw), nil
}

// AssessAuthenticity judges whether a document image is genuine.
func (c *Client) AssessAuthenticity(ctx context.Context, sessionID string, doc Image) (*AuthenticityAssessment, error) {
	raw, err := c.submitWithRetry(ctx, sessionID, TaskRequest{
		Task:   TaskAssessDocument,
		Schema: SchemaAuthenticity,
		Prompt: promptAssessAuthenticity,
		Images: []Image{doc},
	})
	if err != nil {
		return nil, err
	}
	return decodeAuthenticityAssessment(raw), nil
}

// AssessFacialSimilarity compares the selfie against the document portrait.
func (c *Client) AssessFacialSimilarity(ctx context.Context, sessionID string, selfie, doc Image) (*FacialSimilarityAssessment, error) {
	raw, err := c.submitWithRetry(ctx, sessionID, TaskRequest{
		Task:   TaskFacialSimilarity,
		Schema: SchemaFacialSimilarity,
		Prompt: promptFacialSimilarity,
		Images: []Image{selfie, doc},
	})
	if err != nil {
		return nil, err
	}
	return decodeFacialSimilarity(raw), nil
}

// submitWithRetry runs one task with a bounded backoff budget. Exhaustion
// degrades to ErrSignalUnavailable; the other signals keep going.
func (c *Client) submitWithRetry(ctx context.Context, sessionID string, req TaskRequest) (json.RawMessage, error) {
	operation := fmt.Sprintf("inspection.%s", req.Task)
	opLogger := logging.WithOperation(c.logger, operation, sessionID)

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Join(ErrSignalUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= c.maxBackoff {
				backoff = next
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		raw, err := c.provider.Submit(callCtx, req)
		cancel()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("analysis call succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return raw, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		opLogger.Warn("analysis call failed", zap.Error(err), zap.Int("attempt", attempt+1))
	}

	opLogger.Error("analysis call exhausted retry budget", zap.Error(lastErr))
	return nil, errors.Join(ErrSignalUnavailable, lastErr)
}

// IsTransportFailure reports whether err stems from a transport-level
// provider failure (unreachable, timed out) as opposed to a structurally
// bad response. Callers use it to tell "provider unreachable" apart from
// "inconclusive" when no signal resolved.
func IsTransportFailure(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t)
}
