package inspection

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// AnalyzeAll dispatches the three analysis tasks concurrently and joins all
// of them. One task's failure never cancels the others; an unavailable
// signal is simply absent from the returned set. The error slots report why
// a slot is empty so callers can distinguish unreachable from rejected.
func (c *Client) AnalyzeAll(ctx context.Context, sessionID string, selfie, doc Image) (SignalSet, []error) {
	var (
		wg      sync.WaitGroup
		signals SignalSet
		errs    = make([]error, 3)
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		signals.Document, errs[0] = c.ExtractDocument(ctx, sessionID, doc)
	}()
	go func() {
		defer wg.Done()
		signals.Authenticity, errs[1] = c.AssessAuthenticity(ctx, sessionID, doc)
	}()
	go func() {
		defer wg.Done()
		signals.Facial, errs[2] = c.AssessFacialSimilarity(ctx, sessionID, selfie, doc)
	}()
	wg.Wait()

	available := 0
	if signals.Document != nil {
		available++
	}
	if signals.Authenticity != nil {
		available++
	}
	if signals.Facial != nil {
		available++
	}
	c.logger.Info("analysis join complete",
		zap.String("session_id", sessionID),
		zap.Int("signals_available", available))

	return signals, errs
}
