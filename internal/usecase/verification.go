package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/idverify/internal/inspection"
	"github.com/example/idverify/internal/logging"
	"github.com/example/idverify/internal/repository"
	"github.com/example/idverify/internal/session"
)

// Repository defines the persistence operations needed by the use case.
type Repository interface {
	Save(ctx context.Context, record *repository.VerificationRecord) error
	FindByCode(ctx context.Context, code string) (*repository.VerificationRecord, error)
	FindDuplicatesByHash(ctx context.Context, operatorID, hash, excludeSessionID string) ([]*repository.VerificationRecord, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// AnalysisClient exposes the three analysis calls used by the granular
// endpoints. *inspection.Client satisfies it.
type AnalysisClient interface {
	ExtractDocument(ctx context.Context, sessionID string, doc inspection.Image) (*inspection.DocumentExtraction, error)
	AssessAuthenticity(ctx context.Context, sessionID string, doc inspection.Image) (*inspection.AuthenticityAssessment, error)
	AssessFacialSimilarity(ctx context.Context, sessionID string, selfie, doc inspection.Image) (*inspection.FacialSimilarityAssessment, error)
}

// Runner drives one verification attempt through the state machine.
type Runner interface {
	Run(ctx context.Context, sess *session.Session, manual *session.ManualImages) error
}

// VerificationUseCase encapsulates business logic for the verification flow.
type VerificationUseCase struct {
	repo           Repository
	cache          Cache
	runner         Runner
	analysis       AnalysisClient
	ingestor       Ingestor
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// VerificationResult is the settled outcome of one attempt, ready for the
// HTTP envelope.
type VerificationResult struct {
	Code    string
	Session *session.Session
}

// DuplicateReport lists prior records sharing the same document image.
type DuplicateReport struct {
	Record     *repository.VerificationRecord
	Duplicates []*repository.VerificationRecord
}

// NewVerificationUseCase constructs a new use case instance.
func NewVerificationUseCase(repo Repository, cache Cache, runner Runner, analysis AnalysisClient, ingestor Ingestor, logger *zap.Logger) *VerificationUseCase {
	return &VerificationUseCase{
		repo:           repo,
		cache:          cache,
		runner:         runner,
		analysis:       analysis,
		ingestor:       ingestor,
		logger:         logger.Named("verification_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

type cachedVerification struct {
	Code          string    `json:"code"`
	SessionID     string    `json:"session_id"`
	OperatorID    string    `json:"operator_id"`
	AttemptNumber int       `json:"attempt_number"`
	SubjectClaim  string    `json:"subject_claim"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason"`
	Score         float64   `json:"score"`
	Verified      bool      `json:"verified"`
	Summary       string    `json:"summary"`
	Signals       string    `json:"signals"`
	CreatedAt     time.Time `json:"created_at"`
}

// Verify runs one full verification attempt with operator-supplied images
// and persists the auditable outcome under a fresh verification code.
func (uc *VerificationUseCase) Verify(ctx context.Context, operatorID, subjectClaim string, manual *session.ManualImages) (*VerificationResult, error) {
	sess := session.New(subjectClaim)
	opLogger := logging.WithOperation(uc.logger, "usecase.verify", sess.ID)
	started := time.Now()

	code, err := newVerificationCode()
	if err != nil {
		return nil, err
	}

	cacheKey := "verification:" + code
	if err := uc.withRedisRetry(ctx, sess.ID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, cacheKey, "processing", time.Minute)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return nil, err
	}

	if err := uc.runner.Run(ctx, sess, manual); err != nil {
		wrapped := logging.NewOperationError("usecase.run_session", sess.ID, err)
		opLogger.Error("session run failed", zap.Error(wrapped))
		return nil, wrapped
	}

	record := uc.buildRecord(code, operatorID, sess, manual, time.Since(started))
	if err := uc.repo.Save(ctx, record); err != nil {
		wrapped := logging.NewOperationError("usecase.save_record", sess.ID, err)
		opLogger.Error("failed to persist verification record", zap.Error(wrapped))
		return nil, wrapped
	}

	if err := uc.cacheRecord(ctx, cacheKey, record); err != nil {
		opLogger.Error("failed to cache verification result", zap.Error(err))
		return nil, err
	}

	return &VerificationResult{Code: code, Session: sess}, nil
}

// Retry starts the next attempt of a failed session.
func (uc *VerificationUseCase) Retry(ctx context.Context, operatorID string, prior *session.Session, manual *session.ManualImages) (*VerificationResult, error) {
	next, err := prior.Retry()
	if err != nil {
		return nil, err
	}
	started := time.Now()

	code, codeErr := newVerificationCode()
	if codeErr != nil {
		return nil, codeErr
	}

	if err := uc.runner.Run(ctx, next, manual); err != nil {
		return nil, logging.NewOperationError("usecase.run_session", next.ID, err)
	}

	record := uc.buildRecord(code, operatorID, next, manual, time.Since(started))
	if err := uc.repo.Save(ctx, record); err != nil {
		return nil, logging.NewOperationError("usecase.save_record", next.ID, err)
	}
	if err := uc.cacheRecord(ctx, "verification:"+code, record); err != nil {
		return nil, err
	}
	return &VerificationResult{Code: code, Session: next}, nil
}

func (uc *VerificationUseCase) buildRecord(code, operatorID string, sess *session.Session, manual *session.ManualImages, elapsed time.Duration) *repository.VerificationRecord {
	record := &repository.VerificationRecord{
		Code:          code,
		SessionID:     sess.ID,
		RequestID:     sess.RequestID,
		AttemptNumber: sess.AttemptNumber,
		OperatorID:    operatorID,
		SubjectClaim:  sess.SubjectClaim,
		SelfieRef:     sess.SelfieRef,
		DocumentRef:   sess.DocumentRef,
		Status:        string(sess.Status),
		Reason:        string(sess.Reason),
		LatencyMs:     elapsed.Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}
	if manual != nil && len(manual.Document) > 0 {
		hash := sha1.Sum(manual.Document)
		record.ImageHash = hex.EncodeToString(hash[:])
	}
	if sess.Verdict != nil {
		record.Score = sess.Verdict.ConfidenceScore
		record.Verified = sess.Verdict.Verified
		record.Summary = sess.Verdict.Summary
	}
	if signals, err := json.Marshal(sess.Signals); err == nil {
		record.Signals = string(signals)
	}
	return record
}

func (uc *VerificationUseCase) cacheRecord(ctx context.Context, cacheKey string, record *repository.VerificationRecord) error {
	cached := cachedVerification{
		Code:          record.Code,
		SessionID:     record.SessionID,
		OperatorID:    record.OperatorID,
		AttemptNumber: record.AttemptNumber,
		SubjectClaim:  record.SubjectClaim,
		Status:        record.Status,
		Reason:        record.Reason,
		Score:         record.Score,
		Verified:      record.Verified,
		Summary:       record.Summary,
		Signals:       record.Signals,
		CreatedAt:     record.CreatedAt,
	}
	serialized, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return uc.withRedisRetry(ctx, record.SessionID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), 5*time.Minute)
	})
}

// GetByCode retrieves a previously issued verification, cache-first.
func (uc *VerificationUseCase) GetByCode(ctx context.Context, code string) (*repository.VerificationRecord, error) {
	cacheKey := "verification:" + code
	if cached, err := uc.withRedisGet(ctx, code, "cache.get.result", cacheKey); err == nil && cached != "processing" {
		var payload cachedVerification
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_by_code", code).Warn("failed to decode cached result", zap.Error(err))
		} else {
			return &repository.VerificationRecord{
				Code:          payload.Code,
				SessionID:     payload.SessionID,
				OperatorID:    payload.OperatorID,
				AttemptNumber: payload.AttemptNumber,
				SubjectClaim:  payload.SubjectClaim,
				Status:        payload.Status,
				Reason:        payload.Reason,
				Score:         payload.Score,
				Verified:      payload.Verified,
				Summary:       payload.Summary,
				Signals:       payload.Signals,
				CreatedAt:     payload.CreatedAt,
			}, nil
		}
	} else if err != nil && !errors.Is(err, redis.Nil) {
		logging.WithOperation(uc.logger, "usecase.get_by_code", code).Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindByCode(ctx, code)
}

// GetDuplicateReport lists other verifications submitted with the same
// document image by the same operator.
func (uc *VerificationUseCase) GetDuplicateReport(ctx context.Context, operatorID, code string) (*DuplicateReport, error) {
	record, err := uc.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, operatorID, record.ImageHash, record.SessionID)
	if err != nil {
		return nil, err
	}
	return &DuplicateReport{Record: record, Duplicates: duplicates}, nil
}

func (uc *VerificationUseCase) withRedisRetry(ctx context.Context, sessionID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, sessionID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, sessionID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, sessionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, sessionID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, sessionID, err)
}

func (uc *VerificationUseCase) withRedisGet(ctx context.Context, sessionID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, sessionID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
