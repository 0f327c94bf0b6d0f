package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/idverify/internal/logging"
)

// VerificationRecord is the persisted audit trail for one issued verdict.
// Records are append-only: new attempts insert new rows, prior attempts are
// never rewritten.
type VerificationRecord struct {
	ID            uint      `gorm:"primaryKey"`
	Code          string    `gorm:"column:code;uniqueIndex;size:16"`
	SessionID     string    `gorm:"column:session_id;uniqueIndex;size:64"`
	RequestID     string    `gorm:"column:request_id;index;size:64"`
	AttemptNumber int       `gorm:"column:attempt_number"`
	OperatorID    string    `gorm:"column:operator_id;size:64;index"`
	SubjectClaim  string    `gorm:"column:subject_claim;size:255"`
	SelfieRef     string    `gorm:"column:selfie_ref;size:128"`
	DocumentRef   string    `gorm:"column:document_ref;size:128"`
	ImageHash     string    `gorm:"column:image_hash;size:64;index"`
	Status        string    `gorm:"column:status;size:32"`
	Reason        string    `gorm:"column:reason;size:32"`
	Signals       string    `gorm:"column:signals;type:text"`
	Score         float64   `gorm:"column:score"`
	Verified      bool      `gorm:"column:verified"`
	Summary       string    `gorm:"column:summary;type:text"`
	LatencyMs     int64     `gorm:"column:latency_ms"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (VerificationRecord) TableName() string {
	return "verification_records"
}

// MetricsAggregation is the raw aggregate pulled from persisted records.
type MetricsAggregation struct {
	TotalCount       int64
	VerifiedCount    int64
	AverageScore     float64
	AverageLatencyMs float64
}

// VerificationRepository provides persistence APIs for verification records.
type VerificationRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewVerificationRepository creates a new repository instance.
func NewVerificationRepository(db *gorm.DB, logger *zap.Logger) *VerificationRepository {
	return &VerificationRepository{
		db:             db,
		logger:         logger.Named("verification_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *VerificationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&VerificationRecord{})
}

// Save persists one verification record.
func (r *VerificationRepository) Save(ctx context.Context, record *VerificationRecord) error {
	return r.executeWithRetry(ctx, "repository.save", record.SessionID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// FindByCode retrieves a record by its human-readable verification code.
func (r *VerificationRepository) FindByCode(ctx context.Context, code string) (*VerificationRecord, error) {
	var record VerificationRecord
	err := r.executeWithRetry(ctx, "repository.find_by_code", code, func() error {
		return r.db.WithContext(ctx).First(&record, "code = ?", code).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindDuplicatesByHash returns other records carrying the same image hash
// for the same operator, excluding the given session.
func (r *VerificationRepository) FindDuplicatesByHash(ctx context.Context, operatorID, hash, excludeSessionID string) ([]*VerificationRecord, error) {
	if hash == "" {
		return nil, nil
	}
	var records []*VerificationRecord
	err := r.executeWithRetry(ctx, "repository.find_duplicates", excludeSessionID, func() error {
		return r.db.WithContext(ctx).
			Where("operator_id = ? AND image_hash = ? AND session_id <> ?", operatorID, hash, excludeSessionID).
			Order("created_at DESC").
			Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// AggregateMetrics computes summary statistics over all records.
func (r *VerificationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		row := r.db.WithContext(ctx).Model(&VerificationRecord{}).
			Select("COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN verified THEN 1 ELSE 0 END), 0) AS verified_count, " +
				"COALESCE(AVG(score), 0) AS average_score, " +
				"COALESCE(AVG(latency_ms), 0) AS average_latency_ms").
			Row()
		return row.Scan(&agg.TotalCount, &agg.VerifiedCount, &agg.AverageScore, &agg.AverageLatencyMs)
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// executeWithRetry runs fn with bounded exponential backoff. Only transient
// failures are retried; everything else surfaces immediately.
func (r *VerificationRepository) executeWithRetry(ctx context.Context, operation, sessionID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, sessionID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, sessionID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, sessionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, sessionID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, sessionID, err)
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
