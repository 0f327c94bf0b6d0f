package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/idverify/internal/logging"
)

type transientTestError struct{ msg string }

func (e *transientTestError) Error() string   { return e.msg }
func (e *transientTestError) Timeout() bool   { return false }
func (e *transientTestError) Temporary() bool { return true }

func newRetryRepository(attempts int) *VerificationRepository {
	return &VerificationRepository{
		logger:         zap.NewNop(),
		retryAttempts:  attempts,
		initialBackoff: time.Millisecond,
		maxBackoff:     2 * time.Millisecond,
	}
}

func TestExecuteWithRetryRecoversFromTransientError(t *testing.T) {
	repo := newRetryRepository(3)

	calls := 0
	err := repo.executeWithRetry(context.Background(), "repository.save", "sess-1", func() error {
		calls++
		if calls < 3 {
			return &transientTestError{msg: "connection reset"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestExecuteWithRetryDoesNotRetryPermanentError(t *testing.T) {
	repo := newRetryRepository(3)
	permanent := errors.New("duplicate key value violates unique constraint")

	calls := 0
	err := repo.executeWithRetry(context.Background(), "repository.save", "sess-1", func() error {
		calls++
		return permanent
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("permanent errors must not be retried, got %d attempts", calls)
	}
	if !errors.Is(err, permanent) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError wrapper, got %T", err)
	}
	if opErr.Operation != "repository.save" || opErr.SessionID != "sess-1" {
		t.Fatalf("unexpected operation metadata: %+v", opErr)
	}
}

func TestExecuteWithRetryExhaustsBudget(t *testing.T) {
	repo := newRetryRepository(3)

	calls := 0
	err := repo.executeWithRetry(context.Background(), "repository.save", "sess-1", func() error {
		calls++
		return &transientTestError{msg: "still down"}
	})
	if err == nil {
		t.Fatal("expected error after exhausted budget")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestExecuteWithRetryStopsOnCancelledContext(t *testing.T) {
	repo := newRetryRepository(3)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := repo.executeWithRetry(ctx, "repository.save", "sess-1", func() error {
		calls++
		cancel()
		return &transientTestError{msg: "connection reset"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retries after cancellation, got %d attempts", calls)
	}
}

func TestExecuteWithRetrySingleAttemptPassthrough(t *testing.T) {
	repo := newRetryRepository(1)

	if err := repo.executeWithRetry(context.Background(), "repository.save", "", func() error {
		return nil
	}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	cause := errors.New("boom")
	err := repo.executeWithRetry(context.Background(), "repository.save", "", func() error {
		return cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestIsTransientError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"temporary", &transientTestError{msg: "flaky"}, true},
		{"plain", errors.New("syntax error"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransientError(tc.err); got != tc.want {
				t.Fatalf("isTransientError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
