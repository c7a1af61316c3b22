package operations

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"

	"docintel-backend/internal/docintel"
	"docintel-backend/internal/shared/metrics"
	"docintel-backend/internal/shared/telemetry"
)

// PollConfig controls how the driver advances an in-flight operation. Fixed
// intervals are the reference behavior; setting UseBackoff switches to
// exponential backoff capped at MaxInterval.
type PollConfig struct {
	// InitialDelay is the grace period before the first poll.
	InitialDelay time.Duration
	// Interval is the fixed delay between polls, or the starting interval
	// when UseBackoff is set.
	Interval    time.Duration
	UseBackoff  bool
	MaxInterval time.Duration
	// MaxAttempts and Deadline both bound the loop; whichever is hit first
	// ends it with a timed_out transition.
	MaxAttempts int
	Deadline    time.Duration
	// MaxTransportFailures bounds consecutive failed Poll calls before the
	// operation is failed as unreachable.
	MaxTransportFailures int
}

func (c PollConfig) withDefaults() PollConfig {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 1 * time.Second
	}
	if c.Interval <= 0 {
		c.Interval = 3 * time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 100
	}
	if c.Deadline <= 0 {
		c.Deadline = 5 * time.Minute
	}
	if c.MaxTransportFailures <= 0 {
		c.MaxTransportFailures = 3
	}
	return c
}

func (c PollConfig) intervals() func() time.Duration {
	if !c.UseBackoff {
		return func() time.Duration { return c.Interval }
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Interval
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = 0
	return b.NextBackOff
}

// pollUntilDone drives one operation to its terminal state. It is the only
// writer for the operation after submission, so transitions for a given id
// are strictly ordered. It performs exactly one terminal transition and
// never polls again afterwards.
func (s *Service) pollUntilDone(ctx context.Context, op Operation) {
	defer s.unregister(op.ID)

	cfg := s.Poll.withDefaults()
	deadline := op.CreatedAt.Add(cfg.Deadline)
	next := cfg.intervals()

	if !s.wait(ctx, cfg.InitialDelay, op, 0) {
		return
	}

	transportFailures := 0
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			s.finish(op, StatusFailed, nil, &OperationError{Kind: ErrorKindCancelled, Detail: "cancelled by caller"}, attempt-1)
			return
		}

		res, err := s.Remote.Poll(ctx, op.RemoteRef)
		if err != nil {
			if ctx.Err() != nil {
				s.finish(op, StatusFailed, nil, &OperationError{Kind: ErrorKindCancelled, Detail: "cancelled by caller"}, attempt)
				return
			}
			transportFailures++
			telemetry.Warn("operation.poll_error", map[string]any{
				"operation_id": op.ID,
				"attempt":      attempt,
				"consecutive":  transportFailures,
				"error":        err.Error(),
			})
			if transportFailures >= cfg.MaxTransportFailures {
				s.finish(op, StatusFailed, nil, &OperationError{Kind: ErrorKindPollUnreachable, Detail: err.Error()}, attempt)
				return
			}
		} else {
			transportFailures = 0
			switch res.Status {
			case docintel.StatusSucceeded:
				result, nerr := Normalize(op.Model, res.Payload)
				if nerr != nil {
					s.finish(op, StatusFailed, nil, &OperationError{Kind: ErrorKindMalformedResult, Detail: nerr.Error()}, attempt)
					return
				}
				s.finish(op, StatusSucceeded, result, nil, attempt)
				return
			case docintel.StatusFailed:
				detail := res.ErrorDetail
				if detail == "" {
					detail = "remote analysis failed"
				}
				s.finish(op, StatusFailed, nil, &OperationError{Kind: ErrorKindRemoteFailure, Detail: detail}, attempt)
				return
			}
			// still not_started or running
		}

		if attempt >= cfg.MaxAttempts || !time.Now().Before(deadline) {
			s.finish(op, StatusTimedOut, nil, nil, attempt)
			return
		}
		if !s.wait(ctx, next(), op, attempt) {
			return
		}
	}
}

// wait sleeps between polls; a false return means the operation was
// cancelled and finished during the wait.
func (s *Service) wait(ctx context.Context, d time.Duration, op Operation, attempts int) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.finish(op, StatusFailed, nil, &OperationError{Kind: ErrorKindCancelled, Detail: "cancelled by caller"}, attempts)
		return false
	case <-timer.C:
		return true
	}
}

// finish records the terminal transition. Repo writes use a fresh context so
// a cancelled poll context cannot lose the final state.
func (s *Service) finish(op Operation, status string, result *AnalysisResult, opErr *OperationError, attempts int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Repo.Transition(ctx, op.ID, status, result, opErr); err != nil {
		// Terminal already written by an earlier pass; nothing to record.
		telemetry.Error("operation.finish_failed", map[string]any{
			"operation_id": op.ID,
			"status":       status,
			"error":        err.Error(),
		})
		return
	}

	durationMs := float64(time.Since(op.CreatedAt).Microseconds()) / 1000.0
	metrics.ObserveOperationDurationMs(durationMs)
	metrics.ObservePollAttempts(attempts)
	switch status {
	case StatusSucceeded:
		metrics.IncOperationSucceeded()
	case StatusTimedOut:
		metrics.IncOperationTimedOut()
	case StatusFailed:
		if opErr != nil && opErr.Kind == ErrorKindCancelled {
			metrics.IncOperationCancelled()
		} else {
			metrics.IncOperationFailed()
		}
	}

	fields := map[string]any{
		"operation_id":      op.ID,
		"model":             op.Model.String(),
		"status":            status,
		"status_transition": StatusRunning + "->" + status,
		"poll_attempts":     attempts,
		"duration_ms":       durationMs,
	}
	if opErr != nil {
		fields["error_kind"] = opErr.Kind
	}
	telemetry.Info("operation.status", fields)
}
