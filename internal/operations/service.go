package operations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"docintel-backend/internal/docintel"
	"docintel-backend/internal/shared/metrics"
	"docintel-backend/internal/shared/storage/object"
	"docintel-backend/internal/shared/telemetry"
)

// DefaultRetention is how long terminal operations stay readable before the
// janitor may evict them.
const DefaultRetention = 1 * time.Hour

// Service orchestrates the lifecycle of analysis operations: it submits
// documents to the remote service, registers local tracking, drives polling
// to a terminal state and answers status reads.
type Service struct {
	Repo   Repo
	Remote docintel.Client
	// Store keeps a durable copy of uploaded documents. Optional; URL
	// sources never touch it.
	Store     object.ObjectStore
	Poll      PollConfig
	Retention time.Duration

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewService constructs a Service.
func NewService(repo Repo, remote docintel.Client, store object.ObjectStore, poll PollConfig) *Service {
	return &Service{
		Repo:      repo,
		Remote:    remote,
		Store:     store,
		Poll:      poll,
		Retention: DefaultRetention,
		inflight:  make(map[string]context.CancelFunc),
	}
}

// Submit validates the request, starts the remote job and registers a local
// operation. It returns as soon as the remote reference is obtained; the
// polling driver advances the operation in the background.
func (s *Service) Submit(ctx context.Context, model ModelType, source DocumentSource, opts AnalyzeOptions) (Operation, error) {
	if model.RemoteID() == "" {
		return Operation{}, fmt.Errorf("%w: model type is required", ErrInvalidInput)
	}
	if err := source.Validate(); err != nil {
		return Operation{}, err
	}

	info := SourceInfo{Kind: SourceKindURL, URL: source.URL}
	if len(source.Content) > 0 {
		info = SourceInfo{
			Kind:        SourceKindUpload,
			ContentType: source.ContentType,
			SizeBytes:   int64(len(source.Content)),
		}
		if s.Store != nil {
			key, _, _, err := s.Store.Save(ctx, "uploaded_document", bytes.NewReader(source.Content))
			if err != nil {
				return Operation{}, fmt.Errorf("store uploaded document: %w", err)
			}
			info.StorageKey = key
		}
	}

	remoteRef, err := s.Remote.Submit(ctx, docintel.SubmitRequest{
		ModelID:     model.RemoteID(),
		DocumentURL: source.URL,
		Content:     source.Content,
		ContentType: source.ContentType,
		Locale:      opts.Locale,
		Pages:       opts.Pages,
	})
	if err != nil {
		if errors.Is(err, docintel.ErrUnreachable) {
			return Operation{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
		}
		return Operation{}, fmt.Errorf("submit analysis: %w", err)
	}

	now := time.Now().UTC()
	op := Operation{
		ID:        uuid.NewString(),
		RemoteRef: remoteRef,
		Model:     model,
		Source:    info,
		Status:    StatusNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(ctx, op); err != nil {
		return Operation{}, fmt.Errorf("register operation: %w", err)
	}
	// The remote accepted the job, so the operation is running from the
	// caller's point of view even if the first poll would still say
	// not_started.
	if err := s.Repo.Transition(ctx, op.ID, StatusRunning, nil, nil); err != nil {
		return Operation{}, fmt.Errorf("start operation: %w", err)
	}

	metrics.IncOperationSubmitted()
	telemetry.Info("operation.status", map[string]any{
		"operation_id":      op.ID,
		"model":             model.String(),
		"source_kind":       info.Kind,
		"status":            StatusRunning,
		"status_transition": StatusNotStarted + "->" + StatusRunning,
	})

	pollCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.inflight[op.ID] = cancel
	s.mu.Unlock()
	go s.pollUntilDone(pollCtx, op)

	return s.Repo.GetByID(ctx, op.ID)
}

// GetStatus returns the current snapshot of the operation, including its
// result or error once terminal. Unknown and evicted ids yield ErrNotFound.
func (s *Service) GetStatus(ctx context.Context, id string) (Operation, error) {
	if id == "" {
		return Operation{}, fmt.Errorf("%w: operation id is required", ErrInvalidInput)
	}
	return s.Repo.GetByID(ctx, id)
}

// Cancel stops polling for an in-flight operation; the driver records the
// terminal failed/cancelled state. Cancelling an already-terminal operation
// is an acknowledged no-op. The remote service may keep processing; only
// local tracking ends.
func (s *Service) Cancel(ctx context.Context, id string) (Operation, error) {
	op, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Operation{}, err
	}

	s.mu.Lock()
	cancel, ok := s.inflight[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return op, nil
}

func (s *Service) unregister(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// RunEviction periodically removes terminal operations older than the
// retention window. It blocks until ctx is done and is meant to run on its
// own goroutine.
func (s *Service) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	retention := s.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Repo.Evict(ctx, time.Now().UTC().Add(-retention))
			if err != nil {
				telemetry.Error("operation.evict_failed", map[string]any{"error": err.Error()})
				continue
			}
			if removed > 0 {
				telemetry.Info("operation.evicted", map[string]any{"count": removed})
			}
		}
	}
}
