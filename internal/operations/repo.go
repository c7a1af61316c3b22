package operations

import (
	"context"
	"time"
)

// Repo is the operation store: the single piece of shared mutable state in
// the core. Implementations must be safe for concurrent use across ids and
// must return snapshot copies from reads.
type Repo interface {
	// Create inserts a freshly submitted operation. It never performs remote I/O.
	Create(ctx context.Context, op Operation) error
	// GetByID returns a snapshot of the operation or ErrNotFound.
	GetByID(ctx context.Context, id string) (Operation, error)
	// Transition atomically applies one allowed status edge and stamps
	// UpdatedAt. Disallowed edges, including any transition out of a terminal
	// state, return ErrIllegalTransition and leave the entry untouched.
	Transition(ctx context.Context, id, status string, result *AnalysisResult, opErr *OperationError) error
	// Evict removes terminal operations whose last transition predates the
	// cutoff and reports how many were removed.
	Evict(ctx context.Context, olderThan time.Time) (int, error)
}
