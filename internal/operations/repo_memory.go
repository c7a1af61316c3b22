package operations

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepo keeps operations in memory and is safe for concurrent use.
// The outer map is guarded by an RWMutex for lookups only; each entry has
// its own lock so writers for unrelated operations never serialize on each
// other.
type MemoryRepo struct {
	mu  sync.RWMutex
	ops map[string]*memEntry

	now func() time.Time
}

type memEntry struct {
	mu sync.Mutex
	op Operation
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		ops: make(map[string]*memEntry),
		now: time.Now,
	}
}

// Create stores the operation under its id.
func (r *MemoryRepo) Create(ctx context.Context, op Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.ID]; exists {
		return fmt.Errorf("operation %s already exists", op.ID)
	}
	r.ops[op.ID] = &memEntry{op: op.clone()}
	return nil
}

// GetByID returns a snapshot copy of the operation.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Operation, error) {
	if err := ctx.Err(); err != nil {
		return Operation{}, err
	}
	entry := r.lookup(id)
	if entry == nil {
		return Operation{}, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.op.clone(), nil
}

// Transition applies one allowed status edge.
func (r *MemoryRepo) Transition(ctx context.Context, id, status string, result *AnalysisResult, opErr *OperationError) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := r.lookup(id)
	if entry == nil {
		return ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !canTransition(entry.op.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, entry.op.Status, status)
	}
	entry.op.Status = status
	if result != nil {
		res := result.clone()
		entry.op.Result = &res
	}
	if opErr != nil {
		e := *opErr
		entry.op.Error = &e
	}
	entry.op.UpdatedAt = r.now().UTC()
	return nil
}

// Evict removes terminal operations not updated since the cutoff.
func (r *MemoryRepo) Evict(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, entry := range r.ops {
		entry.mu.Lock()
		stale := IsTerminal(entry.op.Status) && entry.op.UpdatedAt.Before(olderThan)
		entry.mu.Unlock()
		if stale {
			delete(r.ops, id)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryRepo) lookup(id string) *memEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ops[id]
}
