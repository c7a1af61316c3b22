package operations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new operation.
func (r *PGRepo) Create(ctx context.Context, op Operation) error {
	const query = `
INSERT INTO operations (
	id, remote_ref, model_type, custom_model_id, source_kind, source_url,
	storage_key, content_type, size_bytes, status, result, error_kind,
	error_detail, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	resultPayload, err := marshalResult(op.Result)
	if err != nil {
		return err
	}
	errorKind, errorDetail := "", ""
	if op.Error != nil {
		errorKind, errorDetail = op.Error.Kind, op.Error.Detail
	}
	_, err = r.DB.ExecContext(ctx, query,
		op.ID,
		op.RemoteRef,
		op.Model.Kind(),
		op.Model.CustomID(),
		op.Source.Kind,
		op.Source.URL,
		op.Source.StorageKey,
		op.Source.ContentType,
		op.Source.SizeBytes,
		op.Status,
		resultPayload,
		errorKind,
		errorDetail,
		op.CreatedAt,
		op.UpdatedAt,
	)
	return err
}

// GetByID returns an operation by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Operation, error) {
	const query = `
SELECT id, remote_ref, model_type, custom_model_id, source_kind, source_url,
       storage_key, content_type, size_bytes, status, result, error_kind,
       error_detail, created_at, updated_at
FROM operations
WHERE id = $1
LIMIT 1`

	var op Operation
	var modelKind, customModelID string
	var result sql.NullString
	var errorKind, errorDetail string
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&op.ID,
		&op.RemoteRef,
		&modelKind,
		&customModelID,
		&op.Source.Kind,
		&op.Source.URL,
		&op.Source.StorageKey,
		&op.Source.ContentType,
		&op.Source.SizeBytes,
		&op.Status,
		&result,
		&errorKind,
		&errorDetail,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Operation{}, ErrNotFound
		}
		return Operation{}, err
	}
	op.Model = ModelType{kind: modelKind, customID: customModelID}
	if result.Valid && result.String != "" {
		var res AnalysisResult
		if err := json.Unmarshal([]byte(result.String), &res); err == nil {
			op.Result = &res
		}
	}
	if errorKind != "" {
		op.Error = &OperationError{Kind: errorKind, Detail: errorDetail}
	}
	return op, nil
}

// Transition moves an operation to a new status. The legality check runs in
// the UPDATE's WHERE clause so concurrent writers cannot both win.
func (r *PGRepo) Transition(ctx context.Context, id, status string, result *AnalysisResult, opErr *OperationError) error {
	const query = `
UPDATE operations
SET status = $1,
    result = COALESCE($2::jsonb, result),
    error_kind = COALESCE(NULLIF($3::text, ''), error_kind),
    error_detail = COALESCE(NULLIF($4::text, ''), error_detail),
    updated_at = now()
WHERE id = $5
  AND (
       (status = 'not_started' AND $1 = 'running')
    OR (status = 'running' AND $1 IN ('succeeded', 'failed', 'timed_out'))
  )`

	resultPayload, err := marshalResult(result)
	if err != nil {
		return err
	}
	errorKind, errorDetail := "", ""
	if opErr != nil {
		errorKind, errorDetail = opErr.Kind, opErr.Detail
	}

	res, err := r.DB.ExecContext(ctx, query, status, resultPayload, errorKind, errorDetail, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// No row was updated: distinguish a missing operation from an illegal move.
	var current string
	err = r.DB.QueryRowContext(ctx, `SELECT status FROM operations WHERE id = $1 LIMIT 1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, status)
}

// Evict deletes terminal operations whose last update is older than the cutoff.
func (r *PGRepo) Evict(ctx context.Context, olderThan time.Time) (int, error) {
	const query = `
DELETE FROM operations
WHERE status IN ('succeeded', 'failed', 'timed_out')
  AND updated_at < $1`

	res, err := r.DB.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func marshalResult(result *AnalysisResult) (any, error) {
	if result == nil {
		return nil, nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return payload, nil
}
