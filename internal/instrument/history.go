package instrument

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// History persists terminal operations to SQLite so runs can be audited
// after the fact and served over the API.
//
// Every operation that reaches a terminal state is recorded; the result
// location is filled in later once post-processing completes.
type History struct {
	db *sql.DB
}

// NewHistory creates an operation history repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *History: Repository instance ready for use
func NewHistory(db *sql.DB) *History {
	return &History{db: db}
}

// Record inserts one terminal operation.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - op: The operation to persist; must have an ID and a terminal state
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (h *History) Record(ctx context.Context, op Operation) error {
	if op.ID == "" {
		return fmt.Errorf("operation id is required")
	}

	var params []byte
	if len(op.Parameters) > 0 {
		var err error
		params, err = json.Marshal(op.Parameters)
		if err != nil {
			return fmt.Errorf("marshalling parameters: %w", err)
		}
	}

	var finishedAt any
	if !op.FinishedAt.IsZero() {
		finishedAt = op.FinishedAt.UTC()
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO operations
		 (id, device_id, kind, name, parameters, state, data_points, result_location, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID,
		op.DeviceID,
		string(op.Kind),
		op.Name,
		nullableString(params),
		string(op.State),
		op.DataPoints,
		op.ResultLocation,
		op.StartedAt.UTC(),
		finishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting operation: %w", err)
	}

	return nil
}

// SetResultLocation updates the stored result location for an operation.
func (h *History) SetResultLocation(ctx context.Context, operationID, location string) error {
	if operationID == "" {
		return fmt.Errorf("operation id is required")
	}

	result, err := h.db.ExecContext(ctx,
		"UPDATE operations SET result_location = ? WHERE id = ?",
		location, operationID,
	)
	if err != nil {
		return fmt.Errorf("updating result location: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %q", ErrOperationNotFound, operationID)
	}

	return nil
}

// Get retrieves one operation by id.
func (h *History) Get(ctx context.Context, operationID string) (Operation, error) {
	row := h.db.QueryRowContext(ctx,
		`SELECT id, device_id, kind, name, parameters, state, data_points, result_location, started_at, finished_at
		 FROM operations WHERE id = ?`,
		operationID,
	)

	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Operation{}, fmt.Errorf("%w: %q", ErrOperationNotFound, operationID)
	}
	if err != nil {
		return Operation{}, fmt.Errorf("querying operation: %w", err)
	}
	return op, nil
}

// ListRecent returns recent operations, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 200)
func (h *History) ListRecent(ctx context.Context, limit int) ([]Operation, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, device_id, kind, name, parameters, state, data_points, result_location, started_at, finished_at
		 FROM operations ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operations: %w", err)
	}

	return ops, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(s scanner) (Operation, error) {
	var (
		op         Operation
		kind       string
		state      string
		params     sql.NullString
		location   sql.NullString
		startedAt  time.Time
		finishedAt sql.NullTime
	)

	err := s.Scan(&op.ID, &op.DeviceID, &kind, &op.Name, &params, &state,
		&op.DataPoints, &location, &startedAt, &finishedAt)
	if err != nil {
		return Operation{}, err
	}

	op.Kind = Kind(kind)
	op.State = OperationState(state)
	op.StartedAt = startedAt
	if finishedAt.Valid {
		op.FinishedAt = finishedAt.Time
	}
	if location.Valid {
		op.ResultLocation = location.String
	}
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &op.Parameters); err != nil {
			return Operation{}, fmt.Errorf("unmarshalling parameters: %w", err)
		}
	}

	return op, nil
}

// nullableString converts empty byte slices to NULL for storage.
func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
