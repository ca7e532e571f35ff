package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyAssociated is returned when either log in a proposed pairing was
// associated by a concurrent request between candidate selection and commit.
var ErrAlreadyAssociated = errors.New("log already associated")

// AssociationStore performs the cross-record association write and keeps the
// append-only audit trail.
type AssociationStore struct {
	db *DB
}

// NewAssociationStore creates an AssociationStore backed by db.
func NewAssociationStore(db *DB) *AssociationStore {
	return &AssociationStore{db: db}
}

// HistoryEntry is one audit record of an association attempt. Written once
// per decision, never mutated.
type HistoryEntry struct {
	ID             int64
	SensorLogID    string
	ActivityLogID  string
	Method         string
	Confidence     float64
	OverlapStartMs int64
	OverlapEndMs   int64
	Accepted       bool
	Detail         string
	CreatedAt      time.Time
}

// Commit writes a successful association atomically: both logs get their
// cross-reference and overlap fields in one transaction, together with the
// audit row. Before committing it re-checks that neither log has been
// associated by a concurrent request; on a lost race it returns
// ErrAlreadyAssociated and writes nothing.
func (s *AssociationStore) Commit(ctx context.Context, sensorLogID, activityLogID, method string, confidence float64, overlapStartMs, overlapEndMs int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin association: %w", err)
	}
	defer tx.Rollback()

	// Optimistic precondition: the guarded UPDATE only matches an
	// unassociated row, so a concurrent association shows up as zero rows
	// affected.
	res, err := tx.ExecContext(ctx, `
		UPDATE sensor_logs SET activity_log_id = ?, assoc_method = ?,
			assoc_confidence = ?, assoc_overlap_start_ms = ?, assoc_overlap_end_ms = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND activity_log_id IS NULL`,
		activityLogID, method, confidence, overlapStartMs, overlapEndMs, sensorLogID)
	if err != nil {
		return fmt.Errorf("associate sensor log %s: %w", sensorLogID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sensor log %s: %w", sensorLogID, ErrAlreadyAssociated)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE activity_logs SET sensor_log_id = ?, assoc_method = ?,
			assoc_confidence = ?, assoc_overlap_start_ms = ?, assoc_overlap_end_ms = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND sensor_log_id IS NULL`,
		sensorLogID, method, confidence, overlapStartMs, overlapEndMs, activityLogID)
	if err != nil {
		return fmt.Errorf("associate activity log %s: %w", activityLogID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("activity log %s: %w", activityLogID, ErrAlreadyAssociated)
	}

	if err := insertHistory(ctx, tx, sensorLogID, activityLogID, method, confidence,
		nullInt64(overlapStartMs), nullInt64(overlapEndMs), true, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit association: %w", err)
	}
	return nil
}

// RecordRejection audits an attempted association that was not accepted
// (no overlap, failed validation, below threshold). It touches neither log.
func (s *AssociationStore) RecordRejection(ctx context.Context, sensorLogID, activityLogID, method string, confidence float64, overlapStartMs, overlapEndMs int64, detail string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rejection audit: %w", err)
	}
	defer tx.Rollback()

	if err := insertHistory(ctx, tx, sensorLogID, activityLogID, method, confidence,
		nullInt64(overlapStartMs), nullInt64(overlapEndMs), false, detail); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rejection audit: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, sensorLogID, activityLogID, method string, confidence float64, overlapStart, overlapEnd sql.NullInt64, accepted bool, detail string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO association_history (sensor_log_id, activity_log_id, method,
			confidence, overlap_start_ms, overlap_end_ms, accepted, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sensorLogID, activityLogID, method, confidence, overlapStart, overlapEnd,
		accepted, nullString(detail))
	if err != nil {
		return fmt.Errorf("insert association history: %w", err)
	}
	return nil
}

// History returns the audit trail for a sensor log, newest first.
func (s *AssociationStore) History(ctx context.Context, sensorLogID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sensor_log_id, activity_log_id, method, confidence,
			overlap_start_ms, overlap_end_ms, accepted, detail, created_at
		FROM association_history
		WHERE sensor_log_id = ?
		ORDER BY created_at DESC, id DESC`, sensorLogID)
	if err != nil {
		return nil, fmt.Errorf("association history for %s: %w", sensorLogID, err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			e            HistoryEntry
			overlapStart sql.NullInt64
			overlapEnd   sql.NullInt64
			detail       sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.SensorLogID, &e.ActivityLogID, &e.Method,
			&e.Confidence, &overlapStart, &overlapEnd, &e.Accepted, &detail,
			&e.CreatedAt); err != nil {
			return nil, err
		}
		e.OverlapStartMs = overlapStart.Int64
		e.OverlapEndMs = overlapEnd.Int64
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
