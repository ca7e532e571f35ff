package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ridesync-data/ridesync/internal/ride"
)

// ErrNotFound is returned when a requested log does not exist.
var ErrNotFound = errors.New("not found")

// SensorLogStore persists sensor log metadata, lifecycle transitions and the
// ingestion checkpoint. It implements ingest.LogStore.
type SensorLogStore struct {
	db *DB
}

// NewSensorLogStore creates a SensorLogStore backed by db.
func NewSensorLogStore(db *DB) *SensorLogStore {
	return &SensorLogStore{db: db}
}

// Create registers a newly uploaded file and returns its generated ID. The
// log starts in the uploaded state with a zero checkpoint.
func (s *SensorLogStore) Create(ctx context.Context, ownerID, filename string, sizeBytes, declaredCount int64) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sensor_logs (id, owner_id, filename, size_bytes, status, declared_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, ownerID, filename, sizeBytes, string(ride.StatusUploaded), declaredCount)
	if err != nil {
		return "", fmt.Errorf("create sensor log: %w", err)
	}
	return id, nil
}

const sensorLogColumns = `id, owner_id, filename, size_bytes, status,
	processed_count, declared_count, start_ms, end_ms, duration_s,
	sample_rate_hz, error_message, activity_log_id, assoc_method,
	assoc_confidence, assoc_overlap_start_ms, assoc_overlap_end_ms,
	created_at, updated_at`

// Get loads one sensor log by ID.
func (s *SensorLogStore) Get(ctx context.Context, id string) (*ride.SensorLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sensorLogColumns+` FROM sensor_logs WHERE id = ?`, id)
	lg, err := scanSensorLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sensor log %s: %w", id, ErrNotFound)
	}
	return lg, err
}

// ListByOwner returns all sensor logs for an owner, newest first.
func (s *SensorLogStore) ListByOwner(ctx context.Context, ownerID string) ([]*ride.SensorLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sensorLogColumns+` FROM sensor_logs WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sensor logs: %w", err)
	}
	defer rows.Close()

	var logs []*ride.SensorLog
	for rows.Next() {
		lg, err := scanSensorLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, lg)
	}
	return logs, rows.Err()
}

// MarkParsing transitions the log to the parsing state. When reset is true
// the checkpoint is zeroed for a restart from scratch; a resumed run keeps
// it.
func (s *SensorLogStore) MarkParsing(ctx context.Context, id string, reset bool) error {
	query := `UPDATE sensor_logs SET status = ?, error_message = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if reset {
		query = `UPDATE sensor_logs SET status = ?, error_message = NULL, processed_count = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	}
	return s.exec(ctx, id, query, string(ride.StatusParsing), id)
}

// UpdateCheckpoint durably records the cumulative processed-row count. The
// guard in the WHERE clause keeps the checkpoint monotonic even if a stale
// writer retries an old batch.
func (s *SensorLogStore) UpdateCheckpoint(ctx context.Context, id string, processed int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sensor_logs SET processed_count = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND processed_count <= ?`,
		processed, id, processed)
	if err != nil {
		return fmt.Errorf("update checkpoint for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update checkpoint for %s: %w", id, err)
	}
	if n == 0 {
		// Either the log is gone or a newer checkpoint is already recorded;
		// both are fine for an idempotent retry.
		var current int64
		if err := s.db.QueryRowContext(ctx,
			`SELECT processed_count FROM sensor_logs WHERE id = ?`, id).Scan(&current); err != nil {
			return fmt.Errorf("checkpoint for missing log %s", id)
		}
	}
	return nil
}

// MarkReady finalizes a successful parse with the whole-set derived stats.
func (s *SensorLogStore) MarkReady(ctx context.Context, id string, count, firstMs, lastMs int64, durationS, sampleRateHz float64) error {
	return s.exec(ctx, id, `
		UPDATE sensor_logs SET status = ?, processed_count = ?, start_ms = ?, end_ms = ?,
			duration_s = ?, sample_rate_hz = ?, error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(ride.StatusReady), count, firstMs, lastMs, durationS, sampleRateHz, id)
}

// MarkFailed records a failure. The checkpoint is reset because the
// compensating cleanup has removed every persisted sample, so a retry must
// restart from zero.
func (s *SensorLogStore) MarkFailed(ctx context.Context, id string, msg string) error {
	return s.exec(ctx, id, `
		UPDATE sensor_logs SET status = ?, error_message = ?, processed_count = 0,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(ride.StatusFailed), msg, id)
}

func (s *SensorLogStore) exec(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update sensor log %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sensor log %s: %w", id, ErrNotFound)
	}
	return nil
}

// scanner abstracts sql.Row/sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSensorLog(sc scanner) (*ride.SensorLog, error) {
	var (
		lg           ride.SensorLog
		status       string
		startMs      sql.NullInt64
		endMs        sql.NullInt64
		durationS    sql.NullFloat64
		rateHz       sql.NullFloat64
		errMsg       sql.NullString
		activityID   sql.NullString
		method       sql.NullString
		confidence   sql.NullFloat64
		overlapStart sql.NullInt64
		overlapEnd   sql.NullInt64
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := sc.Scan(&lg.ID, &lg.OwnerID, &lg.Filename, &lg.SizeBytes, &status,
		&lg.ProcessedCount, &lg.DeclaredCount, &startMs, &endMs, &durationS,
		&rateHz, &errMsg, &activityID, &method, &confidence, &overlapStart,
		&overlapEnd, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	lg.Status = ride.LogStatus(status)
	lg.StartMs = startMs.Int64
	lg.EndMs = endMs.Int64
	lg.DurationS = durationS.Float64
	lg.SampleRateHz = rateHz.Float64
	lg.ErrorMessage = errMsg.String
	lg.CreatedAt = createdAt
	lg.UpdatedAt = updatedAt

	if activityID.Valid {
		lg.ActivityLogID = &activityID.String
		lg.Assoc = &ride.Association{
			Method:         method.String,
			Confidence:     confidence.Float64,
			OverlapStartMs: overlapStart.Int64,
			OverlapEndMs:   overlapEnd.Int64,
		}
	}
	return &lg, nil
}
