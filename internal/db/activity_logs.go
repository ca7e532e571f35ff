package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ridesync-data/ridesync/internal/ride"
)

// ActivityLogStore persists activity (GPS/power/HR) logs and their points.
type ActivityLogStore struct {
	db *DB
}

// NewActivityLogStore creates an ActivityLogStore backed by db.
func NewActivityLogStore(db *DB) *ActivityLogStore {
	return &ActivityLogStore{db: db}
}

// Create registers a newly uploaded activity file and returns its ID.
func (s *ActivityLogStore) Create(ctx context.Context, ownerID, filename string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, owner_id, filename, status)
		VALUES (?, ?, ?, ?)`,
		id, ownerID, filename, string(ride.StatusUploaded))
	if err != nil {
		return "", fmt.Errorf("create activity log: %w", err)
	}
	return id, nil
}

const activityLogColumns = `id, owner_id, filename, sport, status, start_ms,
	end_ms, error_message, sensor_log_id, assoc_method, assoc_confidence,
	assoc_overlap_start_ms, assoc_overlap_end_ms, created_at, updated_at`

// Get loads one activity log by ID.
func (s *ActivityLogStore) Get(ctx context.Context, id string) (*ride.ActivityLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+activityLogColumns+` FROM activity_logs WHERE id = ?`, id)
	lg, err := scanActivityLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("activity log %s: %w", id, ErrNotFound)
	}
	return lg, err
}

// ListByOwner returns all activity logs for an owner, newest first.
func (s *ActivityLogStore) ListByOwner(ctx context.Context, ownerID string) ([]*ride.ActivityLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityLogColumns+` FROM activity_logs WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	defer rows.Close()
	return collectActivityLogs(rows)
}

// ListUnassociatedInWindow returns ready, unassociated activity logs for an
// owner whose time bounds intersect [startMs, endMs]. This is the candidate
// query for association: the window is usually the sensor log's range padded
// by a search buffer.
func (s *ActivityLogStore) ListUnassociatedInWindow(ctx context.Context, ownerID string, startMs, endMs int64) ([]*ride.ActivityLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+activityLogColumns+` FROM activity_logs
		WHERE owner_id = ? AND status = ? AND sensor_log_id IS NULL
			AND start_ms IS NOT NULL AND end_ms IS NOT NULL
			AND end_ms >= ? AND start_ms <= ?
		ORDER BY start_ms`,
		ownerID, string(ride.StatusReady), startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("list candidate activity logs: %w", err)
	}
	defer rows.Close()
	return collectActivityLogs(rows)
}

// MarkReady finalizes a successfully decoded activity file.
func (s *ActivityLogStore) MarkReady(ctx context.Context, id, sport string, startMs, endMs int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE activity_logs SET status = ?, sport = ?, start_ms = ?, end_ms = ?,
			error_message = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(ride.StatusReady), sport, startMs, endMs, id)
	if err != nil {
		return fmt.Errorf("mark activity log %s ready: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("activity log %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkFailed records a decode failure.
func (s *ActivityLogStore) MarkFailed(ctx context.Context, id, msg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE activity_logs SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(ride.StatusFailed), msg, id)
	if err != nil {
		return fmt.Errorf("mark activity log %s failed: %w", id, err)
	}
	return nil
}

// InsertPoints stores the decoded trace points for an activity log in one
// transaction. Upserts keyed on (activity_log_id, ts_ms) keep re-decodes
// idempotent.
func (s *ActivityLogStore) InsertPoints(ctx context.Context, logID string, points []ride.ActivityPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activity points: %w", err)
	}
	defer tx.Rollback()

	const chunk = 500
	for start := 0; start < len(points); start += chunk {
		end := start + chunk
		if end > len(points) {
			end = len(points)
		}
		part := points[start:end]

		placeholders := make([]string, 0, len(part))
		args := make([]interface{}, 0, len(part)*9)
		for _, p := range part {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, logID, p.TimestampMs, p.Lat, p.Lon, p.EleM,
				p.PowerW, p.HrBpm, p.CadenceRpm, p.SpeedMps)
		}
		query := `
			INSERT INTO activity_points (activity_log_id, ts_ms, lat, lon, ele_m,
				power_w, hr_bpm, cadence_rpm, speed_mps)
			VALUES ` + strings.Join(placeholders, ", ") + `
			ON CONFLICT(activity_log_id, ts_ms) DO UPDATE SET
				lat = excluded.lat, lon = excluded.lon, ele_m = excluded.ele_m,
				power_w = excluded.power_w, hr_bpm = excluded.hr_bpm,
				cadence_rpm = excluded.cadence_rpm, speed_mps = excluded.speed_mps`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert %d activity points: %w", len(part), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activity points: %w", err)
	}
	return nil
}

// GetPoints returns the stored points for an activity log ordered by time.
func (s *ActivityLogStore) GetPoints(ctx context.Context, logID string) ([]ride.ActivityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts_ms, lat, lon, ele_m, power_w, hr_bpm, cadence_rpm, speed_mps
		FROM activity_points WHERE activity_log_id = ? ORDER BY ts_ms`, logID)
	if err != nil {
		return nil, fmt.Errorf("get activity points for %s: %w", logID, err)
	}
	defer rows.Close()

	var out []ride.ActivityPoint
	for rows.Next() {
		var p ride.ActivityPoint
		if err := rows.Scan(&p.TimestampMs, &p.Lat, &p.Lon, &p.EleM,
			&p.PowerW, &p.HrBpm, &p.CadenceRpm, &p.SpeedMps); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func collectActivityLogs(rows *sql.Rows) ([]*ride.ActivityLog, error) {
	var logs []*ride.ActivityLog
	for rows.Next() {
		lg, err := scanActivityLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, lg)
	}
	return logs, rows.Err()
}

func scanActivityLog(sc scanner) (*ride.ActivityLog, error) {
	var (
		lg           ride.ActivityLog
		status       string
		startMs      sql.NullInt64
		endMs        sql.NullInt64
		errMsg       sql.NullString
		sensorID     sql.NullString
		method       sql.NullString
		confidence   sql.NullFloat64
		overlapStart sql.NullInt64
		overlapEnd   sql.NullInt64
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := sc.Scan(&lg.ID, &lg.OwnerID, &lg.Filename, &lg.Sport, &status,
		&startMs, &endMs, &errMsg, &sensorID, &method, &confidence,
		&overlapStart, &overlapEnd, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	lg.Status = ride.LogStatus(status)
	lg.StartMs = startMs.Int64
	lg.EndMs = endMs.Int64
	lg.ErrorMessage = errMsg.String
	lg.CreatedAt = createdAt
	lg.UpdatedAt = updatedAt

	if sensorID.Valid {
		lg.SensorLogID = &sensorID.String
		lg.Assoc = &ride.Association{
			Method:         method.String,
			Confidence:     confidence.Float64,
			OverlapStartMs: overlapStart.Int64,
			OverlapEndMs:   overlapEnd.Int64,
		}
	}
	return &lg, nil
}
