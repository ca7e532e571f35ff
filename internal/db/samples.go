package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ridesync-data/ridesync/internal/ride"
)

// SampleStore persists IMU samples. Writes are keyed upserts on
// (owner_id, sensor_log_id, ts_ms), so re-delivering a batch after a crash
// between write and checkpoint is harmless. Implements ingest.SampleWriter.
type SampleStore struct {
	db *DB
}

// NewSampleStore creates a SampleStore backed by db.
func NewSampleStore(db *DB) *SampleStore {
	return &SampleStore{db: db}
}

// insertChunkRows bounds the rows per multi-row INSERT statement; SQLite
// caps bound parameters per statement, and 500 rows x 16 columns stays
// comfortably under it.
const insertChunkRows = 500

// deleteSubBatch bounds the rows removed per DELETE statement during
// compensating cleanup, so cleaning up a huge failed ingest cannot hold one
// giant transaction open.
const deleteSubBatch = 5_000

// UpsertBatch writes one parsed batch in a single transaction. The batch is
// chunked into multi-row upsert statements; either the whole batch commits
// or none of it does.
func (s *SampleStore) UpsertBatch(ctx context.Context, ownerID, logID string, samples []ride.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sample batch: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(samples); start += insertChunkRows {
		end := start + insertChunkRows
		if end > len(samples) {
			end = len(samples)
		}
		if err := upsertChunk(ctx, tx, ownerID, logID, samples[start:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sample batch: %w", err)
	}
	return nil
}

func upsertChunk(ctx context.Context, tx *sql.Tx, ownerID, logID string, samples []ride.Sample) error {
	const cols = 16
	placeholders := make([]string, 0, len(samples))
	args := make([]interface{}, 0, len(samples)*cols)

	for _, smp := range samples {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, ownerID, logID, smp.TimestampMs,
			smp.AccelX, smp.AccelY, smp.AccelZ,
			smp.GyroX, smp.GyroY, smp.GyroZ)
		args = append(args, nullGroup3(smp.HasMag, smp.MagX, smp.MagY, smp.MagZ)...)
		args = append(args, nullGroup4(smp.HasQuat, smp.QuatW, smp.QuatX, smp.QuatY, smp.QuatZ)...)
	}

	query := `
		INSERT INTO samples (owner_id, sensor_log_id, ts_ms,
			accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z,
			mag_x, mag_y, mag_z, quat_w, quat_x, quat_y, quat_z)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT(owner_id, sensor_log_id, ts_ms) DO UPDATE SET
			accel_x = excluded.accel_x, accel_y = excluded.accel_y, accel_z = excluded.accel_z,
			gyro_x = excluded.gyro_x, gyro_y = excluded.gyro_y, gyro_z = excluded.gyro_z,
			mag_x = excluded.mag_x, mag_y = excluded.mag_y, mag_z = excluded.mag_z,
			quat_w = excluded.quat_w, quat_x = excluded.quat_x,
			quat_y = excluded.quat_y, quat_z = excluded.quat_z`

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %d samples: %w", len(samples), err)
	}
	return nil
}

func nullGroup3(present bool, a, b, c float64) []interface{} {
	if !present {
		return []interface{}{nil, nil, nil}
	}
	return []interface{}{a, b, c}
}

func nullGroup4(present bool, a, b, c, d float64) []interface{} {
	if !present {
		return []interface{}{nil, nil, nil, nil}
	}
	return []interface{}{a, b, c, d}
}

// DeleteForLog removes every sample for a log in bounded sub-batches and
// returns the number of rows deleted. Used as compensating cleanup after a
// failed ingest; tolerant of arbitrarily many previously written rows.
func (s *SampleStore) DeleteForLog(ctx context.Context, ownerID, logID string) (int64, error) {
	var total int64
	for {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM samples
			WHERE rowid IN (
				SELECT rowid FROM samples
				WHERE owner_id = ? AND sensor_log_id = ?
				LIMIT ?
			)`, ownerID, logID, deleteSubBatch)
		if err != nil {
			return total, fmt.Errorf("delete samples for %s: %w", logID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("delete samples for %s: %w", logID, err)
		}
		total += n
		if n < deleteSubBatch {
			return total, nil
		}
	}
}

// CountForLog returns the number of stored samples for a log.
func (s *SampleStore) CountForLog(ctx context.Context, ownerID, logID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM samples WHERE owner_id = ? AND sensor_log_id = ?`,
		ownerID, logID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count samples for %s: %w", logID, err)
	}
	return n, nil
}

// TimeRangeOf returns the min/max timestamp over a log's stored samples.
// ok is false when the log has no samples.
func (s *SampleStore) TimeRangeOf(ctx context.Context, ownerID, logID string) (minMs, maxMs int64, ok bool, err error) {
	var lo, hi sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT MIN(ts_ms), MAX(ts_ms) FROM samples
		WHERE owner_id = ? AND sensor_log_id = ?`,
		ownerID, logID).Scan(&lo, &hi)
	if err != nil {
		return 0, 0, false, fmt.Errorf("time range for %s: %w", logID, err)
	}
	if !lo.Valid || !hi.Valid {
		return 0, 0, false, nil
	}
	return lo.Int64, hi.Int64, true, nil
}

// GetRange returns samples for a log within [startMs, endMs], ordered by
// timestamp, capped at limit rows (0 means no cap).
func (s *SampleStore) GetRange(ctx context.Context, ownerID, logID string, startMs, endMs int64, limit int) ([]ride.Sample, error) {
	query := `
		SELECT ts_ms, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z,
			mag_x, mag_y, mag_z, quat_w, quat_x, quat_y, quat_z
		FROM samples
		WHERE owner_id = ? AND sensor_log_id = ? AND ts_ms >= ? AND ts_ms <= ?
		ORDER BY ts_ms`
	args := []interface{}{ownerID, logID, startMs, endMs}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get samples for %s: %w", logID, err)
	}
	defer rows.Close()

	var out []ride.Sample
	for rows.Next() {
		var (
			smp            ride.Sample
			mx, my, mz     sql.NullFloat64
			qw, qx, qy, qz sql.NullFloat64
		)
		if err := rows.Scan(&smp.TimestampMs,
			&smp.AccelX, &smp.AccelY, &smp.AccelZ,
			&smp.GyroX, &smp.GyroY, &smp.GyroZ,
			&mx, &my, &mz, &qw, &qx, &qy, &qz); err != nil {
			return nil, err
		}
		if mx.Valid && my.Valid && mz.Valid {
			smp.HasMag = true
			smp.MagX, smp.MagY, smp.MagZ = mx.Float64, my.Float64, mz.Float64
		}
		if qw.Valid && qx.Valid && qy.Valid && qz.Valid {
			smp.HasQuat = true
			smp.QuatW, smp.QuatX, smp.QuatY, smp.QuatZ = qw.Float64, qx.Float64, qy.Float64, qz.Float64
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}
