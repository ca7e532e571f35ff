// Package ingest implements the streaming, checkpointed ingestion pipeline
// for IMU sensor logs: a batch parser over delimited text, chunk reassembly
// for multi-part uploads, and the runner that ties parsing to persistence
// with resumable checkpoints and compensating cleanup.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ridesync-data/ridesync/internal/ride"
)

// DefaultBatchSize is the number of samples flushed per batch. Fixed and
// independent of file size; large logs simply produce more batches.
const DefaultBatchSize = 10_000

// Batch is one fixed-size group of parsed samples handed to the batch
// callback. StartRow is the zero-based cumulative index of the first sample,
// so callbacks can derive the checkpoint as StartRow + len(Samples).
type Batch struct {
	Samples  []ride.Sample
	StartRow int64
}

// BatchFunc persists one batch. The parser does not start the next batch
// until the callback returns; returning an error aborts the parse.
type BatchFunc func(ctx context.Context, b Batch) error

// ProgressFunc reports cumulative processed rows at a coarse cadence, for
// observability only.
type ProgressFunc func(processed int64)

// Options tunes a parse.
type Options struct {
	// BatchSize overrides DefaultBatchSize when > 0.
	BatchSize int

	// SkipRows suppresses emission of the first SkipRows successfully
	// converted rows. Used on resume: rows up to the checkpoint are already
	// persisted, and persistence is idempotent anyway, so re-emission would
	// be safe but wasteful. Timestamps and totals still cover the whole
	// stream.
	SkipRows int64

	// SortBuffered switches to non-streaming mode: all rows are buffered,
	// sorted by timestamp, then emitted in batches. Streaming mode trusts
	// the input order.
	SortBuffered bool

	// ProgressEveryBatches controls how often Progress fires. Defaults to 5.
	ProgressEveryBatches int

	Progress ProgressFunc
}

// Result summarizes a completed parse. Duration and sample rate are derived
// once over the entire successfully parsed set, never per batch.
type Result struct {
	TotalProcessed   int64
	FirstTimestampMs int64
	LastTimestampMs  int64
	ErrorCount       int64
	DurationS        float64
	SampleRateHz     float64
}

// Required column names, in canonical order.
var requiredColumns = []string{
	"timestamp_ms",
	"accel_x", "accel_y", "accel_z",
	"gyro_x", "gyro_y", "gyro_z",
}

var magColumns = []string{"mag_x", "mag_y", "mag_z"}
var quatColumns = []string{"quat_w", "quat_x", "quat_y", "quat_z"}

// columnMap resolves header names to field indexes.
type columnMap struct {
	required [7]int
	hasMag   bool
	mag      [3]int
	hasQuat  bool
	quat     [4]int
}

// Parse consumes a delimited-text sensor log from r, validates its schema,
// converts rows to samples and flushes fixed-size batches through flush.
// Rows whose required fields fail conversion are counted and skipped; the
// parse fails only if zero rows convert, if the schema is invalid, or if a
// batch callback returns an error.
func Parse(ctx context.Context, r io.Reader, flush BatchFunc, opts Options) (Result, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	progressEvery := opts.ProgressEveryBatches
	if progressEvery <= 0 {
		progressEvery = 5
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // row width is validated per row against the header

	header, err := cr.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return Result{}, err
	}

	var (
		res       Result
		batch     = make([]ride.Sample, 0, batchSize)
		buffered  []ride.Sample // non-streaming mode only
		rowErrors []RowError
		emitted   int64 // rows handed to flush so far (excludes skipped)
		flushed   int64 // batches flushed, for progress cadence
		line      int64 = 1
	)

	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		b := Batch{Samples: batch, StartRow: opts.SkipRows + emitted}
		if err := flush(ctx, b); err != nil {
			return fmt.Errorf("flush batch at row %d: %w", b.StartRow, err)
		}
		emitted += int64(len(batch))
		flushed++
		batch = make([]ride.Sample, 0, batchSize)
		if opts.Progress != nil && flushed%int64(progressEvery) == 0 {
			opts.Progress(opts.SkipRows + emitted)
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			res.ErrorCount++
			if len(rowErrors) < maxReportedRowErrors {
				rowErrors = append(rowErrors, RowError{Line: line, Msg: err.Error()})
			}
			continue
		}

		s, convErr := convertRow(record, cols)
		if convErr != nil {
			res.ErrorCount++
			if len(rowErrors) < maxReportedRowErrors {
				rowErrors = append(rowErrors, RowError{Line: line, Msg: convErr.Error()})
			}
			continue
		}

		if res.TotalProcessed == 0 || s.TimestampMs < res.FirstTimestampMs {
			res.FirstTimestampMs = s.TimestampMs
		}
		if s.TimestampMs > res.LastTimestampMs {
			res.LastTimestampMs = s.TimestampMs
		}
		res.TotalProcessed++

		if opts.SortBuffered {
			buffered = append(buffered, s)
			continue
		}

		// Resume path: rows up to the checkpoint are already persisted.
		if res.TotalProcessed <= opts.SkipRows {
			continue
		}

		batch = append(batch, s)
		if len(batch) >= batchSize {
			if err := flushBatch(); err != nil {
				return res, err
			}
		}
	}

	if res.TotalProcessed == 0 {
		return res, &AggregateRowError{Total: res.ErrorCount, First: rowErrors}
	}

	if opts.SortBuffered {
		sort.Slice(buffered, func(i, j int) bool {
			return buffered[i].TimestampMs < buffered[j].TimestampMs
		})
		if opts.SkipRows > 0 && opts.SkipRows < int64(len(buffered)) {
			buffered = buffered[opts.SkipRows:]
		} else if opts.SkipRows >= int64(len(buffered)) {
			buffered = nil
		}
		for len(buffered) > 0 {
			n := batchSize
			if n > len(buffered) {
				n = len(buffered)
			}
			batch = buffered[:n:n]
			buffered = buffered[n:]
			if err := flushBatch(); err != nil {
				return res, err
			}
		}
	} else if err := flushBatch(); err != nil {
		return res, err
	}

	if opts.Progress != nil {
		opts.Progress(opts.SkipRows + emitted)
	}

	// Whole-set derived stats: duration in seconds and mean sample rate.
	if res.LastTimestampMs > res.FirstTimestampMs {
		res.DurationS = float64(res.LastTimestampMs-res.FirstTimestampMs) / 1000.0
		res.SampleRateHz = float64(res.TotalProcessed) / res.DurationS
	}

	return res, nil
}

// resolveColumns validates the header and maps column names to indexes.
// Required columns must all be present; the optional magnetometer and
// quaternion groups must each be fully present or fully absent.
func resolveColumns(header []string) (columnMap, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var cols columnMap
	var missing []string
	for i, name := range requiredColumns {
		idx, ok := index[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols.required[i] = idx
	}
	if len(missing) > 0 {
		return columnMap{}, &SchemaError{Missing: missing}
	}

	magPresent := 0
	for i, name := range magColumns {
		if idx, ok := index[name]; ok {
			cols.mag[i] = idx
			magPresent++
		}
	}
	switch magPresent {
	case 0:
	case len(magColumns):
		cols.hasMag = true
	default:
		return columnMap{}, fmt.Errorf("magnetometer columns partially present: want all of %s or none", strings.Join(magColumns, ", "))
	}

	quatPresent := 0
	for i, name := range quatColumns {
		if idx, ok := index[name]; ok {
			cols.quat[i] = idx
			quatPresent++
		}
	}
	switch quatPresent {
	case 0:
	case len(quatColumns):
		cols.hasQuat = true
	default:
		return columnMap{}, fmt.Errorf("quaternion columns partially present: want all of %s or none", strings.Join(quatColumns, ", "))
	}

	return cols, nil
}

// convertRow turns one record into a typed sample. Failure of any required
// field fails the whole row; failure of an optional group drops just that
// group for the row.
func convertRow(record []string, cols columnMap) (ride.Sample, error) {
	var s ride.Sample

	get := func(idx int) (string, error) {
		if idx >= len(record) {
			return "", fmt.Errorf("row has %d fields, need index %d", len(record), idx)
		}
		return strings.TrimSpace(record[idx]), nil
	}

	tsField, err := get(cols.required[0])
	if err != nil {
		return s, err
	}
	ts, err := strconv.ParseInt(tsField, 10, 64)
	if err != nil {
		return s, fmt.Errorf("timestamp_ms %q: %w", tsField, err)
	}
	s.TimestampMs = ts

	req := [6]*float64{&s.AccelX, &s.AccelY, &s.AccelZ, &s.GyroX, &s.GyroY, &s.GyroZ}
	for i, dst := range req {
		field, err := get(cols.required[i+1])
		if err != nil {
			return s, err
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return s, fmt.Errorf("%s %q: %w", requiredColumns[i+1], field, err)
		}
		*dst = v
	}

	if cols.hasMag {
		dst := [3]*float64{&s.MagX, &s.MagY, &s.MagZ}
		ok := true
		for i, p := range dst {
			field, err := get(cols.mag[i])
			if err != nil {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				ok = false
				break
			}
			*p = v
		}
		s.HasMag = ok
		if !ok {
			s.MagX, s.MagY, s.MagZ = 0, 0, 0
		}
	}

	if cols.hasQuat {
		dst := [4]*float64{&s.QuatW, &s.QuatX, &s.QuatY, &s.QuatZ}
		ok := true
		for i, p := range dst {
			field, err := get(cols.quat[i])
			if err != nil {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				ok = false
				break
			}
			*p = v
		}
		s.HasQuat = ok
		if !ok {
			s.QuatW, s.QuatX, s.QuatY, s.QuatZ = 0, 0, 0, 0
		}
	}

	return s, nil
}
