package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridesync-data/ridesync/internal/ride"
)

const testHeader = "timestamp_ms,accel_x,accel_y,accel_z,gyro_x,gyro_y,gyro_z"

// buildCSV produces n well-formed rows at 10ms spacing starting at startMs.
func buildCSV(startMs int64, n int) string {
	var b strings.Builder
	b.WriteString(testHeader + "\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,0.1,0.2,-9.8,0.01,0.02,0.03\n", startMs+int64(i)*10)
	}
	return b.String()
}

// collectBatches returns a BatchFunc that appends every flushed batch.
func collectBatches(batches *[]Batch) BatchFunc {
	return func(_ context.Context, b Batch) error {
		*batches = append(*batches, b)
		return nil
	}
}

func TestParseSchemaErrorMissingColumns(t *testing.T) {
	input := "timestamp_ms,accel_x,accel_y,accel_z,gyro_x,gyro_y\n1000,0,0,0,0,0\n"

	calls := 0
	_, err := Parse(context.Background(), strings.NewReader(input),
		func(context.Context, Batch) error { calls++; return nil }, Options{})

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{"gyro_z"}, schemaErr.Missing)
	assert.Zero(t, calls, "no batch may be flushed on a schema error")
}

func TestParseSchemaErrorPartialOptionalGroup(t *testing.T) {
	input := testHeader + ",mag_x,mag_y\n1000,0,0,0,0,0,0,1,2\n"

	_, err := Parse(context.Background(), strings.NewReader(input),
		func(context.Context, Batch) error { return nil }, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magnetometer columns partially present")
}

func TestParseBatchingAndCheckpoints(t *testing.T) {
	// 60k rows at batch size 1k: exactly 60 flushes, contiguous row ranges.
	const rows = 60_000
	const batchSize = 1_000

	var batches []Batch
	res, err := Parse(context.Background(), strings.NewReader(buildCSV(1_000_000, rows)),
		collectBatches(&batches), Options{BatchSize: batchSize})
	require.NoError(t, err)

	assert.Equal(t, int64(rows), res.TotalProcessed)
	assert.Zero(t, res.ErrorCount)
	require.Len(t, batches, rows/batchSize)

	var next int64
	for i, b := range batches {
		assert.Equal(t, next, b.StartRow, "batch %d start row", i)
		assert.Len(t, b.Samples, batchSize)
		next += int64(len(b.Samples))
	}
	assert.Equal(t, int64(rows), next)
}

func TestParseRowErrorsAreSkipped(t *testing.T) {
	input := testHeader + "\n" +
		"1000,0.1,0.2,0.3,0,0,0\n" +
		"garbage,0.1,0.2,0.3,0,0,0\n" + // bad timestamp
		"2000,0.1,oops,0.3,0,0,0\n" + // bad accel_y
		"3000,0.1,0.2,0.3,0,0,0\n"

	var batches []Batch
	res, err := Parse(context.Background(), strings.NewReader(input),
		collectBatches(&batches), Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.TotalProcessed)
	assert.Equal(t, int64(2), res.ErrorCount)
	require.Len(t, batches, 1)
	assert.Equal(t, int64(1000), batches[0].Samples[0].TimestampMs)
	assert.Equal(t, int64(3000), batches[0].Samples[1].TimestampMs)
}

func TestParseZeroSurvivorsFails(t *testing.T) {
	var b strings.Builder
	b.WriteString(testHeader + "\n")
	for i := 0; i < 25; i++ {
		b.WriteString("not-a-number,x,x,x,x,x,x\n")
	}

	_, err := Parse(context.Background(), strings.NewReader(b.String()),
		func(context.Context, Batch) error { return nil }, Options{})

	var agg *AggregateRowError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, int64(25), agg.Total)
	assert.Len(t, agg.First, maxReportedRowErrors)
}

func TestParseResumeSkipsCheckpointedRows(t *testing.T) {
	const rows = 100

	var batches []Batch
	res, err := Parse(context.Background(), strings.NewReader(buildCSV(0, rows)),
		collectBatches(&batches), Options{BatchSize: 30, SkipRows: 45})
	require.NoError(t, err)

	// Totals and timestamps still cover the whole stream.
	assert.Equal(t, int64(rows), res.TotalProcessed)
	assert.Equal(t, int64(0), res.FirstTimestampMs)
	assert.Equal(t, int64(990), res.LastTimestampMs)

	// Emission starts after the checkpoint.
	require.NotEmpty(t, batches)
	assert.Equal(t, int64(45), batches[0].StartRow)
	assert.Equal(t, int64(450), batches[0].Samples[0].TimestampMs)

	var emitted int
	for _, b := range batches {
		emitted += len(b.Samples)
	}
	assert.Equal(t, rows-45, emitted)
}

func TestParseSortBuffered(t *testing.T) {
	input := testHeader + "\n" +
		"3000,0,0,0,0,0,0\n" +
		"1000,0,0,0,0,0,0\n" +
		"2000,0,0,0,0,0,0\n"

	var batches []Batch
	res, err := Parse(context.Background(), strings.NewReader(input),
		collectBatches(&batches), Options{SortBuffered: true})
	require.NoError(t, err)
	require.Len(t, batches, 1)

	got := make([]int64, 0, 3)
	for _, s := range batches[0].Samples {
		got = append(got, s.TimestampMs)
	}
	assert.Equal(t, []int64{1000, 2000, 3000}, got)
	assert.Equal(t, int64(1000), res.FirstTimestampMs)
	assert.Equal(t, int64(3000), res.LastTimestampMs)
}

func TestParseOptionalChannels(t *testing.T) {
	input := testHeader + ",mag_x,mag_y,mag_z,quat_w,quat_x,quat_y,quat_z\n" +
		"1000,0.1,0.2,0.3,0,0,0,10,20,30,1,0,0,0\n"

	var batches []Batch
	_, err := Parse(context.Background(), strings.NewReader(input),
		collectBatches(&batches), Options{})
	require.NoError(t, err)
	require.Len(t, batches, 1)

	s := batches[0].Samples[0]
	assert.True(t, s.HasMag)
	assert.Equal(t, ride.Sample{
		TimestampMs: 1000,
		AccelX:      0.1, AccelY: 0.2, AccelZ: 0.3,
		HasMag: true, MagX: 10, MagY: 20, MagZ: 30,
		HasQuat: true, QuatW: 1,
	}, s)
}

func TestParseDerivedStats(t *testing.T) {
	// 1000 rows at 10ms spacing: 9.99s span, ~100.1 Hz.
	res, err := Parse(context.Background(), strings.NewReader(buildCSV(0, 1000)),
		func(context.Context, Batch) error { return nil }, Options{})
	require.NoError(t, err)

	assert.InDelta(t, 9.99, res.DurationS, 1e-9)
	assert.InDelta(t, 1000.0/9.99, res.SampleRateHz, 1e-6)
}

func TestParseBatchCallbackErrorAborts(t *testing.T) {
	boom := errors.New("disk full")
	calls := 0
	_, err := Parse(context.Background(), strings.NewReader(buildCSV(0, 50)),
		func(context.Context, Batch) error {
			calls++
			if calls == 2 {
				return boom
			}
			return nil
		}, Options{BatchSize: 10})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls, "parse must stop at the failing batch")
}

func TestParseContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, err := Parse(ctx, strings.NewReader(buildCSV(0, 100)),
		func(context.Context, Batch) error {
			cancel() // cancel between batches
			return nil
		}, Options{BatchSize: 10})
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseProgressCadence(t *testing.T) {
	var reports []int64
	_, err := Parse(context.Background(), strings.NewReader(buildCSV(0, 200)),
		func(context.Context, Batch) error { return nil },
		Options{
			BatchSize:            10,
			ProgressEveryBatches: 4,
			Progress:             func(p int64) { reports = append(reports, p) },
		})
	require.NoError(t, err)

	// Every 4th batch plus the final report.
	assert.Equal(t, []int64{40, 80, 120, 160, 200, 200}, reports)
}
