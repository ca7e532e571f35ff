package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ridesync-data/ridesync/internal/ride"
	"github.com/ridesync-data/ridesync/internal/timeutil"
)

// LogStore is the sensor-log metadata surface the runner needs. Implemented
// by the SQLite store; kept as an interface so runner behaviour is testable
// against fakes.
type LogStore interface {
	Get(ctx context.Context, id string) (*ride.SensorLog, error)
	// MarkParsing transitions the log to parsing. When reset is true the
	// checkpoint is zeroed (restart from scratch); otherwise it is kept for
	// a resumed run.
	MarkParsing(ctx context.Context, id string, reset bool) error
	// UpdateCheckpoint durably records the cumulative processed-row count.
	// Values below the current checkpoint are rejected by the store.
	UpdateCheckpoint(ctx context.Context, id string, processed int64) error
	MarkReady(ctx context.Context, id string, count, firstMs, lastMs int64, durationS, sampleRateHz float64) error
	MarkFailed(ctx context.Context, id string, msg string) error
}

// SampleWriter persists and removes samples for one log. UpsertBatch must be
// idempotent: re-delivering a batch after a crash between write and
// checkpoint must not duplicate rows.
type SampleWriter interface {
	UpsertBatch(ctx context.Context, ownerID, logID string, samples []ride.Sample) error
	// DeleteForLog removes every stored sample for the log in bounded
	// sub-batches, returning the number of rows deleted.
	DeleteForLog(ctx context.Context, ownerID, logID string) (int64, error)
}

// BlobOpener yields the raw upload chunks for a log, in sequence order.
type BlobOpener interface {
	OpenChunks(ctx context.Context, ownerID, logID string) ([]io.ReadCloser, error)
}

// Runner drives one ingestion pipeline instance per call: reassemble the
// upload, stream-parse it, persist batches, checkpoint after each batch, and
// either finalize the log or compensate and fail it. Instances are safe to
// share across goroutines; each Run is independent.
type Runner struct {
	Logs    LogStore
	Samples SampleWriter
	Blobs   BlobOpener

	// BatchSize overrides DefaultBatchSize when > 0.
	BatchSize int

	// Logger defaults to log.Default().
	Logger *log.Logger

	// Clock paces progress logging; defaults to the real clock.
	Clock timeutil.Clock
}

// progressLogInterval is the minimum gap between progress log lines.
const progressLogInterval = 10 * time.Second

// errorMessageLimit bounds the stored human-readable failure message; the
// full cause still goes to the log.
const errorMessageLimit = 500

// Run ingests the sensor log with the given ID. A log already marked ready
// is a no-op. A log found mid-parse with a nonzero checkpoint resumes after
// the last checkpointed batch; anything else starts (or restarts) from zero.
func (r *Runner) Run(ctx context.Context, logID string) error {
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	lg, err := r.Logs.Get(ctx, logID)
	if err != nil {
		return fmt.Errorf("load sensor log %s: %w", logID, err)
	}
	if lg.Status == ride.StatusReady {
		logger.Printf("[ingest] log %s already ready, nothing to do", logID)
		return nil
	}

	resumeFrom := int64(0)
	if lg.Status == ride.StatusParsing && lg.ProcessedCount > 0 {
		resumeFrom = lg.ProcessedCount
		logger.Printf("[ingest] log %s: resuming after checkpoint %d", logID, resumeFrom)
	}
	if err := r.Logs.MarkParsing(ctx, logID, resumeFrom == 0); err != nil {
		return fmt.Errorf("mark log %s parsing: %w", logID, err)
	}

	chunks, err := r.Blobs.OpenChunks(ctx, lg.OwnerID, logID)
	if err != nil {
		return r.fail(ctx, logger, lg, fmt.Errorf("open upload: %w", err))
	}
	defer func() {
		for _, c := range chunks {
			c.Close()
		}
	}()

	readers := make([]io.Reader, len(chunks))
	for i, c := range chunks {
		readers[i] = c
	}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(ReassembleChunks(pw, readers...))
	}()

	lastLogged := clock.Now()
	flush := func(ctx context.Context, b Batch) error {
		if err := r.Samples.UpsertBatch(ctx, lg.OwnerID, logID, b.Samples); err != nil {
			return err
		}
		// Persistence completed; only now does the checkpoint move.
		return r.Logs.UpdateCheckpoint(ctx, logID, b.StartRow+int64(len(b.Samples)))
	}

	res, parseErr := Parse(ctx, pr, flush, Options{
		BatchSize: r.BatchSize,
		SkipRows:  resumeFrom,
		Progress: func(processed int64) {
			if clock.Since(lastLogged) < progressLogInterval {
				return
			}
			lastLogged = clock.Now()
			logger.Printf("[ingest] log %s: %d rows processed", logID, processed)
		},
	})
	pr.Close()

	if parseErr != nil {
		return r.fail(ctx, logger, lg, parseErr)
	}

	if err := r.Logs.MarkReady(ctx, logID, res.TotalProcessed, res.FirstTimestampMs, res.LastTimestampMs, res.DurationS, res.SampleRateHz); err != nil {
		return r.fail(ctx, logger, lg, fmt.Errorf("finalize log: %w", err))
	}

	logger.Printf("[ingest] log %s ready: %d samples over %.1fs (%.1f Hz, %d row errors)",
		logID, res.TotalProcessed, res.DurationS, res.SampleRateHz, res.ErrorCount)
	return nil
}

// fail compensates for a run that aborted after some batches may have been
// committed: delete everything written for the log so a failed log never
// carries a partial, believable-looking sample set, then record the failure.
func (r *Runner) fail(ctx context.Context, logger *log.Logger, lg *ride.SensorLog, cause error) error {
	logger.Printf("[ingest] log %s failed: %v", lg.ID, cause)

	// Compensation must survive a cancelled parent context.
	cleanupCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		cleanupCtx, cancel = context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
	}

	deleted, err := r.Samples.DeleteForLog(cleanupCtx, lg.OwnerID, lg.ID)
	if err != nil {
		logger.Printf("[ingest] log %s: compensating cleanup failed: %v", lg.ID, err)
		// Fall through to mark the log failed anyway; the message notes the
		// incomplete cleanup so a retry knows to restart from zero.
		cause = fmt.Errorf("%w (cleanup incomplete: %v)", cause, err)
	} else if deleted > 0 {
		logger.Printf("[ingest] log %s: compensating cleanup removed %d samples", lg.ID, deleted)
	}

	msg := cause.Error()
	if len(msg) > errorMessageLimit {
		msg = msg[:errorMessageLimit]
	}
	if err := r.Logs.MarkFailed(cleanupCtx, lg.ID, msg); err != nil {
		logger.Printf("[ingest] log %s: failed to record failure: %v", lg.ID, err)
	}

	return fmt.Errorf("ingest log %s: %w", lg.ID, cause)
}
