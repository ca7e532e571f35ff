package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridesync-data/ridesync/internal/ride"
)

func TestSensorLogLifecycle(t *testing.T) {
	database := setupTestDB(t)
	store := NewSensorLogStore(database)
	ctx := context.Background()

	id, err := store.Create(ctx, "owner-1", "ride_001.csv", 1234567, 600_000)
	require.NoError(t, err)

	lg, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusUploaded, lg.Status)
	assert.Equal(t, "ride_001.csv", lg.Filename)
	assert.Equal(t, int64(600_000), lg.DeclaredCount)
	assert.Nil(t, lg.ActivityLogID)

	require.NoError(t, store.MarkParsing(ctx, id, true))
	require.NoError(t, store.UpdateCheckpoint(ctx, id, 10_000))
	require.NoError(t, store.UpdateCheckpoint(ctx, id, 20_000))

	lg, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusParsing, lg.Status)
	assert.Equal(t, int64(20_000), lg.ProcessedCount)

	require.NoError(t, store.MarkReady(ctx, id, 600_000, 1_000_000, 7_000_000, 6000, 100))
	lg, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusReady, lg.Status)
	assert.Equal(t, int64(600_000), lg.ProcessedCount)
	assert.Equal(t, int64(1_000_000), lg.StartMs)
	assert.Equal(t, int64(7_000_000), lg.EndMs)
	assert.Equal(t, 6000.0, lg.DurationS)
	assert.Equal(t, 100.0, lg.SampleRateHz)
}

func TestSensorLogCheckpointMonotonic(t *testing.T) {
	database := setupTestDB(t)
	store := NewSensorLogStore(database)
	ctx := context.Background()

	id, err := store.Create(ctx, "o", "f.csv", 0, 0)
	require.NoError(t, err)

	require.NoError(t, store.UpdateCheckpoint(ctx, id, 500))
	// A stale retry with a lower value must not move the checkpoint back.
	require.NoError(t, store.UpdateCheckpoint(ctx, id, 300))

	lg, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(500), lg.ProcessedCount)
}

func TestSensorLogMarkParsingReset(t *testing.T) {
	database := setupTestDB(t)
	store := NewSensorLogStore(database)
	ctx := context.Background()

	id, err := store.Create(ctx, "o", "f.csv", 0, 0)
	require.NoError(t, err)
	require.NoError(t, store.UpdateCheckpoint(ctx, id, 500))

	// Resume keeps the checkpoint.
	require.NoError(t, store.MarkParsing(ctx, id, false))
	lg, _ := store.Get(ctx, id)
	assert.Equal(t, int64(500), lg.ProcessedCount)

	// Restart from scratch zeroes it.
	require.NoError(t, store.MarkParsing(ctx, id, true))
	lg, _ = store.Get(ctx, id)
	assert.Zero(t, lg.ProcessedCount)
}

func TestSensorLogMarkFailedResetsCheckpoint(t *testing.T) {
	database := setupTestDB(t)
	store := NewSensorLogStore(database)
	ctx := context.Background()

	id, err := store.Create(ctx, "o", "f.csv", 0, 0)
	require.NoError(t, err)
	require.NoError(t, store.UpdateCheckpoint(ctx, id, 12345))

	require.NoError(t, store.MarkFailed(ctx, id, "simulated failure"))

	lg, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusFailed, lg.Status)
	assert.Equal(t, "simulated failure", lg.ErrorMessage)
	assert.Zero(t, lg.ProcessedCount)
}

func TestSensorLogGetMissing(t *testing.T) {
	database := setupTestDB(t)
	store := NewSensorLogStore(database)

	_, err := store.Get(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSensorLogListByOwner(t *testing.T) {
	database := setupTestDB(t)
	store := NewSensorLogStore(database)
	ctx := context.Background()

	_, err := store.Create(ctx, "alice", "a.csv", 0, 0)
	require.NoError(t, err)
	_, err = store.Create(ctx, "alice", "b.csv", 0, 0)
	require.NoError(t, err)
	_, err = store.Create(ctx, "bob", "c.csv", 0, 0)
	require.NoError(t, err)

	logs, err := store.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}
