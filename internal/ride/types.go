// Package ride defines the core domain types shared by the ingestion
// pipeline, the association engine and the persistence layer: IMU samples,
// sensor logs, activity logs and their lifecycle states.
package ride

import (
	"math"
	"time"
)

// LogStatus is the lifecycle state of a sensor or activity log.
type LogStatus string

const (
	// StatusUploaded means the raw file exists in blob storage but has not
	// been parsed yet.
	StatusUploaded LogStatus = "uploaded"
	// StatusParsing means an ingestion run is in progress (or was
	// interrupted; the checkpoint says how far it got).
	StatusParsing LogStatus = "parsing"
	// StatusReady means parsing completed and the stored sample set is
	// complete and trustworthy.
	StatusReady LogStatus = "ready"
	// StatusFailed means parsing failed; any partially written samples have
	// been cleaned up and ErrorMessage explains why.
	StatusFailed LogStatus = "failed"
)

// Sample is a single IMU reading. Accelerometer and gyroscope channels are
// always present; magnetometer and orientation quaternion are optional and
// carried as a complete group or not at all.
type Sample struct {
	TimestampMs int64

	AccelX, AccelY, AccelZ float64
	GyroX, GyroY, GyroZ    float64

	HasMag           bool
	MagX, MagY, MagZ float64

	HasQuat                    bool
	QuatW, QuatX, QuatY, QuatZ float64
}

// AccelMagnitude returns the Euclidean magnitude of the acceleration vector.
func (s Sample) AccelMagnitude() float64 {
	return math.Sqrt(s.AccelX*s.AccelX + s.AccelY*s.AccelY + s.AccelZ*s.AccelZ)
}

// Time converts the sample timestamp to a time.Time in UTC.
func (s Sample) Time() time.Time {
	return MsToTime(s.TimestampMs)
}

// MsToTime converts integer milliseconds since the Unix epoch to a UTC
// time.Time.
func MsToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Association describes how a sensor log and an activity log were matched.
type Association struct {
	Method         string
	Confidence     float64
	OverlapStartMs int64
	OverlapEndMs   int64
}

// SensorLog is the logical identity of one uploaded IMU file. It is created
// at upload time and never deleted by the ingestion pipeline; status and the
// processed-count checkpoint track the pipeline's progress through it.
type SensorLog struct {
	ID       string
	OwnerID  string
	Filename string

	SizeBytes int64
	Status    LogStatus

	// ProcessedCount is the resumable checkpoint: the number of samples
	// durably persisted so far. Reset to zero when parsing restarts from
	// scratch.
	ProcessedCount int64
	// DeclaredCount is the uploader's estimate of the total sample count.
	// Used only for progress display, never for correctness.
	DeclaredCount int64

	// Populated only on successful parse.
	StartMs      int64
	EndMs        int64
	DurationS    float64
	SampleRateHz float64

	ErrorMessage string

	// Populated only after a successful association; nil otherwise.
	ActivityLogID *string
	Assoc         *Association

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Progress returns the fraction of declared samples processed so far,
// clamped to [0,1]. Returns 0 when no declared count is known.
func (l *SensorLog) Progress() float64 {
	if l.DeclaredCount <= 0 {
		return 0
	}
	p := float64(l.ProcessedCount) / float64(l.DeclaredCount)
	if p > 1 {
		p = 1
	}
	return p
}

// ActivityPoint is one record from a GPS/power trace.
type ActivityPoint struct {
	TimestampMs int64
	Lat, Lon    float64
	EleM        float64
	PowerW      float64
	HrBpm       float64
	CadenceRpm  float64
	SpeedMps    float64
}

// ActivityLog is the lower-frequency counterpart of a SensorLog: a GPS /
// power-meter / heart-rate trace with its own time bounds.
type ActivityLog struct {
	ID       string
	OwnerID  string
	Filename string
	Sport    string

	Status  LogStatus
	StartMs int64
	EndMs   int64

	ErrorMessage string

	// Populated only after a successful association; nil otherwise.
	SensorLogID *string
	Assoc       *Association

	CreatedAt time.Time
	UpdatedAt time.Time
}
