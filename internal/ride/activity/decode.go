// Package activity decodes uploaded FIT activity files into the point series
// and time bounds the association engine works with.
package activity

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/tormoder/fit"

	"github.com/ridesync-data/ridesync/internal/ride"
)

// Decoded is the usable content of one FIT activity file.
type Decoded struct {
	Sport   string
	StartMs int64
	EndMs   int64
	Points  []ride.ActivityPoint
}

// Decode reads a FIT activity file and extracts sport, time bounds and the
// per-record point series. Files with no timestamped records are rejected:
// without timestamps there is nothing to correlate against.
func Decode(r io.Reader) (*Decoded, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode fit file: %w", err)
	}
	act, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity fit expected: %w", err)
	}
	return FromActivity(act)
}

// FromActivity extracts the point series from an already decoded activity.
func FromActivity(act *fit.ActivityFile) (*Decoded, error) {
	out := &Decoded{Sport: "cycling"}
	if len(act.Sessions) > 0 {
		out.Sport = fmt.Sprint(act.Sessions[0].Sport)
	}

	points := make([]ride.ActivityPoint, 0, len(act.Records))
	for _, rec := range act.Records {
		if rec == nil {
			continue
		}
		ts := validTimeOrZero(rec.Timestamp)
		if ts.IsZero() {
			continue
		}
		points = append(points, pointFromRecord(ts, rec))
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("activity file has no timestamped records")
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].TimestampMs < points[j].TimestampMs
	})
	out.Points = points
	out.StartMs = points[0].TimestampMs
	out.EndMs = points[len(points)-1].TimestampMs

	// Session bounds are authoritative when present and sane; record
	// timestamps fill in otherwise.
	if len(act.Sessions) > 0 {
		s := act.Sessions[0]
		if start := validTimeOrZero(s.StartTime); !start.IsZero() {
			out.StartMs = start.UnixMilli()
		}
		if end := validTimeOrZero(s.Timestamp); !end.IsZero() && end.UnixMilli() >= out.StartMs {
			out.EndMs = end.UnixMilli()
		}
	}
	return out, nil
}

func pointFromRecord(ts time.Time, rec *fit.RecordMsg) ride.ActivityPoint {
	p := ride.ActivityPoint{TimestampMs: ts.UnixMilli()}

	if lat := rec.PositionLat.Degrees(); !math.IsNaN(lat) {
		p.Lat = lat
	}
	if lon := rec.PositionLong.Degrees(); !math.IsNaN(lon) {
		p.Lon = lon
	}

	if ele := rec.GetEnhancedAltitudeScaled(); isFinite(ele) {
		p.EleM = ele
	} else if ele := rec.GetAltitudeScaled(); isFinite(ele) {
		p.EleM = ele
	}

	if rec.Power != math.MaxUint16 {
		p.PowerW = float64(rec.Power)
	}
	if rec.HeartRate != math.MaxUint8 {
		p.HrBpm = float64(rec.HeartRate)
	}
	if cad := rec.GetCadence256Scaled(); isFinite(cad) && cad > 0 {
		p.CadenceRpm = cad
	} else if rec.Cadence != math.MaxUint8 {
		p.CadenceRpm = float64(rec.Cadence)
	}

	if speed := rec.GetEnhancedSpeedScaled(); isFinite(speed) && speed >= 0 {
		p.SpeedMps = speed
	} else if speed := rec.GetSpeedScaled(); isFinite(speed) && speed >= 0 {
		p.SpeedMps = speed
	}
	return p
}

func validTimeOrZero(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
