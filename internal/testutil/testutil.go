// Package testutil provides shared test fixtures: synthetic IMU CSV payloads
// and sample/point series with known time bounds.
package testutil

import (
	"fmt"
	"math"
	"strings"

	"github.com/ridesync-data/ridesync/internal/ride"
)

// IMUHeader is the canonical CSV header for the required channels.
const IMUHeader = "timestamp_ms,accel_x,accel_y,accel_z,gyro_x,gyro_y,gyro_z"

// IMUCSV renders a CSV payload with n rows starting at startMs, spaced
// stepMs apart. Channel values are a deterministic function of the row
// index so tests can assert on specific samples.
func IMUCSV(n int, startMs, stepMs int64) string {
	var b strings.Builder
	b.WriteString(IMUHeader)
	b.WriteByte('\n')
	for i := 0; i < n; i++ {
		ts := startMs + int64(i)*stepMs
		fmt.Fprintf(&b, "%d,%.3f,%.3f,%.3f,%.4f,%.4f,%.4f\n",
			ts,
			math.Sin(float64(i)*0.1),
			math.Cos(float64(i)*0.1),
			9.81+0.01*float64(i%7),
			0.001*float64(i%13),
			-0.001*float64(i%11),
			0.0005*float64(i%5))
	}
	return b.String()
}

// Samples builds n samples starting at startMs, spaced stepMs apart, with
// channel values derived from the row index.
func Samples(n int, startMs, stepMs int64) []ride.Sample {
	out := make([]ride.Sample, n)
	for i := range out {
		out[i] = ride.Sample{
			TimestampMs: startMs + int64(i)*stepMs,
			AccelX:      math.Sin(float64(i) * 0.1),
			AccelY:      math.Cos(float64(i) * 0.1),
			AccelZ:      9.81,
			GyroX:       0.001 * float64(i),
			GyroY:       -0.001 * float64(i),
			GyroZ:       0.0005 * float64(i),
		}
	}
	return out
}

// ActivityPoints builds n one-second-spaced GPS/power points starting at
// startMs.
func ActivityPoints(n int, startMs int64) []ride.ActivityPoint {
	out := make([]ride.ActivityPoint, n)
	for i := range out {
		out[i] = ride.ActivityPoint{
			TimestampMs: startMs + int64(i)*1000,
			Lat:         47.6 + 0.0001*float64(i),
			Lon:         -122.3 - 0.0001*float64(i),
			EleM:        50 + float64(i%20),
			PowerW:      200 + float64(i%50),
			HrBpm:       140 + float64(i%15),
			CadenceRpm:  85 + float64(i%10),
			SpeedMps:    8 + 0.1*float64(i%30),
		}
	}
	return out
}
