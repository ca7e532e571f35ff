package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/ridesync-data/ridesync/internal/httputil"
	"github.com/ridesync-data/ridesync/internal/ride"
	"github.com/ridesync-data/ridesync/internal/ride/downsample"
)

const (
	defaultSeriesPoints = 2000
	maxSeriesPoints     = 20000
)

type seriesPoint struct {
	TsMs   int64     `json:"ts_ms"`
	Values []float64 `json:"values"`
}

type seriesStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type seriesResponse struct {
	LogID          string        `json:"log_id"`
	Channel        string        `json:"channel"`
	Labels         []string      `json:"labels"`
	WindowSize     int           `json:"window_size"`
	Returned       int           `json:"returned"`
	Points         []seriesPoint `json:"points"`
	MagnitudeStats seriesStats   `json:"magnitude_stats"`
}

var channelLabels = map[string][]string{
	"accel": {"accel_x", "accel_y", "accel_z"},
	"gyro":  {"gyro_x", "gyro_y", "gyro_z"},
	"mag":   {"mag_x", "mag_y", "mag_z"},
	"quat":  {"quat_w", "quat_x", "quat_y", "quat_z"},
}

func channelValues(channel string, s ride.Sample) ([]float64, bool) {
	switch channel {
	case "accel":
		return []float64{s.AccelX, s.AccelY, s.AccelZ}, true
	case "gyro":
		return []float64{s.GyroX, s.GyroY, s.GyroZ}, true
	case "mag":
		return []float64{s.MagX, s.MagY, s.MagZ}, s.HasMag
	case "quat":
		return []float64{s.QuatW, s.QuatX, s.QuatY, s.QuatZ}, s.HasQuat
	default:
		return nil, false
	}
}

// showSeries returns a downsampled view of one channel group of a ready
// log, with magnitude statistics over the full (pre-downsampling) window.
func (s *Server) showSeries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lg, ok := s.loadReadySensorLog(w, r, id)
	if !ok {
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = "accel"
	}
	labels, known := channelLabels[channel]
	if !known {
		httputil.BadRequest(w, fmt.Sprintf("unknown channel %q", channel))
		return
	}

	threshold := defaultSeriesPoints
	if p := r.URL.Query().Get("points"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v < 3 || v > maxSeriesPoints {
			httputil.BadRequest(w, fmt.Sprintf("'points' must be between 3 and %d", maxSeriesPoints))
			return
		}
		threshold = v
	}

	startMs, endMs := lg.StartMs, lg.EndMs
	if v := r.URL.Query().Get("start_ms"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.BadRequest(w, "invalid 'start_ms'")
			return
		}
		startMs = ms
	}
	if v := r.URL.Query().Get("end_ms"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.BadRequest(w, "invalid 'end_ms'")
			return
		}
		endMs = ms
	}
	if endMs < startMs {
		httputil.BadRequest(w, "'end_ms' must not precede 'start_ms'")
		return
	}

	samples, err := s.samples.GetRange(r.Context(), lg.OwnerID, lg.ID, startMs, endMs, 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("load samples: %v", err))
		return
	}

	raw := make([]downsample.Point, 0, len(samples))
	magnitudes := make([]float64, 0, len(samples))
	for _, smp := range samples {
		values, present := channelValues(channel, smp)
		if !present {
			continue
		}
		raw = append(raw, downsample.Point{TimestampMs: smp.TimestampMs, Values: values})
		var sq float64
		for _, v := range values {
			sq += v * v
		}
		magnitudes = append(magnitudes, math.Sqrt(sq))
	}

	reduced := downsample.LTTB(raw, threshold)
	points := make([]seriesPoint, len(reduced))
	for i, p := range reduced {
		points[i] = seriesPoint{TsMs: p.TimestampMs, Values: p.Values}
	}

	resp := seriesResponse{
		LogID:      lg.ID,
		Channel:    channel,
		Labels:     labels,
		WindowSize: len(raw),
		Returned:   len(points),
		Points:     points,
	}
	if len(magnitudes) > 0 {
		resp.MagnitudeStats = seriesStats{
			Mean:   stat.Mean(magnitudes, nil),
			StdDev: stat.StdDev(magnitudes, nil),
			Min:    minOf(magnitudes),
			Max:    maxOf(magnitudes),
		}
		if len(magnitudes) == 1 {
			resp.MagnitudeStats.StdDev = 0
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
