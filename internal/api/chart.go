package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ridesync-data/ridesync/internal/httputil"
	"github.com/ridesync-data/ridesync/internal/ride"
	"github.com/ridesync-data/ridesync/internal/ride/downsample"
)

// chartPoints is the fixed downsampling threshold for the debug chart.
// Browsers choke well before ECharts does, so keep it modest.
const chartPoints = 2000

// showChart renders a quick line plot (HTML) of a log's acceleration
// magnitude. Debugging-only endpoint for eyeballing a ride without the
// frontend.
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lg, ok := s.loadReadySensorLog(w, r, id)
	if !ok {
		return
	}

	samples, err := s.samples.GetRange(r.Context(), lg.OwnerID, lg.ID, lg.StartMs, lg.EndMs, 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("load samples: %v", err))
		return
	}
	if len(samples) == 0 {
		httputil.NotFound(w, fmt.Sprintf("log %s has no samples", id))
		return
	}

	raw := make([]downsample.Point, len(samples))
	for i, smp := range samples {
		raw[i] = downsample.Point{
			TimestampMs: smp.TimestampMs,
			Values:      []float64{smp.AccelMagnitude()},
		}
	}
	reduced := downsample.LTTB(raw, chartPoints)

	xAxis := make([]string, len(reduced))
	data := make([]opts.LineData, len(reduced))
	for i, p := range reduced {
		xAxis[i] = ride.MsToTime(p.TimestampMs).Format("15:04:05.000")
		data[i] = opts.LineData{Value: p.Values[0]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Ride Acceleration",
			Theme:     "dark",
			Width:     "1400px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Acceleration Magnitude",
			Subtitle: fmt.Sprintf("log=%s samples=%d shown=%d", lg.ID, len(samples), len(reduced)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "|a| (m/s^2)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("accel magnitude", data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
