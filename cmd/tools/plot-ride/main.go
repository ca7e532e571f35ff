// Command plot-ride renders PNG plots of a stored ride's IMU channels
// straight from the service database, for offline inspection.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ridesync-data/ridesync/internal/db"
	"github.com/ridesync-data/ridesync/internal/ride"
	"github.com/ridesync-data/ridesync/internal/ride/downsample"
	"github.com/ridesync-data/ridesync/internal/security"
)

// maxPlotPoints bounds the rendered series; PNG plots of a full 100Hz ride
// are unreadable anyway.
const maxPlotPoints = 5000

func main() {
	dbPath := flag.String("db", "ridesync.db", "SQLite database path")
	logID := flag.String("log", "", "sensor log ID to plot")
	owner := flag.String("owner", "default", "owner ID")
	outDir := flag.String("o", "plots", "output directory")
	flag.Parse()

	if *logID == "" {
		log.Fatal("-log is required")
	}
	if err := security.ValidateExportPath(*outDir); err != nil {
		log.Fatalf("invalid output directory: %v", err)
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	lg, err := db.NewSensorLogStore(database).Get(ctx, *logID)
	if err != nil {
		log.Fatalf("load log %s: %v", *logID, err)
	}
	if lg.Status != ride.StatusReady {
		log.Fatalf("log %s is %s, not ready", *logID, lg.Status)
	}

	samples, err := db.NewSampleStore(database).GetRange(ctx, *owner, lg.ID, lg.StartMs, lg.EndMs, 0)
	if err != nil {
		log.Fatalf("load samples: %v", err)
	}
	if len(samples) == 0 {
		log.Fatalf("log %s has no samples for owner %s", *logID, *owner)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	channels := []struct {
		name   string
		yLabel string
		value  func(s ride.Sample) float64
	}{
		{"accel_magnitude", "|a| (m/s^2)", ride.Sample.AccelMagnitude},
		{"accel_x", "a_x (m/s^2)", func(s ride.Sample) float64 { return s.AccelX }},
		{"gyro_z", "yaw rate (rad/s)", func(s ride.Sample) float64 { return s.GyroZ }},
	}

	for _, ch := range channels {
		file := filepath.Join(*outDir, fmt.Sprintf("%s_%s.png", lg.ID, ch.name))
		if err := plotChannel(file, ch.name, ch.yLabel, lg.StartMs, samples, ch.value); err != nil {
			log.Fatalf("plot %s: %v", ch.name, err)
		}
		log.Printf("✓ Created: %s", file)
	}
}

func plotChannel(file, title, yLabel string, startMs int64, samples []ride.Sample, value func(ride.Sample) float64) error {
	raw := make([]downsample.Point, len(samples))
	for i, s := range samples {
		raw[i] = downsample.Point{TimestampMs: s.TimestampMs, Values: []float64{value(s)}}
	}
	reduced := downsample.LTTB(raw, maxPlotPoints)

	pts := make(plotter.XYs, len(reduced))
	for i, p := range reduced {
		pts[i] = plotter.XY{
			X: float64(p.TimestampMs-startMs) / 1000.0,
			Y: p.Values[0],
		}
	}

	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "time (s)"
	pl.Y.Label.Text = yLabel

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	pl.Add(line)
	pl.Add(plotter.NewGrid())

	return pl.Save(14*vg.Inch, 6*vg.Inch, file)
}
