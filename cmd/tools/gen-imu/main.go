// Command gen-imu generates synthetic cycling IMU recordings (BNO055-style
// CSV) for testing the ingestion pipeline. The ride profile is a fixed
// sequence: stationary start, acceleration, cruise, a left and a right
// corner, braking, stationary end, with road vibration and sensor noise on
// top.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ridesync-data/ridesync/internal/api"
)

const gravity = 9.81

type sample struct {
	t                time.Duration
	ax, ay, az       float64
	gx, gy, gz       float64
	magX, magY, magZ float64
}

type phase struct {
	name     string
	duration time.Duration
	compute  func(t float64) sample
}

func stationary(d time.Duration) phase {
	return phase{"stationary", d, func(t float64) sample {
		return sample{az: -gravity, magX: 20, magZ: -40}
	}}
}

func accelerate(d time.Duration, rate, targetSpeed float64) phase {
	accelTime := targetSpeed / rate
	return phase{"accelerate", d, func(t float64) sample {
		s := sample{az: -gravity, magX: 20, magZ: -40}
		if t < accelTime {
			s.ax = rate
		}
		return s
	}}
}

func corner(d time.Duration, speed, radius float64, right bool) phase {
	lateral := speed * speed / radius
	yawRate := speed / radius
	if right {
		lateral, yawRate = -lateral, -yawRate
	}
	lean := math.Atan2(lateral, gravity)
	return phase{"corner", d, func(t float64) sample {
		return sample{
			ax:   gravity * math.Sin(lean),
			ay:   lateral,
			az:   -gravity * math.Cos(lean),
			gz:   yawRate,
			magX: 20 * math.Cos(yawRate*t),
			magY: 20 * math.Sin(yawRate*t),
			magZ: -40,
		}
	}}
}

func brake(d time.Duration, decel, initialSpeed float64) phase {
	stopTime := initialSpeed / decel
	return phase{"brake", d, func(t float64) sample {
		s := sample{az: -gravity, magX: 20, magZ: -40}
		if t < stopTime {
			s.ax = -decel
		}
		return s
	}}
}

// testRide is the canonical ~55s profile used across pipeline tests.
func testRide() []phase {
	return []phase{
		stationary(5 * time.Second),
		accelerate(5*time.Second, 2.0, 10.0),
		stationary(10 * time.Second), // cruise, flat accel
		corner(8*time.Second, 10, 20, false),
		stationary(5 * time.Second),
		corner(8*time.Second, 10, 20, true),
		stationary(5 * time.Second),
		brake(4*time.Second, 3.0, 10.0),
		stationary(5 * time.Second),
	}
}

func generate(phases []phase, start time.Time, rateHz float64, rng *rand.Rand, vibAmp float64) []sample {
	dt := time.Duration(float64(time.Second) / rateHz)
	var out []sample
	elapsed := time.Duration(0)
	for _, p := range phases {
		n := int(p.duration.Seconds() * rateHz)
		for i := 0; i < n; i++ {
			t := float64(i) * dt.Seconds()
			s := p.compute(t)
			s.t = elapsed + time.Duration(i)*dt

			// road vibration on the vertical axis plus white sensor noise
			s.az += vibAmp * math.Sin(2*math.Pi*15*t)
			s.ax += rng.NormFloat64() * 0.05
			s.ay += rng.NormFloat64() * 0.05
			s.az += rng.NormFloat64() * 0.05
			s.gx += rng.NormFloat64() * 0.01
			s.gy += rng.NormFloat64() * 0.01
			s.gz += rng.NormFloat64() * 0.01
			s.magX += rng.NormFloat64() * 0.5
			s.magY += rng.NormFloat64() * 0.5
			s.magZ += rng.NormFloat64() * 0.5
			out = append(out, s)
		}
		elapsed += p.duration
	}
	return out
}

func writeCSV(path string, start time.Time, samples []sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"timestamp_ms", "accel_x", "accel_y", "accel_z",
		"gyro_x", "gyro_y", "gyro_z",
		"mag_x", "mag_y", "mag_z",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	startMs := start.UnixMilli()
	for _, s := range samples {
		row := []string{
			fmt.Sprint(startMs + s.t.Milliseconds()),
			fmt.Sprintf("%.6f", s.ax), fmt.Sprintf("%.6f", s.ay), fmt.Sprintf("%.6f", s.az),
			fmt.Sprintf("%.6f", s.gx), fmt.Sprintf("%.6f", s.gy), fmt.Sprintf("%.6f", s.gz),
			fmt.Sprintf("%.3f", s.magX), fmt.Sprintf("%.3f", s.magY), fmt.Sprintf("%.3f", s.magZ),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func main() {
	output := flag.String("o", "ride.csv", "output path")
	rate := flag.Float64("rate", 100, "sample rate in Hz")
	startStr := flag.String("start", "", "ride start time (RFC3339; default now)")
	seed := flag.Int64("seed", 1, "random seed")
	vibration := flag.Float64("vibration", 2.0, "road vibration amplitude in m/s^2")
	upload := flag.String("upload", "", "server base URL; when set, upload and ingest the generated file")
	owner := flag.String("owner", "", "owner ID for uploads")
	flag.Parse()

	start := time.Now().UTC()
	if *startStr != "" {
		var err error
		start, err = time.Parse(time.RFC3339, *startStr)
		if err != nil {
			log.Fatalf("invalid -start: %v", err)
		}
	}

	rng := rand.New(rand.NewSource(*seed))
	samples := generate(testRide(), start, *rate, rng, *vibration)
	if err := writeCSV(*output, start, samples); err != nil {
		log.Fatalf("write %s: %v", *output, err)
	}
	log.Printf("✓ Created: %s (%d samples at %.0fHz)", *output, len(samples), *rate)

	if *upload == "" {
		return
	}

	f, err := os.Open(*output)
	if err != nil {
		log.Fatalf("reopen %s: %v", *output, err)
	}
	defer f.Close()

	client := api.NewClient(strings.TrimRight(*upload, "/"), *owner)
	view, err := client.UploadSensorLog(filepath.Base(*output), f, int64(len(samples)))
	if err != nil {
		log.Fatalf("upload failed: %v", err)
	}
	if err := client.StartIngest(view.ID); err != nil {
		log.Fatalf("start ingest failed: %v", err)
	}
	log.Printf("✓ Uploaded as log %s, ingestion started", view.ID)
}
