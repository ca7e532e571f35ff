package api

import (
	"fmt"
	"net/http"
	"strings"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/ridesync-data/ridesync/internal/httputil"
	"github.com/ridesync-data/ridesync/internal/ride"
	"github.com/ridesync-data/ridesync/internal/security"
)

type sampleParquetRow struct {
	TsMs   int64   `parquet:"name=ts_ms, type=INT64"`
	AccelX float64 `parquet:"name=accel_x, type=DOUBLE"`
	AccelY float64 `parquet:"name=accel_y, type=DOUBLE"`
	AccelZ float64 `parquet:"name=accel_z, type=DOUBLE"`
	GyroX  float64 `parquet:"name=gyro_x, type=DOUBLE"`
	GyroY  float64 `parquet:"name=gyro_y, type=DOUBLE"`
	GyroZ  float64 `parquet:"name=gyro_z, type=DOUBLE"`

	HasMag bool    `parquet:"name=has_mag, type=BOOLEAN"`
	MagX   float64 `parquet:"name=mag_x, type=DOUBLE"`
	MagY   float64 `parquet:"name=mag_y, type=DOUBLE"`
	MagZ   float64 `parquet:"name=mag_z, type=DOUBLE"`

	HasQuat bool    `parquet:"name=has_quat, type=BOOLEAN"`
	QuatW   float64 `parquet:"name=quat_w, type=DOUBLE"`
	QuatX   float64 `parquet:"name=quat_x, type=DOUBLE"`
	QuatY   float64 `parquet:"name=quat_y, type=DOUBLE"`
	QuatZ   float64 `parquet:"name=quat_z, type=DOUBLE"`
}

func marshalSamplesParquet(samples []ride.Sample) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(sampleParquetRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, s := range samples {
		row := sampleParquetRow{
			TsMs:    s.TimestampMs,
			AccelX:  s.AccelX,
			AccelY:  s.AccelY,
			AccelZ:  s.AccelZ,
			GyroX:   s.GyroX,
			GyroY:   s.GyroY,
			GyroZ:   s.GyroZ,
			HasMag:  s.HasMag,
			MagX:    s.MagX,
			MagY:    s.MagY,
			MagZ:    s.MagZ,
			HasQuat: s.HasQuat,
			QuatW:   s.QuatW,
			QuatX:   s.QuatX,
			QuatY:   s.QuatY,
			QuatZ:   s.QuatZ,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// exportParquet downloads a ready log's full sample set as a parquet file.
func (s *Server) exportParquet(w http.ResponseWriter, r *http.Request) {
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

	data, err := marshalSamplesParquet(samples)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("write parquet: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	name := security.SanitizeFilename(strings.TrimSuffix(lg.Filename, ".csv"))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", name+".parquet"))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	_, _ = w.Write(data)
}
