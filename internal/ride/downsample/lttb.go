// Package downsample reduces large time series to a bounded number of
// visually representative points using the largest-triangle-three-buckets
// (LTTB) algorithm.
package downsample

import "math"

// Point is one timestamped multi-channel sample. Values holds the channel
// readings sampled together at TimestampMs (for IMU series typically the
// three axes of one sensor).
type Point struct {
	TimestampMs int64
	Values      []float64
}

// magnitude is the per-point driving value for bucket selection: the
// Euclidean magnitude across channels. A single selection sequence then
// preserves peaks visible on any axis rather than one arbitrary channel.
func magnitude(p Point) float64 {
	var sum float64
	for _, v := range p.Values {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// LTTB downsamples points to at most threshold points. The first and last
// input points are always kept. If threshold <= 2 or threshold >= len(points)
// the input slice is returned unchanged. The function is pure: it never
// mutates its input and the same input always yields the same output.
func LTTB(points []Point, threshold int) []Point {
	n := len(points)
	if threshold >= n || threshold <= 2 {
		return points
	}

	sampled := make([]Point, 0, threshold)
	sampled = append(sampled, points[0])

	// Bucket the interior points into threshold-2 roughly equal buckets.
	bucketSize := float64(n-2) / float64(threshold-2)

	prevIdx := 0
	for i := 0; i < threshold-2; i++ {
		bucketStart := int(math.Floor(float64(i)*bucketSize)) + 1
		bucketEnd := int(math.Floor(float64(i+1)*bucketSize)) + 1
		if bucketEnd >= n-1 {
			bucketEnd = n - 1
		}

		// Average position of the next bucket (or the last point for the
		// final bucket) forms the third triangle vertex.
		nextStart := bucketEnd
		nextEnd := int(math.Floor(float64(i+2)*bucketSize)) + 1
		if nextEnd >= n {
			nextEnd = n
		}
		avgT, avgV := averagePoint(points[nextStart:nextEnd])

		prevT := float64(points[prevIdx].TimestampMs)
		prevV := magnitude(points[prevIdx])

		maxArea := -1.0
		maxIdx := bucketStart
		for j := bucketStart; j < bucketEnd; j++ {
			t := float64(points[j].TimestampMs)
			v := magnitude(points[j])
			// Twice the triangle area; the factor cancels in comparison.
			area := math.Abs((prevT-avgT)*(v-prevV) - (prevT-t)*(avgV-prevV))
			if area > maxArea {
				maxArea = area
				maxIdx = j
			}
		}

		sampled = append(sampled, points[maxIdx])
		prevIdx = maxIdx
	}

	sampled = append(sampled, points[n-1])
	return sampled
}

func averagePoint(points []Point) (t, v float64) {
	if len(points) == 0 {
		return 0, 0
	}
	for _, p := range points {
		t += float64(p.TimestampMs)
		v += magnitude(p)
	}
	n := float64(len(points))
	return t / n, v / n
}
