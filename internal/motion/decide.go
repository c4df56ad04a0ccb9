// Package motion implements dual-method motion detection over
// consecutive frames: an adaptive background model and plain frame
// differencing, OR-ed together every tick.
package motion

import "time"

// Analysis carries the contour areas both methods extracted for one
// tick. DiffAreas is nil on the first tick, before a previous frame
// exists.
type Analysis struct {
	BackgroundAreas []float64
	DiffAreas       []float64
}

// Result is the per-tick motion decision. TotalArea is the sum of all
// background contour areas and feeds the confidence mapping.
type Result struct {
	Detected     bool
	ByBackground bool
	ByAggregate  bool
	ByDiff       bool
	TotalArea    float64
}

// Decide applies the detection rules to one tick's contour areas.
// Motion is flagged when any background contour exceeds minArea, when
// the summed background contour area exceeds aggregateThreshold (large
// diffuse movement made of individually small contours), or when any
// frame-difference contour exceeds minArea. All comparisons are strict.
func Decide(a Analysis, minArea, aggregateThreshold float64) Result {
	var r Result

	for _, area := range a.BackgroundAreas {
		r.TotalArea += area
		if area > minArea {
			r.ByBackground = true
		}
	}
	if r.TotalArea > aggregateThreshold {
		r.ByAggregate = true
	}

	for _, area := range a.DiffAreas {
		if area > minArea {
			r.ByDiff = true
			break
		}
	}

	r.Detected = r.ByBackground || r.ByAggregate || r.ByDiff
	return r
}

// Confidence maps total motion area to a percentage, clamped to
// [0,100]; an area of 1000 maps to 100%.
func Confidence(totalArea float64) float64 {
	c := totalArea / 10
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// displayWindow tracks the transient "motion active" overlay: any
// motion tick arms it, and it stays armed until the configured window
// has passed since the last motion tick. Purely cosmetic; emission
// never consults it.
type displayWindow struct {
	last   time.Time
	window time.Duration
}

func (w *displayWindow) observe(motion bool, now time.Time) {
	if motion {
		w.last = now
	}
}

func (w *displayWindow) active(now time.Time) bool {
	if w.last.IsZero() {
		return false
	}
	return now.Sub(w.last) <= w.window
}
