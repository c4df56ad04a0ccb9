package motion

import (
	"testing"
	"time"
)

func TestDecide(t *testing.T) {
	const (
		minArea   = 200
		aggregate = 1000
	)

	tests := []struct {
		name string
		a    Analysis
		want Result
	}{
		{
			name: "quiet frame",
			a:    Analysis{},
			want: Result{},
		},
		{
			name: "single background contour over minimum",
			a:    Analysis{BackgroundAreas: []float64{250}},
			want: Result{Detected: true, ByBackground: true, TotalArea: 250},
		},
		{
			name: "many small contours trip the aggregate rule",
			a: Analysis{
				BackgroundAreas: []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100},
				DiffAreas:       []float64{50},
			},
			want: Result{Detected: true, ByAggregate: true, TotalArea: 1200},
		},
		{
			name: "frame difference alone",
			a:    Analysis{DiffAreas: []float64{250}},
			want: Result{Detected: true, ByDiff: true},
		},
		{
			name: "everything below thresholds",
			a:    Analysis{BackgroundAreas: []float64{150, 150}, DiffAreas: []float64{50}},
			want: Result{TotalArea: 300},
		},
		{
			name: "background contour exactly at minimum does not count",
			a:    Analysis{BackgroundAreas: []float64{200}},
			want: Result{TotalArea: 200},
		},
		{
			name: "aggregate exactly at threshold does not count",
			a:    Analysis{BackgroundAreas: []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100}},
			want: Result{TotalArea: 1000},
		},
		{
			name: "diff contour exactly at minimum does not count",
			a:    Analysis{DiffAreas: []float64{200}},
			want: Result{},
		},
		{
			name: "first tick has no diff areas",
			a:    Analysis{BackgroundAreas: []float64{300}, DiffAreas: nil},
			want: Result{Detected: true, ByBackground: true, TotalArea: 300},
		},
		{
			name: "large contour trips both per-contour and aggregate",
			a:    Analysis{BackgroundAreas: []float64{1500}},
			want: Result{Detected: true, ByBackground: true, ByAggregate: true, TotalArea: 1500},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.a, minArea, aggregate); got != tt.want {
				t.Errorf("Decide = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		area float64
		want float64
	}{
		{0, 0},
		{250, 25},
		{500, 50},
		{1000, 100},
		{5000, 100},
		{-10, 0},
	}
	for _, tt := range tests {
		if got := Confidence(tt.area); got != tt.want {
			t.Errorf("Confidence(%v) = %v, want %v", tt.area, got, tt.want)
		}
	}
}

func TestDisplayWindow(t *testing.T) {
	w := displayWindow{window: 3 * time.Second}
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if w.active(t0) {
		t.Error("window should start inactive")
	}

	w.observe(true, t0)
	if !w.active(t0.Add(2 * time.Second)) {
		t.Error("window should be active 2s after a motion tick")
	}
	if !w.active(t0.Add(3 * time.Second)) {
		t.Error("window should remain active exactly at the boundary")
	}
	if w.active(t0.Add(3*time.Second + time.Millisecond)) {
		t.Error("window should expire after the boundary")
	}

	// Quiet ticks do not extend the window.
	w.observe(false, t0.Add(time.Second))
	if w.active(t0.Add(3*time.Second + time.Millisecond)) {
		t.Error("a quiet tick must not extend the window")
	}

	// A new motion tick re-arms it.
	w.observe(true, t0.Add(5*time.Second))
	if !w.active(t0.Add(7 * time.Second)) {
		t.Error("a later motion tick should re-arm the window")
	}
}
