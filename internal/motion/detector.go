package motion

import (
	"image"
	"image/color"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/sentrylabs/facewatch/internal/config"
	"github.com/sentrylabs/facewatch/internal/event"
)

// Detector runs both detection methods over consecutive frames. Its
// frame state (previous frame, background model) belongs to the frame
// loop alone and must never be touched concurrently; only GetStats is
// safe to call from other goroutines.
type Detector struct {
	cfg     config.MotionConfig
	mog2    gocv.BackgroundSubtractorMOG2
	kernel  gocv.Mat
	prev    gocv.Mat
	hasPrev bool
	display displayWindow
	logger  *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats tracks detector activity for the monitoring endpoints.
type Stats struct {
	FramesProcessed int64
	MotionTicks     int64
	LastMotionTime  time.Time
	MaxTotalArea    float64
}

// NewDetector builds a detector with a fresh background model.
func NewDetector(cfg config.MotionConfig) *Detector {
	return &Detector{
		cfg:     cfg,
		mog2:    gocv.NewBackgroundSubtractorMOG2WithParams(cfg.History, cfg.VarThreshold, cfg.DetectShadows),
		kernel:  gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(3, 3)),
		prev:    gocv.NewMat(),
		display: displayWindow{window: cfg.DisplayWindow},
		logger:  zap.L().Named("motion-detector"),
	}
}

// Process analyzes one frame and returns the motion event proposed for
// this tick, if any. The frame is not modified; overlay drawing is a
// separate step (Annotate) so a capture can be taken between the two.
func (d *Detector) Process(frame gocv.Mat, now time.Time) (event.Motion, bool) {
	res := d.analyze(frame)
	d.display.observe(res.Detected, now)

	d.mu.Lock()
	d.stats.FramesProcessed++
	if res.Detected {
		d.stats.MotionTicks++
		d.stats.LastMotionTime = now
		if res.TotalArea > d.stats.MaxTotalArea {
			d.stats.MaxTotalArea = res.TotalArea
		}
	}
	d.mu.Unlock()

	if !res.Detected {
		return event.Motion{}, false
	}
	return event.Motion{
		TotalArea:  res.TotalArea,
		Confidence: Confidence(res.TotalArea),
		Timestamp:  now,
	}, true
}

// analyze extracts contour areas with both methods and applies the
// decision rules.
func (d *Detector) analyze(frame gocv.Mat) Result {
	var a Analysis

	// Background-model method: foreground mask, then one open and one
	// close pass to knock out speckle noise before contour extraction.
	fgMask := gocv.NewMat()
	defer fgMask.Close()
	d.mog2.Apply(frame, &fgMask)

	gocv.MorphologyEx(fgMask, &fgMask, gocv.MorphOpen, d.kernel)
	gocv.MorphologyEx(fgMask, &fgMask, gocv.MorphClose, d.kernel)

	contours := gocv.FindContours(fgMask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	for i := 0; i < contours.Size(); i++ {
		a.BackgroundAreas = append(a.BackgroundAreas, gocv.ContourArea(contours.At(i)))
	}
	contours.Close()

	// Frame-difference method, once a previous frame exists.
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	if d.hasPrev {
		diff := gocv.NewMat()
		gocv.AbsDiff(gray, d.prev, &diff)
		gocv.Threshold(diff, &diff, float32(d.cfg.Sensitivity), 255, gocv.ThresholdBinary)

		diffContours := gocv.FindContours(diff, gocv.RetrievalExternal, gocv.ChainApproxSimple)
		for i := 0; i < diffContours.Size(); i++ {
			a.DiffAreas = append(a.DiffAreas, gocv.ContourArea(diffContours.At(i)))
		}
		diffContours.Close()
		diff.Close()
	}

	// The previous frame advances every tick, detected or not.
	gray.CopyTo(&d.prev)
	d.hasPrev = true

	return Decide(a, float64(d.cfg.MinArea), d.cfg.AggregateThreshold)
}

var overlayRed = color.RGBA{R: 255}

// Annotate draws the "Motion" overlay in the upper right corner while
// the display window is active.
func (d *Detector) Annotate(frame *gocv.Mat, now time.Time) {
	if !d.display.active(now) {
		return
	}
	origin := image.Pt(frame.Cols()-120, 30)
	gocv.PutText(frame, "Motion", origin, gocv.FontHersheySimplex, 1, overlayRed, 2)
}

// GetStats returns a copy of the detector counters.
func (d *Detector) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close releases the background model and working mats.
func (d *Detector) Close() error {
	if err := d.mog2.Close(); err != nil {
		return err
	}
	d.kernel.Close()
	d.prev.Close()
	return nil
}
