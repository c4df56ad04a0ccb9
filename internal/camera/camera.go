// Package camera wraps the capture device behind an explicit
// open/configure/read/close lifecycle, constructed once and handed to
// the frame loop instead of living as ambient process state.
package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/sentrylabs/facewatch/internal/config"
)

// ErrUnavailable reports that no frame could be read this tick. The
// caller skips the tick and tries again; it is never fatal.
var ErrUnavailable = errors.New("camera unavailable")

// reconnectAfter is how long reads may keep failing before the device
// is closed and reacquired from scratch.
const reconnectAfter = 10 * time.Second

// Camera owns the capture device. All methods must be called from the
// frame loop goroutine.
type Camera struct {
	cfg    config.VideoConfig
	cap    *gocv.VideoCapture
	logger *zap.Logger

	lastSuccess time.Time
	failedReads int
}

// Open acquires the device and applies the configured geometry.
func Open(cfg config.VideoConfig) (*Camera, error) {
	cap, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("open video device %d: %w", cfg.DeviceID, err)
	}
	c := &Camera{
		cfg:         cfg,
		cap:         cap,
		logger:      zap.L().Named("camera"),
		lastSuccess: time.Now(),
	}
	c.configure()
	c.logger.Info("camera opened",
		zap.Int("device", cfg.DeviceID),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Int("fps", cfg.FrameRate))
	return c, nil
}

// Deferred returns a camera that has not been acquired yet; the first
// Read attempts the open. It lets the daemon come up and serve while
// the device is still missing.
func Deferred(cfg config.VideoConfig) *Camera {
	return &Camera{
		cfg:         cfg,
		logger:      zap.L().Named("camera"),
		lastSuccess: time.Now(),
	}
}

// OpenWithRetry keeps trying to acquire the device with exponential
// backoff for up to maxWait.
func OpenWithRetry(cfg config.VideoConfig, maxWait time.Duration) (*Camera, error) {
	var cam *Camera
	ebo := backoff.NewExponentialBackOff()
	ebo.MaxElapsedTime = maxWait

	op := func() error {
		var err error
		cam, err = Open(cfg)
		return err
	}
	if err := backoff.Retry(op, ebo); err != nil {
		return nil, err
	}
	return cam, nil
}

func (c *Camera) configure() {
	c.cap.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	c.cap.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	c.cap.Set(gocv.VideoCaptureFPS, float64(c.cfg.FrameRate))
}

// Read fills dst with the next frame. ErrUnavailable means skip the
// tick; after reads have failed for reconnectAfter the device is
// dropped and reacquired on a later call.
func (c *Camera) Read(dst *gocv.Mat) error {
	if c.cap == nil {
		if err := c.reopen(); err != nil {
			return err
		}
	}

	if c.failedReads > 0 && time.Since(c.lastSuccess) > reconnectAfter {
		c.logger.Warn("no frames for too long, reacquiring device",
			zap.Duration("stale", time.Since(c.lastSuccess)))
		c.cap.Close()
		c.cap = nil
		c.failedReads = 0
		c.lastSuccess = time.Now()
		return ErrUnavailable
	}

	if !c.cap.Read(dst) || dst.Empty() {
		c.failedReads++
		return ErrUnavailable
	}

	c.failedReads = 0
	c.lastSuccess = time.Now()
	return nil
}

func (c *Camera) reopen() error {
	cap, err := gocv.OpenVideoCapture(c.cfg.DeviceID)
	if err != nil {
		c.logger.Error("reopen failed", zap.Error(err))
		return ErrUnavailable
	}
	c.cap = cap
	c.configure()
	c.failedReads = 0
	c.lastSuccess = time.Now()
	c.logger.Info("camera reacquired", zap.Int("device", c.cfg.DeviceID))
	return nil
}

// Close releases the device.
func (c *Camera) Close() error {
	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.cap = nil
	return err
}
