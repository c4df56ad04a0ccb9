// pipeline/pipeline.go

// Package pipeline owns the producer loop: read a frame from the
// camera, run motion detection and face matching, draw the overlays,
// and publish the encoded result to the stream buffer. Detection
// proposals pass through the per-kind cooldown gate on their way to
// the upload scheduler.
//
// All gocv Mats live and die on the loop goroutine. Only encoded JPEG
// bytes cross into other goroutines.
package pipeline

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/sentrylabs/facewatch/internal/config"
	"github.com/sentrylabs/facewatch/internal/event"
	"github.com/sentrylabs/facewatch/internal/face"
	"github.com/sentrylabs/facewatch/internal/motion"
	"github.com/sentrylabs/facewatch/internal/stream"
	"github.com/sentrylabs/facewatch/internal/throttle"
	"github.com/sentrylabs/facewatch/internal/upload"
	"github.com/sentrylabs/facewatch/internal/ws"
)

// readRetryDelay is how long the loop pauses after a failed frame read
// before trying again.
const readRetryDelay = 500 * time.Millisecond

// FrameSource yields frames into a caller-owned Mat.
type FrameSource interface {
	Read(dst *gocv.Mat) error
}

// FaceFinder locates faces in an encoded frame and classifies their
// descriptors against the reference gallery.
type FaceFinder interface {
	Enabled() bool
	Detect(jpeg []byte) ([]face.Detection, error)
	Classify(desc face.Descriptor) face.Match
}

// Deps are the collaborators the loop drives. Faces and Hub may be nil;
// everything else is required.
type Deps struct {
	Source    FrameSource
	Detector  *motion.Detector
	Faces     FaceFinder
	Gate      *throttle.Gate
	Scheduler *upload.Scheduler
	Frames    *stream.Buffer
	Hub       *ws.Hub
}

// Pipeline is the single frame producer.
type Pipeline struct {
	cfg    config.Config
	deps   Deps
	device event.DeviceIdentity
	logger *zap.Logger
}

func New(cfg config.Config, deps Deps) *Pipeline {
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		device: event.DeviceIdentity{
			Serial: cfg.Device.Serial,
			Model:  cfg.Device.Model,
		},
		logger: zap.L().Named("pipeline"),
	}
}

// Run drives the loop until ctx is cancelled. The capture device and
// the dlib recognizer both want a stable thread, so the loop pins
// itself to one. A failed read pauses briefly instead of spinning; it
// never ends the loop.
func (p *Pipeline) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	frame := gocv.NewMat()
	defer frame.Close()

	p.logger.Info("frame loop started",
		zap.Bool("face_matching", p.facesEnabled()))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("frame loop stopped")
			return nil
		default:
		}

		if err := p.deps.Source.Read(&frame); err != nil {
			p.logger.Warn("frame read failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(readRetryDelay):
			}
			continue
		}

		p.tick(&frame, time.Now())
	}
}

func (p *Pipeline) facesEnabled() bool {
	return p.deps.Faces != nil && p.deps.Faces.Enabled()
}

// tick processes one captured frame. Order matters: the motion capture
// is taken before any overlay is drawn, face matching sees the frame
// with the motion overlay on it, and each face capture includes the
// boxes drawn up to that face.
func (p *Pipeline) tick(frame *gocv.Mat, now time.Time) {
	m, detected := p.deps.Detector.Process(*frame, now)
	if detected {
		p.proposeMotion(frame, m)
	}
	p.deps.Detector.Annotate(frame, now)

	if p.facesEnabled() {
		p.matchFaces(frame, now)
	}

	jpg, err := encodeJPEG(frame)
	if err != nil {
		p.logger.Warn("frame encode failed", zap.Error(err))
		return
	}
	p.deps.Frames.Publish(jpg)
}

// proposeMotion runs one motion hit through the cooldown gate and, when
// clear, submits it with a clean capture of the frame.
func (p *Pipeline) proposeMotion(frame *gocv.Mat, m event.Motion) {
	if !p.deps.Gate.CanEmit(event.KindMotion, m.Timestamp) {
		return
	}
	jpg, err := encodeJPEG(frame)
	if err != nil {
		p.logger.Warn("motion capture encode failed", zap.Error(err))
		return
	}
	rec := event.NewMotionRecord(m, event.Embedded(jpg), p.device,
		p.cfg.Motion.Sensitivity, p.cfg.Motion.MinArea)
	p.submit(rec, m.Timestamp)
}

// matchFaces locates faces in the current frame, then classifies,
// labels, and proposes each one in turn.
func (p *Pipeline) matchFaces(frame *gocv.Mat, now time.Time) {
	jpg, err := encodeJPEG(frame)
	if err != nil {
		p.logger.Warn("face detect encode failed", zap.Error(err))
		return
	}
	detections, err := p.deps.Faces.Detect(jpg)
	if err != nil {
		p.logger.Warn("face detection failed", zap.Error(err))
		return
	}

	for _, det := range detections {
		match := p.deps.Faces.Classify(det.Descriptor)
		drawFaceLabel(frame, det.Box, match)
		p.proposeFace(frame, det, match, now)
	}
}

func (p *Pipeline) proposeFace(frame *gocv.Mat, det face.Detection, match face.Match, now time.Time) {
	if !p.deps.Gate.CanEmit(event.KindFace, now) {
		return
	}
	jpg, err := encodeJPEG(frame)
	if err != nil {
		p.logger.Warn("face capture encode failed", zap.Error(err))
		return
	}
	f := event.Face{
		Identity:   match.Identity,
		Confidence: match.Confidence,
		Box:        det.Box,
		Timestamp:  now,
	}
	p.submit(event.NewFaceRecord(f, event.Embedded(jpg), p.device), now)
}

// submit hands one record to the scheduler. The cooldown timer advances
// only when the scheduler takes the record: a rejected submission
// leaves the gate open so the same condition is retried once the queue
// drains.
func (p *Pipeline) submit(rec *event.Record, now time.Time) {
	if p.deps.Scheduler.Submit(rec).Kind == upload.Rejected {
		return
	}
	p.deps.Gate.RecordEmit(rec.Kind, now)
	if p.deps.Hub != nil {
		p.deps.Hub.BroadcastRecord(rec)
	}
	p.logger.Debug("event proposed",
		zap.String("kind", string(rec.Kind)),
		zap.Float64("confidence", rec.Confidence))
}
