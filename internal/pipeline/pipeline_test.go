package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"reflect"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/sentrylabs/facewatch/internal/config"
	"github.com/sentrylabs/facewatch/internal/event"
	"github.com/sentrylabs/facewatch/internal/face"
	"github.com/sentrylabs/facewatch/internal/motion"
	"github.com/sentrylabs/facewatch/internal/stream"
	"github.com/sentrylabs/facewatch/internal/throttle"
	"github.com/sentrylabs/facewatch/internal/upload"
)

// recordSink collects everything the scheduler persists.
type recordSink struct {
	mu   sync.Mutex
	recs []*event.Record
}

func (s *recordSink) Persist(ctx context.Context, rec *event.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *recordSink) byKind(kind event.Kind) []*event.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*event.Record
	for _, r := range s.recs {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func (s *recordSink) waitForKind(t *testing.T, kind event.Kind, n int, within time.Duration) []*event.Record {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if got := s.byKind(kind); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s records, have %d", n, kind, len(s.byKind(kind)))
	return nil
}

// fakeFaces reports the same detections for every frame.
type fakeFaces struct {
	detections []face.Detection
	match      face.Match
	calls      int
}

func (f *fakeFaces) Enabled() bool { return true }

func (f *fakeFaces) Detect(jpeg []byte) ([]face.Detection, error) {
	f.calls++
	return f.detections, nil
}

func (f *fakeFaces) Classify(face.Descriptor) face.Match { return f.match }

type failingSource struct {
	mu    sync.Mutex
	reads int
}

func (s *failingSource) Read(*gocv.Mat) error {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return errors.New("device gone")
}

func (s *failingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func testConfig() config.Config {
	return config.Config{
		Motion: config.MotionConfig{
			Sensitivity:        30,
			MinArea:            200,
			AggregateThreshold: 1000,
			DisplayWindow:      3 * time.Second,
			History:            500,
			VarThreshold:       16,
			DetectShadows:      true,
		},
		Device: config.DeviceConfig{Serial: "SNTEST", Model: "RPI5"},
	}
}

func newDetector(t *testing.T, cfg config.Config) *motion.Detector {
	t.Helper()
	d := motion.NewDetector(cfg.Motion)
	t.Cleanup(func() { d.Close() })
	return d
}

// startedScheduler runs a worker with no spacing delay, so every
// accepted submission persists promptly.
func startedScheduler(t *testing.T, sink upload.Sink) *upload.Scheduler {
	t.Helper()
	s := upload.NewScheduler(sink, config.UploadConfig{QueueSize: 8})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})
	return s
}

func blackFrame(t *testing.T) *gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return &m
}

func movingFrame(t *testing.T) *gocv.Mat {
	t.Helper()
	f := blackFrame(t)
	gocv.Rectangle(f, image.Rect(40, 40, 200, 200), color.RGBA{R: 255, G: 255, B: 255}, -1)
	return f
}

func TestFaceLabel(t *testing.T) {
	cases := []struct {
		name string
		m    face.Match
		want string
	}{
		{"known", face.Match{Identity: "trix darlucio", Confidence: 88.3, Matched: true}, "trix darlucio (88.3%)"},
		{"demoted below acceptance floor", face.Match{Identity: face.Unknown, Confidence: 58, Matched: true}, "Unknown"},
		{"no match at all", face.Match{Identity: face.Unknown}, "Unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := faceLabel(tc.m); got != tc.want {
				t.Fatalf("faceLabel(%+v) = %q, want %q", tc.m, got, tc.want)
			}
		})
	}
}

func TestTickPublishesEveryFrame(t *testing.T) {
	cfg := testConfig()
	buf := stream.NewBuffer()
	p := New(cfg, Deps{
		Detector:  newDetector(t, cfg),
		Gate:      throttle.NewGate(nil),
		Scheduler: startedScheduler(t, &recordSink{}),
		Frames:    buf,
	})

	p.tick(blackFrame(t), time.Now())

	f1, ok := buf.Latest()
	if !ok {
		t.Fatal("no frame published after first tick")
	}
	img, err := jpeg.Decode(bytes.NewReader(f1.JPEG))
	if err != nil {
		t.Fatalf("published frame is not a valid jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Fatalf("published frame is %dx%d, want 320x240", b.Dx(), b.Dy())
	}

	p.tick(movingFrame(t), time.Now())

	f2, _ := buf.Latest()
	if f2.Seq <= f1.Seq {
		t.Fatalf("sequence did not advance: %d then %d", f1.Seq, f2.Seq)
	}
}

func TestTickProposesMotionThroughGate(t *testing.T) {
	cfg := testConfig()
	sink := &recordSink{}
	p := New(cfg, Deps{
		Detector:  newDetector(t, cfg),
		Gate:      throttle.NewGate(map[event.Kind]time.Duration{event.KindMotion: time.Minute}),
		Scheduler: startedScheduler(t, sink),
		Frames:    stream.NewBuffer(),
	})

	// A black frame, then a large bright region: the frame-difference
	// method is guaranteed to flag the second tick. Whichever tick
	// proposes first closes the minute-long cooldown for the rest.
	p.tick(blackFrame(t), time.Now())
	p.tick(movingFrame(t), time.Now())

	recs := sink.waitForKind(t, event.KindMotion, 1, 2*time.Second)
	time.Sleep(50 * time.Millisecond)
	if got := len(sink.byKind(event.KindMotion)); got != 1 {
		t.Fatalf("motion records = %d, want exactly 1 within the cooldown", got)
	}

	rec := recs[0]
	if rec.Photo.Kind != event.PayloadEmbedded || len(rec.Photo.Data) == 0 {
		t.Fatalf("motion capture payload kind=%v len=%d, want embedded jpeg", rec.Photo.Kind, len(rec.Photo.Data))
	}
	if rec.Device.Serial != "SNTEST" {
		t.Fatalf("device serial = %q, want SNTEST", rec.Device.Serial)
	}
	if _, ok := rec.Data["motion_area"]; !ok {
		t.Fatalf("record data missing motion_area: %v", rec.Data)
	}
}

func TestTickClassifiesAndGatesFaces(t *testing.T) {
	cfg := testConfig()
	sink := &recordSink{}
	faces := &fakeFaces{
		detections: []face.Detection{{Box: image.Rect(60, 40, 160, 140)}},
		match:      face.Match{Identity: "trix", Confidence: 88.3, Matched: true},
	}
	gate := throttle.NewGate(map[event.Kind]time.Duration{
		event.KindMotion: time.Minute,
		event.KindFace:   time.Minute,
	})
	p := New(cfg, Deps{
		Detector:  newDetector(t, cfg),
		Faces:     faces,
		Gate:      gate,
		Scheduler: startedScheduler(t, sink),
		Frames:    stream.NewBuffer(),
	})

	p.tick(blackFrame(t), time.Now())
	p.tick(blackFrame(t), time.Now())

	if faces.calls != 2 {
		t.Fatalf("Detect ran %d times, want once per tick", faces.calls)
	}

	recs := sink.waitForKind(t, event.KindFace, 1, 2*time.Second)
	time.Sleep(50 * time.Millisecond)
	if got := len(sink.byKind(event.KindFace)); got != 1 {
		t.Fatalf("face records = %d, want exactly 1 within the cooldown", got)
	}

	rec := recs[0]
	if rec.Data["name"] != "trix" {
		t.Fatalf("name = %v, want trix", rec.Data["name"])
	}
	if rec.Data["recognition_type"] != "known" {
		t.Fatalf("recognition_type = %v, want known", rec.Data["recognition_type"])
	}
	loc, ok := rec.Data["face_location"].([]int)
	if !ok || !reflect.DeepEqual(loc, []int{60, 40, 160, 140}) {
		t.Fatalf("face_location = %v, want [60 40 160 140]", rec.Data["face_location"])
	}
	if rec.Photo.Kind != event.PayloadEmbedded || len(rec.Photo.Data) == 0 {
		t.Fatalf("face capture payload kind=%v len=%d, want embedded jpeg", rec.Photo.Kind, len(rec.Photo.Data))
	}
	if gate.CanEmit(event.KindFace, time.Now()) {
		t.Fatal("face gate should be closed after an accepted proposal")
	}
}

func TestRejectedSubmissionLeavesGateOpen(t *testing.T) {
	gate := throttle.NewGate(map[event.Kind]time.Duration{event.KindFace: time.Minute})
	// Zero-capacity queue with no worker: every submission is rejected.
	sched := upload.NewScheduler(&recordSink{}, config.UploadConfig{QueueSize: 0})
	p := New(config.Config{}, Deps{Gate: gate, Scheduler: sched})

	rec := event.NewFaceRecord(
		event.Face{Identity: "trix", Confidence: 90, Timestamp: time.Now()},
		event.ImagePayload{}, event.DeviceIdentity{})
	p.submit(rec, time.Now())

	if !gate.CanEmit(event.KindFace, time.Now()) {
		t.Fatal("rejected submission must not advance the cooldown")
	}
}

func TestRunRecoversFromReadFailuresUntilCancelled(t *testing.T) {
	src := &failingSource{}
	p := New(config.Config{}, Deps{Source: src})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if src.count() == 0 {
		t.Fatal("source was never read")
	}
}
