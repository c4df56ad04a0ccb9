// cmd/facewatch/main.go

// facewatch is the camera daemon: it watches a video device for motion
// and known faces, persists throttled detection events, and serves the
// annotated live stream over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sentrylabs/facewatch/internal/api"
	"github.com/sentrylabs/facewatch/internal/camera"
	"github.com/sentrylabs/facewatch/internal/config"
	"github.com/sentrylabs/facewatch/internal/event"
	"github.com/sentrylabs/facewatch/internal/face"
	"github.com/sentrylabs/facewatch/internal/logging"
	"github.com/sentrylabs/facewatch/internal/motion"
	"github.com/sentrylabs/facewatch/internal/pipeline"
	"github.com/sentrylabs/facewatch/internal/store"
	"github.com/sentrylabs/facewatch/internal/stream"
	"github.com/sentrylabs/facewatch/internal/throttle"
	"github.com/sentrylabs/facewatch/internal/upload"
	"github.com/sentrylabs/facewatch/internal/ws"
)

const (
	cameraMaxWait   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Application holds every long-lived component so shutdown can walk
// them in reverse order of construction.
type Application struct {
	cfg       *config.Config
	logger    *zap.Logger
	camera    *camera.Camera
	detector  *motion.Detector
	matcher   *face.Matcher
	events    store.EventStore
	scheduler *upload.Scheduler
	hub       *ws.Hub
	server    *api.Server
	pipeline  *pipeline.Pipeline
}

func main() {
	// A .env file stands in for real environment config during
	// development.
	if env := os.Getenv("RUN_TIME_ENV"); env == "dev" || env == "" {
		_ = godotenv.Load()
	}

	cfg := config.FromEnv()
	flag.StringVar(&cfg.API.Addr, "addr", cfg.API.Addr, "HTTP listen address")
	flag.IntVar(&cfg.Video.DeviceID, "device", cfg.Video.DeviceID, "video capture device id")
	flag.Parse()

	if err := config.ValidateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, flush, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer flush()

	app := NewApplication(cfg, logger)
	defer app.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	app.Run(ctx)
}

// NewApplication builds every component. Construction never fails: a
// missing camera, face model, or backing store degrades the affected
// feature instead of stopping the daemon.
func NewApplication(cfg *config.Config, logger *zap.Logger) *Application {
	// A missing device is not fatal: the daemon serves its HTTP
	// surface and the frame loop keeps trying to acquire the camera.
	cam, err := camera.OpenWithRetry(cfg.Video, cameraMaxWait)
	if err != nil {
		logger.Error("camera unavailable at startup, retrying from the frame loop", zap.Error(err))
		cam = camera.Deferred(cfg.Video)
	}

	app := &Application{
		cfg:      cfg,
		logger:   logger,
		camera:   cam,
		detector: motion.NewDetector(cfg.Motion),
	}

	matcher, err := face.NewMatcher(cfg.Face)
	if err != nil {
		logger.Warn("face matching unavailable, continuing with motion only", zap.Error(err))
	} else {
		app.matcher = matcher
	}

	// A dead database never stops detection: records degrade to local
	// capture mirroring until the store comes back.
	var photos *store.PhotoStore
	events, err := store.NewPostgresStore(cfg.Storage.Postgres)
	if err != nil {
		logger.Error("event store unavailable, running detection-only", zap.Error(err))
	} else {
		app.events = events
		if cfg.UsesRemotePhotos() {
			photos, err = store.NewPhotoStore(cfg.Storage.MinIO)
			if err != nil {
				logger.Warn("object store unavailable, photos stay embedded", zap.Error(err))
				photos = nil
			}
		}
	}

	recorder := store.NewRecorder(app.events, photos, cfg.Storage.CapturesDir)
	app.scheduler = upload.NewScheduler(recorder, cfg.Upload)
	app.hub = ws.NewHub()

	frames := stream.NewBuffer()
	app.server = api.NewServer(cfg, api.Deps{
		Frames:    frames,
		Scheduler: app.scheduler,
		Detector:  app.detector,
		Hub:       app.hub,
		Events:    app.events,
	})

	gate := throttle.NewGate(map[event.Kind]time.Duration{
		event.KindMotion: cfg.Upload.MotionCooldown,
		event.KindFace:   cfg.Upload.FaceCooldown,
	})

	deps := pipeline.Deps{
		Source:    cam,
		Detector:  app.detector,
		Gate:      gate,
		Scheduler: app.scheduler,
		Frames:    frames,
		Hub:       app.hub,
	}
	if app.matcher != nil {
		deps.Faces = app.matcher
	}
	app.pipeline = pipeline.New(*cfg, deps)

	return app
}

// Run starts the workers, blocks on the frame loop, and drains them
// once the context is cancelled.
func (app *Application) Run(ctx context.Context) {
	app.scheduler.Start(ctx)
	app.server.StartInBackground()

	app.logger.Info("facewatch started",
		zap.String("addr", app.cfg.API.Addr),
		zap.String("device_serial", app.cfg.Device.Serial),
		zap.Bool("face_matching", app.matcher != nil),
		zap.Bool("event_store", app.events != nil))

	if err := app.pipeline.Run(ctx); err != nil {
		app.logger.Error("frame loop exited", zap.Error(err))
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shCancel()
	if err := app.server.Shutdown(shCtx); err != nil {
		app.logger.Warn("http server shutdown", zap.Error(err))
	}
	app.scheduler.Stop()
}

func (app *Application) Cleanup() {
	if app.matcher != nil {
		app.matcher.Close()
	}
	if app.detector != nil {
		_ = app.detector.Close()
	}
	if app.camera != nil {
		_ = app.camera.Close()
	}
	if app.events != nil {
		_ = app.events.Close()
	}
}
