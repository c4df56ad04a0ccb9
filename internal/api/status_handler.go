// api/status_handler.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sentrylabs/facewatch/internal/config"
)

// StatusHandler serves the upload gate state, runtime statistics,
// component health and a redacted view of the active configuration.
type StatusHandler struct {
	cfg     *config.Config
	deps    Deps
	started time.Time
}

// NewStatusHandler creates the status handler group.
func NewStatusHandler(cfg *config.Config, deps Deps) *StatusHandler {
	return &StatusHandler{
		cfg:     cfg,
		deps:    deps,
		started: time.Now(),
	}
}

// RegisterRoutes registers the status routes.
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux, limiter *RateLimiter) {
	mux.HandleFunc("/api/upload/status", limiter.Middleware(h.handleUploadStatus))
	mux.HandleFunc("/api/stats", limiter.Middleware(h.handleStats))
	mux.HandleFunc("/api/health", limiter.Middleware(h.handleHealth))
	mux.HandleFunc("/api/config", limiter.Middleware(h.handleConfig))
}

// UploadStatusResponse is the JSON form of the scheduler's
// point-in-time gate view.
type UploadStatusResponse struct {
	CanUploadNow     bool       `json:"can_upload_now"`
	SecondsUntilNext float64    `json:"seconds_until_next_upload"`
	LastUploadTime   *time.Time `json:"last_upload_time,omitempty"`
	QueueDepth       int        `json:"queue_depth"`
}

func (h *StatusHandler) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st := h.deps.Scheduler.Status(time.Now())
	resp := UploadStatusResponse{
		CanUploadNow:     st.CanUploadNow,
		SecondsUntilNext: st.Remaining.Seconds(),
		QueueDepth:       st.QueueDepth,
	}
	if !st.LastUpload.IsZero() {
		last := st.LastUpload
		resp.LastUploadTime = &last
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *StatusHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := map[string]any{
		"uptime_seconds": time.Since(h.started).Seconds(),
		"stream_frames":  h.deps.Frames.Seq(),
	}

	if h.deps.Detector != nil {
		stats := h.deps.Detector.GetStats()
		resp["frames_processed"] = stats.FramesProcessed
		resp["motion_ticks"] = stats.MotionTicks
		resp["max_total_area"] = stats.MaxTotalArea
		if !stats.LastMotionTime.IsZero() {
			resp["last_motion_time"] = stats.LastMotionTime
		}
	}
	if h.deps.Hub != nil {
		resp["ws_subscribers"] = h.deps.Hub.ClientCount()
	}
	if h.deps.Scheduler != nil {
		resp["upload_queue_depth"] = h.deps.Scheduler.Status(time.Now()).QueueDepth
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *StatusHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	type component struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	components := map[string]component{}
	healthy := true

	if h.deps.Events == nil {
		components["event_store"] = component{Status: "disabled"}
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Events.HealthCheck(ctx); err != nil {
			components["event_store"] = component{Status: "down", Error: err.Error()}
			healthy = false
		} else {
			components["event_store"] = component{Status: "ok"}
		}
	}

	if _, ok := h.deps.Frames.Latest(); ok {
		components["stream"] = component{Status: "ok"}
	} else {
		// No frame yet: either just started or the camera is away.
		components["stream"] = component{Status: "no_frames"}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
	})
}

// handleConfig exposes the operational knobs read-only. Storage
// backends and credentials stay out of the response.
func (h *StatusHandler) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"video": map[string]any{
			"device_id":  h.cfg.Video.DeviceID,
			"width":      h.cfg.Video.Width,
			"height":     h.cfg.Video.Height,
			"frame_rate": h.cfg.Video.FrameRate,
		},
		"motion": map[string]any{
			"sensitivity":         h.cfg.Motion.Sensitivity,
			"min_area":            h.cfg.Motion.MinArea,
			"aggregate_threshold": h.cfg.Motion.AggregateThreshold,
			"display_window":      h.cfg.Motion.DisplayWindow.String(),
		},
		"face": map[string]any{
			"tolerance":      h.cfg.Face.Tolerance,
			"min_confidence": h.cfg.Face.MinConfidence,
			"dataset_dir":    h.cfg.Face.DatasetDir,
		},
		"upload": map[string]any{
			"delay":           h.cfg.Upload.Delay.String(),
			"motion_cooldown": h.cfg.Upload.MotionCooldown.String(),
			"face_cooldown":   h.cfg.Upload.FaceCooldown.String(),
			"queue_size":      h.cfg.Upload.QueueSize,
		},
		"device": map[string]any{
			"serial": h.cfg.Device.Serial,
			"model":  h.cfg.Device.Model,
		},
	})
}
