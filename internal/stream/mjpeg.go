package stream

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Handler streams the frame buffer to a client as multipart
// MJPEG. Each client polls the buffer at the configured rate and only
// ships frames it has not sent before, so a stalled camera does not
// turn into a flood of duplicate parts.
type Handler struct {
	buf    *Buffer
	fps    int
	logger *zap.Logger
}

// NewHandler builds an MJPEG handler reading from buf at fps frames per
// second. A non-positive fps falls back to 30.
func NewHandler(buf *Buffer, fps int) *Handler {
	if fps <= 0 {
		fps = 30
	}
	return &Handler{
		buf:    buf,
		fps:    fps,
		logger: zap.L().Named("mjpeg"),
	}
}

// ServeHTTP serves the MJPEG stream until the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	h.logger.Info("stream client connected", zap.String("remote", r.RemoteAddr))
	defer h.logger.Info("stream client disconnected", zap.String("remote", r.RemoteAddr))

	ticker := time.NewTicker(time.Second / time.Duration(h.fps))
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame, ok := h.buf.Latest()
			if !ok || frame.Seq == lastSeq {
				continue
			}
			lastSeq = frame.Seq

			if err := writePart(w, frame.JPEG); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\r\n")
	return err
}

// Snapshot serves the newest frame as a single JPEG.
type Snapshot struct {
	buf *Buffer
}

func NewSnapshot(buf *Buffer) *Snapshot {
	return &Snapshot{buf: buf}
}

func (s *Snapshot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.buf.Latest()
	if !ok {
		http.Error(w, "No frame available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(frame.JPEG)))
	w.Write(frame.JPEG)
}
