// api/events_handler.go
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sentrylabs/facewatch/internal/event"
	"github.com/sentrylabs/facewatch/internal/store"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// EventsHandler serves persisted detection events.
type EventsHandler struct {
	events store.EventStore
	logger *zap.Logger
}

// NewEventsHandler creates the events handler group.
func NewEventsHandler(events store.EventStore) *EventsHandler {
	return &EventsHandler{
		events: events,
		logger: zap.L().Named("events-api"),
	}
}

// RegisterRoutes registers the event routes.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux, limiter *RateLimiter) {
	mux.HandleFunc("GET /api/events", limiter.Middleware(h.handleList))
	mux.HandleFunc("GET /api/events/{id}", limiter.Middleware(h.handleGet))
}

// PhotoResponse is the JSON form of a record's photo. Data is only
// populated on the single-event route; list responses carry the kind
// and URL so clients know what to fetch.
type PhotoResponse struct {
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// EventResponse is the JSON form of a persisted detection record.
type EventResponse struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	Confidence   float64        `json:"confidence"`
	Data         map[string]any `json:"data"`
	Photo        *PhotoResponse `json:"photo,omitempty"`
	DeviceSerial string         `json:"device_serial"`
	DeviceModel  string         `json:"device_model"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func toEventResponse(rec *event.Record, includePhotoData bool) EventResponse {
	resp := EventResponse{
		ID:           rec.ID,
		Kind:         string(rec.Kind),
		Confidence:   rec.Confidence,
		Data:         rec.Data,
		DeviceSerial: rec.Device.Serial,
		DeviceModel:  rec.Device.Model,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}

	switch rec.Photo.Kind {
	case event.PayloadRemote:
		resp.Photo = &PhotoResponse{Kind: string(rec.Photo.Kind), URL: rec.Photo.URL}
	case event.PayloadEmbedded:
		photo := &PhotoResponse{Kind: string(rec.Photo.Kind)}
		if includePhotoData {
			photo.Data = rec.Photo.Data
		}
		resp.Photo = photo
	}

	return resp
}

func (h *EventsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := store.EventQuery{Limit: defaultEventLimit}

	switch kind := r.URL.Query().Get("kind"); kind {
	case "":
	case string(event.KindMotion), string(event.KindFace):
		q.Kind = event.Kind(kind)
	default:
		writeError(w, http.StatusBadRequest, "kind must be motion or face")
		return
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxEventLimit {
			n = maxEventLimit
		}
		q.Limit = n
	}

	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		q.Since = since
	}

	records, err := h.events.QueryEvents(r.Context(), q)
	if err != nil {
		h.logger.Error("event query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "event query failed")
		return
	}

	resp := make([]EventResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toEventResponse(rec, false))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": resp,
		"count":  len(resp),
	})
}

func (h *EventsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.Error("event lookup failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "event lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, toEventResponse(rec, true))
}
