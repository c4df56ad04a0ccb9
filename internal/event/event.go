// Package event defines the detection event model shared by the pipeline,
// the upload scheduler and the stores.
package event

import (
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the class of detection that produced an event.
type Kind string

const (
	KindMotion Kind = "motion"
	KindFace   Kind = "face"
)

// Motion is one tick's motion detection proposed for persistence.
type Motion struct {
	TotalArea  float64
	Confidence float64
	Timestamp  time.Time
}

// Face is one detected face region proposed for persistence.
type Face struct {
	Identity   string
	Confidence float64
	Box        image.Rectangle
	Timestamp  time.Time
}

// Known reports whether the face was matched to a gallery identity.
func (f Face) Known() bool { return f.Identity != "" && f.Identity != "Unknown" }

// PayloadKind tags how a captured photo is represented in a persisted record.
type PayloadKind string

const (
	PayloadNone     PayloadKind = ""
	PayloadEmbedded PayloadKind = "embedded" // JPEG bytes stored inline with the record
	PayloadRemote   PayloadKind = "remote"   // JPEG uploaded to object storage, record holds the URL
)

// ImagePayload is the captured photo attached to a record. The variant is
// decided exactly once at ingestion and never re-sniffed downstream.
type ImagePayload struct {
	Kind PayloadKind
	Data []byte // set when Kind == PayloadEmbedded
	URL  string // set when Kind == PayloadRemote
}

// Embedded wraps raw JPEG bytes as an inline payload.
func Embedded(data []byte) ImagePayload {
	return ImagePayload{Kind: PayloadEmbedded, Data: data}
}

// Remote wraps an object-store URL as a reference payload.
func Remote(url string) ImagePayload {
	return ImagePayload{Kind: PayloadRemote, URL: url}
}

// DeviceIdentity is the fixed (serial, model) pair attached to every
// persisted event. It comes from configuration, never computed here.
type DeviceIdentity struct {
	Serial string
	Model  string
}

// Record is the persistence document for one accepted detection event.
type Record struct {
	ID         string
	Kind       Kind
	Data       map[string]any
	Confidence float64
	Photo      ImagePayload
	Device     DeviceIdentity
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// timestampLayout matches the capture filename scheme (motion_20060102_150405.jpg).
const timestampLayout = "20060102_150405"

// NewMotionRecord builds the persistence record for a motion event.
// Sensitivity and minArea are the detector settings in effect at capture
// time; they ride along in the payload for later tuning analysis.
func NewMotionRecord(m Motion, photo ImagePayload, dev DeviceIdentity, sensitivity, minArea int) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:   uuid.NewString(),
		Kind: KindMotion,
		Data: map[string]any{
			"motion_area": m.TotalArea,
			"timestamp":   m.Timestamp.Format(timestampLayout),
			"sensitivity": sensitivity,
			"min_area":    minArea,
		},
		Confidence: m.Confidence,
		Photo:      photo,
		Device:     dev,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewFaceRecord builds the persistence record for a face event.
func NewFaceRecord(f Face, photo ImagePayload, dev DeviceIdentity) *Record {
	recognition := "unknown"
	if f.Known() {
		recognition = "known"
	}
	now := time.Now().UTC()
	return &Record{
		ID:   uuid.NewString(),
		Kind: KindFace,
		Data: map[string]any{
			"name":             f.Identity,
			"confidence":       f.Confidence,
			"timestamp":        f.Timestamp.Format(timestampLayout),
			"face_location":    []int{f.Box.Min.X, f.Box.Min.Y, f.Box.Max.X, f.Box.Max.Y},
			"recognition_type": recognition,
		},
		Confidence: f.Confidence,
		Photo:      photo,
		Device:     dev,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CaptureFilename returns the local mirror filename for a record,
// matching the original capture naming scheme.
func (r *Record) CaptureFilename() string {
	ts, _ := r.Data["timestamp"].(string)
	if ts == "" {
		ts = r.CreatedAt.Format(timestampLayout)
	}
	if r.Kind == KindFace {
		name, _ := r.Data["name"].(string)
		if name == "" {
			name = "Unknown"
		}
		return fmt.Sprintf("face_%s_%s.jpg", name, ts)
	}
	return fmt.Sprintf("motion_%s.jpg", ts)
}
