// store/ingest.go
package store

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sentrylabs/facewatch/internal/event"
)

// Recorder is the persistence sink behind the upload scheduler. It
// mirrors each capture into the local captures directory, settles the
// photo representation exactly once, then writes the event row.
// Records arrive carrying their JPEG embedded; with an object store
// configured the bytes move there and the row keeps only the URL.
type Recorder struct {
	events      EventStore
	photos      *PhotoStore // nil when no object store is configured
	capturesDir string
	logger      *zap.Logger
}

// NewRecorder wires the persistence sink. photos may be nil, in which
// case every record keeps its photo embedded; events may be nil, in
// which case records are only mirrored to the captures directory and
// detection keeps running without a database.
func NewRecorder(events EventStore, photos *PhotoStore, capturesDir string) *Recorder {
	return &Recorder{
		events:      events,
		photos:      photos,
		capturesDir: capturesDir,
		logger:      zap.L().Named("recorder"),
	}
}

// Persist implements the upload sink.
func (r *Recorder) Persist(ctx context.Context, rec *event.Record) error {
	r.mirrorCapture(rec)

	if r.events == nil {
		return nil
	}

	if r.photos != nil && rec.Photo.Kind == event.PayloadEmbedded {
		url, err := r.photos.PutPhoto(ctx, r.objectKey(rec), rec.Photo.Data)
		if err != nil {
			// Keep the embedded bytes so the event survives an
			// unreachable object store.
			r.logger.Warn("photo upload failed, storing embedded",
				zap.String("id", rec.ID),
				zap.Error(err))
		} else {
			rec.Photo = event.Remote(url)
		}
	}

	return r.events.SaveEvent(ctx, rec)
}

// mirrorCapture writes the capture next to the process, matching what
// an operator sees on the device itself. Failures are logged only.
func (r *Recorder) mirrorCapture(rec *event.Record) {
	if r.capturesDir == "" || rec.Photo.Kind != event.PayloadEmbedded {
		return
	}
	path := filepath.Join(r.capturesDir, rec.CaptureFilename())
	if err := os.WriteFile(path, rec.Photo.Data, 0644); err != nil {
		r.logger.Warn("capture mirror failed",
			zap.String("path", path),
			zap.Error(err))
	}
}

// objectKey partitions capture objects by day.
func (r *Recorder) objectKey(rec *event.Record) string {
	return "captures/" + rec.CreatedAt.Format("2006/01/02") + "/" + rec.CaptureFilename()
}
