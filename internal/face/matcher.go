package face

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	goface "github.com/Kagami/go-face"
	"go.uber.org/zap"

	"github.com/sentrylabs/facewatch/internal/config"
)

// Detection is one located face region and its computed descriptor.
type Detection struct {
	Box        image.Rectangle
	Descriptor Descriptor
}

// Matcher wraps the dlib recognizer together with the loaded gallery.
// Detect must only be called from the frame-processing goroutine; the
// gallery itself is immutable and safe to read from anywhere.
type Matcher struct {
	rec     *goface.Recognizer
	gallery *Gallery
	cfg     config.FaceConfig
	logger  *zap.Logger
}

// NewMatcher loads the dlib models from cfg.ModelsDir and builds the
// reference gallery from cfg.DatasetDir. A missing or empty dataset
// disables matching rather than failing: motion detection must keep
// working without it.
func NewMatcher(cfg config.FaceConfig) (*Matcher, error) {
	rec, err := goface.NewRecognizer(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("load face models from %s: %w", cfg.ModelsDir, err)
	}

	m := &Matcher{
		rec:    rec,
		cfg:    cfg,
		logger: zap.L().Named("face-matcher"),
	}

	gallery, err := m.loadGallery(cfg.DatasetDir)
	if err != nil {
		m.logger.Warn("gallery unavailable, face matching disabled",
			zap.String("dataset", cfg.DatasetDir),
			zap.Error(err))
		gallery = &Gallery{}
	}
	m.gallery = gallery

	if gallery.Empty() {
		m.logger.Info("no reference faces loaded, face matching disabled")
	} else {
		m.logger.Info("face gallery loaded",
			zap.Int("encodings", len(gallery.Entries)),
			zap.Int("users", len(gallery.Names())))
	}
	return m, nil
}

// Enabled reports whether a non-empty gallery is loaded.
func (m *Matcher) Enabled() bool {
	return !m.gallery.Empty()
}

// Gallery returns the loaded gallery.
func (m *Matcher) Gallery() *Gallery {
	return m.gallery
}

// Detect locates faces in a JPEG-encoded frame and returns their boxes
// and descriptors.
func (m *Matcher) Detect(jpeg []byte) ([]Detection, error) {
	faces, err := m.rec.Recognize(jpeg)
	if err != nil {
		return nil, fmt.Errorf("recognize faces: %w", err)
	}
	out := make([]Detection, 0, len(faces))
	for _, f := range faces {
		out = append(out, Detection{
			Box:        f.Rectangle,
			Descriptor: Descriptor(f.Descriptor),
		})
	}
	return out, nil
}

// Classify matches one descriptor against the gallery using the
// configured tolerance and confidence floor.
func (m *Matcher) Classify(desc Descriptor) Match {
	return Classify(desc, m.gallery, m.cfg.Tolerance, m.cfg.MinConfidence)
}

// Close releases the dlib recognizer.
func (m *Matcher) Close() {
	if m.rec != nil {
		m.rec.Close()
		m.rec = nil
	}
}

// loadGallery walks datasetDir, expecting one subdirectory per identity
// containing JPEG reference photos. Photos the recognizer cannot use
// are skipped with a warning; they never abort the load.
func (m *Matcher) loadGallery(datasetDir string) (*Gallery, error) {
	dirs, err := os.ReadDir(datasetDir)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}

	g := &Gallery{}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		name := d.Name()
		photos, err := os.ReadDir(filepath.Join(datasetDir, name))
		if err != nil {
			m.logger.Warn("skipping unreadable identity dir",
				zap.String("name", name), zap.Error(err))
			continue
		}
		for _, p := range photos {
			if p.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(p.Name()))
			if ext != ".jpg" && ext != ".jpeg" {
				continue
			}
			path := filepath.Join(datasetDir, name, p.Name())
			f, err := m.rec.RecognizeSingleFile(path)
			if err != nil {
				m.logger.Warn("skipping unreadable reference photo",
					zap.String("path", path), zap.Error(err))
				continue
			}
			if f == nil {
				m.logger.Warn("no single face found in reference photo",
					zap.String("path", path))
				continue
			}
			g.Entries = append(g.Entries, Entry{
				Name:       name,
				Descriptor: Descriptor(f.Descriptor),
			})
		}
	}
	return g, nil
}
