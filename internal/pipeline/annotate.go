// pipeline/annotate.go

package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/sentrylabs/facewatch/internal/face"
)

var (
	knownColor   = color.RGBA{G: 255}
	unknownColor = color.RGBA{R: 255}
	labelWhite   = color.RGBA{R: 255, G: 255, B: 255}
)

// faceLabel renders the overlay text for one classified face. Unknown
// faces get no confidence figure.
func faceLabel(m face.Match) string {
	if m.Identity == face.Unknown {
		return face.Unknown
	}
	return fmt.Sprintf("%s (%.1f%%)", m.Identity, m.Confidence)
}

// drawFaceLabel draws the bounding box, a filled name banner along its
// bottom edge, and the label text. Green marks a recognized identity,
// red an unknown face.
func drawFaceLabel(frame *gocv.Mat, box image.Rectangle, m face.Match) {
	c := unknownColor
	if m.Identity != face.Unknown {
		c = knownColor
	}

	gocv.Rectangle(frame, box, c, 2)

	banner := image.Rect(box.Min.X, box.Max.Y-35, box.Max.X, box.Max.Y)
	gocv.Rectangle(frame, banner, c, -1)

	gocv.PutText(frame, faceLabel(m),
		image.Pt(box.Min.X+6, box.Max.Y-6),
		gocv.FontHersheyDuplex, 0.6, labelWhite, 1)
}

// encodeJPEG encodes the frame and copies the result out of the native
// buffer before releasing it.
func encodeJPEG(frame *gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	jpg := make([]byte, buf.Len())
	copy(jpg, buf.GetBytes())
	return jpg, nil
}
