// Package stream holds the latest-frame buffer and the HTTP handlers
// that serve it as an MJPEG stream or a single snapshot.
package stream

import (
	"sync"
	"time"
)

// Frame is one encoded camera frame. JPEG bytes are owned by the buffer
// once published and must not be modified by either side afterwards.
type Frame struct {
	JPEG      []byte
	Timestamp time.Time
	Seq       uint64
}

// Buffer is a single-slot cache of the most recent frame. The capture
// loop overwrites it at camera rate; any number of stream clients read
// it concurrently. Readers never see a torn frame: a frame is replaced
// wholesale or not at all.
type Buffer struct {
	mu    sync.RWMutex
	frame Frame
	has   bool
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Publish stores jpeg as the newest frame, stamping it with the publish
// time and the next sequence number. The caller hands over ownership of
// the slice.
func (b *Buffer) Publish(jpeg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = Frame{
		JPEG:      jpeg,
		Timestamp: time.Now(),
		Seq:       b.frame.Seq + 1,
	}
	b.has = true
}

// Latest returns the newest published frame. ok is false until the
// first publish.
func (b *Buffer) Latest() (Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frame, b.has
}

// Seq returns the sequence number of the newest frame, zero before the
// first publish.
func (b *Buffer) Seq() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frame.Seq
}
