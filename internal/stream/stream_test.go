package stream

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestLatestEmptyBuffer(t *testing.T) {
	b := NewBuffer()
	if _, ok := b.Latest(); ok {
		t.Error("empty buffer should report no frame")
	}
	if seq := b.Seq(); seq != 0 {
		t.Errorf("empty buffer seq = %d, want 0", seq)
	}
}

func TestPublishReplacesWholesale(t *testing.T) {
	b := NewBuffer()
	b.Publish([]byte("first"))
	b.Publish([]byte("second"))

	frame, ok := b.Latest()
	if !ok {
		t.Fatal("expected a frame")
	}
	if string(frame.JPEG) != "second" {
		t.Errorf("latest = %q, want the newest publish", frame.JPEG)
	}
	if frame.Seq != 2 {
		t.Errorf("seq = %d, want 2", frame.Seq)
	}
	if frame.Timestamp.IsZero() {
		t.Error("publish should stamp a timestamp")
	}
}

func TestConcurrentPublishersAndReaders(t *testing.T) {
	b := NewBuffer()
	const (
		writers   = 4
		perWriter = 250
	)

	valid := make(map[string]bool)
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			valid[fmt.Sprintf("frame-%d-%d", w, i)] = true
		}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers check every observed frame is complete and seq never goes
	// backwards from their point of view.
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lastSeq uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				frame, ok := b.Latest()
				if !ok {
					continue
				}
				if frame.Seq < lastSeq {
					t.Errorf("seq went backwards: %d after %d", frame.Seq, lastSeq)
					return
				}
				lastSeq = frame.Seq
				if !valid[string(frame.JPEG)] {
					t.Errorf("observed torn or unknown frame %q", frame.JPEG)
					return
				}
			}
		}()
	}

	var pubWg sync.WaitGroup
	for w := 0; w < writers; w++ {
		pubWg.Add(1)
		go func(w int) {
			defer pubWg.Done()
			for i := 0; i < perWriter; i++ {
				b.Publish([]byte(fmt.Sprintf("frame-%d-%d", w, i)))
			}
		}(w)
	}
	pubWg.Wait()
	close(stop)
	wg.Wait()

	if seq := b.Seq(); seq != writers*perWriter {
		t.Errorf("final seq = %d, want %d", seq, writers*perWriter)
	}
}

func TestMJPEGStreamsNewFrames(t *testing.T) {
	b := NewBuffer()
	b.Publish([]byte("frame-one"))

	h := NewHandler(b, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/video_feed", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	go func() {
		time.Sleep(60 * time.Millisecond)
		b.Publish([]byte("frame-two"))
	}()

	h.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.Bytes()
	if !bytes.Contains(body, []byte("frame-one")) || !bytes.Contains(body, []byte("frame-two")) {
		t.Errorf("stream missing published frames:\n%s", body)
	}
	if !bytes.Contains(body, []byte("--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 9\r\n\r\n")) {
		t.Errorf("part headers malformed:\n%s", body)
	}
}

func TestMJPEGSkipsDuplicateFrames(t *testing.T) {
	b := NewBuffer()
	b.Publish([]byte("only-frame"))

	h := NewHandler(b, 200)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/video_feed", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if n := bytes.Count(rec.Body.Bytes(), []byte("--frame")); n != 1 {
		t.Errorf("unchanged frame shipped %d times, want 1", n)
	}
}

func TestSnapshot(t *testing.T) {
	b := NewBuffer()
	s := NewSnapshot(b)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/snapshot", nil))
	if rec.Code != 503 {
		t.Errorf("empty buffer status = %d, want 503", rec.Code)
	}

	b.Publish([]byte("jpeg-bytes"))
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/snapshot", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "jpeg-bytes" {
		t.Errorf("snapshot body = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}
}
