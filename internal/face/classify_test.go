package face

import (
	"math"
	"testing"
)

// descAt builds a descriptor whose distance from the zero descriptor is
// exactly v (all the difference in the first dimension).
func descAt(v float32) Descriptor {
	var d Descriptor
	d[0] = v
	return d
}

func galleryOf(entries ...Entry) *Gallery {
	return &Gallery{Entries: entries}
}

func TestDistance(t *testing.T) {
	var a, b Descriptor
	a[3], a[7] = 3, 0
	b[3], b[7] = 0, 4
	if got := Distance(a, b); got != 5 {
		t.Errorf("Distance = %v, want 5", got)
	}
	if got := Distance(a, a); got != 0 {
		t.Errorf("Distance to self = %v, want 0", got)
	}
}

func TestClassifyEmptyGallery(t *testing.T) {
	got := Classify(descAt(0), &Gallery{}, 0.5, 60)
	want := Match{Identity: Unknown, Confidence: 0, Matched: false}
	if got != want {
		t.Errorf("empty gallery match = %+v, want %+v", got, want)
	}

	var nilGallery *Gallery
	if !nilGallery.Empty() {
		t.Error("nil gallery should report empty")
	}
}

func TestClassifyAcceptsCloseMatch(t *testing.T) {
	// 0.375 is exactly representable, so confidence is exactly 62.5.
	g := galleryOf(Entry{Name: "alice", Descriptor: descAt(0.375)})
	got := Classify(descAt(0), g, 0.5, 60)

	if got.Identity != "alice" {
		t.Errorf("identity = %q, want alice", got.Identity)
	}
	if got.Confidence != 62.5 {
		t.Errorf("confidence = %v, want 62.5", got.Confidence)
	}
	if !got.Matched {
		t.Error("match flag should be set")
	}
}

func TestConfidenceFloorBoundaryInclusive(t *testing.T) {
	g := galleryOf(Entry{Name: "alice", Descriptor: descAt(0.375)})

	// Confidence lands exactly on the floor: accepted.
	got := Classify(descAt(0), g, 0.5, 62.5)
	if got.Identity != "alice" {
		t.Errorf("confidence equal to the floor must be accepted, got %q", got.Identity)
	}

	// A hair above the floor: demoted to Unknown, confidence retained.
	got = Classify(descAt(0), g, 0.5, 62.5+1e-9)
	if got.Identity != Unknown {
		t.Errorf("confidence below the floor must be Unknown, got %q", got.Identity)
	}
	if got.Confidence != 62.5 || !got.Matched {
		t.Errorf("demoted match should keep its confidence, got %+v", got)
	}
}

func TestMatchedButBelowFloorIsUnknown(t *testing.T) {
	// Distance 0.42 is within tolerance 0.5 but confidence is only
	// about 58%, below the 60% floor.
	g := galleryOf(Entry{Name: "bob", Descriptor: descAt(0.42)})
	got := Classify(descAt(0), g, 0.5, 60)

	if got.Identity != Unknown {
		t.Errorf("identity = %q, want Unknown", got.Identity)
	}
	if !got.Matched {
		t.Error("a within-tolerance entry existed, Matched should be true")
	}
	if math.Abs(got.Confidence-58) > 0.01 {
		t.Errorf("confidence = %v, want ~58", got.Confidence)
	}
}

func TestClassifyPicksClosestEntry(t *testing.T) {
	g := galleryOf(
		Entry{Name: "alice", Descriptor: descAt(0.4375)},
		Entry{Name: "bob", Descriptor: descAt(0.25)},
		Entry{Name: "carol", Descriptor: descAt(0.9)}, // out of tolerance
	)
	got := Classify(descAt(0), g, 0.5, 60)

	if got.Identity != "bob" {
		t.Errorf("identity = %q, want bob (closest in-tolerance entry)", got.Identity)
	}
	if got.Confidence != 75 {
		t.Errorf("confidence = %v, want 75", got.Confidence)
	}
}

func TestClassifyTieKeepsFirstEntry(t *testing.T) {
	g := galleryOf(
		Entry{Name: "zed", Descriptor: descAt(0.25)},
		Entry{Name: "amy", Descriptor: descAt(0.25)},
	)
	if got := Classify(descAt(0), g, 0.5, 60); got.Identity != "zed" {
		t.Errorf("tie should keep the first entry, got %q", got.Identity)
	}
}

func TestOutOfToleranceOnlyIsUnmatched(t *testing.T) {
	g := galleryOf(Entry{Name: "alice", Descriptor: descAt(0.75)})
	got := Classify(descAt(0), g, 0.5, 60)
	if got.Matched || got.Identity != Unknown || got.Confidence != 0 {
		t.Errorf("out-of-tolerance entry should not match, got %+v", got)
	}
}

func TestSamePersonMultipleEntries(t *testing.T) {
	g := galleryOf(
		Entry{Name: "alice", Descriptor: descAt(0.4375)},
		Entry{Name: "alice", Descriptor: descAt(0.125)},
	)
	got := Classify(descAt(0), g, 0.5, 60)
	if got.Identity != "alice" || got.Confidence != 87.5 {
		t.Errorf("got %+v, want alice at 87.5", got)
	}

	names := g.Names()
	if len(names) != 1 || names[0] != "alice" {
		t.Errorf("Names = %v, want [alice]", names)
	}
}
