// Package face locates faces in frames, computes identity descriptors
// and matches them against a gallery of known people.
package face

import "math"

// Unknown is the identity reported when no gallery entry matches with
// acceptable confidence.
const Unknown = "Unknown"

// Descriptor is a 128-dimension identity embedding. Descriptors of the
// same person cluster under Euclidean distance.
type Descriptor = [128]float32

// Distance returns the Euclidean distance between two descriptors.
func Distance(a, b Descriptor) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ConfidenceFromDistance maps a descriptor distance to a percentage.
func ConfidenceFromDistance(distance float64) float64 {
	return (1 - distance) * 100
}

// Match is the outcome of classifying one observed descriptor.
type Match struct {
	// Identity is the matched gallery name, or Unknown.
	Identity string
	// Confidence is (1-distance)*100 for the closest in-tolerance
	// entry, zero when nothing fell within tolerance. It is reported
	// even when the match was demoted to Unknown for landing below the
	// acceptance floor.
	Confidence float64
	// Matched reports whether any gallery entry fell within tolerance.
	Matched bool
}

// Classify compares desc against every gallery entry. Entries within
// tolerance form the candidate set; the closest one wins, and its
// identity is accepted only when the derived confidence reaches
// minConfidence. A confidence of exactly minConfidence is accepted.
func Classify(desc Descriptor, g *Gallery, tolerance, minConfidence float64) Match {
	best := -1
	bestDist := math.Inf(1)
	matched := false

	for i := range g.Entries {
		d := Distance(desc, g.Entries[i].Descriptor)
		if d <= tolerance {
			matched = true
		}
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	if !matched {
		return Match{Identity: Unknown}
	}

	// Whenever any entry is within tolerance the global minimum is too,
	// so best is also the closest of the matching entries.
	conf := ConfidenceFromDistance(bestDist)
	if conf >= minConfidence {
		return Match{Identity: g.Entries[best].Name, Confidence: conf, Matched: true}
	}
	return Match{Identity: Unknown, Confidence: conf, Matched: true}
}
