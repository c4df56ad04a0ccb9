package face

// Entry pairs a known identity with one reference descriptor. A person
// with several reference photos contributes several entries under the
// same name.
type Entry struct {
	Name       string
	Descriptor Descriptor
}

// Gallery is the ordered set of known descriptors. It is built once at
// startup and read-only afterwards, so concurrent matchers share it
// without locking.
type Gallery struct {
	Entries []Entry
}

// Empty reports whether the gallery has no entries. An empty gallery
// disables face matching entirely.
func (g *Gallery) Empty() bool {
	return g == nil || len(g.Entries) == 0
}

// Names returns the distinct identities in first-seen order.
func (g *Gallery) Names() []string {
	if g == nil {
		return nil
	}
	seen := make(map[string]bool, len(g.Entries))
	var names []string
	for _, e := range g.Entries {
		if !seen[e.Name] {
			seen[e.Name] = true
			names = append(names, e.Name)
		}
	}
	return names
}
