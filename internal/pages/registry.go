package pages

import (
	"fmt"
)

// Registry holds the ordered page entries of one editing session. The order is
// both the display order and the merge order.
//
// Registry is not safe for concurrent use; Session serializes access to it.
type Registry struct {
	entries []*PageEntry
	nextID  uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AppendPages adds one entry per descriptor of src, in page order, after the
// existing entries. On error the registry is left untouched.
func (r *Registry) AppendPages(src *SourceFile, descs []PageDescriptor) ([]string, error) {
	if src == nil {
		return nil, &InvalidDocumentError{Name: "", Reason: "missing source file"}
	}
	if len(src.Data) == 0 {
		return nil, &InvalidDocumentError{Name: src.Name, Reason: "empty file"}
	}
	if len(descs) == 0 {
		return nil, &InvalidDocumentError{Name: src.Name, Reason: "document has no pages"}
	}
	for i, d := range descs {
		if d.Width <= 0 || d.Height <= 0 {
			return nil, &InvalidDocumentError{Name: src.Name, Reason: fmt.Sprintf("page %d has invalid size %.2fx%.2f", i+1, d.Width, d.Height)}
		}
	}

	ids := make([]string, 0, len(descs))
	for i, d := range descs {
		r.nextID++
		e := &PageEntry{
			ID:              fmt.Sprintf("p%d", r.nextID),
			Source:          src,
			SourcePageIndex: i,
			Width:           d.Width,
			Height:          d.Height,
		}
		r.entries = append(r.entries, e)
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// RemoveEntries drops every entry whose id is in ids. Unknown ids are ignored.
func (r *Registry) RemoveEntries(ids IDSet) []string {
	if len(ids) == 0 {
		return nil
	}
	var removed []string
	kept := r.entries[:0]
	for _, e := range r.entries {
		if ids.Has(e.ID) {
			removed = append(removed, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	return removed
}

// RotateEntries turns every matching entry a quarter turn clockwise.
func (r *Registry) RotateEntries(ids IDSet) int {
	n := 0
	for _, e := range r.entries {
		if ids.Has(e.ID) {
			e.Rotation = (e.Rotation + 90) % 360
			n++
		}
	}
	return n
}

// Reorder replaces the current order. order must be a permutation of the
// current ids.
func (r *Registry) Reorder(order []string) error {
	if len(order) != len(r.entries) {
		return &InvariantViolation{Op: "reorder", Detail: fmt.Sprintf("got %d ids, registry has %d", len(order), len(r.entries))}
	}
	byID := make(map[string]*PageEntry, len(r.entries))
	for _, e := range r.entries {
		byID[e.ID] = e
	}
	next := make([]*PageEntry, 0, len(order))
	for _, id := range order {
		e, ok := byID[id]
		if !ok {
			return &InvariantViolation{Op: "reorder", Detail: fmt.Sprintf("id %q is unknown or repeated", id)}
		}
		delete(byID, id)
		next = append(next, e)
	}
	r.entries = next
	return nil
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.entries) }

// Has reports whether id is in the registry.
func (r *Registry) Has(id string) bool {
	for _, e := range r.entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// IDs returns the ids in registry order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.ID
	}
	return out
}

// Entries returns value copies of the entries in registry order.
func (r *Registry) Entries() []PageEntry {
	out := make([]PageEntry, len(r.entries))
	for i, e := range r.entries {
		out[i] = *e
	}
	return out
}

// Entry returns a copy of the entry with the given id.
func (r *Registry) Entry(id string) (PageEntry, bool) {
	for _, e := range r.entries {
		if e.ID == id {
			return *e, true
		}
	}
	return PageEntry{}, false
}
