package pages

// Selection tracks which page ids are selected for bulk operations.
type Selection struct {
	ids IDSet
}

func NewSelection() *Selection {
	return &Selection{ids: IDSet{}}
}

// Toggle adds id when absent and removes it when present.
func (s *Selection) Toggle(id string) {
	if s.ids.Has(id) {
		delete(s.ids, id)
		return
	}
	s.ids[id] = struct{}{}
}

func (s *Selection) Add(id string) { s.ids[id] = struct{}{} }

func (s *Selection) Clear() { s.ids = IDSet{} }

func (s *Selection) Contains(id string) bool { return s.ids.Has(id) }

func (s *Selection) Len() int { return len(s.ids) }

// Set returns a copy of the selected ids.
func (s *Selection) Set() IDSet {
	out := make(IDSet, len(s.ids))
	for id := range s.ids {
		out[id] = struct{}{}
	}
	return out
}

// Retain drops every id for which keep returns false.
func (s *Selection) Retain(keep func(id string) bool) {
	for id := range s.ids {
		if !keep(id) {
			delete(s.ids, id)
		}
	}
}
