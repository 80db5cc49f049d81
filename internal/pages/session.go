package pages

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one editing session: a registry, its selection and the merge
// settings. Every exported method is atomic with respect to the others.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.RWMutex
	registry  *Registry
	selection *Selection
	settings  Settings
	touched   time.Time
}

// Snapshot is a point-in-time copy of a session that is safe to hand to
// long-running readers (merges, thumbnail renders).
type Snapshot struct {
	SessionID string
	Entries   []PageEntry
	Selected  []string // in registry order
	Settings  Settings
	UpdatedAt time.Time // last mutation
}

func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		registry:  NewRegistry(),
		selection: NewSelection(),
		settings:  DefaultSettings(),
		touched:   now,
	}
}

// AddFile appends the pages of src. A failure leaves earlier files intact.
func (s *Session) AddFile(src *SourceFile, descs []PageDescriptor) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	return s.registry.AppendPages(src, descs)
}

// ToggleSelection flips the selection state of id.
func (s *Session) ToggleSelection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.registry.Has(id) {
		return &InvariantViolation{Op: "toggle", Detail: fmt.Sprintf("id %q not in registry", id)}
	}
	s.selection.Toggle(id)
	s.touched = time.Now()
	return nil
}

// SelectAll selects every page in the registry.
func (s *Session) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.registry.IDs() {
		s.selection.Add(id)
	}
	s.touched = time.Now()
}

func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Clear()
	s.touched = time.Now()
}

// DeleteSelected removes the selected pages and drops them from the selection
// in the same step. It returns the removed ids.
func (s *Session) DeleteSelected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.registry.RemoveEntries(s.selection.Set())
	s.selection.Retain(s.registry.Has)
	s.touched = time.Now()
	return removed
}

// DeletePages removes the given pages and keeps the selection consistent.
func (s *Session) DeletePages(ids IDSet) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.registry.RemoveEntries(ids)
	s.selection.Retain(s.registry.Has)
	s.touched = time.Now()
	return removed
}

// RotateSelected rotates the selected pages by 90 degrees clockwise.
func (s *Session) RotateSelected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	return s.registry.RotateEntries(s.selection.Set())
}

// Move applies a drag of active onto target.
func (s *Session) Move(active, target string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, err := ComputeMove(s.registry.IDs(), active, target, s.selection.Set())
	if err != nil {
		return nil, err
	}
	if err := s.registry.Reorder(order); err != nil {
		return nil, err
	}
	s.touched = time.Now()
	return order, nil
}

// Reorder replaces the page order with ids.
func (s *Session) Reorder(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registry.Reorder(ids); err != nil {
		return err
	}
	s.touched = time.Now()
	return nil
}

// UpdateSettings validates and stores new settings.
func (s *Session) UpdateSettings(st Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
	s.touched = time.Now()
	return nil
}

func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Entry returns a copy of one page.
func (s *Session) Entry(id string) (PageEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Entry(id)
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Len()
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.registry.Entries()
	selected := make([]string, 0, s.selection.Len())
	for _, e := range entries {
		if s.selection.Contains(e.ID) {
			selected = append(selected, e.ID)
		}
	}
	return Snapshot{
		SessionID: s.ID,
		Entries:   entries,
		Selected:  selected,
		Settings:  s.settings,
		UpdatedAt: s.touched,
	}
}
