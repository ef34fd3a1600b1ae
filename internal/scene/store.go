package scene

import (
	"sync"

	"roomcraft/internal/logging"
)

// Store owns one room's scene graph. All reads return copies; all writes go
// through the operations below. Concurrent pointer/drag input and in-flight
// orchestration turns interleave without transactional isolation: last writer
// wins per field, which the surface tolerates because every mutation is
// user-visible and idempotent per field.
type Store struct {
	mu         sync.RWMutex
	elements   []Element
	background Background
	caps       []AttachedCapability

	generating    map[string]struct{}
	bgGenerating  bool

	onChange func()
}

// NewStore returns an empty scene with the default background.
func NewStore() *Store {
	return &Store{
		background: DefaultBackground(),
		generating: make(map[string]struct{}),
	}
}

// SetOnChange registers a hook fired after every mutation. The session layer
// uses it to schedule debounced persistence and a render refresh. The hook is
// invoked outside the store lock.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) changed() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Elements returns a copy of the element list in insertion order.
func (s *Store) Elements() []Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Element, len(s.elements))
	copy(out, s.elements)
	return out
}

// Element returns the element with the given id.
func (s *Store) Element(id string) (Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, el := range s.elements {
		if el.ID == id {
			return el, true
		}
	}
	return Element{}, false
}

// Len returns the number of elements.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.elements)
}

// SetElements replaces the whole element list. This is the only scene
// mutation handed to capability snippets.
func (s *Store) SetElements(elements []Element) {
	s.mu.Lock()
	s.elements = make([]Element, len(elements))
	copy(s.elements, elements)
	s.mu.Unlock()
	logging.SceneDebug("SetElements: %d elements", len(elements))
	s.changed()
}

// AddElement appends an element.
func (s *Store) AddElement(el Element) {
	s.mu.Lock()
	s.elements = append(s.elements, el)
	s.mu.Unlock()
	logging.SceneDebug("AddElement: id=%s kind=%s", el.ID, el.Kind)
	s.changed()
}

// RemoveAll empties the element list. Attached capabilities stay put and
// become orphaned; only Reset clears them.
func (s *Store) RemoveAll() {
	s.mu.Lock()
	n := len(s.elements)
	s.elements = nil
	s.mu.Unlock()
	logging.SceneDebug("RemoveAll: dropped %d elements", n)
	s.changed()
}

// RemoveLast drops the most recently added element. No-op on an empty list.
func (s *Store) RemoveLast() {
	s.mu.Lock()
	if len(s.elements) == 0 {
		s.mu.Unlock()
		return
	}
	s.elements = s.elements[:len(s.elements)-1]
	s.mu.Unlock()
	s.changed()
}

// RemoveByID drops the element with the given id, if present.
func (s *Store) RemoveByID(id string) bool {
	s.mu.Lock()
	for i, el := range s.elements {
		if el.ID == id {
			s.elements = append(s.elements[:i], s.elements[i+1:]...)
			s.mu.Unlock()
			s.changed()
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// RemoveWhere drops every element the predicate selects and returns how many
// were removed.
func (s *Store) RemoveWhere(keep func(Element) bool) int {
	s.mu.Lock()
	kept := s.elements[:0]
	removed := 0
	for _, el := range s.elements {
		if keep(el) {
			kept = append(kept, el)
		} else {
			removed++
		}
	}
	s.elements = kept
	s.mu.Unlock()
	if removed > 0 {
		s.changed()
	}
	return removed
}

// ReplaceElement swaps the element with el.ID for el, keeping list order.
func (s *Store) ReplaceElement(el Element) bool {
	s.mu.Lock()
	for i := range s.elements {
		if s.elements[i].ID == el.ID {
			s.elements[i] = el
			s.mu.Unlock()
			s.changed()
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// MoveElement updates an element's position from a drag gesture, clamped to
// the usable canvas sub-rectangle.
func (s *Store) MoveElement(id string, x, y float64) bool {
	s.mu.Lock()
	for i := range s.elements {
		if s.elements[i].ID == id {
			s.elements[i].Position = Position{
				X: clamp(x, 0, MaxX),
				Y: clamp(y, 0, MaxY),
			}
			s.mu.Unlock()
			s.changed()
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// Background returns the current background configuration.
func (s *Store) Background() Background {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.background
}

// SetBackground replaces the background wholesale.
func (s *Store) SetBackground(bg Background) {
	s.mu.Lock()
	s.background = bg
	s.mu.Unlock()
	s.changed()
}

// MergeBackground field-merges a patch onto the background.
func (s *Store) MergeBackground(p BackgroundPatch) {
	s.mu.Lock()
	s.background = s.background.Merge(p)
	s.mu.Unlock()
	s.changed()
}

// MarkGenerating adds element ids to the generating set.
func (s *Store) MarkGenerating(ids ...string) {
	s.mu.Lock()
	for _, id := range ids {
		s.generating[id] = struct{}{}
	}
	s.mu.Unlock()
	s.changed()
}

// UnmarkGenerating removes one element id from the generating set.
func (s *Store) UnmarkGenerating(id string) {
	s.mu.Lock()
	delete(s.generating, id)
	s.mu.Unlock()
	s.changed()
}

// IsGenerating reports generating-set membership.
func (s *Store) IsGenerating(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.generating[id]
	return ok
}

// GeneratingIDs returns the ids currently awaiting generated content.
func (s *Store) GeneratingIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.generating))
	for id := range s.generating {
		out = append(out, id)
	}
	return out
}

// SetBackgroundGenerating toggles the background-loading UX flag. The flag is
// a rendering signal only and is not part of the Background config.
func (s *Store) SetBackgroundGenerating(v bool) {
	s.mu.Lock()
	s.bgGenerating = v
	s.mu.Unlock()
	s.changed()
}

// BackgroundGenerating reports the background-loading flag.
func (s *Store) BackgroundGenerating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bgGenerating
}

// AttachCapability records a capability. The element need not exist; callers
// that want existence-checked attachment resolve the target first.
func (s *Store) AttachCapability(c AttachedCapability) {
	s.mu.Lock()
	s.caps = append(s.caps, c)
	s.mu.Unlock()
	logging.Capability("attached trigger=%s element=%s code_len=%d", c.Trigger, c.ElementID, len(c.Code))
	s.changed()
}

// Capabilities returns a copy of all attached capabilities.
func (s *Store) Capabilities() []AttachedCapability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AttachedCapability, len(s.caps))
	copy(out, s.caps)
	return out
}

// LookupCapability returns the first capability matching (elementID, trigger).
func (s *Store) LookupCapability(elementID string, trigger Trigger) (AttachedCapability, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.caps {
		if c.ElementID == elementID && c.Trigger == trigger {
			return c, true
		}
	}
	return AttachedCapability{}, false
}

// Reset clears elements, capabilities, the generating set, and restores the
// default background. This is the only path that drops capabilities.
func (s *Store) Reset() {
	s.mu.Lock()
	s.elements = nil
	s.caps = nil
	s.generating = make(map[string]struct{})
	s.bgGenerating = false
	s.background = DefaultBackground()
	s.mu.Unlock()
	logging.Scene("scene reset")
	s.changed()
}
