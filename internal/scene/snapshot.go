package scene

import "encoding/json"

// Snapshot is the serializable form of a scene: elements, background, and
// attached capabilities. The generating set and the background-loading flag
// are transient UX signals and are deliberately excluded.
type Snapshot struct {
	Elements     []Element            `json:"elements"`
	Background   Background           `json:"background"`
	Capabilities []AttachedCapability `json:"capabilities,omitempty"`
}

// Snapshot captures the durable scene state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Elements:     make([]Element, len(s.elements)),
		Background:   s.background,
		Capabilities: make([]AttachedCapability, len(s.caps)),
	}
	copy(snap.Elements, s.elements)
	copy(snap.Capabilities, s.caps)
	return snap
}

// Restore replaces the whole scene with the snapshot contents. The generating
// set is cleared: nothing can still be in flight for a freshly loaded scene.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	s.elements = make([]Element, len(snap.Elements))
	copy(s.elements, snap.Elements)
	s.caps = make([]AttachedCapability, len(snap.Capabilities))
	copy(s.caps, snap.Capabilities)
	s.background = snap.Background
	s.generating = make(map[string]struct{})
	s.bgGenerating = false
	s.mu.Unlock()
	s.changed()
}

// MarshalSnapshot serializes a snapshot to JSON.
func MarshalSnapshot(snap Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// UnmarshalSnapshot parses a snapshot from JSON.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	err := json.Unmarshal(data, &snap)
	return snap, err
}
