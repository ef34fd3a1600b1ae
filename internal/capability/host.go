// Package capability stores behavior snippets keyed by (element, trigger)
// pairs and executes them inside a restricted yaegi interpreter. A snippet
// sees exactly the host surface defined here and nothing else from the
// surrounding program: no filesystem, no network, no process control.
package capability

import (
	"roomcraft/internal/scene"
)

// Event is the runtime event that fired a trigger. Absent for load and
// interval triggers.
type Event struct {
	Type      string  `json:"type"`      // click, hover, drag
	ElementID string  `json:"elementId"` // element the event targeted
	X         float64 `json:"x"`         // pointer position, canvas percent
	Y         float64 `json:"y"`
	Phase     string  `json:"phase,omitempty"` // drag only: start, move, end
}

// MusicContext is the one external integration surface a snippet may touch:
// read-only state plus transport controls for the connected music service.
type MusicContext interface {
	Connected() bool
	CurrentTrack() string
	Connect() error
	Refresh() error
	Play() error
	Pause() error
	Next() error
	Previous() error
}

// API is the complete host surface handed to a capability snippet. The
// snippet must define:
//
//	func Run(api roomhost.API) error
//
// SetElements is the only way a snippet can mutate the scene.
type API struct {
	// Element is the current value of the element the capability is
	// attached to. Zero-valued if the element no longer exists.
	Element scene.Element

	// Elements is the full current element list (a copy).
	Elements []scene.Element

	// SetElements replaces the element list wholesale.
	SetElements func([]scene.Element)

	// Event is the triggering event, nil for load/interval.
	Event *Event

	// Popup displays a transient message to the user.
	Popup func(message string)

	// Music is the external music-control integration context.
	Music MusicContext
}

// NopMusic is the MusicContext used when no music integration is configured.
// All controls fail softly with ErrMusicNotConnected.
type NopMusic struct{}

func (NopMusic) Connected() bool      { return false }
func (NopMusic) CurrentTrack() string { return "" }
func (NopMusic) Connect() error       { return ErrMusicNotConnected }
func (NopMusic) Refresh() error       { return ErrMusicNotConnected }
func (NopMusic) Play() error          { return ErrMusicNotConnected }
func (NopMusic) Pause() error         { return ErrMusicNotConnected }
func (NopMusic) Next() error          { return ErrMusicNotConnected }
func (NopMusic) Previous() error      { return ErrMusicNotConnected }
