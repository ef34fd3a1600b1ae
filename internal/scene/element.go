// Package scene holds the authoritative in-memory scene graph for one room:
// visual elements, the background configuration, the generating set, and
// attached capabilities. Mutation happens only through Store operations.
package scene

// Kind is the variant kind of a scene element.
type Kind string

const (
	KindGlyph Kind = "symbolic-glyph"
	KindText  Kind = "text"
	KindShape Kind = "geometric-shape"
	KindImage Kind = "raster-image"
)

// Canvas bounds. X spans the full canvas width; Y stops short of the bottom
// strip reserved by the surface, which is why drag and duplication clamp to 65.
const (
	MaxX = 100.0
	MaxY = 65.0
)

// Position is a normalized 2-D canvas position, both axes in percent.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Animation tags form a small fixed enumeration. Unknown tags are kept
// verbatim; the renderer treats them as "none".
const (
	AnimationNone   = "none"
	AnimationBounce = "bounce"
	AnimationSpin   = "spin"
	AnimationPulse  = "pulse"
	AnimationFloat  = "float"
	AnimationShake  = "shake"
)

// ClickActionType enumerates the click-action descriptor variants.
type ClickActionType string

const (
	ClickShowImage   ClickActionType = "show-image"
	ClickShowText    ClickActionType = "show-text"
	ClickPlaySound   ClickActionType = "play-sound"
	ClickNavigate    ClickActionType = "navigate"
	ClickAddElements ClickActionType = "add-elements"
	ClickRemoveSelf  ClickActionType = "remove-self"
	ClickTransform   ClickActionType = "transform"
)

// ClickAction describes what happens when an element is clicked. The payload
// is an opaque string whose decoding is action-specific.
type ClickAction struct {
	Type    ClickActionType `json:"type"`
	Payload string          `json:"payload,omitempty"`
}

// Element is one member of the scene graph.
type Element struct {
	ID        string   `json:"id"`
	Kind      Kind     `json:"kind"`
	Content   string   `json:"content"` // glyph string / text / shape name / image URL
	Position  Position `json:"position"`
	Size      float64  `json:"size"` // pixels
	Color     string   `json:"color,omitempty"`
	Animation string   `json:"animation"`
	Rotation  float64  `json:"rotation,omitempty"` // degrees
	Opacity   float64  `json:"opacity"`            // [0,1]
	Draggable bool     `json:"draggable"`

	ClickAction *ClickAction `json:"clickAction,omitempty"`

	// Custom carries renderer-specific extras the model supplied via
	// customProps. Opaque to the core.
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// Trigger is the runtime event class that activates a capability.
type Trigger string

const (
	TriggerClick    Trigger = "click"
	TriggerHover    Trigger = "hover"
	TriggerLoad     Trigger = "load"
	TriggerInterval Trigger = "interval"
	TriggerDrag     Trigger = "drag"
)

// ValidTrigger reports whether t is one of the five supported trigger values.
func ValidTrigger(t Trigger) bool {
	switch t {
	case TriggerClick, TriggerHover, TriggerLoad, TriggerInterval, TriggerDrag:
		return true
	}
	return false
}

// AttachedCapability binds an executable behavior snippet to an element for
// one trigger. Capabilities are never mutated after attachment; removing the
// owning element does not detach them (scene reset does).
type AttachedCapability struct {
	ElementID string  `json:"elementId"`
	Trigger   Trigger `json:"trigger"`
	Code      string  `json:"code"`
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
