// Package action defines the typed SceneAction union and the Applier that
// consumes an ordered action list and applies it to a scene store. Actions
// are transient: produced by one orchestration turn, applied immediately,
// never persisted as a log.
package action

import (
	"encoding/json"
	"fmt"

	"roomcraft/internal/scene"
)

// Type discriminates the SceneAction union.
type Type string

const (
	TypeAdd              Type = "add"
	TypeRemove           Type = "remove"
	TypeModify           Type = "modify"
	TypeDuplicate        Type = "duplicate"
	TypeFinish           Type = "finish"
	TypeAttachCapability Type = "attachCapability"
	TypeReplaceWithImage Type = "replaceWithImage"
	TypeStartGenerating  Type = "startGenerating"
	TypeStopGenerating   Type = "stopGenerating"
	TypeModifyBackground Type = "modifyBackground"
)

// Action is a discriminated record. Exactly one payload pointer is non-nil,
// matching Type. The loose field bags coming off tool calls are converted to
// these typed payloads (with default filling) in decode.go.
type Action struct {
	Type Type

	Add              *AddData
	Remove           *RemoveData
	Modify           *ModifyData
	Duplicate        *DuplicateData
	AttachCapability *AttachCapabilityData
	ReplaceWithImage *ReplaceWithImageData
	StartGenerating  *StartGeneratingData
	StopGenerating   *StopGeneratingData
	ModifyBackground *ModifyBackgroundData
	Finish           *FinishData
}

// AddData inserts a fully constructed element. Defaults (animation "none",
// draggable true, opacity 1, fresh id) are filled at decode time.
type AddData struct {
	Element scene.Element `json:"element"`
}

// RemoveData drops elements selected by the target.
type RemoveData struct {
	Target scene.Target `json:"target"`
	Match  string       `json:"match,omitempty"`
}

// Changes carries the optional per-field updates of a modify action. Nil
// fields are untouched. X/Y are consumed as a position update and never
// merged as standalone element fields.
type Changes struct {
	X           *float64           `json:"x,omitempty"`
	Y           *float64           `json:"y,omitempty"`
	Content     *string            `json:"content,omitempty"`
	Size        *float64           `json:"size,omitempty"`
	Color       *string            `json:"color,omitempty"`
	Animation   *string            `json:"animation,omitempty"`
	Rotation    *float64           `json:"rotation,omitempty"`
	Opacity     *float64           `json:"opacity,omitempty"`
	Draggable   *bool              `json:"draggable,omitempty"`
	ClickAction *scene.ClickAction `json:"clickAction,omitempty"`

	// Custom holds change keys the element model has no field for. They are
	// merged into the element's Custom map rather than rejected.
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// ModifyData merges Changes onto every resolved element.
type ModifyData struct {
	Target  scene.Target `json:"target"`
	Match   string       `json:"match,omitempty"`
	Changes Changes      `json:"changes"`
}

// DuplicateData copies a single source element Count times.
type DuplicateData struct {
	Target  scene.Target `json:"target"`
	Match   string       `json:"match,omitempty"`
	Count   int          `json:"count"`
	Scatter bool         `json:"scatter"`
}

// AttachCapabilityData binds a behavior snippet to a single resolved element.
type AttachCapabilityData struct {
	Target  scene.Target  `json:"target"`
	Match   string        `json:"match,omitempty"`
	Trigger scene.Trigger `json:"trigger"`
	Code    string        `json:"code"`
	Name    string        `json:"name,omitempty"`
	IsNew   bool          `json:"isNew,omitempty"`
}

// ReplaceWithImageData turns every resolved element into a raster image.
type ReplaceWithImageData struct {
	Target scene.Target `json:"target"`
	Match  string       `json:"match,omitempty"`
	URL    string       `json:"url"`
	Size   float64      `json:"size,omitempty"`
}

// StartGeneratingData marks resolved elements as awaiting generated content.
type StartGeneratingData struct {
	Target scene.Target `json:"target"`
	Match  string       `json:"match,omitempty"`
}

// StopGeneratingData clears the generating flag for one element id.
type StopGeneratingData struct {
	ElementID string `json:"elementId"`
}

// ModifyBackgroundData field-merges onto the background config. Generating,
// if present, toggles the background-loading UX flag instead of being stored.
type ModifyBackgroundData struct {
	Patch      scene.BackgroundPatch `json:"-"`
	Generating *bool                 `json:"generating,omitempty"`
}

// FinishData is the terminal action: persist the scene under RoomName and
// hand off to the navigation side effect.
type FinishData struct {
	RoomName string `json:"roomName"`
}

// wireAction is the {type, data} shape consumed by the rendering layer.
type wireAction struct {
	Type Type        `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// MarshalJSON emits the {type, data} wire record.
func (a Action) MarshalJSON() ([]byte, error) {
	w := wireAction{Type: a.Type}
	switch a.Type {
	case TypeAdd:
		w.Data = a.Add
	case TypeRemove:
		w.Data = a.Remove
	case TypeModify:
		w.Data = a.Modify
	case TypeDuplicate:
		w.Data = a.Duplicate
	case TypeAttachCapability:
		w.Data = a.AttachCapability
	case TypeReplaceWithImage:
		w.Data = a.ReplaceWithImage
	case TypeStartGenerating:
		w.Data = a.StartGenerating
	case TypeStopGenerating:
		w.Data = a.StopGenerating
	case TypeModifyBackground:
		w.Data = a.ModifyBackground
	case TypeFinish:
		w.Data = a.Finish
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, a.Type)
	}
	return json.Marshal(w)
}

// String returns a short human-readable description for logs.
func (a Action) String() string {
	switch a.Type {
	case TypeAdd:
		if a.Add != nil {
			return fmt.Sprintf("add(%s %q)", a.Add.Element.Kind, a.Add.Element.Content)
		}
	case TypeRemove:
		if a.Remove != nil {
			return fmt.Sprintf("remove(%s %q)", a.Remove.Target, a.Remove.Match)
		}
	case TypeModify:
		if a.Modify != nil {
			return fmt.Sprintf("modify(%s %q)", a.Modify.Target, a.Modify.Match)
		}
	case TypeDuplicate:
		if a.Duplicate != nil {
			return fmt.Sprintf("duplicate(%s x%d)", a.Duplicate.Target, a.Duplicate.Count)
		}
	case TypeFinish:
		if a.Finish != nil {
			return fmt.Sprintf("finish(%q)", a.Finish.RoomName)
		}
	}
	return string(a.Type)
}
