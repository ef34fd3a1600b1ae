package action

import (
	"fmt"

	"github.com/google/uuid"

	"roomcraft/internal/scene"
)

// Decode converts the loose field bag of one tool call into a typed Action,
// filling documented defaults. Decoding is best-effort: missing optional
// fields take their defaults, unknown fields are ignored (or routed into the
// element's Custom map for modify), and only a structurally unusable payload
// is an error.
func Decode(typ Type, data map[string]interface{}) (Action, error) {
	switch typ {
	case TypeAdd:
		return Action{Type: TypeAdd, Add: decodeAdd(data)}, nil
	case TypeRemove:
		return Action{Type: TypeRemove, Remove: &RemoveData{
			Target: decodeTarget(data),
			Match:  getString(data, "match", ""),
		}}, nil
	case TypeModify:
		return Action{Type: TypeModify, Modify: &ModifyData{
			Target:  decodeTarget(data),
			Match:   getString(data, "match", ""),
			Changes: decodeChanges(getMap(data, "changes")),
		}}, nil
	case TypeDuplicate:
		return Action{Type: TypeDuplicate, Duplicate: &DuplicateData{
			Target:  decodeTarget(data),
			Match:   getString(data, "match", ""),
			Count:   int(getFloat(data, "count", 1)),
			Scatter: getBool(data, "scatter", true),
		}}, nil
	case TypeAttachCapability:
		trigger := scene.Trigger(getString(data, "trigger", string(scene.TriggerClick)))
		if !scene.ValidTrigger(trigger) {
			return Action{}, fmt.Errorf("%w: %q", ErrInvalidTrigger, trigger)
		}
		return Action{Type: TypeAttachCapability, AttachCapability: &AttachCapabilityData{
			Target:  decodeTarget(data),
			Match:   getString(data, "match", ""),
			Trigger: trigger,
			Code:    getString(data, "code", ""),
			Name:    getString(data, "name", ""),
			IsNew:   getBool(data, "isNew", false),
		}}, nil
	case TypeReplaceWithImage:
		return Action{Type: TypeReplaceWithImage, ReplaceWithImage: &ReplaceWithImageData{
			Target: decodeTarget(data),
			Match:  getString(data, "match", ""),
			URL:    getString(data, "url", ""),
			Size:   getFloat(data, "size", 120),
		}}, nil
	case TypeStartGenerating:
		return Action{Type: TypeStartGenerating, StartGenerating: &StartGeneratingData{
			Target: decodeTarget(data),
			Match:  getString(data, "match", ""),
		}}, nil
	case TypeStopGenerating:
		return Action{Type: TypeStopGenerating, StopGenerating: &StopGeneratingData{
			ElementID: getString(data, "elementId", ""),
		}}, nil
	case TypeModifyBackground:
		return Action{Type: TypeModifyBackground, ModifyBackground: decodeBackground(data)}, nil
	case TypeFinish:
		return Action{Type: TypeFinish, Finish: &FinishData{
			RoomName: getString(data, "roomName", "untitled"),
		}}, nil
	}
	return Action{}, fmt.Errorf("%w: %q", ErrUnknownActionType, typ)
}

func decodeAdd(data map[string]interface{}) *AddData {
	el := scene.Element{
		ID:        getString(data, "id", ""),
		Kind:      normalizeKind(getString(data, "type", string(scene.KindGlyph))),
		Content:   getString(data, "content", ""),
		Size:      getFloat(data, "size", 40),
		Color:     getString(data, "color", ""),
		Animation: getString(data, "animation", scene.AnimationNone),
		Rotation:  getFloat(data, "rotation", 0),
		Opacity:   getFloat(data, "opacity", 1),
		Draggable: getBool(data, "draggable", true),
	}
	if el.ID == "" {
		el.ID = uuid.NewString()
	}

	// Position comes either as top-level x/y or a nested position object.
	// Not clamped here: only drag and duplication clamp (documented choice).
	if pos := getMap(data, "position"); pos != nil {
		el.Position = scene.Position{X: getFloat(pos, "x", 0), Y: getFloat(pos, "y", 0)}
	} else {
		el.Position = scene.Position{X: getFloat(data, "x", 0), Y: getFloat(data, "y", 0)}
	}

	if ca := getMap(data, "clickAction"); ca != nil {
		el.ClickAction = &scene.ClickAction{
			Type:    scene.ClickActionType(getString(ca, "type", "")),
			Payload: getString(ca, "payload", ""),
		}
	}
	if custom := getMap(data, "customProps"); custom != nil {
		el.Custom = custom
	}
	return &AddData{Element: el}
}

func decodeChanges(m map[string]interface{}) Changes {
	var ch Changes
	for key, val := range m {
		switch key {
		case "x":
			ch.X = asFloat(val)
		case "y":
			ch.Y = asFloat(val)
		case "content":
			ch.Content = asString(val)
		case "size":
			ch.Size = asFloat(val)
		case "color":
			ch.Color = asString(val)
		case "animation":
			ch.Animation = asString(val)
		case "rotation":
			ch.Rotation = asFloat(val)
		case "opacity":
			ch.Opacity = asFloat(val)
		case "draggable":
			ch.Draggable = asBool(val)
		case "clickAction":
			if ca, ok := val.(map[string]interface{}); ok {
				ch.ClickAction = &scene.ClickAction{
					Type:    scene.ClickActionType(getString(ca, "type", "")),
					Payload: getString(ca, "payload", ""),
				}
			}
		default:
			if ch.Custom == nil {
				ch.Custom = make(map[string]interface{})
			}
			ch.Custom[key] = val
		}
	}
	return ch
}

func decodeBackground(data map[string]interface{}) *ModifyBackgroundData {
	d := &ModifyBackgroundData{}
	if v := asString(data["type"]); v != nil {
		t := scene.BackgroundType(*v)
		d.Patch.Type = &t
	}
	d.Patch.Color = asString(data["color"])
	d.Patch.SecondaryColor = asString(data["secondaryColor"])
	d.Patch.Size = asFloat(data["size"])
	d.Patch.Opacity = asFloat(data["opacity"])
	d.Patch.Image = asString(data["image"])
	d.Generating = asBool(data["generating"])
	return d
}

func decodeTarget(data map[string]interface{}) scene.Target {
	switch t := scene.Target(getString(data, "target", "last")); t {
	case scene.TargetAll, scene.TargetLast, scene.TargetMatching:
		return t
	default:
		return scene.TargetLast
	}
}

// normalizeKind accepts both the canonical kind names and the short aliases
// the model tends to produce.
func normalizeKind(s string) scene.Kind {
	switch s {
	case string(scene.KindGlyph), "emoji", "glyph":
		return scene.KindGlyph
	case string(scene.KindText):
		return scene.KindText
	case string(scene.KindShape), "shape":
		return scene.KindShape
	case string(scene.KindImage), "image":
		return scene.KindImage
	default:
		return scene.KindGlyph
	}
}

// ---- loose field-bag helpers ----

func getString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

func getFloat(m map[string]interface{}, key string, def float64) float64 {
	if v := asFloat(m[key]); v != nil {
		return *v
	}
	return def
}

func getBool(m map[string]interface{}, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

func asString(v interface{}) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func asFloat(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	}
	return nil
}

func asBool(v interface{}) *bool {
	if b, ok := v.(bool); ok {
		return &b
	}
	return nil
}
