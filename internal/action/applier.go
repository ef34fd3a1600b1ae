package action

import (
	"math/rand"

	"github.com/google/uuid"

	"roomcraft/internal/logging"
	"roomcraft/internal/scene"
)

// Applier consumes an ordered action sequence and applies each to the scene
// store through the targeting resolver, one at a time, in receipt order.
// Resolution misses are silent no-ops: the model may legitimately guess wrong
// about scene contents.
type Applier struct {
	store *scene.Store
	rng   *rand.Rand
	newID func() string

	// onFinish receives the finish action's room name. Persistence and
	// navigation are the session's business, not the applier's.
	onFinish func(roomName string)
}

// NewApplier creates an applier bound to a store.
func NewApplier(store *scene.Store) *Applier {
	return &Applier{
		store: store,
		rng:   rand.New(rand.NewSource(rand.Int63())),
		newID: uuid.NewString,
	}
}

// SetOnFinish registers the finish-intent hook.
func (a *Applier) SetOnFinish(fn func(roomName string)) {
	a.onFinish = fn
}

// SetSeed makes duplicate scatter deterministic. Test hook.
func (a *Applier) SetSeed(seed int64) {
	a.rng = rand.New(rand.NewSource(seed))
}

// ApplyAll applies actions strictly in order. No reordering, no batching.
func (a *Applier) ApplyAll(actions []Action) {
	for _, act := range actions {
		a.Apply(act)
	}
}

// Apply applies one action to the store.
func (a *Applier) Apply(act Action) {
	logging.ActionsDebug("apply %s", act)
	switch act.Type {
	case TypeAdd:
		if act.Add != nil {
			a.applyAdd(act.Add)
		}
	case TypeRemove:
		if act.Remove != nil {
			a.applyRemove(act.Remove)
		}
	case TypeModify:
		if act.Modify != nil {
			a.applyModify(act.Modify)
		}
	case TypeDuplicate:
		if act.Duplicate != nil {
			a.applyDuplicate(act.Duplicate)
		}
	case TypeAttachCapability:
		if act.AttachCapability != nil {
			a.applyAttachCapability(act.AttachCapability)
		}
	case TypeReplaceWithImage:
		if act.ReplaceWithImage != nil {
			a.applyReplaceWithImage(act.ReplaceWithImage)
		}
	case TypeStartGenerating:
		if act.StartGenerating != nil {
			ids := scene.ResolveSet(a.store.Elements(), act.StartGenerating.Target, act.StartGenerating.Match)
			a.store.MarkGenerating(ids...)
		}
	case TypeStopGenerating:
		if act.StopGenerating != nil {
			a.store.UnmarkGenerating(act.StopGenerating.ElementID)
		}
	case TypeModifyBackground:
		if act.ModifyBackground != nil {
			a.applyModifyBackground(act.ModifyBackground)
		}
	case TypeFinish:
		if act.Finish != nil && a.onFinish != nil {
			a.onFinish(act.Finish.RoomName)
		}
	default:
		logging.ActionsWarn("ignoring action with unknown type %q", act.Type)
	}
}

func (a *Applier) applyAdd(d *AddData) {
	el := d.Element
	if el.ID == "" {
		el.ID = a.newID()
	}
	a.store.AddElement(el)
}

func (a *Applier) applyRemove(d *RemoveData) {
	switch d.Target {
	case scene.TargetAll:
		a.store.RemoveAll()
	case scene.TargetLast:
		a.store.RemoveLast()
	case scene.TargetMatching:
		ids := scene.ResolveSet(a.store.Elements(), scene.TargetMatching, d.Match)
		drop := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			drop[id] = struct{}{}
		}
		a.store.RemoveWhere(func(el scene.Element) bool {
			_, gone := drop[el.ID]
			return !gone
		})
	}
}

func (a *Applier) applyModify(d *ModifyData) {
	ids := scene.ResolveSet(a.store.Elements(), d.Target, d.Match)
	for _, id := range ids {
		el, ok := a.store.Element(id)
		if !ok {
			continue
		}
		a.store.ReplaceElement(mergeChanges(el, d.Changes))
	}
}

// mergeChanges merges ch onto el. X/Y are consumed as a position update and
// never become element fields of their own.
func mergeChanges(el scene.Element, ch Changes) scene.Element {
	if ch.X != nil || ch.Y != nil {
		pos := el.Position
		if ch.X != nil {
			pos.X = *ch.X
		}
		if ch.Y != nil {
			pos.Y = *ch.Y
		}
		el.Position = pos
	}
	if ch.Content != nil {
		el.Content = *ch.Content
	}
	if ch.Size != nil {
		el.Size = *ch.Size
	}
	if ch.Color != nil {
		el.Color = *ch.Color
	}
	if ch.Animation != nil {
		el.Animation = *ch.Animation
	}
	if ch.Rotation != nil {
		el.Rotation = *ch.Rotation
	}
	if ch.Opacity != nil {
		el.Opacity = *ch.Opacity
	}
	if ch.Draggable != nil {
		el.Draggable = *ch.Draggable
	}
	if ch.ClickAction != nil {
		ca := *ch.ClickAction
		el.ClickAction = &ca
	}
	if len(ch.Custom) > 0 {
		merged := make(map[string]interface{}, len(el.Custom)+len(ch.Custom))
		for k, v := range el.Custom {
			merged[k] = v
		}
		for k, v := range ch.Custom {
			merged[k] = v
		}
		el.Custom = merged
	}
	return el
}

func (a *Applier) applyDuplicate(d *DuplicateData) {
	srcID, ok := scene.ResolveOne(a.store.Elements(), d.Target, d.Match)
	if !ok {
		return // resolution miss, silent no-op
	}
	src, ok := a.store.Element(srcID)
	if !ok {
		return
	}

	count := d.Count
	if count < 1 {
		count = 1
	}

	for i := 0; i < count; i++ {
		dup := src
		dup.ID = a.newID()

		var dx, dy float64
		if d.Scatter {
			dx = a.rng.Float64()*30 - 15
			dy = a.rng.Float64()*30 - 15
		} else {
			// Fixed diagonal stagger, a pure function of the copy index.
			dx = float64(2 * (i + 1))
			dy = float64(2 * (i + 1))
		}
		dup.Position = scene.Position{
			X: clampRange(src.Position.X+dx, 0, scene.MaxX),
			Y: clampRange(src.Position.Y+dy, 0, scene.MaxY),
		}
		a.store.AddElement(dup)
	}
}

func (a *Applier) applyAttachCapability(d *AttachCapabilityData) {
	id, ok := scene.ResolveOne(a.store.Elements(), d.Target, d.Match)
	if !ok {
		logging.ActionsDebug("attachCapability: no element for target=%s match=%q", d.Target, d.Match)
		return
	}
	a.store.AttachCapability(scene.AttachedCapability{
		ElementID: id,
		Trigger:   d.Trigger,
		Code:      d.Code,
	})
}

func (a *Applier) applyReplaceWithImage(d *ReplaceWithImageData) {
	ids := scene.ResolveSet(a.store.Elements(), d.Target, d.Match)
	for _, id := range ids {
		el, ok := a.store.Element(id)
		if !ok {
			continue
		}
		el.Kind = scene.KindImage
		el.Content = d.URL
		if d.Size > 0 {
			el.Size = d.Size
		}
		a.store.ReplaceElement(el)
		a.store.UnmarkGenerating(id)
	}
}

func (a *Applier) applyModifyBackground(d *ModifyBackgroundData) {
	if d.Generating != nil {
		a.store.SetBackgroundGenerating(*d.Generating)
	}
	a.store.MergeBackground(d.Patch)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
