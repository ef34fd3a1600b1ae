package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"roomcraft/internal/action"
	"roomcraft/internal/logging"
	"roomcraft/internal/scene"
	"roomcraft/internal/store"
	"roomcraft/internal/tools"
)

// registerTools installs the full tool surface the model sees. Every scene
// mutation goes through action.Decode + emit so defaults, validation, and the
// applied-action record stay in one place.
func (o *Orchestrator) registerTools() {
	o.registry.MustRegister(o.addElementTool())
	o.registry.MustRegister(o.removeElementsTool())
	o.registry.MustRegister(o.modifyElementsTool())
	o.registry.MustRegister(o.duplicateElementTool())
	o.registry.MustRegister(o.createCapabilityTool())
	o.registry.MustRegister(o.executeCapabilityTool())
	o.registry.MustRegister(o.generateImageTool())
	o.registry.MustRegister(o.modifyBackgroundTool())
	o.registry.MustRegister(o.finishOnboardingTool())
}

var targetProperty = tools.Property{
	Type:        "string",
	Description: "Which elements to affect: 'all', 'last', or 'matching' (with match)",
	Default:     "last",
	Enum:        []any{"all", "last", "matching"},
}

var matchProperty = tools.Property{
	Type:        "string",
	Description: "Case-sensitive substring matched against element content (target=matching)",
}

func (o *Orchestrator) addElementTool() *tools.Tool {
	return &tools.Tool{
		Name:        "add_element",
		Description: "Add one element to the canvas. Position is percent-based: x in [0,100], y in [0,65].",
		Category:    tools.CategoryScene,
		Schema: tools.Schema{
			Required: []string{"type", "content"},
			Properties: map[string]tools.Property{
				"type":      {Type: "string", Description: "Element kind", Enum: []any{"symbolic-glyph", "text", "geometric-shape", "raster-image"}},
				"content":   {Type: "string", Description: "Glyph, text, shape name, or image URL"},
				"x":         {Type: "number", Description: "Horizontal position percent", Default: 0},
				"y":         {Type: "number", Description: "Vertical position percent", Default: 0},
				"size":      {Type: "number", Description: "Render size in pixels", Default: 40},
				"color":     {Type: "string", Description: "CSS color"},
				"animation": {Type: "string", Description: "Animation name, e.g. float, pulse, spin", Default: "none"},
				"rotation":  {Type: "number", Description: "Rotation in degrees", Default: 0},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			act, err := action.Decode(action.TypeAdd, args)
			if err != nil {
				return "", err
			}
			o.emit(act)
			el := act.Add.Element
			return fmt.Sprintf("added %s %q (id %s) at (%.0f, %.0f)", el.Kind, el.Content, el.ID, el.Position.X, el.Position.Y), nil
		},
	}
}

func (o *Orchestrator) removeElementsTool() *tools.Tool {
	return &tools.Tool{
		Name:        "remove_elements",
		Description: "Remove elements from the canvas by target selector.",
		Category:    tools.CategoryScene,
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"target": targetProperty,
				"match":  matchProperty,
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			act, err := action.Decode(action.TypeRemove, args)
			if err != nil {
				return "", err
			}
			before := o.scene.Len()
			o.emit(act)
			return fmt.Sprintf("removed %d element(s)", before-o.scene.Len()), nil
		},
	}
}

func (o *Orchestrator) modifyElementsTool() *tools.Tool {
	return &tools.Tool{
		Name:        "modify_elements",
		Description: "Change fields on targeted elements. Pass only the fields to change inside 'changes'; x/y move the element.",
		Category:    tools.CategoryScene,
		Schema: tools.Schema{
			Required: []string{"changes"},
			Properties: map[string]tools.Property{
				"target":  targetProperty,
				"match":   matchProperty,
				"changes": {Type: "object", Description: "Field updates: x, y, content, size, color, animation, rotation, opacity, draggable"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			act, err := action.Decode(action.TypeModify, args)
			if err != nil {
				return "", err
			}
			n := len(scene.ResolveSet(o.scene.Elements(), act.Modify.Target, act.Modify.Match))
			o.emit(act)
			return fmt.Sprintf("modified %d element(s)", n), nil
		},
	}
}

func (o *Orchestrator) duplicateElementTool() *tools.Tool {
	return &tools.Tool{
		Name:        "duplicate_element",
		Description: "Copy one source element with positional offsets. scatter=true spreads copies randomly, false staggers them diagonally.",
		Category:    tools.CategoryScene,
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"target":  targetProperty,
				"match":   matchProperty,
				"count":   {Type: "number", Description: "Number of copies", Default: 1},
				"scatter": {Type: "boolean", Description: "Random placement instead of diagonal stagger", Default: true},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			act, err := action.Decode(action.TypeDuplicate, args)
			if err != nil {
				return "", err
			}
			o.emit(act)
			return fmt.Sprintf("duplicated %d cop(ies)", act.Duplicate.Count), nil
		},
	}
}

func (o *Orchestrator) createCapabilityTool() *tools.Tool {
	return &tools.Tool{
		Name:        "create_capability",
		Description: "Write a Go behavior snippet and attach it to an element. The snippet must define func Run(api roomhost.API) error. Named capabilities are saved for reuse.",
		Category:    tools.CategoryCapability,
		Schema: tools.Schema{
			Required: []string{"trigger", "code"},
			Properties: map[string]tools.Property{
				"target":      targetProperty,
				"match":       matchProperty,
				"trigger":     {Type: "string", Description: "When to run", Enum: []any{"click", "hover", "load", "interval", "drag"}},
				"code":        {Type: "string", Description: "Go snippet body. Import only: strings, strconv, fmt, math, math/rand, time, sort, encoding/json, roomhost."},
				"name":        {Type: "string", Description: "Library name for reuse (optional)"},
				"description": {Type: "string", Description: "What the capability does (optional)"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			args["isNew"] = true
			act, err := action.Decode(action.TypeAttachCapability, args)
			if err != nil {
				return "", err
			}
			d := act.AttachCapability

			if o.executor != nil {
				if err := o.executor.ValidateCode(d.Code); err != nil {
					return "", fmt.Errorf("capability code rejected: %w", err)
				}
			}

			o.emit(act)

			if d.Name != "" && o.library != nil {
				rec := &store.CapabilityRecord{
					ID:          uuid.NewString(),
					Name:        d.Name,
					Description: getStringArg(args, "description"),
					Trigger:     string(d.Trigger),
					Code:        d.Code,
				}
				if err := o.library.SaveCapability(rec); err != nil {
					logging.OrchestratorWarn("capability %q attached but not saved: %v", d.Name, err)
				}
			}

			id, ok := scene.ResolveOne(o.scene.Elements(), d.Target, d.Match)
			if !ok {
				return "no element matched; capability not attached", nil
			}
			return fmt.Sprintf("capability attached to %s on %s", id, d.Trigger), nil
		},
	}
}

func (o *Orchestrator) executeCapabilityTool() *tools.Tool {
	return &tools.Tool{
		Name:        "execute_capability",
		Description: "Attach a previously saved capability from the library to an element, by name.",
		Category:    tools.CategoryCapability,
		Schema: tools.Schema{
			Required: []string{"name"},
			Properties: map[string]tools.Property{
				"name":   {Type: "string", Description: "Library capability name"},
				"target": targetProperty,
				"match":  matchProperty,
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			if o.library == nil {
				return "", fmt.Errorf("capability library not configured")
			}
			name := getStringArg(args, "name")
			rec, err := o.library.GetCapability(name)
			if err != nil {
				return "", err
			}

			act, err := action.Decode(action.TypeAttachCapability, map[string]any{
				"target":  getStringArg(args, "target"),
				"match":   getStringArg(args, "match"),
				"trigger": rec.Trigger,
				"code":    rec.Code,
				"name":    rec.Name,
			})
			if err != nil {
				return "", err
			}
			o.emit(act)

			if err := o.library.BumpUsage(name); err != nil {
				logging.OrchestratorWarn("usage bump for %q failed: %v", name, err)
			}
			return fmt.Sprintf("capability %q attached on %s", name, rec.Trigger), nil
		},
	}
}

func (o *Orchestrator) generateImageTool() *tools.Tool {
	return &tools.Tool{
		Name:        "generate_image",
		Description: "Generate an image from a prompt. Replaces the targeted element, or places a new image element at (x, y) when nothing matches. The element shows a loading state while generating.",
		Category:    tools.CategoryGeneration,
		Schema: tools.Schema{
			Required: []string{"prompt"},
			Properties: map[string]tools.Property{
				"prompt": {Type: "string", Description: "Image description"},
				"target": targetProperty,
				"match":  matchProperty,
				"x":      {Type: "number", Description: "Horizontal position percent for a new image element", Default: 0},
				"y":      {Type: "number", Description: "Vertical position percent for a new image element", Default: 0},
				"size":   {Type: "number", Description: "Render size in pixels", Default: 120},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			if o.images == nil {
				return "", fmt.Errorf("image generation not configured")
			}

			start, err := action.Decode(action.TypeStartGenerating, args)
			if err != nil {
				return "", err
			}
			ids := scene.ResolveSet(o.scene.Elements(), start.StartGenerating.Target, start.StartGenerating.Match)
			if len(ids) == 0 {
				// Nothing to replace: place the generated image as a fresh
				// element instead.
				url, err := o.images.Generate(ctx, getStringArg(args, "prompt"))
				if err != nil {
					return "", fmt.Errorf("image generation failed: %w", err)
				}
				args["type"] = string(scene.KindImage)
				args["content"] = url
				if _, ok := args["size"]; !ok {
					args["size"] = 120.0
				}
				add, err := action.Decode(action.TypeAdd, args)
				if err != nil {
					return "", err
				}
				o.emit(add)
				el := add.Add.Element
				return fmt.Sprintf("added generated image (id %s) at (%.0f, %.0f)", el.ID, el.Position.X, el.Position.Y), nil
			}
			o.emit(start)

			url, err := o.images.Generate(ctx, getStringArg(args, "prompt"))
			if err != nil {
				// Clear the loading state before surfacing the failure.
				for _, id := range ids {
					stop, decErr := action.Decode(action.TypeStopGenerating, map[string]any{"elementId": id})
					if decErr == nil {
						o.emit(stop)
					}
				}
				return "", fmt.Errorf("image generation failed: %w", err)
			}

			args["url"] = url
			replace, err := action.Decode(action.TypeReplaceWithImage, args)
			if err != nil {
				return "", err
			}
			o.emit(replace)
			return fmt.Sprintf("replaced %d element(s) with generated image", len(ids)), nil
		},
	}
}

func (o *Orchestrator) modifyBackgroundTool() *tools.Tool {
	return &tools.Tool{
		Name:        "modify_background",
		Description: "Change the canvas background. Pass only the fields to change. With type=image, pass imagePrompt to generate the background image.",
		Category:    tools.CategoryScene,
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"type":           {Type: "string", Description: "Background pattern", Enum: []any{"grid", "dots", "none", "image"}},
				"color":          {Type: "string", Description: "Primary CSS color"},
				"secondaryColor": {Type: "string", Description: "Secondary CSS color"},
				"size":           {Type: "number", Description: "Pattern spacing"},
				"opacity":        {Type: "number", Description: "Pattern opacity [0,1]"},
				"image":          {Type: "string", Description: "Background image URL (type=image)"},
				"imagePrompt":    {Type: "string", Description: "Generate the background image from this prompt (type=image)"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			if prompt := getStringArg(args, "imagePrompt"); prompt != "" && getStringArg(args, "type") == "image" {
				return o.generateBackgroundImage(ctx, args, prompt)
			}
			act, err := action.Decode(action.TypeModifyBackground, args)
			if err != nil {
				return "", err
			}
			o.emit(act)
			bg := o.scene.Background()
			return fmt.Sprintf("background is now %s %s", bg.Type, bg.Color), nil
		},
	}
}

// generateBackgroundImage is the slow branch of modify_background: the
// background carries a generating flag while the image collaborator runs, and
// the flag is cleared on both outcomes.
func (o *Orchestrator) generateBackgroundImage(ctx context.Context, args map[string]any, prompt string) (string, error) {
	if o.images == nil {
		return "", fmt.Errorf("image generation not configured")
	}

	on, err := action.Decode(action.TypeModifyBackground, map[string]any{"generating": true})
	if err != nil {
		return "", err
	}
	o.emit(on)

	url, err := o.images.Generate(ctx, prompt)
	if err != nil {
		off, decErr := action.Decode(action.TypeModifyBackground, map[string]any{"generating": false})
		if decErr == nil {
			o.emit(off)
		}
		return "", fmt.Errorf("background image generation failed: %w", err)
	}

	args["image"] = url
	args["generating"] = false
	act, err := action.Decode(action.TypeModifyBackground, args)
	if err != nil {
		return "", err
	}
	o.emit(act)
	return fmt.Sprintf("background image set to %s", url), nil
}

func (o *Orchestrator) finishOnboardingTool() *tools.Tool {
	return &tools.Tool{
		Name:        "finish_onboarding",
		Description: "Declare the room complete. Persists the scene under the given name and hands off to the room view.",
		Category:    tools.CategoryRoom,
		Schema: tools.Schema{
			Required: []string{"roomName"},
			Properties: map[string]tools.Property{
				"roomName": {Type: "string", Description: "Name to save the room under"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			act, err := action.Decode(action.TypeFinish, args)
			if err != nil {
				return "", err
			}
			o.emit(act)
			return fmt.Sprintf("room %q finished", act.Finish.RoomName), nil
		},
	}
}

func getStringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
