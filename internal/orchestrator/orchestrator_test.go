package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"roomcraft/internal/action"
	"roomcraft/internal/scene"
	"roomcraft/internal/store"
	"roomcraft/internal/types"
)

// scriptedClient replays a fixed sequence of provider responses and records
// the conversations it was handed.
type scriptedClient struct {
	responses []*types.LLMToolResponse
	calls     int
	seen      [][]types.Message
	err       error
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", nil
}

func (c *scriptedClient) CompleteWithTools(ctx context.Context, systemPrompt string, messages []types.Message, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	snapshot := make([]types.Message, len(messages))
	copy(snapshot, messages)
	c.seen = append(c.seen, snapshot)

	idx := c.calls
	c.calls++
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

func textResponse(text string) *types.LLMToolResponse {
	return &types.LLMToolResponse{Text: text, StopReason: "end_turn"}
}

func toolResponse(calls ...types.ToolCall) *types.LLMToolResponse {
	return &types.LLMToolResponse{ToolCalls: calls, StopReason: "tool_use"}
}

// memLibrary is an in-memory CapabilityLibrary.
type memLibrary struct {
	recs  map[string]*store.CapabilityRecord
	bumps map[string]int
}

func newMemLibrary() *memLibrary {
	return &memLibrary{
		recs:  map[string]*store.CapabilityRecord{},
		bumps: map[string]int{},
	}
}

func (m *memLibrary) SaveCapability(rec *store.CapabilityRecord) error {
	m.recs[rec.Name] = rec
	return nil
}

func (m *memLibrary) GetCapability(name string) (*store.CapabilityRecord, error) {
	rec, ok := m.recs[name]
	if !ok {
		return nil, store.ErrCapabilityNotFound
	}
	return rec, nil
}

func (m *memLibrary) BumpUsage(name string) error {
	m.bumps[name]++
	return nil
}

type stubImages struct {
	url   string
	err   error
	calls int
}

func (s *stubImages) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.url, s.err
}

func newTestOrchestrator(t *testing.T, client types.LLMClient, opts Options) (*Orchestrator, *scene.Store) {
	t.Helper()
	sc := scene.NewStore()
	o, err := New(client, sc, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o, sc
}

func TestRunTurn_TextOnly(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		textResponse("Your canvas is already perfect."),
	}}
	o, _ := newTestOrchestrator(t, client, Options{})

	result, err := o.RunTurn(context.Background(), "what do you think?")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if result.Response != "Your canvas is already perfect." {
		t.Errorf("unexpected response: %q", result.Response)
	}
	if result.Rounds != 1 {
		t.Errorf("expected 1 round, got %d", result.Rounds)
	}
	if len(result.Actions) != 0 {
		t.Errorf("expected no actions, got %d", len(result.Actions))
	}
}

func TestRunTurn_ToolChainMutatesScene(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{
			ID:   "tc-1",
			Name: "add_element",
			Input: map[string]any{
				"type": "symbolic-glyph", "content": "🍄",
				"x": float64(50), "y": float64(30),
			},
		}),
		textResponse("Added a mushroom."),
	}}
	o, sc := newTestOrchestrator(t, client, Options{})

	result, err := o.RunTurn(context.Background(), "add a mushroom")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if result.Rounds != 2 {
		t.Errorf("expected 2 rounds, got %d", result.Rounds)
	}
	if len(result.Actions) != 1 || result.Actions[0].Type != action.TypeAdd {
		t.Fatalf("expected one add action, got %v", result.Actions)
	}
	if sc.Len() != 1 {
		t.Fatalf("expected element in scene, got %d", sc.Len())
	}
	el := sc.Elements()[0]
	if el.Content != "🍄" || el.Position.X != 50 || el.Position.Y != 30 {
		t.Errorf("unexpected element: %+v", el)
	}

	// The second round must carry the assistant's tool calls and our results.
	if len(client.seen) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(client.seen))
	}
	second := client.seen[1]
	if len(second) != 3 {
		t.Fatalf("expected 3 messages in round 2, got %d", len(second))
	}
	if len(second[1].ToolCalls) != 1 || second[1].Role != "assistant" {
		t.Errorf("expected assistant tool-call message, got %+v", second[1])
	}
	results := second[2].ToolResults
	if len(results) != 1 || results[0].ToolUseID != "tc-1" || results[0].IsError {
		t.Errorf("unexpected tool results: %+v", results)
	}
	if !strings.Contains(results[0].Content, "added symbolic-glyph") {
		t.Errorf("unexpected result content: %q", results[0].Content)
	}
}

func TestRunTurn_RoundLimit(t *testing.T) {
	// The model never stops asking for tools.
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{
			ID:    "tc",
			Name:  "add_element",
			Input: map[string]any{"type": "text", "content": "again"},
		}),
	}}
	o, sc := newTestOrchestrator(t, client, Options{MaxRounds: 3})

	result, err := o.RunTurn(context.Background(), "go wild")
	if !errors.Is(err, ErrRoundLimit) {
		t.Fatalf("expected ErrRoundLimit, got %v", err)
	}
	if result == nil {
		t.Fatal("expected partial result with ErrRoundLimit")
	}
	if result.Rounds != 3 {
		t.Errorf("expected 3 rounds, got %d", result.Rounds)
	}
	// Actions from completed rounds are kept.
	if len(result.Actions) != 3 || sc.Len() != 3 {
		t.Errorf("expected 3 applied actions, got %d (scene %d)", len(result.Actions), sc.Len())
	}
}

func TestRunTurn_UnknownToolBecomesErrorResult(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{ID: "tc-1", Name: "summon_dragon", Input: map[string]any{}}),
		textResponse("Sorry, I can't do that."),
	}}
	o, _ := newTestOrchestrator(t, client, Options{})

	result, err := o.RunTurn(context.Background(), "summon a dragon")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if result.Response != "Sorry, I can't do that." {
		t.Errorf("unexpected response: %q", result.Response)
	}

	results := client.seen[1][2].ToolResults
	if len(results) != 1 || !results[0].IsError {
		t.Fatalf("expected error tool result, got %+v", results)
	}
	if !strings.Contains(results[0].Content, "unknown tool") {
		t.Errorf("unexpected content: %q", results[0].Content)
	}
}

func TestRunTurn_ProviderError(t *testing.T) {
	client := &scriptedClient{err: fmt.Errorf("rate limited")}
	o, _ := newTestOrchestrator(t, client, Options{})

	if _, err := o.RunTurn(context.Background(), "hello"); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestRunTurn_ContextCancelled(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{textResponse("ok")}}
	o, _ := newTestOrchestrator(t, client, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.RunTurn(ctx, "hello"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFinishTool_FiresCallback(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{
			ID:    "tc-1",
			Name:  "finish_onboarding",
			Input: map[string]any{"roomName": "cozy-den"},
		}),
		textResponse("Enjoy your room!"),
	}}
	o, _ := newTestOrchestrator(t, client, Options{})

	var finished string
	o.SetOnFinish(func(roomName string) { finished = roomName })

	result, err := o.RunTurn(context.Background(), "we're done")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if finished != "cozy-den" {
		t.Errorf("expected finish callback with cozy-den, got %q", finished)
	}
	if len(result.Actions) != 1 || result.Actions[0].Type != action.TypeFinish {
		t.Errorf("expected finish action, got %v", result.Actions)
	}
}

func TestCreateCapability_AttachesAndSaves(t *testing.T) {
	lib := newMemLibrary()
	code := "import \"roomhost\"\n\nfunc Run(api roomhost.API) error { api.Popup(\"hi\"); return nil }"
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(
			types.ToolCall{
				ID:    "tc-1",
				Name:  "add_element",
				Input: map[string]any{"type": "symbolic-glyph", "content": "🎵"},
			},
			types.ToolCall{
				ID:   "tc-2",
				Name: "create_capability",
				Input: map[string]any{
					"target": "last", "trigger": "click",
					"code": code, "name": "greet", "description": "Pops a greeting",
				},
			},
		),
		textResponse("Done."),
	}}
	o, sc := newTestOrchestrator(t, client, Options{Library: lib})

	if _, err := o.RunTurn(context.Background(), "make it interactive"); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	caps := sc.Capabilities()
	if len(caps) != 1 || caps[0].Trigger != scene.TriggerClick {
		t.Fatalf("expected one attached click capability, got %+v", caps)
	}
	rec, ok := lib.recs["greet"]
	if !ok {
		t.Fatal("expected capability persisted in library")
	}
	if rec.Code != code || rec.Trigger != "click" || rec.Description != "Pops a greeting" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestExecuteCapability_ReattachesFromLibrary(t *testing.T) {
	lib := newMemLibrary()
	lib.recs["sparkle"] = &store.CapabilityRecord{
		ID: "cap-1", Name: "sparkle", Trigger: "hover",
		Code: "func Run(api roomhost.API) error { return nil }",
	}
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(
			types.ToolCall{
				ID:    "tc-1",
				Name:  "add_element",
				Input: map[string]any{"type": "symbolic-glyph", "content": "⭐"},
			},
			types.ToolCall{
				ID:    "tc-2",
				Name:  "execute_capability",
				Input: map[string]any{"name": "sparkle", "target": "last"},
			},
		),
		textResponse("Done."),
	}}
	o, sc := newTestOrchestrator(t, client, Options{Library: lib})

	if _, err := o.RunTurn(context.Background(), "make the star sparkle"); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	caps := sc.Capabilities()
	if len(caps) != 1 || caps[0].Trigger != scene.TriggerHover {
		t.Fatalf("expected hover capability attached, got %+v", caps)
	}
	if lib.bumps["sparkle"] != 1 {
		t.Errorf("expected usage bump, got %d", lib.bumps["sparkle"])
	}
}

func TestExecuteCapability_MissingName(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{
			ID:    "tc-1",
			Name:  "execute_capability",
			Input: map[string]any{"name": "ghost"},
		}),
		textResponse("That capability does not exist."),
	}}
	o, _ := newTestOrchestrator(t, client, Options{Library: newMemLibrary()})

	if _, err := o.RunTurn(context.Background(), "run ghost"); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	results := client.seen[1][2].ToolResults
	if len(results) != 1 || !results[0].IsError {
		t.Fatalf("expected error result for missing capability, got %+v", results)
	}
}

func TestGenerateImage_ReplacesElement(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(
			types.ToolCall{
				ID:    "tc-1",
				Name:  "add_element",
				Input: map[string]any{"type": "symbolic-glyph", "content": "🏔️"},
			},
			types.ToolCall{
				ID:    "tc-2",
				Name:  "generate_image",
				Input: map[string]any{"prompt": "a misty mountain", "target": "last"},
			},
		),
		textResponse("Swapped in a real mountain."),
	}}
	o, sc := newTestOrchestrator(t, client, Options{
		Images: &stubImages{url: "https://img.example/mountain.png"},
	})

	result, err := o.RunTurn(context.Background(), "make the mountain real")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	el := sc.Elements()[0]
	if el.Kind != scene.KindImage || el.Content != "https://img.example/mountain.png" {
		t.Errorf("expected image element, got %+v", el)
	}
	if len(sc.GeneratingIDs()) != 0 {
		t.Errorf("expected generating flags cleared, got %v", sc.GeneratingIDs())
	}
	// startGenerating then replaceWithImage, plus the add.
	if len(result.Actions) != 3 {
		t.Errorf("expected 3 actions, got %d", len(result.Actions))
	}
}

func TestGenerateImage_FailureClearsGenerating(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(
			types.ToolCall{
				ID:    "tc-1",
				Name:  "add_element",
				Input: map[string]any{"type": "symbolic-glyph", "content": "🏔️"},
			},
			types.ToolCall{
				ID:    "tc-2",
				Name:  "generate_image",
				Input: map[string]any{"prompt": "a misty mountain", "target": "last"},
			},
		),
		textResponse("Generation failed, keeping the glyph."),
	}}
	o, sc := newTestOrchestrator(t, client, Options{
		Images: &stubImages{err: fmt.Errorf("backend down")},
	})

	if _, err := o.RunTurn(context.Background(), "make the mountain real"); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if len(sc.GeneratingIDs()) != 0 {
		t.Errorf("expected generating flags cleared after failure, got %v", sc.GeneratingIDs())
	}
	el := sc.Elements()[0]
	if el.Kind == scene.KindImage {
		t.Errorf("element should not have been replaced: %+v", el)
	}
	results := client.seen[1][2].ToolResults
	if !results[1].IsError {
		t.Errorf("expected error result for failed generation, got %+v", results[1])
	}
}

func TestGenerateImage_AddsWhenNothingMatches(t *testing.T) {
	// An empty scene has nothing to replace: the generated image becomes a
	// fresh element at the requested position.
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{
			ID:   "tc-1",
			Name: "generate_image",
			Input: map[string]any{
				"prompt": "a crackling fireplace",
				"x":      float64(40), "y": float64(20), "size": float64(120),
			},
		}),
		textResponse("Placed a fireplace for you."),
	}}
	images := &stubImages{url: "https://img.example/fireplace.png"}
	o, sc := newTestOrchestrator(t, client, Options{Images: images})

	result, err := o.RunTurn(context.Background(), "add a fireplace image")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if images.calls != 1 {
		t.Errorf("expected one generator call, got %d", images.calls)
	}
	if sc.Len() != 1 {
		t.Fatalf("expected a new element on the scene, got %d", sc.Len())
	}
	el := sc.Elements()[0]
	if el.Kind != scene.KindImage || el.Content != "https://img.example/fireplace.png" {
		t.Errorf("expected image element, got %+v", el)
	}
	if el.Position.X != 40 || el.Position.Y != 20 || el.Size != 120 {
		t.Errorf("unexpected placement: %+v", el)
	}
	if len(result.Actions) != 1 || result.Actions[0].Type != action.TypeAdd {
		t.Fatalf("expected one add action, got %v", result.Actions)
	}
	results := client.seen[1][2].ToolResults
	if results[0].IsError || !strings.Contains(results[0].Content, "added generated image") {
		t.Errorf("unexpected tool result: %+v", results[0])
	}
}

func TestModifyBackgroundTool(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{
			ID:    "tc-1",
			Name:  "modify_background",
			Input: map[string]any{"type": "grid", "color": "#1e293b"},
		}),
		textResponse("Grid it is."),
	}}
	o, sc := newTestOrchestrator(t, client, Options{})

	if _, err := o.RunTurn(context.Background(), "dark grid please"); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	bg := sc.Background()
	if bg.Type != scene.BackgroundGrid || bg.Color != "#1e293b" {
		t.Errorf("unexpected background: %+v", bg)
	}
	// Untouched fields keep their defaults.
	if bg.Size != 24 {
		t.Errorf("expected size preserved, got %v", bg.Size)
	}
}

func TestModifyBackground_GeneratesImage(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{
			ID:    "tc-1",
			Name:  "modify_background",
			Input: map[string]any{"type": "image", "imagePrompt": "a pastel sunset"},
		}),
		textResponse("Sunset installed."),
	}}
	images := &stubImages{url: "https://img.example/sunset.png"}
	o, sc := newTestOrchestrator(t, client, Options{Images: images})

	result, err := o.RunTurn(context.Background(), "sunset background")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if images.calls != 1 {
		t.Errorf("expected one generator call, got %d", images.calls)
	}
	bg := sc.Background()
	if bg.Type != scene.BackgroundImage || bg.Image != "https://img.example/sunset.png" {
		t.Errorf("unexpected background: %+v", bg)
	}
	if sc.BackgroundGenerating() {
		t.Error("generating flag should be cleared after the image lands")
	}
	// The loading toggle, then the background update.
	if len(result.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(result.Actions))
	}
	first := result.Actions[0]
	if first.Type != action.TypeModifyBackground || first.ModifyBackground.Generating == nil || !*first.ModifyBackground.Generating {
		t.Errorf("expected a generating-on toggle first, got %+v", first)
	}
}

func TestModifyBackground_GenerationFailureClearsFlag(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		toolResponse(types.ToolCall{
			ID:    "tc-1",
			Name:  "modify_background",
			Input: map[string]any{"type": "image", "imagePrompt": "a pastel sunset"},
		}),
		textResponse("Could not fetch a sunset."),
	}}
	o, sc := newTestOrchestrator(t, client, Options{
		Images: &stubImages{err: fmt.Errorf("backend down")},
	})

	if _, err := o.RunTurn(context.Background(), "sunset background"); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if sc.BackgroundGenerating() {
		t.Error("generating flag should be cleared after a failure")
	}
	bg := sc.Background()
	if bg.Type == scene.BackgroundImage || bg.Image != "" {
		t.Errorf("background should be untouched on failure: %+v", bg)
	}
	results := client.seen[1][2].ToolResults
	if !results[0].IsError {
		t.Errorf("expected error result for failed generation, got %+v", results[0])
	}
}

func TestNew_NilClient(t *testing.T) {
	if _, err := New(nil, scene.NewStore(), Options{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("expected ErrNilClient, got %v", err)
	}
}
