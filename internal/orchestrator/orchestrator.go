// Package orchestrator runs the bounded tool-calling loop that turns a user
// utterance into an ordered list of applied scene actions. The model drives:
// each round it either answers in text (ending the turn) or requests tool
// calls, whose results are fed back for the next round.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"roomcraft/internal/action"
	"roomcraft/internal/capability"
	"roomcraft/internal/integrations"
	"roomcraft/internal/logging"
	"roomcraft/internal/scene"
	"roomcraft/internal/store"
	"roomcraft/internal/tools"
	"roomcraft/internal/types"
)

// DefaultMaxRounds bounds provider round-trips per turn.
const DefaultMaxRounds = 8

// CapabilityLibrary is the persistence surface the orchestrator needs for
// named, reusable capabilities. *store.Store satisfies it.
type CapabilityLibrary interface {
	SaveCapability(rec *store.CapabilityRecord) error
	GetCapability(name string) (*store.CapabilityRecord, error)
	BumpUsage(name string) error
}

// TurnResult is everything one orchestration turn produced.
type TurnResult struct {
	// Response is the model's final text for the user. Empty when the turn
	// ended at the round limit mid-tool-chain.
	Response string

	// Actions lists every scene action applied during the turn, in order.
	Actions []action.Action

	// Rounds is the number of provider round-trips consumed.
	Rounds int

	// Usage aggregates token usage across all rounds.
	Usage types.UsageMetadata
}

// Orchestrator owns one scene's tool loop: the provider client, the tool
// registry, the action applier, and the collaborators the tools reach into.
// Turns are serialized; concurrent RunTurn calls queue on an internal mutex.
type Orchestrator struct {
	client   types.LLMClient
	registry *tools.Registry
	scene    *scene.Store
	applier  *action.Applier
	executor *capability.Executor
	library  CapabilityLibrary
	images   integrations.ImageGenerator

	systemPrompt string
	maxRounds    int

	turnMu   sync.Mutex
	pending  []action.Action
	onFinish func(roomName string)
}

// Options configures optional collaborators.
type Options struct {
	// Executor validates capability code at creation time and runs snippets
	// on demand. Nil disables capability tools' validation pass.
	Executor *capability.Executor

	// Library persists named capabilities. Nil means capabilities live only
	// in the scene.
	Library CapabilityLibrary

	// Images generates raster content. Nil makes generate_image report that
	// generation is not configured.
	Images integrations.ImageGenerator

	// MaxRounds overrides DefaultMaxRounds when positive.
	MaxRounds int

	// SystemPrompt overrides the built-in scene-agent prompt.
	SystemPrompt string
}

// New creates an orchestrator bound to one scene store.
func New(client types.LLMClient, sc *scene.Store, opts Options) (*Orchestrator, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	o := &Orchestrator{
		client:       client,
		registry:     tools.NewRegistry(),
		scene:        sc,
		applier:      action.NewApplier(sc),
		executor:     opts.Executor,
		library:      opts.Library,
		images:       opts.Images,
		systemPrompt: opts.SystemPrompt,
		maxRounds:    maxRounds,
	}
	o.applier.SetOnFinish(func(roomName string) {
		if o.onFinish != nil {
			o.onFinish(roomName)
		}
	})
	o.registerTools()
	return o, nil
}

// SetOnFinish installs the callback fired when the model declares the room
// complete. The callback receives the chosen room name.
func (o *Orchestrator) SetOnFinish(fn func(roomName string)) {
	o.onFinish = fn
}

// Registry exposes the tool registry, mainly for introspection endpoints.
func (o *Orchestrator) Registry() *tools.Registry {
	return o.registry
}

// RunTurn sends the user's message through the tool loop and returns the
// applied actions plus the model's closing text. On hitting the round budget
// the partial result is returned together with ErrRoundLimit.
func (o *Orchestrator) RunTurn(ctx context.Context, userText string) (*TurnResult, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	timer := logging.StartTimer(logging.CategoryOrchestrator, "turn")
	defer timer.Stop()

	o.pending = nil

	defs := o.registry.Definitions()
	messages := []types.Message{{Role: "user", Text: userText}}
	result := &TurnResult{}

	for round := 0; round < o.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := o.client.CompleteWithTools(ctx, o.buildSystemPrompt(), messages, defs)
		if err != nil {
			return nil, fmt.Errorf("provider round %d: %w", round+1, err)
		}

		result.Rounds = round + 1
		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens
		result.Usage.TotalTokens += resp.Usage.TotalTokens
		if resp.Text != "" {
			result.Response = resp.Text
		}

		if len(resp.ToolCalls) == 0 {
			result.Actions = o.pending
			logging.Orchestrator("turn complete: %d rounds, %d actions", result.Rounds, len(result.Actions))
			return result, nil
		}

		messages = append(messages, types.Message{
			Role:      "assistant",
			Text:      resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		results := make([]types.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			content, isErr := o.executeTool(ctx, call)
			results = append(results, types.ToolResult{
				ToolUseID: call.ID,
				Name:      call.Name,
				Content:   content,
				IsError:   isErr,
			})
		}
		messages = append(messages, types.Message{Role: "user", ToolResults: results})
	}

	result.Actions = o.pending
	logging.OrchestratorWarn("turn hit round limit: %d rounds, %d actions applied", o.maxRounds, len(result.Actions))
	return result, fmt.Errorf("%w (%d rounds)", ErrRoundLimit, o.maxRounds)
}

// executeTool runs a single requested tool. Failures become textual error
// results for the model; they never abort the turn.
func (o *Orchestrator) executeTool(ctx context.Context, call types.ToolCall) (string, bool) {
	tool := o.registry.Get(call.Name)
	if tool == nil {
		logging.OrchestratorWarn("model requested unknown tool %q", call.Name)
		return fmt.Sprintf("unknown tool: %s", call.Name), true
	}

	args := call.Input
	if args == nil {
		args = map[string]any{}
	}

	content, err := tool.Execute(ctx, args)
	if err != nil {
		logging.OrchestratorWarn("tool %s failed: %v", call.Name, err)
		return fmt.Sprintf("tool %s failed: %v", call.Name, err), true
	}
	logging.OrchestratorDebug("tool %s ok: %s", call.Name, content)
	return content, false
}

// emit applies a decoded action to the scene and records it in the turn's
// action list.
func (o *Orchestrator) emit(act action.Action) {
	o.applier.Apply(act)
	o.pending = append(o.pending, act)
}

// buildSystemPrompt appends a compact scene inventory to the base prompt so
// the model can target existing elements by content.
func (o *Orchestrator) buildSystemPrompt() string {
	var b strings.Builder
	if o.systemPrompt != "" {
		b.WriteString(o.systemPrompt)
	} else {
		b.WriteString("You are the roomcraft scene agent. Translate the user's request into tool calls that mutate the canvas. Prefer small, precise edits; use distinctive content strings when targeting elements.")
	}

	elements := o.scene.Elements()
	b.WriteString("\n\nCurrent scene (")
	fmt.Fprintf(&b, "%d elements):", len(elements))
	if len(elements) == 0 {
		b.WriteString(" empty canvas")
	}
	for _, el := range elements {
		fmt.Fprintf(&b, "\n- %s %q at (%.0f, %.0f)", el.Kind, el.Content, el.Position.X, el.Position.Y)
	}
	bg := o.scene.Background()
	fmt.Fprintf(&b, "\nBackground: %s %s", bg.Type, bg.Color)
	return b.String()
}
