package capability

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"roomcraft/internal/logging"
	"roomcraft/internal/scene"
)

// Executor runs attached capability snippets through the yaegi interpreter.
//
// Instead of trusting a restricted-execution-context convention, the sandbox
// denies everything by construction: only whitelisted stdlib imports are
// allowed, the snippet's entry point receives the host API value and nothing
// else, and every execution runs under a timeout with panics recovered.
// Execution failures are caught and logged, never propagated: a broken
// snippet must not take the surface down, and the scene is left however the
// partially-run snippet left it via SetElements.
type Executor struct {
	store   *scene.Store
	popup   func(message string)
	music   MusicContext
	timeout time.Duration

	// Whitelist of allowed stdlib packages
	allowedPackages map[string]bool
}

// NewExecutor creates an executor bound to a scene store. popup may be nil
// (messages are dropped); music may be nil (NopMusic is used).
func NewExecutor(store *scene.Store, popup func(string), music MusicContext) *Executor {
	if popup == nil {
		popup = func(string) {}
	}
	if music == nil {
		music = NopMusic{}
	}
	return &Executor{
		store:   store,
		popup:   popup,
		music:   music,
		timeout: 3 * time.Second,
		allowedPackages: map[string]bool{
			"strings":       true,
			"strconv":       true,
			"fmt":           true,
			"math":          true,
			"math/rand":     true,
			"time":          true,
			"sort":          true,
			"encoding/json": true,

			// EXPLICITLY BLOCKED (unsafe packages):
			// "os" - filesystem access
			// "os/exec" - command execution
			// "net", "net/http" - network access
			// "syscall", "unsafe" - system access

			// The host surface, exported by the executor itself.
			"roomhost": true,
		},
	}
}

// SetTimeout overrides the per-execution time budget.
func (e *Executor) SetTimeout(d time.Duration) {
	e.timeout = d
}

// ValidateCode checks a snippet without running it: imports must be on the
// whitelist and the code must compile to a Run function of the right shape.
// Used at capability creation time so the model gets immediate feedback.
func (e *Executor) ValidateCode(code string) error {
	if err := e.validateImports(code); err != nil {
		return err
	}
	_, err := e.compile(code)
	return err
}

// Trigger looks up the capability attached to (elementID, trigger) and, if
// one exists, executes it. Missing capabilities and execution failures are
// both non-events for the caller: the executor logs and moves on.
func (e *Executor) Trigger(ctx context.Context, elementID string, trigger scene.Trigger, event *Event) {
	cap, ok := e.store.LookupCapability(elementID, trigger)
	if !ok {
		return
	}
	if err := e.Execute(ctx, cap, event); err != nil {
		logging.CapabilityError("execution failed element=%s trigger=%s: %v", elementID, trigger, err)
	}
}

// Execute runs one capability snippet inside the sandbox. The returned error
// is for logging only; callers must not treat it as fatal.
func (e *Executor) Execute(ctx context.Context, cap scene.AttachedCapability, event *Event) error {
	timer := logging.StartTimer(logging.CategoryCapability, fmt.Sprintf("execute %s/%s", cap.ElementID, cap.Trigger))
	defer timer.StopWithThreshold(500 * time.Millisecond)

	if err := e.validateImports(cap.Code); err != nil {
		return err
	}

	run, err := e.compile(cap.Code)
	if err != nil {
		return err
	}

	api := e.buildAPI(cap.ElementID, event)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	errChan := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("capability panicked: %v", r)
			}
		}()
		errChan <- run(api)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("capability returned error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrExecutionTimeout, ctx.Err())
	}
}

// compile evaluates the snippet in a fresh interpreter and returns its Run
// function. A fresh interpreter per execution keeps snippets from leaking
// state into each other.
func (e *Executor) compile(code string) (func(API) error, error) {
	i := interp.New(interp.Options{})

	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if err := i.Use(hostSymbols()); err != nil {
		return nil, fmt.Errorf("failed to load host symbols: %w", err)
	}

	if _, err := i.Eval(wrapCode(code)); err != nil {
		return nil, fmt.Errorf("code evaluation failed: %w", err)
	}

	v, err := i.Eval("main.Run")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRunFunction, err)
	}

	run, ok := v.Interface().(func(API) error)
	if !ok {
		return nil, fmt.Errorf("%w: Run has wrong signature (want func(roomhost.API) error)", ErrNoRunFunction)
	}
	return run, nil
}

// hostSymbols exports the host surface under the import path "roomhost".
// This is the complete set of bindings a snippet can reach.
func hostSymbols() interp.Exports {
	return interp.Exports{
		"roomhost/roomhost": {
			"API":          reflect.ValueOf((*API)(nil)),
			"Event":        reflect.ValueOf((*Event)(nil)),
			"MusicContext": reflect.ValueOf((*MusicContext)(nil)),
			"Element":      reflect.ValueOf((*scene.Element)(nil)),
			"Position":     reflect.ValueOf((*scene.Position)(nil)),
		},
	}
}

func (e *Executor) buildAPI(elementID string, event *Event) API {
	el, _ := e.store.Element(elementID)
	return API{
		Element:     el,
		Elements:    e.store.Elements(),
		SetElements: e.store.SetElements,
		Event:       event,
		Popup:       e.popup,
		Music:       e.music,
	}
}

// validateImports checks that the code only imports allowed packages.
func (e *Executor) validateImports(code string) error {
	lines := strings.Split(code, "\n")
	var imports []string

	inImportBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "import (") {
			inImportBlock = true
			continue
		}
		if inImportBlock && strings.HasPrefix(trimmed, ")") {
			inImportBlock = false
			continue
		}

		if inImportBlock {
			pkg := strings.Trim(trimmed, `"`)
			if pkg != "" {
				imports = append(imports, pkg)
			}
		} else if strings.HasPrefix(trimmed, "import ") {
			pkg := strings.TrimPrefix(trimmed, "import ")
			pkg = strings.Trim(pkg, `"`)
			imports = append(imports, pkg)
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if !e.allowedPackages[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}

	if len(forbidden) > 0 {
		return fmt.Errorf("%w: %v", ErrForbiddenImport, forbidden)
	}
	return nil
}

// wrapCode wraps the snippet in a main package if needed.
func wrapCode(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}
