package capability

import (
	"context"
	"errors"
	"testing"
	"time"

	"roomcraft/internal/scene"
)

func newTestExecutor(t *testing.T) (*Executor, *scene.Store) {
	t.Helper()
	store := scene.NewStore()
	store.AddElement(scene.Element{ID: "e1", Kind: scene.KindGlyph, Content: "🍄", Color: "#00ff00"})
	store.AddElement(scene.Element{ID: "e2", Kind: scene.KindText, Content: "hello"})
	return NewExecutor(store, nil, nil), store
}

func TestExecute_MutatesSceneThroughSetElements(t *testing.T) {
	exec, store := newTestExecutor(t)

	code := `
import "roomhost"

func Run(api roomhost.API) error {
	els := api.Elements
	for i := range els {
		els[i].Color = "#ff0000"
	}
	api.SetElements(els)
	return nil
}`
	err := exec.Execute(context.Background(), scene.AttachedCapability{
		ElementID: "e1", Trigger: scene.TriggerClick, Code: code,
	}, &Event{Type: "click", ElementID: "e1"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	for _, el := range store.Elements() {
		if el.Color != "#ff0000" {
			t.Errorf("element %s not recolored: %q", el.ID, el.Color)
		}
	}
}

func TestExecute_SnippetSeesOwnElementAndEvent(t *testing.T) {
	store := scene.NewStore()
	store.AddElement(scene.Element{ID: "e1", Content: "🍄"})

	var popped string
	exec := NewExecutor(store, func(msg string) { popped = msg }, nil)

	code := `
import (
	"fmt"
	"roomhost"
)

func Run(api roomhost.API) error {
	api.Popup(fmt.Sprintf("%s@%v,%v", api.Element.Content, api.Event.X, api.Event.Y))
	return nil
}`
	err := exec.Execute(context.Background(), scene.AttachedCapability{
		ElementID: "e1", Trigger: scene.TriggerClick, Code: code,
	}, &Event{Type: "click", ElementID: "e1", X: 10, Y: 20})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if popped != "🍄@10,20" {
		t.Errorf("unexpected popup: %q", popped)
	}
}

func TestExecute_ForbiddenImportRejected(t *testing.T) {
	exec, store := newTestExecutor(t)

	code := `
import (
	"os"
	"roomhost"
)

func Run(api roomhost.API) error {
	os.Remove("/etc/passwd")
	return nil
}`
	err := exec.Execute(context.Background(), scene.AttachedCapability{
		ElementID: "e1", Trigger: scene.TriggerClick, Code: code,
	}, nil)
	if !errors.Is(err, ErrForbiddenImport) {
		t.Errorf("expected ErrForbiddenImport, got %v", err)
	}
	if store.Len() != 2 {
		t.Error("scene changed despite rejected snippet")
	}
}

func TestExecute_FaultDoesNotPoisonExecutor(t *testing.T) {
	exec, _ := newTestExecutor(t)

	bad := `
import "fmt"

func Run(api roomhost.API) error {
	return fmt.Errorf("boom")
}`
	// Missing roomhost import: evaluation fails, which is an execution fault.
	if err := exec.Execute(context.Background(), scene.AttachedCapability{
		ElementID: "e1", Trigger: scene.TriggerClick, Code: bad,
	}, nil); err == nil {
		t.Fatal("expected error from bad snippet")
	}

	good := `
import "roomhost"

func Run(api roomhost.API) error {
	api.Popup("still alive")
	return nil
}`
	if err := exec.Execute(context.Background(), scene.AttachedCapability{
		ElementID: "e1", Trigger: scene.TriggerHover, Code: good,
	}, nil); err != nil {
		t.Errorf("executor poisoned by prior fault: %v", err)
	}
}

func TestExecute_ErrorReturnIsContained(t *testing.T) {
	exec, _ := newTestExecutor(t)

	code := `
import (
	"fmt"
	"roomhost"
)

func Run(api roomhost.API) error {
	return fmt.Errorf("snippet says no")
}`
	err := exec.Execute(context.Background(), scene.AttachedCapability{
		ElementID: "e1", Trigger: scene.TriggerClick, Code: code,
	}, nil)
	if err == nil {
		t.Fatal("expected the snippet error to surface for logging")
	}
}

func TestExecute_Timeout(t *testing.T) {
	exec, _ := newTestExecutor(t)
	exec.SetTimeout(100 * time.Millisecond)

	code := `
import (
	"time"
	"roomhost"
)

func Run(api roomhost.API) error {
	time.Sleep(2 * time.Second)
	return nil
}`
	err := exec.Execute(context.Background(), scene.AttachedCapability{
		ElementID: "e1", Trigger: scene.TriggerClick, Code: code,
	}, nil)
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Errorf("expected ErrExecutionTimeout, got %v", err)
	}
}

func TestExecute_MusicContextAvailable(t *testing.T) {
	exec, _ := newTestExecutor(t)

	var popped string
	exec.popup = func(msg string) { popped = msg }

	code := `
import "roomhost"

func Run(api roomhost.API) error {
	if api.Music.Connected() {
		api.Popup("track: " + api.Music.CurrentTrack())
	} else {
		api.Popup("no music")
	}
	return nil
}`
	if err := exec.Execute(context.Background(), scene.AttachedCapability{
		ElementID: "e1", Trigger: scene.TriggerClick, Code: code,
	}, nil); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if popped != "no music" {
		t.Errorf("unexpected popup: %q", popped)
	}
}

func TestTrigger_MissingCapabilityIsNoop(t *testing.T) {
	exec, _ := newTestExecutor(t)
	// Nothing attached: must not panic or error.
	exec.Trigger(context.Background(), "e1", scene.TriggerClick, nil)
}

func TestTrigger_RunsAttachedCapability(t *testing.T) {
	exec, store := newTestExecutor(t)

	var popped string
	exec.popup = func(msg string) { popped = msg }

	store.AttachCapability(scene.AttachedCapability{
		ElementID: "e1",
		Trigger:   scene.TriggerClick,
		Code: `
import "roomhost"

func Run(api roomhost.API) error {
	api.Popup("clicked")
	return nil
}`,
	})

	exec.Trigger(context.Background(), "e1", scene.TriggerClick, &Event{Type: "click"})
	if popped != "clicked" {
		t.Errorf("capability did not run: %q", popped)
	}
}
