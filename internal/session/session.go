// Package session wires one user's canvas together: the scene store, the
// orchestration loop, the capability sandbox, and persistence. A session is
// the unit the HTTP gateway and the CLI both drive.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roomcraft/internal/capability"
	"roomcraft/internal/logging"
	"roomcraft/internal/orchestrator"
	"roomcraft/internal/scene"
	"roomcraft/internal/store"
)

// Event mirrors the capability host event: what the user did on the surface.
type Event struct {
	Type      string  `json:"type"` // click, hover, drag
	ElementID string  `json:"elementId"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Phase     string  `json:"phase,omitempty"` // drag: start, move, end
}

// Persister is the slice of the store a session needs. *store.Store
// satisfies it.
type Persister interface {
	SaveRoom(name string, scene []byte) error
	LoadRoom(name string) (*store.RoomRecord, error)
}

// Session owns one live canvas.
type Session struct {
	scene    *scene.Store
	orch     *orchestrator.Orchestrator
	executor *capability.Executor
	persist  Persister
	saver    *store.DebouncedSaver

	mu       sync.Mutex
	roomName string
	finished bool

	intervalEvery   time.Duration
	stopInterval    chan struct{}
	intervalDone    chan struct{}
	intervalOnce    sync.Once
	intervalStarted bool
}

// Config collects session collaborators. Scene and Orchestrator are
// required; the rest degrade to no-ops when nil.
type Config struct {
	Scene        *scene.Store
	Orchestrator *orchestrator.Orchestrator
	Executor     *capability.Executor
	Persist      Persister
	SaveDebounce time.Duration

	// IntervalEvery is the cadence for interval-triggered capabilities.
	// Zero means the default of 5s.
	IntervalEvery time.Duration
}

// New creates a session. The default room name is "untitled" until the model
// finishes onboarding with a chosen name.
func New(cfg Config) (*Session, error) {
	if cfg.Scene == nil || cfg.Orchestrator == nil {
		return nil, fmt.Errorf("session requires a scene store and an orchestrator")
	}
	every := cfg.IntervalEvery
	if every <= 0 {
		every = 5 * time.Second
	}

	s := &Session{
		scene:         cfg.Scene,
		orch:          cfg.Orchestrator,
		executor:      cfg.Executor,
		persist:       cfg.Persist,
		roomName:      "untitled",
		intervalEvery: every,
		stopInterval:  make(chan struct{}),
		intervalDone:  make(chan struct{}),
	}

	if cfg.Persist != nil {
		s.saver = store.NewDebouncedSaver(cfg.SaveDebounce, s.saveNow)
		cfg.Scene.SetOnChange(s.saver.Notify)
	}

	cfg.Orchestrator.SetOnFinish(s.onFinish)
	return s, nil
}

// Scene exposes the underlying scene store.
func (s *Session) Scene() *scene.Store {
	return s.scene
}

// RoomName returns the current room name.
func (s *Session) RoomName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomName
}

// Finished reports whether the model has declared the room complete.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// HandleTurn runs one orchestration turn, then fires load triggers for any
// capability-bearing elements the turn added.
func (s *Session) HandleTurn(ctx context.Context, userText string) (*orchestrator.TurnResult, error) {
	before := capabilitySet(s.scene.Capabilities())

	result, err := s.orch.RunTurn(ctx, userText)
	if result != nil {
		logging.Session("turn: %d rounds, %d actions, room=%s", result.Rounds, len(result.Actions), s.RoomName())
	}

	// Load triggers fire once, when the capability first lands on the scene.
	if s.executor != nil {
		for _, cap := range s.scene.Capabilities() {
			if cap.Trigger != scene.TriggerLoad {
				continue
			}
			if before[capKey(cap)] {
				continue
			}
			s.executor.Trigger(ctx, cap.ElementID, scene.TriggerLoad, &capability.Event{
				Type:      "load",
				ElementID: cap.ElementID,
			})
		}
	}

	return result, err
}

// DispatchEvent routes a surface event (click, hover, drag) to the
// capability attached for it, if any. Unknown events are silent no-ops.
func (s *Session) DispatchEvent(ctx context.Context, ev Event) {
	if s.executor == nil {
		return
	}
	trigger := scene.Trigger(ev.Type)
	if !scene.ValidTrigger(trigger) {
		logging.SessionWarn("ignoring event with unknown type %q", ev.Type)
		return
	}
	s.executor.Trigger(ctx, ev.ElementID, trigger, &capability.Event{
		Type:      ev.Type,
		ElementID: ev.ElementID,
		X:         ev.X,
		Y:         ev.Y,
		Phase:     ev.Phase,
	})
}

// MoveElement is the drag path: clamp-move the element, then fire the drag
// trigger with the end phase.
func (s *Session) MoveElement(ctx context.Context, id string, x, y float64) bool {
	if !s.scene.MoveElement(id, x, y) {
		return false
	}
	if s.executor != nil {
		s.executor.Trigger(ctx, id, scene.TriggerDrag, &capability.Event{
			Type:      "drag",
			ElementID: id,
			X:         x,
			Y:         y,
			Phase:     "end",
		})
	}
	return true
}

// StartIntervals launches the ticker that fires interval-triggered
// capabilities. Call StopIntervals (or cancel ctx) to stop it.
func (s *Session) StartIntervals(ctx context.Context) {
	s.mu.Lock()
	if s.intervalStarted {
		s.mu.Unlock()
		return
	}
	s.intervalStarted = true
	s.mu.Unlock()

	go func() {
		defer close(s.intervalDone)
		ticker := time.NewTicker(s.intervalEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopInterval:
				return
			case <-ticker.C:
				s.fireIntervals(ctx)
			}
		}
	}()
}

// StopIntervals stops the interval ticker and waits for it to exit.
func (s *Session) StopIntervals() {
	s.mu.Lock()
	started := s.intervalStarted
	s.mu.Unlock()
	if !started {
		return
	}
	s.intervalOnce.Do(func() {
		close(s.stopInterval)
	})
	<-s.intervalDone
}

func (s *Session) fireIntervals(ctx context.Context) {
	if s.executor == nil {
		return
	}
	for _, cap := range s.scene.Capabilities() {
		if cap.Trigger != scene.TriggerInterval {
			continue
		}
		s.executor.Trigger(ctx, cap.ElementID, scene.TriggerInterval, &capability.Event{
			Type:      "interval",
			ElementID: cap.ElementID,
		})
	}
}

// Reset clears the scene, including attached capabilities.
func (s *Session) Reset() {
	s.scene.Reset()
	s.mu.Lock()
	s.roomName = "untitled"
	s.finished = false
	s.mu.Unlock()
	logging.Session("scene reset")
}

// LoadRoom replaces the live scene with a persisted snapshot.
func (s *Session) LoadRoom(name string) error {
	if s.persist == nil {
		return fmt.Errorf("persistence not configured")
	}
	rec, err := s.persist.LoadRoom(name)
	if err != nil {
		return err
	}
	snap, err := scene.UnmarshalSnapshot(rec.Scene)
	if err != nil {
		return fmt.Errorf("corrupt room snapshot %q: %w", name, err)
	}
	s.scene.Restore(snap)
	s.mu.Lock()
	s.roomName = name
	s.mu.Unlock()
	logging.Session("loaded room %q (%d elements)", name, len(snap.Elements))
	return nil
}

// SaveNow forces an immediate save, bypassing the debounce.
func (s *Session) SaveNow() error {
	return s.saveNow()
}

// Close flushes pending saves and stops background work.
func (s *Session) Close() {
	if s.saver != nil {
		s.saver.Close()
	}
}

func (s *Session) saveNow() error {
	if s.persist == nil {
		return nil
	}
	data, err := scene.MarshalSnapshot(s.scene.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal scene: %w", err)
	}
	return s.persist.SaveRoom(s.RoomName(), data)
}

func (s *Session) onFinish(roomName string) {
	s.mu.Lock()
	s.roomName = roomName
	s.finished = true
	s.mu.Unlock()

	if err := s.saveNow(); err != nil {
		logging.SessionWarn("finish save failed for %q: %v", roomName, err)
		return
	}
	logging.Session("room finished and saved as %q", roomName)
}

func capKey(c scene.AttachedCapability) string {
	return c.ElementID + "/" + string(c.Trigger)
}

func capabilitySet(caps []scene.AttachedCapability) map[string]bool {
	set := make(map[string]bool, len(caps))
	for _, c := range caps {
		set[capKey(c)] = true
	}
	return set
}
