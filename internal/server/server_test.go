package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"roomcraft/internal/orchestrator"
	"roomcraft/internal/scene"
	"roomcraft/internal/session"
	"roomcraft/internal/store"
	"roomcraft/internal/types"
)

type scriptedClient struct {
	responses []*types.LLMToolResponse
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", nil
}

func (c *scriptedClient) CompleteWithTools(ctx context.Context, systemPrompt string, messages []types.Message, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	idx := c.calls
	c.calls++
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

func newTestServer(t *testing.T, client types.LLMClient) (*Server, *scene.Store, *store.Store) {
	t.Helper()

	db, err := store.NewStore(filepath.Join(t.TempDir(), "roomcraft.db"))
	if err != nil {
		t.Fatalf("store.NewStore failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sc := scene.NewStore()
	orch, err := orchestrator.New(client, sc, orchestrator.Options{Library: db})
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}
	sess, err := session.New(session.Config{
		Scene:        sc,
		Orchestrator: orch,
		Persist:      db,
	})
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}
	t.Cleanup(sess.Close)

	srv := New(sess, Options{
		Capabilities: db,
		Rooms:        db,
		Version:      "test",
	})
	return srv, sc, db
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp.Body.Close()
	return resp, data
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedClient{responses: []*types.LLMToolResponse{{Text: "ok"}}})

	resp, body := doJSON(t, srv, "GET", "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload["status"] != "ok" || payload["version"] != "test" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestTurn_AddsElement(t *testing.T) {
	client := &scriptedClient{responses: []*types.LLMToolResponse{
		{StopReason: "tool_use", ToolCalls: []types.ToolCall{{
			ID:    "tc-1",
			Name:  "add_element",
			Input: map[string]any{"type": "symbolic-glyph", "content": "🪴", "x": float64(20), "y": float64(10)},
		}}},
		{Text: "Planted.", StopReason: "end_turn"},
	}}
	srv, sc, _ := newTestServer(t, client)

	resp, body := doJSON(t, srv, "POST", "/api/turn", map[string]string{"message": "add a plant"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Response string            `json:"response"`
		Actions  []json.RawMessage `json:"actions"`
		Rounds   int               `json:"rounds"`
		RoomName string            `json:"roomName"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.Response != "Planted." || payload.Rounds != 2 || len(payload.Actions) != 1 {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if sc.Len() != 1 {
		t.Errorf("expected element in scene, got %d", sc.Len())
	}
}

func TestTurn_BadRequests(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedClient{responses: []*types.LLMToolResponse{{Text: "ok"}}})

	req := httptest.NewRequest("POST", "/api/turn", bytes.NewReader([]byte("{not json")))
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad JSON, got %d", resp.StatusCode)
	}

	resp2, _ := doJSON(t, srv, "POST", "/api/turn", map[string]string{"message": ""})
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty message, got %d", resp2.StatusCode)
	}
}

func TestScene_Snapshot(t *testing.T) {
	srv, sc, _ := newTestServer(t, &scriptedClient{responses: []*types.LLMToolResponse{{Text: "ok"}}})

	sc.AddElement(scene.Element{ID: "e1", Kind: scene.KindGlyph, Content: "🎈"})
	sc.MarkGenerating("e1")

	resp, body := doJSON(t, srv, "GET", "/api/scene", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Elements   []scene.Element  `json:"elements"`
		Background scene.Background `json:"background"`
		Generating []string         `json:"generating"`
		RoomName   string           `json:"roomName"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(payload.Elements) != 1 || payload.Elements[0].Content != "🎈" {
		t.Errorf("unexpected elements: %+v", payload.Elements)
	}
	if len(payload.Generating) != 1 || payload.Generating[0] != "e1" {
		t.Errorf("unexpected generating set: %v", payload.Generating)
	}
	if payload.Background.Type != scene.BackgroundDots {
		t.Errorf("unexpected background: %+v", payload.Background)
	}
	if payload.RoomName != "untitled" {
		t.Errorf("unexpected room name: %q", payload.RoomName)
	}
}

func TestMove_Clamps(t *testing.T) {
	srv, sc, _ := newTestServer(t, &scriptedClient{responses: []*types.LLMToolResponse{{Text: "ok"}}})
	sc.AddElement(scene.Element{ID: "e1", Kind: scene.KindGlyph, Content: "🛏️"})

	resp, body := doJSON(t, srv, "POST", "/api/move", map[string]any{"elementId": "e1", "x": 200.0, "y": -5.0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Position scene.Position `json:"position"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.Position.X != 100 || payload.Position.Y != 0 {
		t.Errorf("expected clamped (100, 0), got %+v", payload.Position)
	}

	resp2, _ := doJSON(t, srv, "POST", "/api/move", map[string]any{"elementId": "ghost", "x": 1.0, "y": 1.0})
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for missing element, got %d", resp2.StatusCode)
	}
}

func TestEvent_NoCapabilityIsNoOp(t *testing.T) {
	srv, sc, _ := newTestServer(t, &scriptedClient{responses: []*types.LLMToolResponse{{Text: "ok"}}})
	sc.AddElement(scene.Element{ID: "e1", Kind: scene.KindGlyph, Content: "🔇"})

	resp, _ := doJSON(t, srv, "POST", "/api/event", session.Event{Type: "click", ElementID: "e1"})
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}

	resp2, _ := doJSON(t, srv, "POST", "/api/event", session.Event{Type: "click"})
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing elementId, got %d", resp2.StatusCode)
	}
}

func TestCapabilities_ListsLibrary(t *testing.T) {
	srv, _, db := newTestServer(t, &scriptedClient{responses: []*types.LLMToolResponse{{Text: "ok"}}})

	err := db.SaveCapability(&store.CapabilityRecord{
		ID: "cap-1", Name: "sparkle", Description: "sparkles", Trigger: "click", Code: "x",
	})
	if err != nil {
		t.Fatalf("SaveCapability failed: %v", err)
	}

	resp, body := doJSON(t, srv, "GET", "/api/capabilities", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Capabilities []capabilityPayload `json:"capabilities"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(payload.Capabilities) != 1 || payload.Capabilities[0].Name != "sparkle" {
		t.Errorf("unexpected capabilities: %+v", payload.Capabilities)
	}
}

func TestRooms_SaveAndLoad(t *testing.T) {
	srv, sc, db := newTestServer(t, &scriptedClient{responses: []*types.LLMToolResponse{{Text: "ok"}}})

	snap := scene.Snapshot{
		Elements:   []scene.Element{{ID: "e1", Kind: scene.KindGlyph, Content: "🗝️"}},
		Background: scene.DefaultBackground(),
	}
	data, err := scene.MarshalSnapshot(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if err := db.SaveRoom("attic", data); err != nil {
		t.Fatalf("SaveRoom failed: %v", err)
	}

	resp, body := doJSON(t, srv, "GET", "/api/rooms", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rooms struct {
		Rooms []string `json:"rooms"`
	}
	if err := json.Unmarshal(body, &rooms); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(rooms.Rooms) != 1 || rooms.Rooms[0] != "attic" {
		t.Errorf("unexpected rooms: %v", rooms.Rooms)
	}

	resp2, _ := doJSON(t, srv, "POST", "/api/rooms/load", map[string]string{"name": "attic"})
	if resp2.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp2.StatusCode)
	}
	if sc.Len() != 1 {
		t.Errorf("expected loaded scene, got %d elements", sc.Len())
	}

	resp3, _ := doJSON(t, srv, "POST", "/api/rooms/load", map[string]string{"name": "ghost"})
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for missing room, got %d", resp3.StatusCode)
	}
}

func TestReset_ClearsScene(t *testing.T) {
	srv, sc, _ := newTestServer(t, &scriptedClient{responses: []*types.LLMToolResponse{{Text: "ok"}}})
	sc.AddElement(scene.Element{ID: "e1", Kind: scene.KindGlyph, Content: "🧹"})

	resp, _ := doJSON(t, srv, "POST", "/api/reset", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if sc.Len() != 0 {
		t.Errorf("expected empty scene after reset, got %d", sc.Len())
	}
}
