// Package server exposes the session over HTTP for the rendering surface:
// turns in, scene state out, plus the event and drag paths capabilities hang
// off of.
package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"roomcraft/internal/logging"
	"roomcraft/internal/session"
	"roomcraft/internal/store"
)

// CapabilityLister exposes the capability library for the introspection
// endpoint. *store.Store satisfies it.
type CapabilityLister interface {
	ListCapabilities() ([]*store.CapabilityRecord, error)
}

// RoomLister exposes saved room names. *store.Store satisfies it.
type RoomLister interface {
	ListRooms() ([]string, error)
}

// Server is the HTTP gateway around one session.
type Server struct {
	app     *fiber.App
	session *session.Session
	caps    CapabilityLister
	rooms   RoomLister
	version string
}

// Options configures optional collaborators.
type Options struct {
	Capabilities CapabilityLister
	Rooms        RoomLister
	Version      string
}

// New builds the gateway and mounts all routes.
func New(sess *session.Session, opts Options) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		AppName:      "roomcraft",
	})
	app.Use(recover.New())

	s := &Server{
		app:     app,
		session: sess,
		caps:    opts.Capabilities,
		rooms:   opts.Rooms,
		version: opts.Version,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)

	api := s.app.Group("/api")
	api.Post("/turn", s.handleTurn)
	api.Get("/scene", s.handleScene)
	api.Post("/event", s.handleEvent)
	api.Post("/move", s.handleMove)
	api.Post("/reset", s.handleReset)
	api.Get("/capabilities", s.handleCapabilities)
	api.Get("/rooms", s.handleRooms)
	api.Post("/rooms/load", s.handleLoadRoom)
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	logging.Server("listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": s.version,
	})
}

type turnRequest struct {
	Message string `json:"message"`
}

type turnResponse struct {
	Response string          `json:"response"`
	Actions  json.RawMessage `json:"actions"`
	Rounds   int             `json:"rounds"`
	RoomName string          `json:"roomName"`
	Finished bool            `json:"finished"`
}

func (s *Server) handleTurn(c fiber.Ctx) error {
	var req turnRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message is required"})
	}

	result, err := s.session.HandleTurn(c.Context(), req.Message)
	if err != nil && result == nil {
		logging.APIError("turn failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	// A round-limited turn still returns its applied actions; the client sees
	// the partial progress plus a truncation marker.
	resp := turnResponse{
		Response: result.Response,
		Rounds:   result.Rounds,
		RoomName: s.session.RoomName(),
		Finished: s.session.Finished(),
	}
	if actions, mErr := json.Marshal(result.Actions); mErr == nil {
		resp.Actions = actions
	} else {
		resp.Actions = json.RawMessage("[]")
	}
	if err != nil {
		logging.API("turn truncated: %v", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"response":  resp.Response,
			"actions":   resp.Actions,
			"rounds":    resp.Rounds,
			"roomName":  resp.RoomName,
			"finished":  resp.Finished,
			"truncated": true,
		})
	}
	return c.JSON(resp)
}

func (s *Server) handleScene(c fiber.Ctx) error {
	sc := s.session.Scene()
	return c.JSON(fiber.Map{
		"elements":             sc.Elements(),
		"background":           sc.Background(),
		"generating":           sc.GeneratingIDs(),
		"backgroundGenerating": sc.BackgroundGenerating(),
		"roomName":             s.session.RoomName(),
		"finished":             s.session.Finished(),
	})
}

func (s *Server) handleEvent(c fiber.Ctx) error {
	var ev session.Event
	if err := json.Unmarshal(c.Body(), &ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if ev.ElementID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "elementId is required"})
	}
	s.session.DispatchEvent(c.Context(), ev)
	return c.SendStatus(fiber.StatusNoContent)
}

type moveRequest struct {
	ElementID string  `json:"elementId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

func (s *Server) handleMove(c fiber.Ctx) error {
	var req moveRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if !s.session.MoveElement(c.Context(), req.ElementID, req.X, req.Y) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "element not found"})
	}
	el, _ := s.session.Scene().Element(req.ElementID)
	return c.JSON(fiber.Map{"position": el.Position})
}

func (s *Server) handleReset(c fiber.Ctx) error {
	s.session.Reset()
	return c.SendStatus(fiber.StatusNoContent)
}

type capabilityPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Trigger     string `json:"trigger"`
	UsageCount  int    `json:"usageCount"`
}

func (s *Server) handleCapabilities(c fiber.Ctx) error {
	if s.caps == nil {
		return c.JSON(fiber.Map{"capabilities": []capabilityPayload{}})
	}
	recs, err := s.caps.ListCapabilities()
	if err != nil {
		logging.APIError("list capabilities failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list capabilities"})
	}
	out := make([]capabilityPayload, 0, len(recs))
	for _, rec := range recs {
		out = append(out, capabilityPayload{
			Name:        rec.Name,
			Description: rec.Description,
			Trigger:     rec.Trigger,
			UsageCount:  rec.UsageCount,
		})
	}
	return c.JSON(fiber.Map{"capabilities": out})
}

func (s *Server) handleRooms(c fiber.Ctx) error {
	if s.rooms == nil {
		return c.JSON(fiber.Map{"rooms": []string{}})
	}
	names, err := s.rooms.ListRooms()
	if err != nil {
		logging.APIError("list rooms failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list rooms"})
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(fiber.Map{"rooms": names})
}

type loadRoomRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleLoadRoom(c fiber.Ctx) error {
	var req loadRoomRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if err := s.session.LoadRoom(req.Name); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
