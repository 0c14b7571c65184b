package api

import (
	"strconv"

	"github.com/example/chat-relay/modules/store"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// setupRoutes configures all HTTP routes.
func (m *Module) setupRoutes(app *fiber.App) {
	// Health check
	app.Get("/health", m.healthHandler)

	if m.metricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.metricsHandler))
	}

	// WebSocket endpoint
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket))

	// Message history, under both the legacy and the short paths
	for _, prefix := range []string{"/api/chat", "/messages"} {
		app.Get(prefix, m.getHistory)
		app.Get(prefix+"/:room", m.getHistory)
	}

	// Live room directory
	api := app.Group("/api")
	api.Get("/rooms", m.listRooms)
	api.Get("/rooms/:room/members", m.getMembers)
}

// healthHandler handles GET /health.
func (m *Module) healthHandler(c *fiber.Ctx) error {
	stats := m.relay.Hub().Stats()
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": stats.Clients,
			"active_rooms":      stats.Rooms,
		},
	})
}

// getHistory handles GET /api/chat[/:room] and GET /messages[/:room].
func (m *Module) getHistory(c *fiber.Ctx) error {
	room := c.Params("room")

	limit := 0
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > store.MaxHistoryLimit {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "validation_error",
				Message: "limit must be between 1 and " + strconv.Itoa(store.MaxHistoryLimit),
			})
		}
		limit = parsed
	}

	messages, err := m.history.History(c.UserContext(), room, limit)
	if err != nil {
		m.logger.Error("Failed to load history", "room", room, "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "history_unavailable",
			Message: "Failed to load messages",
		})
	}

	return c.JSON(messages)
}

// listRooms handles GET /api/rooms.
func (m *Module) listRooms(c *fiber.Ctx) error {
	hub := m.relay.Hub()
	rooms := hub.Rooms()

	response := RoomListResponse{
		Rooms: make([]RoomResponse, 0, len(rooms)),
	}
	for _, room := range rooms {
		response.Rooms = append(response.Rooms, RoomResponse{
			Name:    room,
			Members: hub.RoomClientCount(room),
		})
	}

	return c.JSON(response)
}

// getMembers handles GET /api/rooms/:room/members.
func (m *Module) getMembers(c *fiber.Ctx) error {
	room := c.Params("room")
	return c.JSON(MembersResponse{
		Room:    room,
		Members: m.relay.Hub().MembersOf(room),
	})
}
