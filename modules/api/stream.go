package api

import (
	"encoding/json"

	domain "github.com/example/task-tracker/domain/user"
	"github.com/example/task-tracker/modules/activity"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// ActivityStream pushes an owner's new activity entries. *activity.ActivityModule implements it.
type ActivityStream interface {
	Subscribe(ownerID string) (<-chan activity.Entry, func())
}

// StreamMessage is one frame sent on the activity socket.
type StreamMessage struct {
	Type  string          `json:"type"`
	Entry *activity.Entry `json:"entry,omitempty"`
}

// tokenFromQuery lets browsers, which cannot set headers on a WebSocket
// handshake, pass the bearer token as ?token=.
func tokenFromQuery(c *fiber.Ctx) error {
	if c.Get(fiber.HeaderAuthorization) == "" {
		if token := c.Query("token"); token != "" {
			c.Request().Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		}
	}
	return c.Next()
}

// requireUpgrade rejects plain HTTP requests to a WebSocket route.
func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// StreamActivity sends a "ready" frame and then one "activity" frame per new
// entry until the client goes away.
func (h *Handlers) StreamActivity(conn *websocket.Conn) {
	claims, ok := conn.Locals(UserContextKey).(*domain.Claims)
	if !ok || h.stream == nil {
		_ = conn.WriteJSON(StreamMessage{Type: "error"})
		_ = conn.Close()
		return
	}

	entries, stop := h.stream.Subscribe(claims.UserID)
	defer stop()
	defer conn.Close()

	// The client sends nothing; reading only detects when it disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(StreamMessage{Type: "ready"}); err != nil {
		return
	}
	h.logger.Debug("Activity stream opened", "owner", claims.UserID)

	for {
		select {
		case <-gone:
			h.logger.Debug("Activity stream closed", "owner", claims.UserID)
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			data, err := json.Marshal(StreamMessage{Type: "activity", Entry: &entry})
			if err != nil {
				h.logger.Error("Failed to encode activity entry", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
