package server

import (
	"errors"

	"huddle/internal/middleware"
	"huddle/internal/relay"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RelayUpgrade rejects plain HTTP requests to the relay endpoint.
func (s *Server) RelayUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// RelayHandler serves the realtime relay. Anonymous connections are accepted
// unless AUTH_REQUIRED is set; their user id is 0.
// @Summary Realtime relay
// @Description WebSocket endpoint. Frames are {"event","data"} with events joinChat, sendMessage, typing and receiveMessage.
// @Tags relay
// @Param token query string false "Bearer token"
// @Success 101
// @Failure 426 {object} models.ErrorResponse
// @Router /ws [get]
func (s *Server) RelayHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		var userID uint
		if v, ok := conn.Locals("userID").(uint); ok {
			userID = v
		}

		client, err := s.hub.Register(conn, userID)
		if err != nil {
			if errors.Is(err, relay.ErrTooManyConnections) {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"too many connections"}`))
			}
			_ = conn.Close()
			return
		}

		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		go client.WritePump()
		client.ReadPump()
		client.Wait()
	})
}
