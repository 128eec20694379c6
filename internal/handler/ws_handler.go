package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/novapush/dispatcher/internal/broadcast"
	"go.uber.org/zap"
)

// RegisterStreamRoutes exposes the delivery update stream. Each connected
// client gets every sent/failed/delivered transition as a JSON frame.
func RegisterStreamRoutes(router fiber.Router, hub *broadcast.Hub, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		updates, unsubscribe := hub.Subscribe()
		defer unsubscribe()

		// Drain inbound frames so close messages are processed; clients
		// are not expected to send anything.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case delivery, ok := <-updates:
				if !ok {
					return
				}
				if err := conn.WriteJSON(delivery); err != nil {
					logger.Debug("stream write failed, dropping client", zap.Error(err))
					return
				}
			}
		}
	}))
}
