package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// subscribedMsg is the first frame every subscriber receives, confirming
// which recording session the connection is attached to.
type subscribedMsg struct {
	SessionID  string `json:"session_id"`
	Subscribed bool   `json:"subscribed"`
}

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:sessionID", websocket.New(watchSession(hub)))
}

// watchSession streams a recording session's ingested location points to the
// subscriber, one JSON text frame per point in upload order. Subscribers are
// not expected to send data; the read loop only drains control frames until
// the peer disconnects.
func watchSession(hub *Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		sessionID := c.Params("sessionID")
		client := hub.Register(sessionID)

		if err := c.WriteJSON(subscribedMsg{SessionID: sessionID, Subscribed: true}); err != nil {
			hub.Unregister(client)
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}

		// unregister first: it closes Send, which lets the writer drain
		// and exit even when the peer vanished without a write error
		hub.Unregister(client)
		<-done
	}
}
