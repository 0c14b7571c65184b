package api

import (
	"context"
	"errors"
	"time"

	"github.com/example/chat-relay/modules/chat"
	"github.com/gofiber/contrib/websocket"
)

const writeWait = 10 * time.Second

// handleWebSocket handles WebSocket connections at /ws.
//
// One goroutine reads frames into the session; another drains the
// session's outbound channel onto the socket. The session is closed when
// the read side ends, which in turn ends the writer.
func (m *Module) handleWebSocket(c *websocket.Conn) {
	ctx := context.Background()
	session := m.relay.Connect()

	if name := c.Query("username"); name != "" {
		_ = session.Handle(ctx, chat.SetNameEvent{Username: name})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.writeLoop(c, session)
	}()
	defer func() {
		session.Close(ctx)
		<-done
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("Client closed connection", "clientID", session.ID())
			} else {
				m.logger.Debug("WebSocket read ended", "clientID", session.ID(), "error", err)
			}
			return
		}

		if err := session.HandleFrame(ctx, raw); errors.Is(err, chat.ErrSessionClosed) {
			return
		}
	}
}

// writeLoop writes outbound frames until the session's channel is closed.
func (m *Module) writeLoop(c *websocket.Conn, session *chat.Session) {
	for frame := range session.Outbound() {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
			m.logger.Debug("WebSocket write failed", "clientID", session.ID(), "error", err)
			// Unblocks the reader, which closes the session.
			_ = c.Close()
			return
		}
	}

	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.Close()
}
