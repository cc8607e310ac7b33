package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConn adapts one websocket to a hub conn. Unlike SSE there is no framing:
// each event goes out as a single text message.
type wsConn struct {
	sendQueue
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{
		sendQueue: newSendQueue(),
		conn:      conn,
	}
	go c.writePump()
	return c
}

func (c *wsConn) writePump() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		// The bridge is origin-open, same as its CORS policy.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newWSConn(conn)
	if err := s.hub.Register(c); err != nil {
		c.Close()
		return
	}

	s.logger.Debug("observer connected",
		zap.String("remote", r.RemoteAddr),
		zap.String("transport", "websocket"))

	// Observers only listen; the read loop just detects disconnect.
	go func() {
		defer func() {
			s.hub.Deregister(c)
			c.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
