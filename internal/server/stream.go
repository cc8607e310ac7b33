package server

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// sseConn adapts one server-sent-events response into a hub conn. The
// request handler itself is the pump: it drains the queue and writes frames
// until the peer goes away or the hub closes the conn.
type sseConn struct {
	sendQueue
}

func newSSEConn() *sseConn {
	return &sseConn{sendQueue: newSendQueue()}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	c := newSSEConn()
	if err := s.hub.Register(c); err != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		s.hub.Deregister(c)
		c.Close()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Initial blank line commits the stream to the client.
	fmt.Fprint(w, "\n")
	flusher.Flush()

	s.logger.Debug("observer connected",
		zap.String("remote", r.RemoteAddr),
		zap.String("transport", "sse"))

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
