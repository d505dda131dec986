package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ndelin/parley/internal/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from the local UI; same-origin checks are
	// the reverse proxy's job in deployment.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// handleChatWS upgrades to a websocket and serves chat turns over it.
// Each JSON frame from the client is one agent.Request; each reply
// frame is the agent.Result. Turns on one connection run sequentially.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("remote", conn.RemoteAddr().String())
	logger.Info("websocket client connected")

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Pings keep idle connections alive through proxies.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var req agent.Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", "error", err)
			} else {
				logger.Info("websocket client disconnected")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if req.Text == "" {
			result := agent.Result{Status: agent.StatusError, Error: "text is required"}
			if err := writeWSResult(conn, result); err != nil {
				return
			}
			continue
		}

		result := s.chatter.Handle(r.Context(), req)
		if err := writeWSResult(conn, result); err != nil {
			logger.Warn("websocket write failed", "error", err)
			return
		}
	}
}

func writeWSResult(conn *websocket.Conn, result agent.Result) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(result)
}
