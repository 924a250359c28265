package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/pysuper/titan/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Viewers connect from arbitrary origins
	},
}

func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	sess := session.New(conn, s.registry, s.router, s.sessionOptions())
	s.registry.Register(sess)
	sess.Start()

	// Read pump, blocks until the connection closes or the session is
	// evicted out from under it.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		sess.Receive(data)
	}

	sess.Close()

	return nil
}
