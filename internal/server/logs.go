package server

import (
	"net/http"

	wslog "relaygate/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var logsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamLogs upgrades an authenticated admin connection to a WebSocket and
// attaches it to the process-wide log broadcaster, giving operators a live
// tail of structured log output without shelling into the host.
func StreamLogs(c *gin.Context) {
	conn, err := logsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	wsl := wslog.GetWSLogger()
	if err := wsl.AddClient(conn); err != nil {
		conn.Close()
	}
}
