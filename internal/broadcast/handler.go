package broadcast

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/frauddetect/fraud-engine/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboard origin checks are handled by the CORS middleware
		return true
	},
}

// ServeWS upgrades a request to a websocket connection and registers
// it with the hub. Works with or without an authenticated user.
func ServeWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}

		var userID string
		if id, ok := auth.GetUserIDFromContext(c); ok {
			userID = id.String()
		}

		client := NewClient(hub, conn, userID)
		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
