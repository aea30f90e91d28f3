package notify

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS implements GET /ws?user_id=...&token=.... The token is not
// verified: the router installs no auth middleware ahead of this handler,
// and this layer only resolves the participant id to register against.
func (h *Hub) ServeWS(c *gin.Context) {
	userIDRaw := c.Query("user_id")
	userID, err := uuid.Parse(userIDRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be a valid id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.Register(userID, conn)
}
