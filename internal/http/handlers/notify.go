package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/http/response"
	"github.com/threadline/dialoguecore/internal/notify"
)

type NotifyHandler struct {
	hub *notify.Hub
}

func NewNotifyHandler(hub *notify.Hub) *NotifyHandler {
	return &NotifyHandler{hub: hub}
}

type notifyRequest struct {
	ParticipantID uuid.UUID      `json:"participant_id" binding:"required"`
	Data          map[string]any `json:"data"`
}

func (h *NotifyHandler) publish(eventType notify.EventType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
			return
		}
		h.hub.Publish(req.ParticipantID, notify.Frame{
			Type:      eventType,
			Data:      req.Data,
			Timestamp: time.Now().UTC(),
		})
		c.Status(http.StatusAccepted)
	}
}

// Message serves POST /api/notify/message.
func (h *NotifyHandler) Message(c *gin.Context) { h.publish(notify.EventMessage)(c) }

// DialogueUpdate serves POST /api/notify/dialogue_update.
func (h *NotifyHandler) DialogueUpdate(c *gin.Context) { h.publish(notify.EventDialogueUpdate)(c) }

// StreamResponse serves POST /api/notify/stream_response.
func (h *NotifyHandler) StreamResponse(c *gin.Context) { h.publish(notify.EventStreamChunk)(c) }
