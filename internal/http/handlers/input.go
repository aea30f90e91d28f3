package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/http/response"
	"github.com/threadline/dialoguecore/internal/orchestrator"
	"github.com/threadline/dialoguecore/internal/parser"
)

type InputHandler struct {
	core *orchestrator.Core
}

func NewInputHandler(core *orchestrator.Core) *InputHandler {
	return &InputHandler{core: core}
}

type inputRequest struct {
	DialogueID  uuid.UUID         `json:"dialogue_id" binding:"required"`
	SenderRole  domain.Role       `json:"sender_role" binding:"required"`
	SenderID    uuid.UUID         `json:"sender_id"`
	Content     string            `json:"content"`
	ContentType domain.ContentType `json:"content_type" binding:"required"`
	Metadata    map[string]any    `json:"metadata"`
}

type inputResponse struct {
	MessageID   uuid.UUID          `json:"message_id"`
	Status      domain.MessageStatus `json:"status"`
	Content     string             `json:"content"`
	ContentType domain.ContentType `json:"content_type"`
}

// Handle serves POST /api/input.
func (h *InputHandler) Handle(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}

	result, err := h.core.ProcessInput(c.Request.Context(), parser.Envelope{
		DialogueID:  req.DialogueID,
		SenderRole:  req.SenderRole,
		SenderID:    req.SenderID,
		Content:     req.Content,
		ContentType: req.ContentType,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondCoreErr(c, err)
		return
	}

	response.RespondOK(c, inputResponse{
		MessageID:   result.Message.ID,
		Status:      result.Message.Status,
		Content:     result.Message.Content,
		ContentType: result.Message.ContentType,
	})
}
