package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/http/response"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/tools"
)

type ToolsHandler struct {
	registry *tools.Registry
	invoker  *tools.Invoker
	db       *gorm.DB
}

func NewToolsHandler(registry *tools.Registry, invoker *tools.Invoker, db *gorm.DB) *ToolsHandler {
	return &ToolsHandler{registry: registry, invoker: invoker, db: db}
}

type toolDescriptor struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Category         string                `json:"category"`
	ParameterSchema  tools.ParameterSchema `json:"parameter_schema"`
}

// List serves GET /api/tools.
func (h *ToolsHandler) List(c *gin.Context) {
	registered := h.registry.List()
	out := make([]toolDescriptor, 0, len(registered))
	for _, t := range registered {
		out = append(out, toolDescriptor{ID: t.ID(), Name: t.Name(), Category: t.Category(), ParameterSchema: t.ParameterSchema()})
	}
	response.RespondOK(c, out)
}

// Categories serves GET /api/tools/categories.
func (h *ToolsHandler) Categories(c *gin.Context) {
	response.RespondOK(c, h.registry.Categories())
}

type invokeToolRequest struct {
	ToolID     string         `json:"tool_id" binding:"required"`
	DialogueID uuid.UUID      `json:"dialogue_id"`
	TurnID     uuid.UUID      `json:"turn_id"`
	Parameters map[string]any `json:"parameters"`
}

// Invoke serves POST /api/tools: an ad-hoc invocation surface (an
// administrative/testing entry point, not part of the Turn-bound tool
// loop). When dialogue_id/turn_id are omitted, synthetic ids scope the
// invocation lock and ToolCall record to this one request only.
func (h *ToolsHandler) Invoke(c *gin.Context) {
	var req invokeToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	dialogueID, turnID := req.DialogueID, req.TurnID
	if dialogueID == uuid.Nil {
		dialogueID = uuid.New()
	}
	if turnID == uuid.Nil {
		turnID = uuid.New()
	}
	dbc := dbctx.Context{Ctx: c.Request.Context(), Tx: h.db}
	result, err := h.invoker.Invoke(c.Request.Context(), dbc, tools.Invocation{
		DialogueID: dialogueID,
		TurnID:     turnID,
		ToolID:     req.ToolID,
		Parameters: req.Parameters,
	})
	if err != nil {
		respondCoreErr(c, err)
		return
	}
	response.RespondOK(c, result)
}
