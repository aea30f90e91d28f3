package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/http/response"
	"github.com/threadline/dialoguecore/internal/introspection"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
)

// IntrospectionHandler drives ad-hoc self-reflection runs over an existing
// ai_self Dialogue. The pipeline's HTTP surface has no literal endpoint for
// this (introspection is normally AI-initiated), but the described "start
// ai_self with goal=..." scenario needs a caller-facing trigger, so this
// endpoint is the administrative entry point for it.
type IntrospectionHandler struct {
	engine    *introspection.Engine
	dialogues repos.DialogueRepo
	db        *gorm.DB
}

func NewIntrospectionHandler(engine *introspection.Engine, dialogues repos.DialogueRepo, db *gorm.DB) *IntrospectionHandler {
	return &IntrospectionHandler{engine: engine, dialogues: dialogues, db: db}
}

type introspectionStepRequest struct {
	Purpose    string         `json:"purpose" binding:"required"`
	ToolID     string         `json:"tool_id"`
	Parameters map[string]any `json:"parameters"`
}

type runIntrospectionRequest struct {
	AIID  uuid.UUID                   `json:"ai_id" binding:"required"`
	Goal  string                      `json:"goal" binding:"required"`
	Steps []introspectionStepRequest `json:"steps"`
}

// Run serves POST /api/dialogues/{id}/introspect.
func (h *IntrospectionHandler) Run(c *gin.Context) {
	dialogueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	var req runIntrospectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context(), Tx: h.db}
	dialogue, err := h.dialogues.GetByID(dbc, dialogueID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, coreerr.DialogueNotFound, err)
		return
	}

	steps := make([]introspection.Step, 0, len(req.Steps))
	for _, s := range req.Steps {
		steps = append(steps, introspection.Step{Purpose: s.Purpose, ToolID: s.ToolID, Parameters: s.Parameters})
	}

	result, err := h.engine.Run(c.Request.Context(), dbc, dialogue, req.AIID, req.Goal, steps)
	if err != nil {
		respondCoreErr(c, err)
		return
	}
	response.RespondOK(c, result)
}
