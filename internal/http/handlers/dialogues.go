package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/http/response"
	"github.com/threadline/dialoguecore/internal/orchestrator"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"gorm.io/gorm"
)

type DialogueHandler struct {
	core      *orchestrator.Core
	dialogues repos.DialogueRepo
	db        *gorm.DB
}

func NewDialogueHandler(core *orchestrator.Core, dialogues repos.DialogueRepo, db *gorm.DB) *DialogueHandler {
	return &DialogueHandler{core: core, dialogues: dialogues, db: db}
}

type createDialogueRequest struct {
	DialogueType domain.DialogueType `json:"dialogue_type"`
	HumanID      *uuid.UUID          `json:"human_id"`
	AIID         *uuid.UUID          `json:"ai_id"`
	RelationID   *uuid.UUID          `json:"relation_id"`
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Metadata     map[string]any      `json:"metadata"`

	// Task and Participants back the CollaborationSession created for
	// ai_ai and ai_multi_human dialogue_types.
	Task         string      `json:"task"`
	Participants []uuid.UUID `json:"participants"`
}

// CreateGeneric serves POST /api/dialogues/new, reading dialogue_type from
// the request body.
func (h *DialogueHandler) CreateGeneric(c *gin.Context) {
	var req createDialogueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	h.create(c, req)
}

// CreateTyped builds a handler bound to a fixed dialogue_type for the
// per-type creator endpoints (/api/dialogues/human_ai, etc).
func (h *DialogueHandler) CreateTyped(dialogueType domain.DialogueType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createDialogueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
			return
		}
		req.DialogueType = dialogueType
		h.create(c, req)
	}
}

func (h *DialogueHandler) create(c *gin.Context, req createDialogueRequest) {
	dbc := dbctx.Context{Ctx: c.Request.Context(), Tx: h.db}
	d, err := h.core.CreateDialogue(dbc, orchestrator.CreateDialogueParams{
		DialogueType: req.DialogueType,
		HumanID:      req.HumanID,
		AIID:         req.AIID,
		RelationID:   req.RelationID,
		Title:        req.Title,
		Description:  req.Description,
		Metadata:     req.Metadata,
		Task:         req.Task,
		Participants: req.Participants,
	})
	if err != nil {
		respondCoreErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// List serves GET /api/dialogues with optional filters.
func (h *DialogueHandler) List(c *gin.Context) {
	f := repos.DialogueFilter{
		DialogueType: domain.DialogueType(c.Query("dialogue_type")),
		Query:        c.Query("query"),
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "page_size", 20),
	}
	if raw := c.Query("human_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			f.HumanID = &id
		}
	}
	if raw := c.Query("ai_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			f.AIID = &id
		}
	}
	if raw := c.Query("is_active"); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			f.IsActive = &b
		}
	}
	dbc := dbctx.Context{Ctx: c.Request.Context(), Tx: h.db}
	page, err := h.dialogues.Query(dbc, f)
	if err != nil {
		respondCoreErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

// Get serves GET /api/dialogues/{id}.
func (h *DialogueHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context(), Tx: h.db}
	d, err := h.dialogues.GetByID(dbc, id)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, coreerr.DialogueNotFound, err)
		return
	}
	response.RespondOK(c, d)
}

// Close serves POST /api/dialogues/{id}/close.
func (h *DialogueHandler) Close(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context(), Tx: h.db}
	if err := h.core.CloseDialogue(dbc, id); err != nil {
		respondCoreErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
