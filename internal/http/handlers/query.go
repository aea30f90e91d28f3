package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/http/response"
	"github.com/threadline/dialoguecore/internal/orchestrator"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
)

// QueryHandler serves the unified GET /api/query/{entity} surface.
type QueryHandler struct {
	dialogues repos.DialogueRepo
	sessions  repos.SessionRepo
	turns     repos.TurnRepo
	messages  repos.MessageRepo
	core      *orchestrator.Core
	db        *gorm.DB
}

func NewQueryHandler(dialogues repos.DialogueRepo, sessions repos.SessionRepo, turns repos.TurnRepo, messages repos.MessageRepo, core *orchestrator.Core, db *gorm.DB) *QueryHandler {
	return &QueryHandler{dialogues: dialogues, sessions: sessions, turns: turns, messages: messages, core: core, db: db}
}

func (h *QueryHandler) dbc(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context(), Tx: h.db}
}

func sinceUntil(c *gin.Context) (*time.Time, *time.Time) {
	var since, until *time.Time
	if raw := c.Query("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = &t
		}
	}
	if raw := c.Query("until"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			until = &t
		}
	}
	return since, until
}

func queryUUID(c *gin.Context, key string) uuid.UUID {
	id, _ := uuid.Parse(c.Query(key))
	return id
}

// Dialogues serves GET /api/query/dialogues.
func (h *QueryHandler) Dialogues(c *gin.Context) {
	since, until := sinceUntil(c)
	f := repos.DialogueFilter{
		DialogueType: domain.DialogueType(c.Query("dialogue_type")),
		Query:        c.Query("query"),
		Since:        since,
		Until:        until,
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "page_size", 20),
	}
	page, err := h.dialogues.Query(h.dbc(c), f)
	if err != nil {
		respondCoreErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

// Sessions serves GET /api/query/sessions.
func (h *QueryHandler) Sessions(c *gin.Context) {
	since, until := sinceUntil(c)
	f := repos.SessionFilter{
		DialogueID: queryUUID(c, "dialogue_id"),
		Since:      since,
		Until:      until,
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 20),
	}
	page, err := h.sessions.Query(h.dbc(c), f)
	if err != nil {
		respondCoreErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

// Turns serves GET /api/query/turns.
func (h *QueryHandler) Turns(c *gin.Context) {
	since, until := sinceUntil(c)
	f := repos.TurnFilter{
		DialogueID: queryUUID(c, "dialogue_id"),
		SessionID:  queryUUID(c, "session_id"),
		Status:     domain.TurnStatus(c.Query("status")),
		Since:      since,
		Until:      until,
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 20),
	}
	page, err := h.turns.Query(h.dbc(c), f)
	if err != nil {
		respondCoreErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

// Messages serves GET /api/query/messages.
func (h *QueryHandler) Messages(c *gin.Context) {
	since, until := sinceUntil(c)
	f := repos.MessageFilter{
		DialogueID:  queryUUID(c, "dialogue_id"),
		SessionID:   queryUUID(c, "session_id"),
		TurnID:      queryUUID(c, "turn_id"),
		SenderRole:  domain.Role(c.Query("sender_role")),
		ContentType: domain.ContentType(c.Query("content_type")),
		Since:       since,
		Until:       until,
		Query:       c.Query("query"),
		Page:        queryInt(c, "page", 1),
		PageSize:    queryInt(c, "page_size", 20),
	}
	page, err := h.messages.Query(h.dbc(c), f)
	if err != nil {
		respondCoreErr(c, err)
		return
	}
	response.RespondOK(c, page)
}

type updateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// UpdateMessage serves PATCH /api/query/messages/{id}: an out-of-band edit
// of a Message's content, followed by a synchronous Dialogue rebuild since
// no background job system is in scope to do it asynchronously.
func (h *QueryHandler) UpdateMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	var req updateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	dbc := h.dbc(c)
	msg, err := h.messages.GetByID(dbc, id)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, coreerr.NotFound, err)
		return
	}
	if err := h.messages.UpdateFields(dbc, id, map[string]interface{}{"content": req.Content}); err != nil {
		respondCoreErr(c, err)
		return
	}
	if err := h.core.RebuildDialogue(dbc, msg.DialogueID); err != nil {
		h.core.Logger().Warn("dialogue rebuild after message edit failed", "dialogue_id", msg.DialogueID, "error", err)
	}
	c.Status(http.StatusNoContent)
}

// DeleteMessage serves DELETE /api/query/messages/{id} (soft-delete),
// followed by the same synchronous rebuild as UpdateMessage.
func (h *QueryHandler) DeleteMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, coreerr.InvalidInput, err)
		return
	}
	dbc := h.dbc(c)
	msg, err := h.messages.GetByID(dbc, id)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, coreerr.NotFound, err)
		return
	}
	if err := h.messages.SoftDelete(dbc, id); err != nil {
		respondCoreErr(c, err)
		return
	}
	if err := h.core.RebuildDialogue(dbc, msg.DialogueID); err != nil {
		h.core.Logger().Warn("dialogue rebuild after message delete failed", "dialogue_id", msg.DialogueID, "error", err)
	}
	c.Status(http.StatusNoContent)
}
