package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

// CreateDialogueParams names the participant fields accepted per
// dialogue_type. Validation is deliberately light: the creation API is the
// sole enforcement point for the "one Dialogue per participant tuple"
// invariant, which this layer does not itself index or check beyond basic
// required-field presence.
type CreateDialogueParams struct {
	DialogueType domain.DialogueType
	HumanID      *uuid.UUID
	AIID         *uuid.UUID
	RelationID   *uuid.UUID
	Title        string
	Description  string
	Metadata     map[string]any

	// Task and Participants back the CollaborationSession row created for
	// ai_ai and ai_multi_human dialogue_types; ignored for every other type.
	Task         string
	Participants []uuid.UUID
}

// Logger exposes the Core's component logger for admin-adjacent callers
// (e.g. HTTP handlers) that want to log around a Core operation without
// constructing their own child logger.
func (c *Core) Logger() *logger.Logger { return c.deps.Log }

func (c *Core) CreateDialogue(dbc dbctx.Context, p CreateDialogueParams) (*domain.Dialogue, error) {
	if err := validateParticipants(p); err != nil {
		return nil, coreerr.Wrap(coreerr.InvalidInput, err, "invalid participants for dialogue_type")
	}
	meta := datatypes.JSON([]byte("{}"))
	if len(p.Metadata) > 0 {
		if b, err := json.Marshal(p.Metadata); err == nil {
			meta = datatypes.JSON(b)
		}
	}
	d := &domain.Dialogue{
		DialogueType: p.DialogueType,
		HumanID:      p.HumanID,
		AIID:         p.AIID,
		RelationID:   p.RelationID,
		Title:        p.Title,
		Description:  p.Description,
		IsActive:     true,
		Metadata:     meta,
	}
	d, err := c.deps.Dialogues.Create(dbc, d)
	if err != nil {
		return nil, err
	}

	if needsCollaborationSession(p.DialogueType) && len(p.Participants) > 0 && c.deps.Collab != nil {
		participantsJSON, err := json.Marshal(p.Participants)
		if err != nil {
			return d, nil
		}
		if _, err := c.deps.Collab.Create(dbc, &domain.CollaborationSession{
			DialogueID:   d.ID,
			Task:         p.Task,
			Participants: datatypes.JSON(participantsJSON),
		}); err != nil {
			c.deps.Log.Warn("failed to create collaboration session", "dialogue_id", d.ID, "error", err)
		}
	}
	return d, nil
}

// needsCollaborationSession reports whether dialogueType is backed by a
// CollaborationSession row (the participant list human_id/ai_id alone
// cannot express: multiple AIs conversing, or one AI broadcasting to many
// humans).
func needsCollaborationSession(dialogueType domain.DialogueType) bool {
	return dialogueType == domain.DialogueAIAI || dialogueType == domain.DialogueAIMultiHuman
}

func validateParticipants(p CreateDialogueParams) error {
	switch p.DialogueType {
	case domain.DialogueHumanAI, domain.DialogueHumanAIGroup:
		if p.HumanID == nil || p.AIID == nil {
			return fmt.Errorf("human_id and ai_id are required for %s", p.DialogueType)
		}
	case domain.DialogueAISelf:
		if p.AIID == nil {
			return fmt.Errorf("ai_id is required for ai_self")
		}
	case domain.DialogueAIAI, domain.DialogueAIMultiHuman:
		if p.AIID == nil {
			return fmt.Errorf("ai_id is required for %s", p.DialogueType)
		}
	case domain.DialogueHumanHumanPrivate, domain.DialogueHumanHumanGroup:
		if p.HumanID == nil {
			return fmt.Errorf("human_id is required for %s", p.DialogueType)
		}
	default:
		return fmt.Errorf("unknown dialogue_type %q", p.DialogueType)
	}
	return nil
}

// CloseDialogue marks a Dialogue inactive and closes any open Session
// (which implicitly leaves its pending Turns to be resolved by the Turn
// sweeper rather than forced closed here).
func (c *Core) CloseDialogue(dbc dbctx.Context, id uuid.UUID) error {
	dialogue, err := c.deps.Dialogues.GetByID(dbc, id)
	if err != nil {
		return coreerr.Wrap(coreerr.DialogueNotFound, err, "dialogue not found")
	}
	if !dialogue.IsActive {
		return nil
	}
	if err := c.deps.Dialogues.UpdateFields(dbc, id, map[string]interface{}{"is_active": false}); err != nil {
		return coreerr.Wrap(coreerr.StorageFailure, err, "failed to close dialogue")
	}

	sess, err := c.deps.Sessions.GetOpen(dbc, id)
	if err == nil && sess != nil {
		if err := c.deps.Sessions.Close(dbc, sess, "closed: dialogue closed"); err != nil {
			c.deps.Log.Warn("failed to close open session on dialogue close", "dialogue_id", id, "error", err)
		}
	}
	return nil
}

// RebuildDialogue recomputes last_activity_at from the surviving Message
// history and reopens the latest Turn if its recorded response was deleted
// out-of-band, restoring the invariants a direct message edit/delete can
// violate without going through processInput.
func (c *Core) RebuildDialogue(dbc dbctx.Context, id uuid.UUID) error {
	dialogue, err := c.deps.Dialogues.GetByID(dbc, id)
	if err != nil {
		return coreerr.Wrap(coreerr.DialogueNotFound, err, "dialogue not found")
	}

	latest, err := c.deps.Messages.Query(dbc, repos.MessageFilter{DialogueID: id, Page: 1, PageSize: 1})
	if err != nil {
		return coreerr.Wrap(coreerr.StorageFailure, err, "failed to query latest message")
	}
	lastActivity := dialogue.CreatedAt
	if len(latest.Items) > 0 {
		lastActivity = latest.Items[0].CreatedAt
	}
	if err := c.deps.Dialogues.UpdateFields(dbc, id, map[string]interface{}{"last_activity_at": lastActivity}); err != nil {
		return coreerr.Wrap(coreerr.StorageFailure, err, "failed to update last_activity_at")
	}

	sess, err := c.deps.Sessions.GetOpen(dbc, id)
	if err != nil || sess == nil {
		return nil
	}
	t, err := c.deps.Turns.GetLatestBySession(dbc, sess.ID)
	if err != nil || t == nil || t.Status != domain.TurnResponded {
		return nil
	}
	msgs, err := c.deps.Messages.ListByTurn(dbc, t.ID)
	if err != nil {
		return coreerr.Wrap(coreerr.StorageFailure, err, "failed to list turn messages")
	}
	for _, m := range msgs {
		if m.SenderRole == t.ResponderRole {
			return nil
		}
	}
	return c.deps.Turns.ReopenPending(dbc, dialogue, t)
}
