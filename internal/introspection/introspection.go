// Package introspection implements IntrospectionEngine: the multi-step
// self-reflection sub-pipeline that drives a self_reflection Session within
// an ai_self Dialogue, composing tool calls into a reflection transcript.
package introspection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
	"github.com/threadline/dialoguecore/internal/session"
	"github.com/threadline/dialoguecore/internal/tools"
	"github.com/threadline/dialoguecore/internal/turn"
)

// Step is one planned unit of work the engine executes in order.
type Step struct {
	Purpose string
	// ToolID is optional: a step may be pure reflection with no tool call.
	ToolID     string
	Parameters map[string]any
}

type Engine struct {
	introspection repos.IntrospectionRepo
	messages      repos.MessageRepo
	sessions      *session.Manager
	turns         *turn.Manager
	toolInv       *tools.Invoker
	log           *logger.Logger
}

func New(
	introspection repos.IntrospectionRepo,
	messages repos.MessageRepo,
	sessions *session.Manager,
	turns *turn.Manager,
	toolInv *tools.Invoker,
	log *logger.Logger,
) *Engine {
	return &Engine{
		introspection: introspection,
		messages:      messages,
		sessions:      sessions,
		turns:         turns,
		toolInv:       toolInv,
		log:           log.With("component", "IntrospectionEngine"),
	}
}

// Run drives goal through steps sequentially within dialogue's
// self_reflection Session, then composes a final summary Turn. A step
// failure marks it failed and execution continues with the next step; no
// rollback is performed.
func (e *Engine) Run(ctx context.Context, dbc dbctx.Context, dialogue *domain.Dialogue, aiID uuid.UUID, goal string, steps []Step) (*domain.IntrospectionSession, error) {
	sess, err := e.sessions.EnsureActiveSession(dbc, dialogue)
	if err != nil {
		return nil, fmt.Errorf("ensure self_reflection session: %w", err)
	}

	introspectionSession, err := e.introspection.CreateSession(dbc, &domain.IntrospectionSession{
		DialogueID: dialogue.ID,
		SessionID:  sess.ID,
		Goal:       goal,
	})
	if err != nil {
		return nil, fmt.Errorf("create introspection session: %w", err)
	}

	for i, step := range steps {
		e.runStep(ctx, dbc, dialogue, sess, introspectionSession, i, step)
	}

	summaryTurn, err := e.summarize(dbc, dialogue, sess, introspectionSession, aiID)
	if err != nil {
		e.log.Warn("failed to compose introspection summary turn", "introspection_session_id", introspectionSession.ID, "error", err)
	} else {
		if updateErr := e.introspection.UpdateSessionFields(dbc, introspectionSession.ID, map[string]interface{}{"summary_turn_id": summaryTurn.ID}); updateErr != nil {
			e.log.Warn("failed to persist introspection summary turn reference", "introspection_session_id", introspectionSession.ID, "error", updateErr)
		} else {
			introspectionSession.SummaryTurnID = &summaryTurn.ID
		}
	}

	return introspectionSession, nil
}

func (e *Engine) runStep(ctx context.Context, dbc dbctx.Context, dialogue *domain.Dialogue, sess *domain.Session, introspectionSession *domain.IntrospectionSession, ordinal int, step Step) {
	record := &domain.IntrospectionStep{
		IntrospectionSessionID: introspectionSession.ID,
		Ordinal:                ordinal,
		Purpose:                step.Purpose,
		Status:                 domain.IntrospectionStepOK,
	}

	if step.ToolID != "" {
		record.ToolUsed = step.ToolID
		if b, err := json.Marshal(step.Parameters); err == nil {
			record.ToolInput = datatypes.JSON(b)
		}

		selfTurn, err := e.turns.OpenTurn(dbc, dialogue, sess, domain.RoleAI, domain.RoleAI)
		if err != nil {
			e.log.Warn("failed to open self-reflection turn for step", "ordinal", ordinal, "error", err)
			record.Status = domain.IntrospectionStepFailed
			record.GeneratedEntry = err.Error()
			_, _ = e.introspection.AppendStep(dbc, record)
			return
		}

		result, toolErr := e.toolInv.Invoke(ctx, dbc, tools.Invocation{
			DialogueID: dialogue.ID,
			TurnID:     selfTurn.ID,
			ToolID:     step.ToolID,
			Parameters: step.Parameters,
		})
		if toolErr != nil {
			record.Status = domain.IntrospectionStepFailed
			record.GeneratedEntry = toolErr.Error()
		} else {
			if b, err := json.Marshal(result.Output); err == nil {
				record.ToolOutput = datatypes.JSON(b)
			}
			record.GeneratedEntry = fmt.Sprintf("reflected on %s using %s", step.Purpose, step.ToolID)
		}
	} else {
		record.GeneratedEntry = fmt.Sprintf("reflected on %s", step.Purpose)
	}

	if _, err := e.introspection.AppendStep(dbc, record); err != nil {
		e.log.Warn("failed to persist introspection step", "ordinal", ordinal, "error", err)
	}
}

// summarize composes a final Turn aggregating the reflection transcript as
// a single ai-authored Message.
func (e *Engine) summarize(dbc dbctx.Context, dialogue *domain.Dialogue, sess *domain.Session, introspectionSession *domain.IntrospectionSession, aiID uuid.UUID) (*domain.Turn, error) {
	stepRecords, err := e.introspection.ListSteps(dbc, introspectionSession.ID)
	if err != nil {
		return nil, err
	}

	summaryTurn, err := e.turns.OpenTurn(dbc, dialogue, sess, domain.RoleAI, domain.RoleAI)
	if err != nil {
		return nil, err
	}

	var summary string
	for _, s := range stepRecords {
		summary += fmt.Sprintf("- [%s] %s: %s\n", s.Status, s.Purpose, s.GeneratedEntry)
	}
	if summary == "" {
		summary = "no reflection steps executed"
	}

	msg := &domain.Message{
		DialogueID:  dialogue.ID,
		SessionID:   sess.ID,
		TurnID:      summaryTurn.ID,
		SenderRole:  domain.RoleAI,
		SenderID:    aiID,
		Content:     summary,
		ContentType: domain.ContentText,
		Status:      domain.MessageDone,
	}
	if _, err := e.messages.Create(dbc, msg); err != nil {
		return nil, err
	}
	if err := e.turns.AttachResponse(dbc, summaryTurn, msg); err != nil {
		e.log.Warn("failed to attach introspection summary response", "turn_id", summaryTurn.ID, "error", err)
	}
	return summaryTurn, nil
}
