// Package orchestrator implements DialogueCore: the pipeline engine that
// routes an inbound envelope through parsing, Turn/Session bookkeeping,
// context assembly, the LLM/tool round-trip loop, response mixing,
// persistence, and notification fan-out.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/ctxbuild"
	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/llm"
	"github.com/threadline/dialoguecore/internal/mixer"
	"github.com/threadline/dialoguecore/internal/notify"
	"github.com/threadline/dialoguecore/internal/parser"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
	"github.com/threadline/dialoguecore/internal/platform/tracing"
	"github.com/threadline/dialoguecore/internal/session"
	"github.com/threadline/dialoguecore/internal/tools"
	"github.com/threadline/dialoguecore/internal/turn"
)

const MaxToolLoopDepth = 4

// Deps bundles every collaborator DialogueCore drives.
type Deps struct {
	DB *gorm.DB

	Dialogues repos.DialogueRepo
	Messages  repos.MessageRepo
	Events    repos.EventLogRepo
	Collab    repos.CollaborationRepo

	Parser   *parser.Parser
	Sessions *session.Manager
	Turns    *turn.Manager
	Context  *ctxbuild.Builder
	LLM      llm.Client
	ToolInv  *tools.Invoker
	Mixer    *mixer.Mixer
	Hub      *notify.Hub

	Personas []ctxbuild.Persona

	Log *logger.Logger

	// PipelineDeadline bounds one processInput call end-to-end. Zero means
	// no deadline is applied, which is what every existing test relies on.
	PipelineDeadline time.Duration
}

// Core is the orchestrator. One Core instance serves every Dialogue; a
// per-Dialogue mutex gives processInput its required at-most-one-task
// guarantee without serializing unrelated Dialogues.
type Core struct {
	deps Deps

	mu     sync.Mutex
	guards map[uuid.UUID]*sync.Mutex
}

func New(deps Deps) *Core {
	return &Core{deps: deps, guards: make(map[uuid.UUID]*sync.Mutex)}
}

func (c *Core) guardFor(id uuid.UUID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guards[id]
	if !ok {
		g = &sync.Mutex{}
		c.guards[id] = g
	}
	return g
}

// AssistantResult is processInput's return value.
type AssistantResult struct {
	DialogueID uuid.UUID
	SessionID  uuid.UUID
	TurnID     uuid.UUID
	Message    *domain.Message
}

// ProcessInput drives one inbound envelope through the full pipeline.
func (c *Core) ProcessInput(ctx context.Context, env parser.Envelope) (AssistantResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "DialogueCore.ProcessInput")
	defer span.End()
	span.SetAttributes(
		attribute.String("dialogue_id", env.DialogueID.String()),
		attribute.String("content_type", string(env.ContentType)),
	)

	if c.deps.PipelineDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.deps.PipelineDeadline)
		defer cancel()
	}

	result, err := c.processInput(ctx, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (c *Core) processInput(ctx context.Context, env parser.Envelope) (AssistantResult, error) {
	guard := c.guardFor(env.DialogueID)
	guard.Lock()
	defer guard.Unlock()

	dbc := dbctx.Context{Ctx: ctx, Tx: c.deps.DB}

	if _, err := c.deps.Turns.Sweep(dbc); err != nil {
		c.deps.Log.Warn("lazy turn sweep failed", "error", err)
	}

	dialogue, err := c.deps.Dialogues.GetByID(dbc, env.DialogueID)
	if err != nil {
		return AssistantResult{}, coreerr.Wrap(coreerr.DialogueNotFound, err, "dialogue not found")
	}
	if !dialogue.IsActive {
		return AssistantResult{}, coreerr.New(coreerr.DialogueClosed, "dialogue is closed")
	}

	if key := idempotencyKey(env.Metadata); key != "" {
		existing, err := c.deps.Messages.FindByIdempotencyKey(dbc, dialogue.ID, env.SenderID, key)
		if err != nil {
			return AssistantResult{}, coreerr.Wrap(coreerr.StorageFailure, err, "idempotency lookup failed")
		}
		if existing != nil {
			return c.replayIdempotent(dbc, dialogue, existing)
		}
	}

	block, err := c.deps.Parser.Parse(ctx, dbc, env)
	if err != nil {
		return AssistantResult{}, err
	}

	activeSession, err := c.deps.Sessions.EnsureActiveSession(dbc, dialogue)
	if err != nil {
		return AssistantResult{}, fmt.Errorf("ensure active session: %w", err)
	}

	responderRole, hasResponder := counterpartyRole(dialogue, env.SenderRole)

	currentTurn, err := c.resolveTurn(dbc, dialogue, activeSession, env, responderRole, hasResponder)
	if err != nil {
		return AssistantResult{}, err
	}

	inbound := &domain.Message{
		DialogueID:     dialogue.ID,
		SessionID:      activeSession.ID,
		TurnID:         currentTurn.ID,
		SenderRole:     env.SenderRole,
		SenderID:       env.SenderID,
		Content:        block.Text,
		ContentType:    env.ContentType,
		Status:         domain.MessageSent,
		Metadata:       metadataJSON(env.Metadata),
		IdempotencyKey: idempotencyKey(env.Metadata),
	}
	if _, err := c.deps.Messages.Create(dbc, inbound); err != nil {
		return AssistantResult{}, coreerr.Wrap(coreerr.StorageFailure, err, "persist inbound message")
	}

	if err := c.deps.Dialogues.UpdateFields(dbc, dialogue.ID, map[string]interface{}{"last_activity_at": inbound.CreatedAt}); err != nil {
		c.deps.Log.Warn("failed to bump dialogue activity", "dialogue_id", dialogue.ID, "error", err)
	}

	if !hasResponder {
		// Broadcast-only Turn: no model is driven synchronously, but every
		// other participant still needs to see the message land.
		c.broadcastInbound(dbc, dialogue, inbound)
		return AssistantResult{DialogueID: dialogue.ID, SessionID: activeSession.ID, TurnID: currentTurn.ID, Message: inbound}, nil
	}

	responderID := c.resolveResponderID(dbc, dialogue, env.SenderID, responderRole)
	replyID := uuid.New()

	finalText, citations, toolTrace, err := c.runModelLoop(ctx, dbc, dialogue, activeSession, currentTurn, responderID)
	if err != nil {
		return c.recoverPipelineFailure(dbc, dialogue, activeSession, currentTurn, responderRole, responderID, err)
	}

	content := c.deps.Mixer.Mix(mixer.Input{ModelOutput: finalText, Citations: citations})

	reply := &domain.Message{
		ID:          replyID,
		DialogueID:  dialogue.ID,
		SessionID:   activeSession.ID,
		TurnID:      currentTurn.ID,
		SenderRole:  responderRole,
		SenderID:    responderID,
		Content:     content,
		ContentType: domain.ContentText,
		Status:      domain.MessageDone,
	}
	if _, err := c.deps.Messages.Create(dbc, reply); err != nil {
		return AssistantResult{}, coreerr.Wrap(coreerr.StorageFailure, err, "persist assistant message")
	}

	if err := c.deps.Turns.AttachResponse(dbc, currentTurn, reply); err != nil {
		c.deps.Log.Warn("attach response failed", "turn_id", currentTurn.ID, "error", err)
	}
	if len(toolTrace) > 0 {
		if err := c.deps.Turns.SetToolTrace(dbc, currentTurn.ID, toolTrace); err != nil {
			c.deps.Log.Warn("failed to persist tool trace", "turn_id", currentTurn.ID, "error", err)
		}
	}

	c.deps.Hub.PublishMessage(participantFor(dialogue, reply.SenderRole), reply)
	c.deps.Hub.PublishDialogueUpdate(participantFor(dialogue, reply.SenderRole), map[string]any{
		"dialogue_id": dialogue.ID,
		"turn_id":     currentTurn.ID,
		"status":      domain.TurnResponded,
	})

	return AssistantResult{DialogueID: dialogue.ID, SessionID: activeSession.ID, TurnID: currentTurn.ID, Message: reply}, nil
}

// replayIdempotent returns the result of a prior processInput call instead
// of opening a second Turn for a retried send carrying the same
// (dialogue_id, sender_id, idempotency_key) tuple.
func (c *Core) replayIdempotent(dbc dbctx.Context, dialogue *domain.Dialogue, original *domain.Message) (AssistantResult, error) {
	msgs, err := c.deps.Messages.ListByTurn(dbc, original.TurnID)
	if err != nil {
		return AssistantResult{}, coreerr.Wrap(coreerr.StorageFailure, err, "list turn messages for idempotent replay")
	}
	reply := original
	for _, m := range msgs {
		if m.SenderID != original.SenderID {
			reply = m
		}
	}
	return AssistantResult{DialogueID: dialogue.ID, SessionID: original.SessionID, TurnID: original.TurnID, Message: reply}, nil
}

// recoverPipelineFailure implements the error-handling propagation policy:
// an LLM/tool failure never reaches the caller as a bare error. Instead the
// Turn is finalized responded with an assistant Message carrying
// metadata.error_kind, and the failure detail is appended to the event log.
// A context deadline/cancellation is handled differently: it leaves the
// Turn pending and persists a streaming Message with metadata.partial=true,
// since the model may still be mid-response rather than having failed.
func (c *Core) recoverPipelineFailure(dbc dbctx.Context, dialogue *domain.Dialogue, sess *domain.Session, t *domain.Turn, responderRole domain.Role, responderID uuid.UUID, cause error) (AssistantResult, error) {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		partial := &domain.Message{
			DialogueID:  dialogue.ID,
			SessionID:   sess.ID,
			TurnID:      t.ID,
			SenderRole:  responderRole,
			SenderID:    responderID,
			ContentType: domain.ContentText,
			Status:      domain.MessageStreaming,
			Metadata:    metadataJSON(map[string]any{"partial": true}),
		}
		if _, err := c.deps.Messages.Create(dbc, partial); err != nil {
			return AssistantResult{}, coreerr.Wrap(coreerr.StorageFailure, err, "persist partial message")
		}
		c.logEvent(dbc, dialogue.ID, &t.ID, "pipeline_deadline_exceeded", cause)
		return AssistantResult{DialogueID: dialogue.ID, SessionID: sess.ID, TurnID: t.ID, Message: partial}, nil
	}

	kind, _ := coreerr.Of(cause)
	if kind == "" {
		kind = coreerr.Internal
	}
	errMsg := &domain.Message{
		DialogueID:  dialogue.ID,
		SessionID:   sess.ID,
		TurnID:      t.ID,
		SenderRole:  responderRole,
		SenderID:    responderID,
		Content:     "Sorry, I ran into a problem responding to that.",
		ContentType: domain.ContentText,
		Status:      domain.MessageError,
		Metadata:    metadataJSON(map[string]any{"error_kind": string(kind)}),
	}
	if _, err := c.deps.Messages.Create(dbc, errMsg); err != nil {
		return AssistantResult{}, coreerr.Wrap(coreerr.StorageFailure, err, "persist error message")
	}
	if err := c.deps.Turns.AttachResponse(dbc, t, errMsg); err != nil {
		c.deps.Log.Warn("attach error response failed", "turn_id", t.ID, "error", err)
	}
	c.logEvent(dbc, dialogue.ID, &t.ID, "model_loop_failure", cause)

	c.deps.Hub.PublishMessage(participantFor(dialogue, responderRole), errMsg)
	c.deps.Hub.PublishDialogueUpdate(participantFor(dialogue, responderRole), map[string]any{
		"dialogue_id": dialogue.ID,
		"turn_id":     t.ID,
		"status":      domain.TurnResponded,
	})

	return AssistantResult{DialogueID: dialogue.ID, SessionID: sess.ID, TurnID: t.ID, Message: errMsg}, nil
}

// logEvent appends an internal-failure trace entry. Events is optional:
// callers that build a Core without one (most unit tests) get no-op logging
// rather than a nil-pointer panic.
func (c *Core) logEvent(dbc dbctx.Context, dialogueID uuid.UUID, turnID *uuid.UUID, kind string, cause error) {
	if c.deps.Events == nil || cause == nil {
		return
	}
	detail, _ := json.Marshal(map[string]any{"error": cause.Error()})
	if err := c.deps.Events.Append(dbc, &domain.EventLog{
		DialogueID: dialogueID,
		TurnID:     turnID,
		Kind:       kind,
		Message:    cause.Error(),
		Detail:     datatypes.JSON(detail),
	}); err != nil {
		c.deps.Log.Warn("failed to append event log", "kind", kind, "error", err)
	}
}

// broadcastInbound fans an inbound Message out to every other participant
// of a broadcast-only Dialogue (human_human_private, human_human_group,
// human_ai_group, ai_multi_human) instead of driving a synchronous model
// reply.
func (c *Core) broadcastInbound(dbc dbctx.Context, d *domain.Dialogue, msg *domain.Message) {
	for _, pid := range c.broadcastRecipients(dbc, d, msg.SenderID) {
		c.deps.Hub.PublishMessage(pid, msg)
	}
}

func (c *Core) broadcastRecipients(dbc dbctx.Context, d *domain.Dialogue, senderID uuid.UUID) []uuid.UUID {
	if d.DialogueType == domain.DialogueAIMultiHuman && c.deps.Collab != nil {
		if cs, err := c.deps.Collab.GetByDialogue(dbc, d.ID); err == nil && cs != nil {
			var out []uuid.UUID
			for _, pid := range cs.ParticipantIDs() {
				if pid != senderID {
					out = append(out, pid)
				}
			}
			return out
		}
	}
	var out []uuid.UUID
	if d.HumanID != nil && *d.HumanID != senderID {
		out = append(out, *d.HumanID)
	}
	if d.AIID != nil && *d.AIID != senderID {
		out = append(out, *d.AIID)
	}
	return out
}

// resolveResponderID names the participant who will send the reply. For
// ai_ai it is the other half of the CollaborationSession, not d.AIID, since
// a single Dialogue.AIID cannot distinguish between the two AI
// participants conversing with each other.
func (c *Core) resolveResponderID(dbc dbctx.Context, d *domain.Dialogue, senderID uuid.UUID, role domain.Role) uuid.UUID {
	if d.DialogueType == domain.DialogueAIAI && c.deps.Collab != nil {
		if cs, err := c.deps.Collab.GetByDialogue(dbc, d.ID); err == nil && cs != nil {
			for _, pid := range cs.ParticipantIDs() {
				if pid != senderID {
					return pid
				}
			}
		}
	}
	return senderIDForRole(d, role)
}

func (c *Core) resolveTurn(dbc dbctx.Context, dialogue *domain.Dialogue, sess *domain.Session, env parser.Envelope, responderRole domain.Role, hasResponder bool) (*domain.Turn, error) {
	if env.TurnID != uuid.Nil {
		return nil, coreerr.New(coreerr.InvalidInput, "resuming an existing turn_id is not yet supported by this entry point")
	}
	if !hasResponder {
		responderRole = domain.RoleSystem
	}
	return c.deps.Turns.OpenTurn(dbc, dialogue, sess, env.SenderRole, responderRole)
}

// runModelLoop drives LLMClient, satisfying at most MaxToolLoopDepth tool
// requests before finalizing whatever output the model last produced.
// Every call goes through Stream rather than Complete so that token deltas
// reach streamTo via the NotificationHub as they are produced; tool-request
// rounds carry no text and so never emit a chunk.
func (c *Core) runModelLoop(ctx context.Context, dbc dbctx.Context, dialogue *domain.Dialogue, sess *domain.Session, t *domain.Turn, streamTo uuid.UUID) (string, []mixer.ToolCitation, []map[string]any, error) {
	var citations []mixer.ToolCitation
	var trace []map[string]any

	onDelta := func(delta string) {
		c.deps.Hub.PublishStreamChunk(streamTo, map[string]any{
			"dialogue_id": dialogue.ID,
			"turn_id":     t.ID,
			"delta":       delta,
		})
	}

	for depth := 0; depth <= MaxToolLoopDepth; depth++ {
		segments, err := c.deps.Context.Build(dbc, sess.ID, c.deps.Personas, 0)
		if err != nil {
			return "", nil, nil, fmt.Errorf("build context: %w", err)
		}

		result, err := c.deps.LLM.Stream(ctx, segments, llm.CompletionOptions{}, onDelta)
		if err != nil {
			return "", nil, nil, coreerr.Wrap(coreerr.LLMFailure, err, "llm completion failed")
		}

		if result.ToolRequest == nil || depth == MaxToolLoopDepth {
			return result.Text, citations, trace, nil
		}

		req := result.ToolRequest
		start := time.Now()
		toolResult, toolErr := c.deps.ToolInv.Invoke(ctx, dbc, tools.Invocation{
			DialogueID: dialogue.ID,
			TurnID:     t.ID,
			ToolID:     req.ToolID,
			Parameters: req.Parameters,
		})
		latency := time.Since(start).Milliseconds()
		trace = append(trace, map[string]any{"tool_id": req.ToolID, "latency_ms": latency, "success": toolErr == nil})

		summary := fmt.Sprintf("%v", toolResult.Output)
		if toolErr != nil {
			summary = toolErr.Error()
			c.logEvent(dbc, dialogue.ID, &t.ID, "tool_failure", toolErr)
		}
		citations = append(citations, mixer.ToolCitation{ToolID: req.ToolID, Summary: summary})

		toolMsg := &domain.Message{
			DialogueID:  dialogue.ID,
			SessionID:   sess.ID,
			TurnID:      t.ID,
			SenderRole:  domain.RoleSystem,
			SenderID:    uuid.Nil,
			Content:     fmt.Sprintf("%s returned: %s", req.ToolID, summary),
			ContentType: domain.ContentToolOutput,
			Status:      domain.MessageDone,
		}
		if _, err := c.deps.Messages.Create(dbc, toolMsg); err != nil {
			return "", nil, nil, coreerr.Wrap(coreerr.StorageFailure, err, "persist tool output message")
		}
	}
	return "", citations, trace, nil
}

// counterpartyRole derives the Turn's responder_role by dialogue_type.
func counterpartyRole(d *domain.Dialogue, initiator domain.Role) (domain.Role, bool) {
	switch d.DialogueType {
	case domain.DialogueHumanAI:
		if initiator == domain.RoleHuman {
			return domain.RoleAI, true
		}
		return domain.RoleHuman, true
	case domain.DialogueAISelf:
		return domain.RoleAI, true
	case domain.DialogueAIAI:
		return domain.RoleAI, true
	default:
		// Group topologies and human_human_private: no implicit responder;
		// broadcast only.
		return "", false
	}
}

// senderIDForRole names the participant id that fills a given role on d.
// It is the inverse of participantFor, which names the *other* party.
func senderIDForRole(d *domain.Dialogue, role domain.Role) uuid.UUID {
	switch role {
	case domain.RoleAI:
		if d.AIID != nil {
			return *d.AIID
		}
	case domain.RoleHuman:
		if d.HumanID != nil {
			return *d.HumanID
		}
	}
	return uuid.Nil
}

func participantFor(d *domain.Dialogue, role domain.Role) uuid.UUID {
	if role == domain.RoleAI && d.HumanID != nil {
		return *d.HumanID
	}
	if d.AIID != nil {
		return *d.AIID
	}
	return uuid.Nil
}

func metadataJSON(meta map[string]any) datatypes.JSON {
	if len(meta) == 0 {
		return datatypes.JSON([]byte("{}"))
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}

func idempotencyKey(meta map[string]any) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta["idempotency_key"].(string); ok {
		return v
	}
	return ""
}
