// Package ctxbuild implements ContextBuilder: assembly of an ordered,
// budget-bounded prompt from a Session's recent Messages plus persistent
// system instructions and tool-result labeling.
package ctxbuild

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/llm"
	"github.com/threadline/dialoguecore/internal/parser"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

const DefaultBudget = 4000

// Builder assembles prompt segments for a Session.
type Builder struct {
	messages repos.MessageRepo
	project  func(m *domain.Message) (parser.SemanticBlock, error)
	log      *logger.Logger
}

// New wires a Builder. project re-derives a Message's text projection
// without re-resolving external modality backends (a persisted Message
// already carries the resolved caption/transcription in Content), so it is
// a pure, cheap function over the already-persisted record.
func New(messages repos.MessageRepo, log *logger.Logger) *Builder {
	return &Builder{messages: messages, project: defaultProject, log: log.With("component", "ContextBuilder")}
}

// Persona is a persistent system-instruction segment placed in the fixed
// header slot ahead of any conversational history.
type Persona struct {
	Content string
}

// Build returns an ordered list of prompt segments for sessionID, bounded
// by budget characters of conversational content (the persona header is
// never truncated).
func (b *Builder) Build(dbc dbctx.Context, sessionID uuid.UUID, personas []Persona, budget int) ([]llm.Message, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}

	recent, err := b.messages.ListRecentBySession(dbc, sessionID, 200)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}

	segments := make([]llm.Message, 0, len(personas)+len(recent))
	for _, p := range personas {
		segments = append(segments, llm.Message{Role: llm.RoleSystem, Content: p.Content})
	}

	// recent is oldest-first (ListRecentBySession reverses its own
	// reverse-chronological fetch); walk it newest-first to apply the
	// budget, then restore chronological order before returning.
	kept := make([]llm.Message, 0, len(recent))
	used := 0
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		block, err := b.project(m)
		if err != nil {
			b.log.Warn("skipping unprojectable message in context build", "message_id", m.ID, "error", err)
			continue
		}
		if !block.Visible && m.ContentType != domain.ContentPrompt {
			continue
		}
		content := block.Text
		if m.ContentType == domain.ContentToolOutput {
			content = "[tool_result] " + content
		}
		if used+len(content) > budget && len(kept) > 0 {
			break
		}
		used += len(content)
		role := roleFor(m)
		kept = append(kept, llm.Message{Role: role, Content: content})
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	segments = append(segments, kept...)
	return segments, nil
}

func roleFor(m *domain.Message) string {
	switch {
	case m.ContentType == domain.ContentToolOutput:
		return llm.RoleTool
	case m.SenderRole == domain.RoleAI:
		return llm.RoleAI
	case m.SenderRole == domain.RoleSystem:
		return llm.RoleSystem
	default:
		return llm.RoleUser
	}
}

// defaultProject projects an already-persisted Message's stored Content
// straight through: modality resolution already happened once, at
// InputParser time, and its result was written into Content.
func defaultProject(m *domain.Message) (parser.SemanticBlock, error) {
	return parser.SemanticBlock{
		Text:    m.Content,
		Origin:  m.ContentType,
		Ts:      m.CreatedAt,
		Visible: m.ContentType != domain.ContentPrompt && m.ContentType != domain.ContentSystemContext,
	}, nil
}
