// Package turn implements TurnManager: Turn state transitions and the
// response-window timer that closes unresponded Turns.
package turn

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

type Manager struct {
	turns                repos.TurnRepo
	defaultResponseWindow time.Duration
	log                  *logger.Logger
}

func New(turns repos.TurnRepo, defaultResponseWindow time.Duration, log *logger.Logger) *Manager {
	return &Manager{turns: turns, defaultResponseWindow: defaultResponseWindow, log: log.With("component", "TurnManager")}
}

// OpenTurn creates a pending Turn. The deadline is computed once, from the
// response window in effect at open time, and stored on the row — see
// domain.Turn.Deadline for why it is never recomputed later.
func (m *Manager) OpenTurn(dbc dbctx.Context, dialogue *domain.Dialogue, session *domain.Session, initiator, responder domain.Role) (*domain.Turn, error) {
	window := m.defaultResponseWindow
	if override, ok := dialogue.ResponseWindowOverride(); ok {
		window = override
	}
	now := time.Now().UTC()
	t := &domain.Turn{
		DialogueID:    dialogue.ID,
		SessionID:     session.ID,
		InitiatorRole: initiator,
		ResponderRole: responder,
		StartedAt:     now,
		Status:        domain.TurnPending,
		Deadline:      now.Add(window),
	}
	return m.turns.Create(dbc, t)
}

// AttachResponse transitions turn from pending to responded iff msg was
// sent by the responder role before the deadline elapsed.
func (m *Manager) AttachResponse(dbc dbctx.Context, t *domain.Turn, msg *domain.Message) error {
	if t.Status != domain.TurnPending {
		return coreerr.New(coreerr.TurnClosed, "turn is no longer pending")
	}
	if msg.SenderRole != t.ResponderRole {
		return coreerr.New(coreerr.InvalidInput, "message sender does not match the turn's responder role")
	}
	if msg.CreatedAt.After(t.Deadline) {
		return coreerr.New(coreerr.TurnClosed, "response arrived after the turn's deadline")
	}
	closedAt := msg.CreatedAt
	return m.turns.UpdateFields(dbc, t.ID, map[string]interface{}{
		"status":    domain.TurnResponded,
		"closed_at": closedAt,
	})
}

// Sweep transitions all pending Turns whose deadline has elapsed to
// unresponded. It is safe to call concurrently and periodically.
func (m *Manager) Sweep(dbc dbctx.Context) (int, error) {
	expired, err := m.turns.ListPendingBefore(dbc, time.Now().UTC(), 500)
	if err != nil {
		return 0, err
	}
	for _, t := range expired {
		if err := m.turns.UpdateFields(dbc, t.ID, map[string]interface{}{
			"status":    domain.TurnUnresponded,
			"closed_at": t.Deadline,
		}); err != nil {
			m.log.Warn("failed to close expired turn", "turn_id", t.ID, "error", err)
			continue
		}
	}
	return len(expired), nil
}

// ReopenPending restores t to pending with a freshly computed deadline, for
// use when an out-of-band edit/delete invalidated its recorded response.
func (m *Manager) ReopenPending(dbc dbctx.Context, dialogue *domain.Dialogue, t *domain.Turn) error {
	window := m.defaultResponseWindow
	if override, ok := dialogue.ResponseWindowOverride(); ok {
		window = override
	}
	now := time.Now().UTC()
	return m.turns.UpdateFields(dbc, t.ID, map[string]interface{}{
		"status":    domain.TurnPending,
		"closed_at": nil,
		"deadline":  now.Add(window),
	})
}

// StartSweeper runs Sweep on a fixed interval until ctx is canceled. It is
// the background half of the Turn-sweeper contract; the orchestrator's
// own Sweep call at the top of processInput covers the gap between ticks.
func (m *Manager) StartSweeper(ctx context.Context, db *gorm.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dbc := dbctx.Context{Ctx: ctx, Tx: db}
				n, err := m.Sweep(dbc)
				if err != nil {
					m.log.Warn("turn sweep failed", "error", err)
					continue
				}
				if n > 0 {
					m.log.Info("swept expired turns", "count", n)
				}
			}
		}
	}()
}

// SetToolTrace overwrites the Turn's tool_trace with entries, one per
// ToolInvoker round-trip made during the tool loop.
func (m *Manager) SetToolTrace(dbc dbctx.Context, turnID uuid.UUID, entries []map[string]any) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return m.turns.UpdateFields(dbc, turnID, map[string]interface{}{"tool_trace": datatypes.JSON(b)})
}

// GetLatestBySession returns the most recently started Turn for a Session,
// or nil if the Session has no Turns yet.
func (m *Manager) GetLatestBySession(dbc dbctx.Context, sessionID uuid.UUID) (*domain.Turn, error) {
	return m.turns.GetLatestBySession(dbc, sessionID)
}

// GetByID returns the Turn with the given ID.
func (m *Manager) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Turn, error) {
	return m.turns.GetByID(dbc, id)
}
