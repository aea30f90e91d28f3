// Package session implements SessionManager: opening and closing Sessions
// within a Dialogue based on idle thresholds or explicit triggers.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

type Manager struct {
	sessions             repos.SessionRepo
	turns                repos.TurnRepo
	defaultIdleThreshold time.Duration
	log                  *logger.Logger
}

func New(sessions repos.SessionRepo, turns repos.TurnRepo, defaultIdleThreshold time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		sessions:             sessions,
		turns:                turns,
		defaultIdleThreshold: defaultIdleThreshold,
		log:                  log.With("component", "SessionManager"),
	}
}

// EnsureActiveSession returns the current open Session for dialogue,
// creating one when none exists or when the last Turn of the open Session
// closed longer ago than the idle threshold.
func (m *Manager) EnsureActiveSession(dbc dbctx.Context, dialogue *domain.Dialogue) (*domain.Session, error) {
	threshold := m.defaultIdleThreshold
	if override, ok := dialogue.SessionIdleThresholdOverride(); ok {
		threshold = override
	}

	open, err := m.sessions.GetOpen(dbc, dialogue.ID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return m.openSession(dbc, dialogue)
	}

	lastTurn, err := m.turns.GetLatestBySession(dbc, open.ID)
	if err != nil {
		return nil, err
	}
	if lastTurn == nil {
		return open, nil
	}
	reference := lastTurn.StartedAt
	if lastTurn.ClosedAt != nil {
		reference = *lastTurn.ClosedAt
	} else {
		// Turn still pending: it is still "active" regardless of elapsed
		// wall time, so the Session stays open until it resolves or the
		// sweeper closes it.
		return open, nil
	}
	if time.Since(reference) <= threshold {
		return open, nil
	}

	if err := m.Close(dbc, open, "closed: idle threshold exceeded"); err != nil {
		return nil, err
	}
	return m.openSession(dbc, dialogue)
}

func (m *Manager) openSession(dbc dbctx.Context, dialogue *domain.Dialogue) (*domain.Session, error) {
	sessionType := domain.SessionDialogue
	if dialogue.DialogueType == domain.DialogueAISelf {
		sessionType = domain.SessionSelfReflection
	}
	s := &domain.Session{
		DialogueID:  dialogue.ID,
		SessionType: sessionType,
		StartAt:     time.Now().UTC(),
		CreatedBy:   domain.CreatedBySystem,
	}
	return m.sessions.Create(dbc, s)
}

// GetOpen returns dialogue's currently open Session, if any.
func (m *Manager) GetOpen(dbc dbctx.Context, dialogueID uuid.UUID) (*domain.Session, error) {
	return m.sessions.GetOpen(dbc, dialogueID)
}

// Close ends s, stamping end_at and appending description as a
// lightweight summarization stub.
func (m *Manager) Close(dbc dbctx.Context, s *domain.Session, description string) error {
	now := time.Now().UTC()
	return m.sessions.UpdateFields(dbc, s.ID, map[string]interface{}{
		"end_at":      now,
		"description": description,
	})
}
