package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/data/repos/testutil"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
)

func newTestManager(t *testing.T) (dbctx.Context, *gorm.DB, repos.SessionRepo, repos.TurnRepo, *Manager) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	sessions := repos.NewSessionRepo(gdb, log)
	turns := repos.NewTurnRepo(gdb, log)
	mgr := New(sessions, turns, time.Hour, log)
	dbc := dbctx.Context{Ctx: t.Context()}
	return dbc, gdb, sessions, turns, mgr
}

func newDialogue(t *testing.T, gdb *gorm.DB, dbc dbctx.Context, dialogueType domain.DialogueType, meta string) *domain.Dialogue {
	t.Helper()
	dlg := &domain.Dialogue{
		ID:           uuid.New(),
		DialogueType: dialogueType,
		IsActive:     true,
		Metadata:     datatypes.JSON([]byte(meta)),
	}
	require.NoError(t, gdb.WithContext(dbc.Ctx).Create(dlg).Error)
	return dlg
}

func TestEnsureActiveSessionCreatesWhenNoneOpen(t *testing.T) {
	dbc, gdb, _, _, mgr := newTestManager(t)
	dlg := newDialogue(t, gdb, dbc, domain.DialogueHumanAI, `{}`)

	sess, err := mgr.EnsureActiveSession(dbc, dlg)
	require.NoError(t, err)
	require.True(t, sess.IsOpen())
	require.Equal(t, domain.SessionDialogue, sess.SessionType)
}

func TestEnsureActiveSessionUsesSelfReflectionTypeForAISelf(t *testing.T) {
	dbc, gdb, _, _, mgr := newTestManager(t)
	dlg := newDialogue(t, gdb, dbc, domain.DialogueAISelf, `{}`)

	sess, err := mgr.EnsureActiveSession(dbc, dlg)
	require.NoError(t, err)
	require.Equal(t, domain.SessionSelfReflection, sess.SessionType)
}

func TestEnsureActiveSessionReusesOpenSessionWithNoTurns(t *testing.T) {
	dbc, gdb, _, _, mgr := newTestManager(t)
	dlg := newDialogue(t, gdb, dbc, domain.DialogueHumanAI, `{}`)

	first, err := mgr.EnsureActiveSession(dbc, dlg)
	require.NoError(t, err)

	second, err := mgr.EnsureActiveSession(dbc, dlg)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestEnsureActiveSessionReopensAfterIdleThresholdExceeded(t *testing.T) {
	dbc, gdb, sessions, turns, mgr := newTestManager(t)
	dlg := newDialogue(t, gdb, dbc, domain.DialogueHumanAI, `{"session_idle_threshold_hours": 0.0001}`)

	open, err := mgr.EnsureActiveSession(dbc, dlg)
	require.NoError(t, err)

	closedAt := time.Now().UTC().Add(-time.Hour)
	turnRow := &domain.Turn{
		ID: uuid.New(), DialogueID: dlg.ID, SessionID: open.ID,
		InitiatorRole: domain.RoleHuman, ResponderRole: domain.RoleAI,
		StartedAt: closedAt.Add(-time.Minute), ClosedAt: &closedAt,
		Status: domain.TurnResponded, Deadline: closedAt,
	}
	_, err = turns.Create(dbc, turnRow)
	require.NoError(t, err)

	reopened, err := mgr.EnsureActiveSession(dbc, dlg)
	require.NoError(t, err)
	require.NotEqual(t, open.ID, reopened.ID)

	priorSession, err := sessions.GetByID(dbc, open.ID)
	require.NoError(t, err)
	require.False(t, priorSession.IsOpen())
}

func TestEnsureActiveSessionStaysOpenWhileLastTurnPending(t *testing.T) {
	dbc, gdb, _, turns, mgr := newTestManager(t)
	dlg := newDialogue(t, gdb, dbc, domain.DialogueHumanAI, `{"session_idle_threshold_hours": 0.0001}`)

	open, err := mgr.EnsureActiveSession(dbc, dlg)
	require.NoError(t, err)

	turnRow := &domain.Turn{
		ID: uuid.New(), DialogueID: dlg.ID, SessionID: open.ID,
		InitiatorRole: domain.RoleHuman, ResponderRole: domain.RoleAI,
		StartedAt: time.Now().UTC().Add(-time.Hour), Status: domain.TurnPending,
		Deadline: time.Now().UTC().Add(time.Hour),
	}
	_, err = turns.Create(dbc, turnRow)
	require.NoError(t, err)

	still, err := mgr.EnsureActiveSession(dbc, dlg)
	require.NoError(t, err)
	require.Equal(t, open.ID, still.ID)
}

func TestCloseStampsEndAt(t *testing.T) {
	dbc, gdb, sessions, _, mgr := newTestManager(t)
	dlg := newDialogue(t, gdb, dbc, domain.DialogueHumanAI, `{}`)

	sess, err := mgr.EnsureActiveSession(dbc, dlg)
	require.NoError(t, err)

	require.NoError(t, mgr.Close(dbc, sess, "closed: dialogue closed"))

	reloaded, err := sessions.GetByID(dbc, sess.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsOpen())
	require.Equal(t, "closed: dialogue closed", reloaded.Description)
}
