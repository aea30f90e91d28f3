package turn

import (
	"context"
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

func newTestDeps(t *testing.T) (dbctx.Context, repos.TurnRepo, *Manager, *gorm.DB) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	turns := repos.NewTurnRepo(gdb, log)
	mgr := New(turns, time.Hour, log)
	dbc := dbctx.Context{Ctx: t.Context()}
	return dbc, turns, mgr, gdb
}

func newDialogueAndSession(t *testing.T, gdb *gorm.DB, dbc dbctx.Context, meta string) (*domain.Dialogue, *domain.Session) {
	t.Helper()
	dlg := &domain.Dialogue{
		ID:           uuid.New(),
		DialogueType: domain.DialogueHumanAI,
		IsActive:     true,
		Metadata:     datatypes.JSON([]byte(meta)),
	}
	require.NoError(t, gdb.WithContext(dbc.Ctx).Create(dlg).Error)
	sess := &domain.Session{ID: uuid.New(), DialogueID: dlg.ID, StartAt: time.Now().UTC()}
	require.NoError(t, gdb.WithContext(dbc.Ctx).Create(sess).Error)
	return dlg, sess
}

func TestOpenTurnUsesDefaultWindow(t *testing.T) {
	dbc, _, mgr, gdb := newTestDeps(t)
	dlg, sess := newDialogueAndSession(t, gdb, dbc, `{}`)

	before := time.Now().UTC()
	turn, err := mgr.OpenTurn(dbc, dlg, sess, domain.RoleHuman, domain.RoleAI)
	require.NoError(t, err)
	require.Equal(t, domain.TurnPending, turn.Status)
	require.WithinDuration(t, before.Add(time.Hour), turn.Deadline, 5*time.Second)
}

func TestOpenTurnHonorsMetadataOverride(t *testing.T) {
	dbc, _, mgr, gdb := newTestDeps(t)
	dlg, sess := newDialogueAndSession(t, gdb, dbc, `{"response_window_hours": 0.01}`)

	before := time.Now().UTC()
	turn, err := mgr.OpenTurn(dbc, dlg, sess, domain.RoleHuman, domain.RoleAI)
	require.NoError(t, err)
	require.WithinDuration(t, before.Add(36*time.Second), turn.Deadline, 5*time.Second)
}

func TestAttachResponseTransitionsToResponded(t *testing.T) {
	dbc, turns, mgr, gdb := newTestDeps(t)
	dlg, sess := newDialogueAndSession(t, gdb, dbc, `{}`)
	turnRow, err := mgr.OpenTurn(dbc, dlg, sess, domain.RoleHuman, domain.RoleAI)
	require.NoError(t, err)

	msg := &domain.Message{SenderRole: domain.RoleAI, CreatedAt: time.Now().UTC()}
	require.NoError(t, mgr.AttachResponse(dbc, turnRow, msg))

	reloaded, err := turns.GetByID(dbc, turnRow.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TurnResponded, reloaded.Status)
	require.NotNil(t, reloaded.ClosedAt)
}

func TestAttachResponseRejectsWrongSender(t *testing.T) {
	dbc, _, mgr, gdb := newTestDeps(t)
	dlg, sess := newDialogueAndSession(t, gdb, dbc, `{}`)
	turnRow, err := mgr.OpenTurn(dbc, dlg, sess, domain.RoleHuman, domain.RoleAI)
	require.NoError(t, err)

	msg := &domain.Message{SenderRole: domain.RoleHuman, CreatedAt: time.Now().UTC()}
	err = mgr.AttachResponse(dbc, turnRow, msg)
	require.Error(t, err)
}

func TestAttachResponseRejectsPastDeadline(t *testing.T) {
	dbc, _, mgr, gdb := newTestDeps(t)
	dlg, sess := newDialogueAndSession(t, gdb, dbc, `{"response_window_hours": 0.0001}`)
	turnRow, err := mgr.OpenTurn(dbc, dlg, sess, domain.RoleHuman, domain.RoleAI)
	require.NoError(t, err)

	msg := &domain.Message{SenderRole: domain.RoleAI, CreatedAt: time.Now().UTC().Add(time.Hour)}
	err = mgr.AttachResponse(dbc, turnRow, msg)
	require.Error(t, err)
}

func TestSweepClosesExpiredPendingTurns(t *testing.T) {
	dbc, turns, mgr, gdb := newTestDeps(t)
	dlg, sess := newDialogueAndSession(t, gdb, dbc, `{}`)
	turnRow, err := mgr.OpenTurn(dbc, dlg, sess, domain.RoleHuman, domain.RoleAI)
	require.NoError(t, err)

	// Force the deadline into the past directly, bypassing the manager.
	require.NoError(t, turns.UpdateFields(dbc, turnRow.ID, map[string]interface{}{
		"deadline": time.Now().UTC().Add(-time.Minute),
	}))

	n, err := mgr.Sweep(dbc)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	reloaded, err := turns.GetByID(dbc, turnRow.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TurnUnresponded, reloaded.Status)
}

func TestReopenPendingRestoresPendingWithFreshDeadline(t *testing.T) {
	dbc, turns, mgr, gdb := newTestDeps(t)
	dlg, sess := newDialogueAndSession(t, gdb, dbc, `{}`)
	turnRow, err := mgr.OpenTurn(dbc, dlg, sess, domain.RoleHuman, domain.RoleAI)
	require.NoError(t, err)

	msg := &domain.Message{SenderRole: domain.RoleAI, CreatedAt: time.Now().UTC()}
	require.NoError(t, mgr.AttachResponse(dbc, turnRow, msg))

	require.NoError(t, mgr.ReopenPending(dbc, dlg, turnRow))

	reloaded, err := turns.GetByID(dbc, turnRow.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TurnPending, reloaded.Status)
	require.Nil(t, reloaded.ClosedAt)
	require.True(t, reloaded.Deadline.After(time.Now().UTC()))
}

func TestSetToolTraceOverwritesEntries(t *testing.T) {
	dbc, turns, mgr, gdb := newTestDeps(t)
	dlg, sess := newDialogueAndSession(t, gdb, dbc, `{}`)
	turnRow, err := mgr.OpenTurn(dbc, dlg, sess, domain.RoleHuman, domain.RoleAI)
	require.NoError(t, err)

	entries := []map[string]any{{"tool_id": "weather", "latency_ms": float64(12), "success": true}}
	require.NoError(t, mgr.SetToolTrace(dbc, turnRow.ID, entries))

	reloaded, err := turns.GetByID(dbc, turnRow.ID)
	require.NoError(t, err)
	require.Contains(t, string(reloaded.ToolTrace), "weather")
}

func TestStartSweeperClosesExpiredTurnsOnTick(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	turns := repos.NewTurnRepo(gdb, log)
	mgr := New(turns, time.Hour, log)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, sess := newDialogueAndSession(t, gdb, dbc, `{}`)

	turnRow, err := mgr.OpenTurn(dbc, dlg, sess, domain.RoleHuman, domain.RoleAI)
	require.NoError(t, err)
	require.NoError(t, turns.UpdateFields(dbc, turnRow.ID, map[string]interface{}{
		"deadline": time.Now().UTC().Add(-time.Minute),
	}))

	ctx, cancel := context.WithCancel(t.Context())
	mgr.StartSweeper(ctx, gdb, 10*time.Millisecond)
	defer cancel()

	require.Eventually(t, func() bool {
		reloaded, err := turns.GetByID(dbc, turnRow.ID)
		return err == nil && reloaded.Status == domain.TurnUnresponded
	}, time.Second, 10*time.Millisecond)
}
