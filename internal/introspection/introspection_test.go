package introspection

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/data/repos/testutil"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/session"
	"github.com/threadline/dialoguecore/internal/tools"
	"github.com/threadline/dialoguecore/internal/tools/builtin"
	"github.com/threadline/dialoguecore/internal/turn"
)

func newTestEngine(t *testing.T) (*Engine, repos.IntrospectionRepo, repos.MessageRepo, repos.TurnRepo, *gorm.DB) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)

	introspectionRepo := repos.NewIntrospectionRepo(gdb, log)
	messages := repos.NewMessageRepo(gdb, log)
	turns := repos.NewTurnRepo(gdb, log)
	sessions := repos.NewSessionRepo(gdb, log)
	toolCalls := repos.NewToolCallRepo(gdb, log)

	sessionMgr := session.New(sessions, turns, 24*time.Hour, log)
	turnMgr := turn.New(turns, time.Hour, log)

	registry := tools.NewRegistry()
	builtin.RegisterAll(registry)
	invoker := tools.NewInvoker(registry, toolCalls, tools.NewMemoryLock(), 5*time.Second, log)

	eng := New(introspectionRepo, messages, sessionMgr, turnMgr, invoker, log)
	return eng, introspectionRepo, messages, turns, gdb
}

func newAISelfDialogue(t *testing.T, gdb *gorm.DB, dbc dbctx.Context) (*domain.Dialogue, uuid.UUID) {
	t.Helper()
	aiID := uuid.New()
	dlg := &domain.Dialogue{ID: uuid.New(), DialogueType: domain.DialogueAISelf, AIID: &aiID, IsActive: true}
	require.NoError(t, gdb.WithContext(dbc.Ctx).Create(dlg).Error)
	return dlg, aiID
}

func TestRunExecutesToolStepAndReflectionStep(t *testing.T) {
	eng, introspectionRepo, messages, turns, gdb := newTestEngine(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, aiID := newAISelfDialogue(t, gdb, dbc)

	steps := []Step{
		{Purpose: "double-check arithmetic", ToolID: "calculator", Parameters: map[string]any{"operation": "add", "a": 2.0, "b": 3.0}},
		{Purpose: "consider the day's mood"},
	}

	result, err := eng.Run(t.Context(), dbc, dlg, aiID, "evening reflection", steps)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "evening reflection", result.Goal)
	require.NotNil(t, result.SummaryTurnID)

	stepRecords, err := introspectionRepo.ListSteps(dbc, result.ID)
	require.NoError(t, err)
	require.Len(t, stepRecords, 2)
	require.Equal(t, domain.IntrospectionStepOK, stepRecords[0].Status)
	require.Equal(t, "calculator", stepRecords[0].ToolUsed)
	require.Equal(t, domain.IntrospectionStepOK, stepRecords[1].Status)
	require.Empty(t, stepRecords[1].ToolUsed)

	summaryTurn, err := turns.GetByID(dbc, *result.SummaryTurnID)
	require.NoError(t, err)
	require.Equal(t, domain.TurnResponded, summaryTurn.Status)

	page, err := messages.Query(dbc, repos.MessageFilter{DialogueID: dlg.ID, Page: 1, PageSize: 10})
	require.NoError(t, err)
	var summaryContent string
	for _, m := range page.Items {
		if m.TurnID == *result.SummaryTurnID {
			summaryContent = m.Content
		}
	}
	require.Contains(t, summaryContent, "double-check arithmetic")
	require.Contains(t, summaryContent, "consider the day's mood")
}

func TestRunContinuesAfterStepFailure(t *testing.T) {
	eng, introspectionRepo, _, _, gdb := newTestEngine(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, aiID := newAISelfDialogue(t, gdb, dbc)

	steps := []Step{
		{Purpose: "divide by zero on purpose", ToolID: "calculator", Parameters: map[string]any{"operation": "divide", "a": 1.0, "b": 0.0}},
		{Purpose: "note the failure and move on"},
	}

	result, err := eng.Run(t.Context(), dbc, dlg, aiID, "resilience check", steps)
	require.NoError(t, err)

	stepRecords, err := introspectionRepo.ListSteps(dbc, result.ID)
	require.NoError(t, err)
	require.Len(t, stepRecords, 2)
	require.Equal(t, domain.IntrospectionStepFailed, stepRecords[0].Status)
	require.Equal(t, domain.IntrospectionStepOK, stepRecords[1].Status)
}

func TestRunWithNoStepsStillProducesSummary(t *testing.T) {
	eng, _, _, turns, gdb := newTestEngine(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, aiID := newAISelfDialogue(t, gdb, dbc)

	result, err := eng.Run(t.Context(), dbc, dlg, aiID, "quiet moment", nil)
	require.NoError(t, err)
	require.NotNil(t, result.SummaryTurnID)

	summaryTurn, err := turns.GetByID(dbc, *result.SummaryTurnID)
	require.NoError(t, err)
	require.Equal(t, domain.TurnResponded, summaryTurn.Status)
}
