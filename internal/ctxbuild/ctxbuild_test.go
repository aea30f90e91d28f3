package ctxbuild

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/data/repos/testutil"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/llm"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
)

func newTestBuilder(t *testing.T) (*Builder, repos.MessageRepo, *gorm.DB) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	messages := repos.NewMessageRepo(gdb, log)
	return New(messages, log), messages, gdb
}

func seedSession(t *testing.T, gdb *gorm.DB, dbc dbctx.Context) (*domain.Dialogue, *domain.Session, *domain.Turn) {
	t.Helper()
	dlg := &domain.Dialogue{ID: uuid.New(), DialogueType: domain.DialogueHumanAI, IsActive: true}
	require.NoError(t, gdb.WithContext(dbc.Ctx).Create(dlg).Error)
	sess := &domain.Session{ID: uuid.New(), DialogueID: dlg.ID, StartAt: time.Now().UTC()}
	require.NoError(t, gdb.WithContext(dbc.Ctx).Create(sess).Error)
	turnRow := &domain.Turn{
		ID: uuid.New(), DialogueID: dlg.ID, SessionID: sess.ID,
		InitiatorRole: domain.RoleHuman, ResponderRole: domain.RoleAI,
		StartedAt: time.Now().UTC(), Status: domain.TurnPending,
		Deadline: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, gdb.WithContext(dbc.Ctx).Create(turnRow).Error)
	return dlg, sess, turnRow
}

func createMessage(t *testing.T, messages repos.MessageRepo, dbc dbctx.Context, dlg *domain.Dialogue, sess *domain.Session, turnRow *domain.Turn, role domain.Role, contentType domain.ContentType, content string) *domain.Message {
	t.Helper()
	m, err := messages.Create(dbc, &domain.Message{
		DialogueID: dlg.ID, SessionID: sess.ID, TurnID: turnRow.ID,
		SenderRole: role, SenderID: uuid.New(), ContentType: contentType, Content: content,
	})
	require.NoError(t, err)
	return m
}

func TestBuildPlacesPersonaHeaderFirst(t *testing.T) {
	b, messages, gdb := newTestBuilder(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, sess, turnRow := seedSession(t, gdb, dbc)
	createMessage(t, messages, dbc, dlg, sess, turnRow, domain.RoleHuman, domain.ContentText, "hello")

	segments, err := b.Build(dbc, sess.ID, []Persona{{Content: "You are a helpful assistant."}}, DefaultBudget)
	require.NoError(t, err)
	require.NotEmpty(t, segments)
	require.Equal(t, llm.RoleSystem, segments[0].Role)
	require.Equal(t, "You are a helpful assistant.", segments[0].Content)
}

func TestBuildLabelsToolOutputAndAssignsToolRole(t *testing.T) {
	b, messages, gdb := newTestBuilder(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, sess, turnRow := seedSession(t, gdb, dbc)
	createMessage(t, messages, dbc, dlg, sess, turnRow, domain.RoleAI, domain.ContentToolOutput, "weather returned: 21C, light rain")

	segments, err := b.Build(dbc, sess.ID, nil, DefaultBudget)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, llm.RoleTool, segments[0].Role)
	require.Contains(t, segments[0].Content, "[tool_result] weather returned")
}

func TestBuildSkipsInvisibleSystemContextMessages(t *testing.T) {
	b, messages, gdb := newTestBuilder(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, sess, turnRow := seedSession(t, gdb, dbc)
	createMessage(t, messages, dbc, dlg, sess, turnRow, domain.RoleSystem, domain.ContentSystemContext, "internal note: user is VIP")
	createMessage(t, messages, dbc, dlg, sess, turnRow, domain.RoleHuman, domain.ContentText, "hi there")

	segments, err := b.Build(dbc, sess.ID, nil, DefaultBudget)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, "hi there", segments[0].Content)
}

func TestBuildKeepsPromptMessagesDespiteInvisibility(t *testing.T) {
	b, messages, gdb := newTestBuilder(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, sess, turnRow := seedSession(t, gdb, dbc)
	createMessage(t, messages, dbc, dlg, sess, turnRow, domain.RoleSystem, domain.ContentPrompt, "remember to be concise")

	segments, err := b.Build(dbc, sess.ID, nil, DefaultBudget)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, "remember to be concise", segments[0].Content)
}

func TestBuildPreservesChronologicalOrder(t *testing.T) {
	b, messages, gdb := newTestBuilder(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, sess, turnRow := seedSession(t, gdb, dbc)
	createMessage(t, messages, dbc, dlg, sess, turnRow, domain.RoleHuman, domain.ContentText, "first")
	createMessage(t, messages, dbc, dlg, sess, turnRow, domain.RoleAI, domain.ContentText, "second")
	createMessage(t, messages, dbc, dlg, sess, turnRow, domain.RoleHuman, domain.ContentText, "third")

	segments, err := b.Build(dbc, sess.ID, nil, DefaultBudget)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	require.Equal(t, "first", segments[0].Content)
	require.Equal(t, "second", segments[1].Content)
	require.Equal(t, "third", segments[2].Content)
}

func TestBuildTruncatesToBudgetKeepingMostRecent(t *testing.T) {
	b, messages, gdb := newTestBuilder(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, sess, turnRow := seedSession(t, gdb, dbc)
	createMessage(t, messages, dbc, dlg, sess, turnRow, domain.RoleHuman, domain.ContentText, "oldest message padding to take up budget space")
	createMessage(t, messages, dbc, dlg, sess, turnRow, domain.RoleAI, domain.ContentText, "newest message")

	segments, err := b.Build(dbc, sess.ID, nil, len("newest message"))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, "newest message", segments[0].Content)
}

func TestBuildDefaultsBudgetWhenNonPositive(t *testing.T) {
	b, messages, gdb := newTestBuilder(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, sess, turnRow := seedSession(t, gdb, dbc)
	createMessage(t, messages, dbc, dlg, sess, turnRow, domain.RoleHuman, domain.ContentText, "hello")

	segments, err := b.Build(dbc, sess.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, segments, 1)
}
