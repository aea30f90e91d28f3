package parser

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/data/repos/testutil"
	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
)

func newTestParser(t *testing.T) (*Parser, repos.MessageRepo, *gorm.DB) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	messages := repos.NewMessageRepo(gdb, log)
	return New(messages, nil, nil, log), messages, gdb
}

func seedTurn(t *testing.T, gdb *gorm.DB, dbc dbctx.Context) (*domain.Dialogue, *domain.Turn) {
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
	return dlg, turnRow
}

func TestParseTextDetectsIntentAndSentiment(t *testing.T) {
	p, _, _ := newTestParser(t)
	dbc := dbctx.Context{Ctx: t.Context()}

	block, err := p.Parse(t.Context(), dbc, Envelope{
		ContentType: domain.ContentText,
		Content:     "thanks, that's awesome! could you help me please?",
	})
	require.NoError(t, err)
	require.True(t, block.Visible)
	require.Contains(t, block.Tags, "gratitude")
	require.Contains(t, block.Tags, "assistance")
	require.Contains(t, block.Tags, "request")
	require.Equal(t, []string{"positive"}, block.Emotions)
}

func TestParseTextNegativeSentimentWins(t *testing.T) {
	p, _, _ := newTestParser(t)
	dbc := dbctx.Context{Ctx: t.Context()}

	block, err := p.Parse(t.Context(), dbc, Envelope{ContentType: domain.ContentText, Content: "this is terrible and I am angry"})
	require.NoError(t, err)
	require.Equal(t, []string{"negative"}, block.Emotions)
}

func TestParsePromptAndSystemContextAreInvisible(t *testing.T) {
	p, _, _ := newTestParser(t)
	dbc := dbctx.Context{Ctx: t.Context()}

	prompt, err := p.Parse(t.Context(), dbc, Envelope{ContentType: domain.ContentPrompt, Content: "act as a helpful assistant"})
	require.NoError(t, err)
	require.False(t, prompt.Visible)

	sysCtx, err := p.Parse(t.Context(), dbc, Envelope{ContentType: domain.ContentSystemContext, Content: "user timezone is UTC"})
	require.NoError(t, err)
	require.False(t, sysCtx.Visible)
}

func TestParseToolOutputFormatsSummary(t *testing.T) {
	p, _, _ := newTestParser(t)
	dbc := dbctx.Context{Ctx: t.Context()}

	block, err := p.Parse(t.Context(), dbc, Envelope{
		ContentType: domain.ContentToolOutput,
		Content:     "21 degrees, light rain",
		Metadata:    map[string]any{"tool_used": "weather"},
	})
	require.NoError(t, err)
	require.Equal(t, "weather returned: 21 degrees, light rain", block.Text)
}

func TestParseImageFallsBackToPlaceholderWithoutResolver(t *testing.T) {
	p, _, _ := newTestParser(t)
	dbc := dbctx.Context{Ctx: t.Context()}

	block, err := p.Parse(t.Context(), dbc, Envelope{
		ContentType: domain.ContentImage,
		Metadata:    map[string]any{"data_base64": base64.StdEncoding.EncodeToString([]byte("fake-jpeg-bytes"))},
	})
	require.NoError(t, err)
	require.Equal(t, "[image attachment]", block.Text)
}

func TestParseImageUsesCaptionWhenProvided(t *testing.T) {
	p, _, _ := newTestParser(t)
	dbc := dbctx.Context{Ctx: t.Context()}

	block, err := p.Parse(t.Context(), dbc, Envelope{
		ContentType: domain.ContentImage,
		Metadata:    map[string]any{"caption": "a sunset over the bay"},
	})
	require.NoError(t, err)
	require.Equal(t, "a sunset over the bay", block.Text)
}

func TestParseQuoteReplyResolvesQuotedMessage(t *testing.T) {
	p, messages, gdb := newTestParser(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	dlg, turnRow := seedTurn(t, gdb, dbc)

	original, err := messages.Create(dbc, &domain.Message{
		DialogueID: dlg.ID, TurnID: turnRow.ID, SenderRole: domain.RoleHuman,
		ContentType: domain.ContentText, Content: "what time is the meeting?",
	})
	require.NoError(t, err)

	block, err := p.Parse(t.Context(), dbc, Envelope{
		ContentType: domain.ContentQuoteReply,
		Content:     "3pm works for me",
		DialogueID:  dlg.ID,
		Metadata:    map[string]any{"reply_to": original.ID.String()},
	})
	require.NoError(t, err)
	require.Contains(t, block.Text, "what time is the meeting?")
	require.Contains(t, block.Text, "3pm works for me")
}

func TestParseQuoteReplyRejectsUnknownReference(t *testing.T) {
	p, _, _ := newTestParser(t)
	dbc := dbctx.Context{Ctx: t.Context()}

	_, err := p.Parse(t.Context(), dbc, Envelope{
		ContentType: domain.ContentQuoteReply,
		Content:     "following up",
		DialogueID:  uuid.New(),
		Metadata:    map[string]any{"reply_to": uuid.New().String()},
	})
	require.Error(t, err)
}

func TestParseUnsupportedModalityReturnsError(t *testing.T) {
	p, _, _ := newTestParser(t)
	dbc := dbctx.Context{Ctx: t.Context()}

	_, err := p.Parse(t.Context(), dbc, Envelope{ContentType: domain.ContentType("carrier-pigeon")})
	require.Error(t, err)
}
