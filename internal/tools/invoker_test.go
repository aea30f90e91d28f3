package tools

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/threadline/dialoguecore/internal/coreerr"
	"github.com/threadline/dialoguecore/internal/data/repos"
	"github.com/threadline/dialoguecore/internal/data/repos/testutil"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
)

type echoTool struct {
	id       string
	category string
	schema   ParameterSchema
	delay    time.Duration
}

func (e *echoTool) ID() string                       { return e.id }
func (e *echoTool) Name() string                     { return e.id }
func (e *echoTool) Category() string                 { return e.category }
func (e *echoTool) ParameterSchema() ParameterSchema { return e.schema }
func (e *echoTool) Invoke(ctx context.Context, parameters map[string]any) (any, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return map[string]any{"echo": parameters["text"]}, nil
}

func newTestInvoker(t *testing.T, timeout time.Duration, lock InvocationLock) (*Invoker, repos.ToolCallRepo) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	registry := NewRegistry()
	registry.Register(&echoTool{id: "echo", category: "utility", schema: ParameterSchema{Required: []string{"text"}}})
	registry.Register(&echoTool{id: "slow-echo", category: "utility", delay: 50 * time.Millisecond})
	calls := repos.NewToolCallRepo(gdb, log)
	if lock == nil {
		lock = NewMemoryLock()
	}
	return NewInvoker(registry, calls, lock, timeout, log), calls
}

func TestInvokeRecordsSuccessfulCall(t *testing.T) {
	inv, calls := newTestInvoker(t, time.Second, nil)
	dbc := dbctx.Context{Ctx: t.Context()}
	dialogueID, turnID := uuid.New(), uuid.New()

	result, err := inv.Invoke(context.Background(), dbc, Invocation{
		DialogueID: dialogueID, TurnID: turnID, ToolID: "echo",
		Parameters: map[string]any{"text": "hi"},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	recorded, err := calls.ListByTurn(dbc, turnID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	require.True(t, recorded[0].Success)
}

func TestInvokeRejectsUnknownTool(t *testing.T) {
	inv, _ := newTestInvoker(t, time.Second, nil)
	dbc := dbctx.Context{Ctx: t.Context()}

	_, err := inv.Invoke(context.Background(), dbc, Invocation{
		DialogueID: uuid.New(), TurnID: uuid.New(), ToolID: "nonexistent",
	})
	require.Error(t, err)
	kind, ok := coreerr.Of(err)
	require.True(t, ok)
	require.Equal(t, coreerr.InvalidParameters, kind)
}

func TestInvokeRejectsMissingRequiredParameter(t *testing.T) {
	inv, _ := newTestInvoker(t, time.Second, nil)
	dbc := dbctx.Context{Ctx: t.Context()}

	_, err := inv.Invoke(context.Background(), dbc, Invocation{
		DialogueID: uuid.New(), TurnID: uuid.New(), ToolID: "echo",
		Parameters: map[string]any{},
	})
	require.Error(t, err)
	kind, ok := coreerr.Of(err)
	require.True(t, ok)
	require.Equal(t, coreerr.InvalidParameters, kind)
}

func TestInvokeSuppressesDuplicateConcurrentInvocation(t *testing.T) {
	lock := NewMemoryLock()
	inv, _ := newTestInvoker(t, time.Second, lock)
	dbc := dbctx.Context{Ctx: t.Context()}
	dialogueID := uuid.New()

	_, err := lock.Acquire(context.Background(), dialogueID.String()+":echo:"+ParameterHash(map[string]any{"text": "hi"}), time.Minute)
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), dbc, Invocation{
		DialogueID: dialogueID, TurnID: uuid.New(), ToolID: "echo",
		Parameters: map[string]any{"text": "hi"},
	})
	require.Error(t, err)
	kind, ok := coreerr.Of(err)
	require.True(t, ok)
	require.Equal(t, coreerr.ToolFailure, kind)
}

func TestInvokeTimesOutOnSlowTool(t *testing.T) {
	inv, calls := newTestInvoker(t, 5*time.Millisecond, nil)
	dbc := dbctx.Context{Ctx: t.Context()}
	turnID := uuid.New()

	_, err := inv.Invoke(context.Background(), dbc, Invocation{
		DialogueID: uuid.New(), TurnID: turnID, ToolID: "slow-echo",
	})
	require.Error(t, err)
	kind, ok := coreerr.Of(err)
	require.True(t, ok)
	require.Equal(t, coreerr.ToolTimeout, kind)

	recorded, err := calls.ListByTurn(dbc, turnID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	require.False(t, recorded[0].Success)
}
