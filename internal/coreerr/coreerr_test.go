package coreerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfExtractsKind(t *testing.T) {
	err := New(ToolFailure, "boom")
	kind, ok := Of(err)
	require.True(t, ok)
	require.Equal(t, ToolFailure, kind)

	_, ok = Of(errors.New("plain"))
	require.False(t, ok)

	_, ok = Of(nil)
	require.False(t, ok)
}

func TestIs(t *testing.T) {
	err := New(DialogueClosed, "closed")
	require.True(t, Is(err, DialogueClosed))
	require.False(t, Is(err, TurnClosed))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	err := Wrap(StorageFailure, cause, "failed to persist")
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "StorageFailure")
	require.Contains(t, err.Error(), "underlying failure")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		InvalidInput:     400,
		InvalidParameters: 400,
		Unauthorized:     401,
		DialogueNotFound: 404,
		NotFound:         404,
		DialogueClosed:   409,
		TurnClosed:       409,
		ToolTimeout:      504,
		LLMTimeout:       504,
		ToolFailure:      502,
		LLMFailure:       502,
		ContextOverflow:  502,
		StorageFailure:   502,
		Kind("unknown"):  500,
	}
	for kind, want := range cases {
		require.Equal(t, want, HTTPStatus(kind), "kind=%s", kind)
	}
}
