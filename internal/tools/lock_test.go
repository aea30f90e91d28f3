package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLockAcquireExcludesConcurrentHolder(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "dlg:calculator:abc", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire(ctx, "dlg:calculator:abc", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second acquire of the same key should be rejected while held")
}

func TestMemoryLockReleaseAllowsReacquire(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "key", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "key"))

	ok, err = l.Acquire(ctx, "key", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLockExpiresAfterTTL(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "key", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)

	ok, err = l.Acquire(ctx, "key", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "lock should be acquirable again once its ttl elapses")
}

func TestParameterHashIsOrderIndependent(t *testing.T) {
	a := ParameterHash(map[string]any{"city": "Austin", "date": "today"})
	b := ParameterHash(map[string]any{"date": "today", "city": "Austin"})
	require.Equal(t, a, b)
}

func TestParameterHashDiffersOnValue(t *testing.T) {
	a := ParameterHash(map[string]any{"city": "Austin"})
	b := ParameterHash(map[string]any{"city": "Dallas"})
	require.NotEqual(t, a, b)
}
