package refresh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_LateResultDoesNotOverwriteNewer(t *testing.T) {
	g := NewGuard()
	var shown string

	_, older := g.Begin(context.Background())
	_, newer := g.Begin(context.Background())

	require.True(t, g.Commit(newer, func() { shown = "newer" }))
	assert.False(t, g.Commit(older, func() { shown = "older" }))
	assert.Equal(t, "newer", shown)
	assert.Equal(t, newer.Generation(), g.Applied())
}

func TestGuard_InOrderResultsAllApply(t *testing.T) {
	g := NewGuard()
	var applied []uint64

	for range 3 {
		_, tk := g.Begin(context.Background())
		require.True(t, g.Commit(tk, func() { applied = append(applied, tk.Generation()) }))
		g.End(tk)
	}
	assert.Equal(t, []uint64{1, 2, 3}, applied)
	assert.Zero(t, g.InFlight())
}

func TestGuard_CommitCancelsOlderInFlight(t *testing.T) {
	g := NewGuard()
	olderCtx, older := g.Begin(context.Background())
	_, newer := g.Begin(context.Background())

	require.True(t, g.Commit(newer, func() {}))
	assert.ErrorIs(t, olderCtx.Err(), context.Canceled)
	g.End(older)
	g.End(newer)
	assert.Zero(t, g.InFlight())
}

func TestGuard_InvalidateRejectsInFlight(t *testing.T) {
	g := NewGuard()
	ctx, tk := g.Begin(context.Background())

	g.Invalidate()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, g.Commit(tk, func() { t.Fatal("applied after invalidate") }))

	_, next := g.Begin(context.Background())
	assert.True(t, g.Commit(next, func() {}))
}

func TestGuard_EndIsIdempotent(t *testing.T) {
	g := NewGuard()
	ctx, tk := g.Begin(context.Background())
	g.End(tk)
	g.End(tk)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
