package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRejectsSecondLivePosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &Position{Day: "2026-08-28", Direction: "bullish", Strike: 25700, Right: "call", Quantity: 75, EntryOrderID: "OID-1"}
	require.NoError(t, s.Open(ctx, first))
	assert.Equal(t, StatusPending, first.Status)

	second := &Position{Day: "2026-08-28", Direction: "bearish", Strike: 25400, Right: "put", Quantity: 75}
	err := s.Open(ctx, second)
	require.ErrorIs(t, err, ErrConflict)
}

func TestLiveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pos, err := s.Live(ctx)
	require.NoError(t, err)
	assert.Nil(t, pos, "fresh store must be flat")

	p := &Position{Day: "2026-08-28", Direction: "bullish", LevelName: "previous_day_high", LevelValue: 25713, Strike: 25700, Right: "call", Quantity: 75, EntryOrderID: "OID-9", EntryPremium: 101.5}
	require.NoError(t, s.Open(ctx, p))

	p.Status = StatusOpen
	require.NoError(t, s.Update(ctx, p))

	got, err := s.Live(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusOpen, got.Status)
	assert.Equal(t, "OID-9", got.EntryOrderID)
	assert.Equal(t, 25713.0, got.LevelValue)
}

func TestCloseOutComputesPnL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &Position{Day: "2026-08-28", Direction: "bullish", Strike: 25700, Right: "call", Quantity: 75, EntryPremium: 100}
	require.NoError(t, s.Open(ctx, p))
	require.NoError(t, s.CloseOut(ctx, p, ExitTarget, "OID-X", 111.25))

	assert.Equal(t, StatusClosed, p.Status)
	assert.Equal(t, ExitTarget, p.ExitReason)
	assert.InDelta(t, 843.75, p.PnL, 1e-9)

	// Store is flat again, a new entry is allowed.
	live, err := s.Live(ctx)
	require.NoError(t, err)
	assert.Nil(t, live)
	require.NoError(t, s.Open(ctx, &Position{Day: "2026-08-28", Quantity: 75}))
}

func TestForDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &Position{Day: "2026-08-27", Quantity: 75, EntryPremium: 90}
	require.NoError(t, s.Open(ctx, p))
	require.NoError(t, s.CloseOut(ctx, p, ExitStopLoss, "OID-2", 80))
	require.NoError(t, s.Open(ctx, &Position{Day: "2026-08-28", Quantity: 75}))

	day, err := s.ForDay(ctx, "2026-08-27")
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, ExitStopLoss, day[0].ExitReason)
}
