package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderValidate(t *testing.T) {
	t.Run("hold with zero quantity is valid", func(t *testing.T) {
		require.NoError(t, NewHoldOrder("AAPL", "no consensus").Validate())
	})

	t.Run("trade actions need a positive quantity", func(t *testing.T) {
		order := NewOrder("AAPL", OrderActionBuy, 0, "")
		require.ErrorIs(t, order.Validate(), ErrInvalidQuantityZero)
	})

	t.Run("negative quantity is rejected", func(t *testing.T) {
		order := NewOrder("AAPL", OrderActionSell, -5, "")
		require.ErrorContains(t, order.Validate(), "must not be negative")
	})

	t.Run("unknown action is rejected", func(t *testing.T) {
		order := NewOrder("AAPL", OrderAction("stop-limit"), 10, "")
		require.ErrorContains(t, order.Validate(), "invalid order action")
	})
}

func TestOrderIsHold(t *testing.T) {
	require.True(t, NewHoldOrder("AAPL", "").IsHold())
	require.True(t, NewOrder("AAPL", OrderActionBuy, 0, "").IsHold())
	require.False(t, NewOrder("AAPL", OrderActionBuy, 10, "").IsHold())
}

func TestOrderActionSides(t *testing.T) {
	require.True(t, OrderActionBuy.IsOpening())
	require.True(t, OrderActionShort.IsOpening())
	require.False(t, OrderActionSell.IsOpening())

	require.True(t, OrderActionSell.IsClosing())
	require.True(t, OrderActionCover.IsClosing())
	require.False(t, OrderActionBuy.IsClosing())
	require.False(t, OrderActionHold.IsClosing())
}
