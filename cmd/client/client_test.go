package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skoll/internal/common"
)

func TestParseSide(t *testing.T) {
	side, err := parseSide("SELL")
	require.NoError(t, err)
	assert.Equal(t, common.Sell, side)

	side, err = parseSide("buy")
	require.NoError(t, err)
	assert.Equal(t, common.Buy, side)

	_, err = parseSide("sel")
	assert.ErrorIs(t, err, common.ErrInvalidSide)
}

func TestParseOrderType(t *testing.T) {
	for input, want := range map[string]common.OrderType{
		"limit":    common.LimitOrder,
		"Market":   common.MarketOrder,
		"ioc":      common.ImmediateOrCancel,
		"fok":      common.FillOrKill,
		"postonly": common.PostOnly,
	} {
		got, err := parseOrderType(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := parseOrderType("limt")
	assert.ErrorIs(t, err, common.ErrInvalidOrderType)
}

func TestParseQuantities(t *testing.T) {
	assert.Equal(t, []common.Quantity{10, 20, 50}, parseQuantities("10, 20,50"))
	assert.Equal(t, []common.Quantity{5}, parseQuantities("5,x"))
}
