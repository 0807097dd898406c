package replay

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skoll/internal/common"
	"skoll/internal/engine"
)

var cents = common.MustTickSize("0.01")

func TestRun_Generated(t *testing.T) {
	result, err := Run(Generate(1000), cents, engine.WithParanoid(true))
	require.NoError(t, err)

	assert.Equal(t, 2002, result.Orders)
	assert.Zero(t, result.Rejected)
	assert.Equal(t, 1000, result.Trades)
	assert.Equal(t, common.Quantity(1000), result.Volume)

	// Only the two far asks survive, at one level.
	assert.Zero(t, result.BidOrders)
	assert.Equal(t, 1, result.AskLevels)
	assert.Equal(t, 2, result.AskOrders)
	require.Len(t, result.Book.Asks, 1)
	assert.Equal(t, common.Price(12500), result.Book.Asks[0].Price)
	assert.GreaterOrEqual(t, result.Total, result.Max)
}

func TestReadWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Generate(2)))

	records, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.True(t, decimal.NewFromInt(125).Equal(records[0].Price))
	assert.Equal(t, "buy", records[5].Side)
}

func TestRead_OriginalFormat(t *testing.T) {
	file := `[
		{"order_type":"GoodTilCancel","order_side":"Sell","order_price":122,"order_qty":1},
		{"order_type":"FillAndKill","order_side":"Buy","order_price":"122.5","order_qty":3},
		{"order_type":"Market","order_side":"Buy","order_price":0,"order_qty":1}
	]`
	records, err := Read(strings.NewReader(file))
	require.NoError(t, err)

	req, err := Convert(records[1], cents)
	require.NoError(t, err)
	assert.Equal(t, common.ImmediateOrCancel, req.OrderType)
	assert.Equal(t, common.Buy, req.Side)
	assert.Equal(t, common.Price(12250), req.Price)

	result, err := Run(records, cents)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Trades)
	assert.Equal(t, 1, result.Rejected, "market order finds no liquidity left")
}

func TestConvert_Rejects(t *testing.T) {
	_, err := Convert(Record{OrderType: "stop", Side: "buy", Price: decimal.NewFromInt(1), Quantity: 1}, cents)
	assert.ErrorIs(t, err, common.ErrInvalidOrder)

	_, err = Convert(Record{OrderType: "limit", Side: "up", Price: decimal.NewFromInt(1), Quantity: 1}, cents)
	assert.ErrorIs(t, err, common.ErrInvalidOrder)

	_, err = Convert(Record{OrderType: "limit", Side: "buy", Price: decimal.RequireFromString("1.005"), Quantity: 1}, cents)
	assert.ErrorIs(t, err, common.ErrOffTick)

	_, err = Run([]Record{{OrderType: "limit", Side: "buy", Price: decimal.RequireFromString("1.005"), Quantity: 1}}, cents)
	assert.Error(t, err)
}
