package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"skoll/internal/book"
	"skoll/internal/common"
	"skoll/internal/engine"
)

// Record is one order of a replay file.
type Record struct {
	OrderType string          `json:"order_type"`
	Side      string          `json:"order_side"`
	Price     decimal.Decimal `json:"order_price"`
	Quantity  int64           `json:"order_qty"`
}

// Result summarises a replay run.
type Result struct {
	Orders    int
	Rejected  int
	Trades    int
	Volume    common.Quantity
	Total     time.Duration // Time spent inside Submit, summed
	Average   time.Duration
	Max       time.Duration
	BidLevels int
	AskLevels int
	BidOrders int
	AskOrders int
	Book      book.Snapshot
}

// Read decodes a replay file.
func Read(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return records, nil
}

// Write encodes records as a replay file.
func Write(w io.Writer, records []Record) error {
	return json.NewEncoder(w).Encode(records)
}

// Generate builds the classic workload: one far ask, n asks at the same
// price, another far ask, then n bids that consume the n asks one by one.
func Generate(n int) []Record {
	far, near := decimal.NewFromInt(125), decimal.NewFromInt(122)
	records := make([]Record, 0, 2*n+2)
	records = append(records, Record{OrderType: "limit", Side: "sell", Price: far, Quantity: 1})
	for i := 0; i < n; i++ {
		records = append(records, Record{OrderType: "limit", Side: "sell", Price: near, Quantity: 1})
	}
	records = append(records, Record{OrderType: "limit", Side: "sell", Price: far, Quantity: 1})
	for i := 0; i < n; i++ {
		records = append(records, Record{OrderType: "limit", Side: "buy", Price: near, Quantity: 1})
	}
	return records
}

// Convert turns a record into a submit request, prices in ticks.
func Convert(record Record, tick common.TickSize) (engine.SubmitRequest, error) {
	orderType, err := parseOrderType(record.OrderType)
	if err != nil {
		return engine.SubmitRequest{}, err
	}
	side, err := parseSide(record.Side)
	if err != nil {
		return engine.SubmitRequest{}, err
	}

	var price common.Price
	if orderType != common.MarketOrder {
		if price, err = tick.FromDecimal(record.Price); err != nil {
			return engine.SubmitRequest{}, err
		}
	}
	return engine.SubmitRequest{
		Side:      side,
		OrderType: orderType,
		Price:     price,
		Quantity:  common.Quantity(record.Quantity),
		Owner:     "replay",
	}, nil
}

// Run converts every record up front, then submits them one by one to a
// fresh matcher, timing each call.
func Run(records []Record, tick common.TickSize, opts ...engine.MatcherOption) (Result, error) {
	requests := make([]engine.SubmitRequest, 0, len(records))
	for i, record := range records {
		req, err := Convert(record, tick)
		if err != nil {
			return Result{}, fmt.Errorf("record %d: %w", i, err)
		}
		requests = append(requests, req)
	}

	m := engine.NewMatcher(opts...)
	result := Result{Orders: len(requests)}
	for _, req := range requests {
		start := time.Now()
		res, err := m.Submit(req)
		elapsed := time.Since(start)

		result.Total += elapsed
		result.Max = max(result.Max, elapsed)
		if err != nil {
			result.Rejected++
			continue
		}
		result.Trades += len(res.Trades)
		for _, trade := range res.Trades {
			result.Volume += trade.Quantity
		}
	}

	if result.Orders > 0 {
		result.Average = result.Total / time.Duration(result.Orders)
	}
	bids, asks := m.Book().Bids(), m.Book().Asks()
	result.BidLevels, result.AskLevels = bids.Len(), asks.Len()
	result.BidOrders, result.AskOrders = bids.Orders(), asks.Orders()
	result.Book = m.Snapshot(10)
	return result, nil
}

func parseOrderType(s string) (common.OrderType, error) {
	switch strings.ToLower(s) {
	case "limit", "goodtilcancel", "gtc":
		return common.LimitOrder, nil
	case "market":
		return common.MarketOrder, nil
	case "immediateorcancel", "fillandkill", "ioc":
		return common.ImmediateOrCancel, nil
	case "fillorkill", "fok":
		return common.FillOrKill, nil
	case "postonly":
		return common.PostOnly, nil
	}
	return 0, fmt.Errorf("%w: %q", common.ErrInvalidOrderType, s)
}

func parseSide(s string) (common.Side, error) {
	switch strings.ToLower(s) {
	case "buy", "bid":
		return common.Buy, nil
	case "sell", "ask":
		return common.Sell, nil
	}
	return 0, fmt.Errorf("%w: %q", common.ErrInvalidSide, s)
}
