package common

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrOffTick = fmt.Errorf("%w: price is not a multiple of the tick size", ErrInvalidOrder)

// TickSize converts between human decimal prices and the integer ticks
// used inside the book. Conversion only ever happens at the edges.
type TickSize struct {
	tick decimal.Decimal
}

func NewTickSize(s string) (TickSize, error) {
	tick, err := decimal.NewFromString(s)
	if err != nil {
		return TickSize{}, fmt.Errorf("parse tick size %q: %w", s, err)
	}
	if !tick.IsPositive() {
		return TickSize{}, errors.New("tick size must be positive")
	}
	return TickSize{tick: tick}, nil
}

// MustTickSize is NewTickSize for constants.
func MustTickSize(s string) TickSize {
	tick, err := NewTickSize(s)
	if err != nil {
		panic(err)
	}
	return tick
}

// ParsePrice converts a decimal string into ticks. Prices that fall
// between two ticks are rejected rather than rounded.
func (t TickSize) ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	return t.FromDecimal(d)
}

func (t TickSize) FromDecimal(d decimal.Decimal) (Price, error) {
	if !d.Mod(t.tick).IsZero() {
		return 0, fmt.Errorf("%w: %s (tick %s)", ErrOffTick, d, t.tick)
	}
	return Price(d.Div(t.tick).IntPart()), nil
}

func (t TickSize) Decimal(p Price) decimal.Decimal {
	return decimal.NewFromInt(int64(p)).Mul(t.tick)
}

func (t TickSize) FormatPrice(p Price) string {
	return t.Decimal(p).String()
}

func (t TickSize) String() string {
	return t.tick.String()
}
