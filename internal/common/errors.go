package common

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder = errors.New("invalid order")
	ErrNotFound     = errors.New("order not found")
	ErrQueueFull    = errors.New("request queue full")

	// Refinements of ErrInvalidOrder.
	ErrInvalidPrice     = fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	ErrInvalidOrderType = fmt.Errorf("%w: malformed order type", ErrInvalidOrder)
	ErrInvalidSide      = fmt.Errorf("%w: malformed side", ErrInvalidOrder)
	ErrMarketPrice      = fmt.Errorf("%w: market orders carry no price", ErrInvalidOrder)
	ErrDuplicateOrder   = fmt.Errorf("%w: order already resting", ErrInvalidOrder)
	ErrEmptyModify      = fmt.Errorf("%w: modify changes nothing", ErrInvalidOrder)
	ErrPriceLimit       = fmt.Errorf("%w: price above limit", ErrInvalidOrder)
	ErrQuantityLimit    = fmt.Errorf("%w: quantity above limit", ErrInvalidOrder)
	ErrVolumeLimit      = fmt.Errorf("%w: side volume limit reached", ErrInvalidOrder)

	// Policy rejections. These leave the book untouched.
	ErrNoLiquidity = errors.New("not enough liquidity")
	ErrWouldCross  = errors.New("post only order would cross")

	ErrEngineStopped = errors.New("engine stopped")
)
