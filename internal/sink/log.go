package sink

import (
	"github.com/rs/zerolog"

	"skoll/internal/common"
	"skoll/internal/engine"
)

// LogReporter writes every event as a structured log line.
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With().Str("component", "events").Logger()}
}

func (r *LogReporter) ReportTrade(trade common.Trade) error {
	r.logger.Info().
		Uint64("seq", trade.Sequence).
		Int64("price", int64(trade.Price)).
		Int64("qty", int64(trade.Quantity)).
		Uint64("taker", uint64(trade.TakerID)).
		Uint64("maker", uint64(trade.MakerID)).
		Str("taker_side", trade.TakerSide.String()).
		Msg("trade")
	return nil
}

func (r *LogReporter) ReportOrder(event engine.Event) error {
	e := r.logger.Debug()
	if event.Type == engine.EventRejected {
		e = r.logger.Info().Str("reason", event.Reason)
	}
	e.Str("event", event.Type.String()).
		Uint64("order", uint64(event.Order.ID)).
		Str("side", event.Order.Side.String()).
		Str("type", event.Order.OrderType.String()).
		Int64("price", int64(event.Order.Price)).
		Int64("remaining", int64(event.Order.Remaining)).
		Int64("filled", int64(event.Order.Filled)).
		Msg("order")
	return nil
}
