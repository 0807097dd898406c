package engine

import (
	"fmt"

	"skoll/internal/common"
)

type EventType int

const (
	EventAccepted EventType = iota
	EventRejected
	EventRested
	EventTrade
	EventPartiallyFilled
	EventFilled
	EventCancelled
	EventModified
)

func (t EventType) String() string {
	switch t {
	case EventAccepted:
		return "accepted"
	case EventRejected:
		return "rejected"
	case EventRested:
		return "rested"
	case EventTrade:
		return "trade"
	case EventPartiallyFilled:
		return "partially_filled"
	case EventFilled:
		return "filled"
	case EventCancelled:
		return "cancelled"
	case EventModified:
		return "modified"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is one entry of the outward stream. Order holds the state of the
// order right after the event; Trade is only set for EventTrade.
type Event struct {
	Type   EventType    `json:"type"`
	Order  common.Order `json:"order"`
	Trade  common.Trade `json:"trade"`
	Reason string       `json:"reason,omitempty"`
}

// Reporter consumes the event stream. Reporters run on the engine's
// dispatcher goroutine, in the order events were produced; their errors
// are logged and never reach the book.
type Reporter interface {
	ReportTrade(trade common.Trade) error
	ReportOrder(event Event) error
}

// Flusher is implemented by reporters that buffer writes. The dispatcher
// calls Flush each time it has caught up with the matcher, and once more
// before it exits.
type Flusher interface {
	Flush() error
}

func deliver(reporter Reporter, event Event) error {
	if event.Type == EventTrade {
		return reporter.ReportTrade(event.Trade)
	}
	return reporter.ReportOrder(event)
}
