package sink

import (
	"errors"

	"skoll/internal/common"
	"skoll/internal/engine"
)

// Multi delivers to every reporter, whatever the others return.
type Multi []engine.Reporter

func (m Multi) ReportTrade(trade common.Trade) error {
	var errs []error
	for _, r := range m {
		if err := r.ReportTrade(trade); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) ReportOrder(event engine.Event) error {
	var errs []error
	for _, r := range m {
		if err := r.ReportOrder(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every member that buffers.
func (m Multi) Flush() error {
	var errs []error
	for _, r := range m {
		if flusher, ok := r.(engine.Flusher); ok {
			if err := flusher.Flush(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
