package net

import (
	"encoding/binary"
	"fmt"
	"time"

	"skoll/internal/book"
	. "skoll/internal/common"
)

type ReportMessageType uint16

const (
	AckReportType ReportMessageType = iota
	ExecutionReportType
	ErrorReportType
	SnapshotReportType
)

// Liquidity flags on execution reports.
const (
	Maker uint8 = iota
	Taker
)

const (
	ackReportLen       = 8 + 2 + 8 + 1 + 8 + 8 + 8 + 8
	executionReportLen = 8 + 8 + 1 + 1 + 8 + 8 + 8
	errorReportLen     = 8 + 2 + 2
	snapshotReportLen  = 8 + 8 + 2 + 2
	snapshotLevelLen   = 8 + 8 + 4

	// MaxSnapshotDepth keeps a full snapshot report inside one frame.
	MaxSnapshotDepth = 100
)

// Report is anything the server sends back to a client.
type Report interface {
	ReportType() ReportMessageType
	Encode() []byte
}

// AckReport answers a request that the engine accepted.
type AckReport struct {
	ClientRef   uint64
	RequestType MessageType
	OrderID     OrderID
	Status      OrderStatus
	Price       Price
	Quantity    Quantity
	Filled      Quantity
	Remaining   Quantity
}

func (AckReport) ReportType() ReportMessageType { return AckReportType }

func (r AckReport) Encode() []byte {
	buf := reportFrame(AckReportType, ackReportLen)
	body := buf[FrameHeaderLen+BaseMessageHeaderLen:]
	binary.BigEndian.PutUint64(body[0:8], r.ClientRef)
	binary.BigEndian.PutUint16(body[8:10], uint16(r.RequestType))
	binary.BigEndian.PutUint64(body[10:18], uint64(r.OrderID))
	body[18] = byte(r.Status)
	binary.BigEndian.PutUint64(body[19:27], uint64(r.Price))
	binary.BigEndian.PutUint64(body[27:35], uint64(r.Quantity))
	binary.BigEndian.PutUint64(body[35:43], uint64(r.Filled))
	binary.BigEndian.PutUint64(body[43:51], uint64(r.Remaining))
	return buf
}

func ackFromOrder(ref uint64, typeOf MessageType, status OrderStatus, order Order) AckReport {
	return AckReport{
		ClientRef:   ref,
		RequestType: typeOf,
		OrderID:     order.ID,
		Status:      status,
		Price:       order.Price,
		Quantity:    order.Quantity,
		Filled:      order.Filled,
		Remaining:   order.Remaining,
	}
}

// ExecutionReport tells one party of a trade about its fill.
type ExecutionReport struct {
	OrderID   OrderID
	TradeSeq  uint64
	Side      Side
	Liquidity uint8
	Price     Price
	Quantity  Quantity
	Timestamp time.Time
}

func (ExecutionReport) ReportType() ReportMessageType { return ExecutionReportType }

func (r ExecutionReport) Encode() []byte {
	buf := reportFrame(ExecutionReportType, executionReportLen)
	body := buf[FrameHeaderLen+BaseMessageHeaderLen:]
	binary.BigEndian.PutUint64(body[0:8], uint64(r.OrderID))
	binary.BigEndian.PutUint64(body[8:16], r.TradeSeq)
	body[16] = byte(r.Side)
	body[17] = r.Liquidity
	binary.BigEndian.PutUint64(body[18:26], uint64(r.Price))
	binary.BigEndian.PutUint64(body[26:34], uint64(r.Quantity))
	binary.BigEndian.PutUint64(body[34:42], uint64(r.Timestamp.UnixNano()))
	return buf
}

// generateTradeReports builds the reports for both sides of a trade.
func generateTradeReports(trade Trade) (taker ExecutionReport, maker ExecutionReport) {
	taker = ExecutionReport{
		OrderID:   trade.TakerID,
		TradeSeq:  trade.Sequence,
		Side:      trade.TakerSide,
		Liquidity: Taker,
		Price:     trade.Price,
		Quantity:  trade.Quantity,
		Timestamp: trade.Timestamp,
	}
	maker = taker
	maker.OrderID = trade.MakerID
	maker.Side = trade.TakerSide.Opposite()
	maker.Liquidity = Maker
	return taker, maker
}

// ErrorReport answers a request that failed.
type ErrorReport struct {
	ClientRef   uint64
	RequestType MessageType
	Err         string
}

func (ErrorReport) ReportType() ReportMessageType { return ErrorReportType }

func (r ErrorReport) Encode() []byte {
	errStr := r.Err
	if limit := MaxFrameSize - BaseMessageHeaderLen - errorReportLen; len(errStr) > limit {
		errStr = errStr[:limit]
	}
	buf := reportFrame(ErrorReportType, errorReportLen+len(errStr))
	body := buf[FrameHeaderLen+BaseMessageHeaderLen:]
	binary.BigEndian.PutUint64(body[0:8], r.ClientRef)
	binary.BigEndian.PutUint16(body[8:10], uint16(r.RequestType))
	binary.BigEndian.PutUint16(body[10:12], uint16(len(errStr)))
	copy(body[errorReportLen:], errStr)
	return buf
}

// SnapshotReport carries aggregated depth, best level first on each side.
type SnapshotReport struct {
	ClientRef uint64
	Sequence  uint64
	Bids      []book.LevelView
	Asks      []book.LevelView
}

func (SnapshotReport) ReportType() ReportMessageType { return SnapshotReportType }

func (r SnapshotReport) Encode() []byte {
	bids, asks := clip(r.Bids), clip(r.Asks)
	buf := reportFrame(SnapshotReportType, snapshotReportLen+(len(bids)+len(asks))*snapshotLevelLen)
	body := buf[FrameHeaderLen+BaseMessageHeaderLen:]
	binary.BigEndian.PutUint64(body[0:8], r.ClientRef)
	binary.BigEndian.PutUint64(body[8:16], r.Sequence)
	binary.BigEndian.PutUint16(body[16:18], uint16(len(bids)))
	binary.BigEndian.PutUint16(body[18:20], uint16(len(asks)))

	offset := snapshotReportLen
	for _, levels := range [][]book.LevelView{bids, asks} {
		for _, l := range levels {
			binary.BigEndian.PutUint64(body[offset:offset+8], uint64(l.Price))
			binary.BigEndian.PutUint64(body[offset+8:offset+16], uint64(l.Quantity))
			binary.BigEndian.PutUint32(body[offset+16:offset+20], uint32(l.Orders))
			offset += snapshotLevelLen
		}
	}
	return buf
}

func clip(levels []book.LevelView) []book.LevelView {
	if len(levels) > MaxSnapshotDepth {
		return levels[:MaxSnapshotDepth]
	}
	return levels
}

func reportFrame(typeOf ReportMessageType, bodyLen int) []byte {
	return frame(MessageType(typeOf), bodyLen)
}

// ParseReport decodes a report payload as returned by ReadFrame.
func ParseReport(msg []byte) (Report, error) {
	if len(msg) < BaseMessageHeaderLen {
		return nil, fmt.Errorf("%w: no header", ErrMessageTooShort)
	}
	typeOf := ReportMessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]

	switch typeOf {
	case AckReportType:
		if len(body) < ackReportLen {
			return nil, ErrMessageTooShort
		}
		return AckReport{
			ClientRef:   binary.BigEndian.Uint64(body[0:8]),
			RequestType: MessageType(binary.BigEndian.Uint16(body[8:10])),
			OrderID:     OrderID(binary.BigEndian.Uint64(body[10:18])),
			Status:      OrderStatus(body[18]),
			Price:       Price(binary.BigEndian.Uint64(body[19:27])),
			Quantity:    Quantity(binary.BigEndian.Uint64(body[27:35])),
			Filled:      Quantity(binary.BigEndian.Uint64(body[35:43])),
			Remaining:   Quantity(binary.BigEndian.Uint64(body[43:51])),
		}, nil

	case ExecutionReportType:
		if len(body) < executionReportLen {
			return nil, ErrMessageTooShort
		}
		return ExecutionReport{
			OrderID:   OrderID(binary.BigEndian.Uint64(body[0:8])),
			TradeSeq:  binary.BigEndian.Uint64(body[8:16]),
			Side:      Side(body[16]),
			Liquidity: body[17],
			Price:     Price(binary.BigEndian.Uint64(body[18:26])),
			Quantity:  Quantity(binary.BigEndian.Uint64(body[26:34])),
			Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(body[34:42]))).UTC(),
		}, nil

	case ErrorReportType:
		if len(body) < errorReportLen {
			return nil, ErrMessageTooShort
		}
		n := int(binary.BigEndian.Uint16(body[10:12]))
		if len(body) < errorReportLen+n {
			return nil, ErrMessageTooShort
		}
		return ErrorReport{
			ClientRef:   binary.BigEndian.Uint64(body[0:8]),
			RequestType: MessageType(binary.BigEndian.Uint16(body[8:10])),
			Err:         string(body[errorReportLen : errorReportLen+n]),
		}, nil

	case SnapshotReportType:
		if len(body) < snapshotReportLen {
			return nil, ErrMessageTooShort
		}
		r := SnapshotReport{
			ClientRef: binary.BigEndian.Uint64(body[0:8]),
			Sequence:  binary.BigEndian.Uint64(body[8:16]),
		}
		nBids := int(binary.BigEndian.Uint16(body[16:18]))
		nAsks := int(binary.BigEndian.Uint16(body[18:20]))
		if len(body) < snapshotReportLen+(nBids+nAsks)*snapshotLevelLen {
			return nil, ErrMessageTooShort
		}
		offset := snapshotReportLen
		readLevels := func(n int) []book.LevelView {
			var levels []book.LevelView
			for i := 0; i < n; i++ {
				levels = append(levels, book.LevelView{
					Price:    Price(binary.BigEndian.Uint64(body[offset : offset+8])),
					Quantity: Quantity(binary.BigEndian.Uint64(body[offset+8 : offset+16])),
					Orders:   int(binary.BigEndian.Uint32(body[offset+16 : offset+20])),
				})
				offset += snapshotLevelLen
			}
			return levels
		}
		r.Bids = readLevels(nBids)
		r.Asks = readLevels(nAsks)
		return r, nil
	}
	return nil, fmt.Errorf("%w: report %d", ErrInvalidMessageType, uint16(typeOf))
}
