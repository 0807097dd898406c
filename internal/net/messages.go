package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	. "skoll/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	ModifyOrder
	SnapshotRequest
)

func (t MessageType) String() string {
	switch t {
	case Heartbeat:
		return "heartbeat"
	case NewOrder:
		return "new_order"
	case CancelOrder:
		return "cancel_order"
	case ModifyOrder:
		return "modify_order"
	case SnapshotRequest:
		return "snapshot_request"
	}
	return fmt.Sprintf("message(%d)", uint16(t))
}

type Message interface {
	GetType() MessageType
}

// Message format constants. Every frame on the wire is a 2 byte big endian
// length followed by that many bytes of payload; the payload starts with
// the 2 byte message type.
const (
	FrameHeaderLen              = 2
	MaxFrameSize                = 4 * 1024
	BaseMessageHeaderLen        = 2
	NewOrderMessageHeaderLen    = 8 + 1 + 1 + 8 + 8
	CancelOrderMessageHeaderLen = 8 + 8
	ModifyOrderMessageHeaderLen = 8 + 8 + 1 + 8 + 8
	SnapshotMessageHeaderLen    = 8 + 2
)

// Modify flags say which of the modify fields carry a value.
const (
	ModifyPrice uint8 = 1 << iota
	ModifyQuantity
)

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

type NewOrderMessage struct {
	BaseMessage
	ClientRef uint64    // 8 bytes, echoed back in the ack
	OrderType OrderType // 1 byte
	Side      Side      // 1 byte
	Price     Price     // 8 bytes, ticks
	Quantity  Quantity  // 8 bytes
}

type CancelOrderMessage struct {
	BaseMessage
	ClientRef uint64  // 8 bytes
	OrderID   OrderID // 8 bytes
}

type ModifyOrderMessage struct {
	BaseMessage
	ClientRef uint64   // 8 bytes
	OrderID   OrderID  // 8 bytes
	Flags     uint8    // 1 byte
	Price     Price    // 8 bytes
	Quantity  Quantity // 8 bytes
}

type SnapshotRequestMessage struct {
	BaseMessage
	ClientRef uint64 // 8 bytes
	Depth     uint16 // 2 bytes, 0 for the full book
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, fmt.Errorf("%w: no header", ErrMessageTooShort)
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case NewOrder:
		return parseNewOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	case ModifyOrder:
		return parseModifyOrder(msg)
	case SnapshotRequest:
		return parseSnapshotRequest(msg)
	default:
		return BaseMessage{}, fmt.Errorf("%w: %d", ErrInvalidMessageType, uint16(typeOf))
	}
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	m.ClientRef = binary.BigEndian.Uint64(msg[0:8])
	m.OrderType = OrderType(msg[8])
	m.Side = Side(msg[9])
	m.Price = Price(binary.BigEndian.Uint64(msg[10:18]))
	m.Quantity = Quantity(binary.BigEndian.Uint64(msg[18:26]))
	return m, nil
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < CancelOrderMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}
	m.ClientRef = binary.BigEndian.Uint64(msg[0:8])
	m.OrderID = OrderID(binary.BigEndian.Uint64(msg[8:16]))
	return m, nil
}

func parseModifyOrder(msg []byte) (ModifyOrderMessage, error) {
	if len(msg) < ModifyOrderMessageHeaderLen {
		return ModifyOrderMessage{}, ErrMessageTooShort
	}
	m := ModifyOrderMessage{BaseMessage: BaseMessage{TypeOf: ModifyOrder}}
	m.ClientRef = binary.BigEndian.Uint64(msg[0:8])
	m.OrderID = OrderID(binary.BigEndian.Uint64(msg[8:16]))
	m.Flags = msg[16]
	m.Price = Price(binary.BigEndian.Uint64(msg[17:25]))
	m.Quantity = Quantity(binary.BigEndian.Uint64(msg[25:33]))
	return m, nil
}

func parseSnapshotRequest(msg []byte) (SnapshotRequestMessage, error) {
	if len(msg) < SnapshotMessageHeaderLen {
		return SnapshotRequestMessage{}, ErrMessageTooShort
	}
	m := SnapshotRequestMessage{BaseMessage: BaseMessage{TypeOf: SnapshotRequest}}
	m.ClientRef = binary.BigEndian.Uint64(msg[0:8])
	m.Depth = binary.BigEndian.Uint16(msg[8:10])
	return m, nil
}

// EncodeHeartbeat, EncodeNewOrder, EncodeCancelOrder, EncodeModifyOrder and
// EncodeSnapshotRequest build complete frames, length prefix included.

func EncodeHeartbeat() []byte {
	return frame(Heartbeat, 0)
}

func EncodeNewOrder(m NewOrderMessage) []byte {
	buf := frame(NewOrder, NewOrderMessageHeaderLen)
	body := buf[FrameHeaderLen+BaseMessageHeaderLen:]
	binary.BigEndian.PutUint64(body[0:8], m.ClientRef)
	body[8] = byte(m.OrderType)
	body[9] = byte(m.Side)
	binary.BigEndian.PutUint64(body[10:18], uint64(m.Price))
	binary.BigEndian.PutUint64(body[18:26], uint64(m.Quantity))
	return buf
}

func EncodeCancelOrder(m CancelOrderMessage) []byte {
	buf := frame(CancelOrder, CancelOrderMessageHeaderLen)
	body := buf[FrameHeaderLen+BaseMessageHeaderLen:]
	binary.BigEndian.PutUint64(body[0:8], m.ClientRef)
	binary.BigEndian.PutUint64(body[8:16], uint64(m.OrderID))
	return buf
}

func EncodeModifyOrder(m ModifyOrderMessage) []byte {
	buf := frame(ModifyOrder, ModifyOrderMessageHeaderLen)
	body := buf[FrameHeaderLen+BaseMessageHeaderLen:]
	binary.BigEndian.PutUint64(body[0:8], m.ClientRef)
	binary.BigEndian.PutUint64(body[8:16], uint64(m.OrderID))
	body[16] = m.Flags
	binary.BigEndian.PutUint64(body[17:25], uint64(m.Price))
	binary.BigEndian.PutUint64(body[25:33], uint64(m.Quantity))
	return buf
}

func EncodeSnapshotRequest(m SnapshotRequestMessage) []byte {
	buf := frame(SnapshotRequest, SnapshotMessageHeaderLen)
	body := buf[FrameHeaderLen+BaseMessageHeaderLen:]
	binary.BigEndian.PutUint64(body[0:8], m.ClientRef)
	binary.BigEndian.PutUint16(body[8:10], m.Depth)
	return buf
}

// frame allocates a frame for a payload of type typeOf with bodyLen bytes
// after the type.
func frame(typeOf MessageType, bodyLen int) []byte {
	payload := BaseMessageHeaderLen + bodyLen
	buf := make([]byte, FrameHeaderLen+payload)
	binary.BigEndian.PutUint16(buf[0:2], uint16(payload))
	binary.BigEndian.PutUint16(buf[2:4], uint16(typeOf))
	return buf
}

// ReadFrame reads one length prefixed frame and returns its payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(header[:]))
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
