package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skoll/internal/common"
	"skoll/internal/engine"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var testTrade = common.Trade{
	Sequence:  1,
	Price:     100,
	Quantity:  3,
	TakerID:   7,
	MakerID:   2,
	TakerSide: common.Buy,
	Timestamp: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
}

func TestKafkaReporter(t *testing.T) {
	writer := &fakeWriter{}
	reporter := &KafkaReporter{writer: writer, tradeTopic: "trades", orderTopic: "orders", timeout: time.Second}

	require.NoError(t, reporter.ReportTrade(testTrade))
	require.NoError(t, reporter.ReportOrder(engine.Event{
		Type:  engine.EventRested,
		Order: common.Order{ID: 9, Side: common.Sell, Price: 101, Quantity: 4, Remaining: 4},
	}))
	require.Len(t, writer.messages, 2)

	trade := writer.messages[0]
	assert.Equal(t, "trades", trade.Topic)
	assert.Equal(t, "7", string(trade.Key))
	var decoded common.Trade
	require.NoError(t, json.Unmarshal(trade.Value, &decoded))
	assert.Equal(t, testTrade, decoded)

	order := writer.messages[1]
	assert.Equal(t, "orders", order.Topic)
	assert.Equal(t, "9", string(order.Key))
	var msg orderMessage
	require.NoError(t, json.Unmarshal(order.Value, &msg))
	assert.Equal(t, "rested", msg.Type)
	assert.Equal(t, common.Quantity(4), msg.Order.Remaining)

	require.NoError(t, reporter.Close())
	assert.True(t, writer.closed)
}

func TestKafkaReporter_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	reporter := &KafkaReporter{writer: &fakeWriter{err: boom}, tradeTopic: "trades", timeout: time.Second}
	assert.ErrorIs(t, reporter.ReportTrade(testTrade), boom)
}

func TestNewKafkaReporter_Async(t *testing.T) {
	reporter := NewKafkaReporter([]string{"127.0.0.1:9092"}, "trades", "orders")
	defer reporter.Close()

	writer, ok := reporter.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.True(t, writer.Async, "publishing must not wait on the broker")
	assert.NotNil(t, writer.Completion)
}

func TestKafkaReporter_CompletionLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	reporter := &KafkaReporter{logger: zerolog.New(&buf)}

	reporter.completed([]kafka.Message{{Topic: "trades"}}, nil)
	assert.Zero(t, buf.Len())

	reporter.completed([]kafka.Message{{Topic: "trades"}, {Topic: "trades"}}, errors.New("broker down"))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "broker down", line["error"])
	assert.Equal(t, "trades", line["topic"])
	assert.EqualValues(t, 2, line["messages"])
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewLogReporter(zerolog.New(&buf))

	require.NoError(t, reporter.ReportTrade(testTrade))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "trade", line["message"])
	assert.Equal(t, "events", line["component"])
	assert.EqualValues(t, 100, line["price"])
	assert.Equal(t, "buy", line["taker_side"])

	buf.Reset()
	require.NoError(t, reporter.ReportOrder(engine.Event{Type: engine.EventRejected, Reason: "invalid order"}))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "invalid order", line["reason"])
}

type failingReporter struct{ err error }

func (r failingReporter) ReportTrade(common.Trade) error { return r.err }
func (r failingReporter) ReportOrder(engine.Event) error { return r.err }

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	writer := &fakeWriter{}
	multi := Multi{
		failingReporter{err: boom},
		&KafkaReporter{writer: writer, tradeTopic: "trades", orderTopic: "orders", timeout: time.Second},
	}

	assert.ErrorIs(t, multi.ReportTrade(testTrade), boom)
	assert.ErrorIs(t, multi.ReportOrder(engine.Event{Type: engine.EventCancelled}), boom)
	assert.Len(t, writer.messages, 2, "later reporters still run")
}

type flushingReporter struct {
	failingReporter
	flushes int
}

func (r *flushingReporter) Flush() error {
	r.flushes++
	return r.err
}

func TestMulti_Flush(t *testing.T) {
	boom := errors.New("boom")
	ok, failing := &flushingReporter{}, &flushingReporter{failingReporter: failingReporter{err: boom}}
	multi := Multi{ok, NewLogReporter(zerolog.Nop()), failing}

	assert.ErrorIs(t, multi.Flush(), boom)
	assert.Equal(t, 1, ok.flushes)
	assert.Equal(t, 1, failing.flushes)
}
