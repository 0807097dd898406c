package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"skoll/internal/common"
	"skoll/internal/engine"
)

const defaultWriteTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter publishes trades and order events as JSON. Messages are
// keyed by order id so every event of one order lands on one partition.
// The writer is asynchronous: delivery failures surface in the log through
// completed, never on the dispatcher.
type KafkaReporter struct {
	writer     messageWriter
	tradeTopic string
	orderTopic string
	timeout    time.Duration
	logger     zerolog.Logger
}

func NewKafkaReporter(brokers []string, tradeTopic, orderTopic string) *KafkaReporter {
	r := &KafkaReporter{
		tradeTopic: tradeTopic,
		orderTopic: orderTopic,
		timeout:    defaultWriteTimeout,
		logger:     log.With().Str("component", "kafka").Logger(),
	}
	r.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion:   r.completed,
	}
	return r
}

// completed is called by the writer once a batch is delivered or given up.
func (r *KafkaReporter) completed(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	topic := ""
	if len(messages) > 0 {
		topic = messages[0].Topic
	}
	r.logger.Error().
		Err(err).
		Str("topic", topic).
		Int("messages", len(messages)).
		Msg("kafka delivery failed")
}

func (r *KafkaReporter) ReportTrade(trade common.Trade) error {
	return r.publish(r.tradeTopic, trade.TakerID, trade)
}

func (r *KafkaReporter) ReportOrder(event engine.Event) error {
	return r.publish(r.orderTopic, event.Order.ID, orderMessage{
		Type:   event.Type.String(),
		Order:  event.Order,
		Reason: event.Reason,
	})
}

func (r *KafkaReporter) Close() error {
	return r.writer.Close()
}

type orderMessage struct {
	Type   string       `json:"type"`
	Order  common.Order `json:"order"`
	Reason string       `json:"reason,omitempty"`
}

func (r *KafkaReporter) publish(topic string, key common.OrderID, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err = r.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatUint(uint64(key), 10)),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
