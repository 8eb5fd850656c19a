package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/tablegate/core"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes change events to a Kafka topic. Messages are keyed by
// table name, so all changes of one table land in the same partition.
type Kafka struct {
	writer messageWriter
}

// NewKafka returns a notifier writing to topic on the given brokers
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			WriteTimeout:           10 * time.Second,
		},
	}
}

// Notify implements core.Notifier
func (k *Kafka) Notify(ctx context.Context, table string, operation core.Operation, payload []byte) error {
	data, err := json.Marshal(newEvent(ctx, table, operation, payload))
	if err != nil {
		return fmt.Errorf("cannot marshal change event: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(table), Value: data}); err != nil {
		return fmt.Errorf("cannot publish change event for %s: %w", table, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}

var _ core.Notifier = (*Kafka)(nil)
