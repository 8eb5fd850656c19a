/*
Package notify publishes change notifications for committed table mutations.

Two notifiers are available: Log writes every change to the request logger,
Kafka publishes it as a JSON message keyed by table name.
*/
package notify

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/tablegate/core"
	"github.com/relabs-tech/tablegate/core/logger"
)

// Event is the published form of a change
type Event struct {
	Table     string          `json:"table"`
	Operation core.Operation  `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func newEvent(ctx context.Context, table string, operation core.Operation, payload []byte) Event {
	return Event{
		Table:     table,
		Operation: operation,
		Payload:   payload,
		RequestID: logger.RequestIDFromContext(ctx),
		Timestamp: time.Now().UTC(),
	}
}

// Log is a notifier which logs every change
type Log struct{}

// Notify implements core.Notifier
func (Log) Notify(ctx context.Context, table string, operation core.Operation, payload []byte) error {
	logger.FromContext(ctx).WithFields(logrus.Fields{
		"table":     table,
		"operation": operation,
	}).Infoln("change:", string(payload))
	return nil
}

var _ core.Notifier = Log{}
