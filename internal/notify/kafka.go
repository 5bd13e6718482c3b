package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	id "proctrack/pkg/domain"
)

// KafkaNotifier publishes event envelopes keyed by transaction id, so all
// events of one document land on one partition in order.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

func NewKafkaNotifier(client *kgo.Client, topic string, logger *slog.Logger) *KafkaNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaNotifier{client: client, topic: topic, logger: logger}
}

func (n *KafkaNotifier) OutOfWorkflow(ctx context.Context, event OutOfWorkflowEvent) {
	n.publish(ctx, EventOutOfWorkflow, event.TransactionID, event.OccurredAt, event)
}

func (n *KafkaNotifier) Received(ctx context.Context, event ReceivedEvent) {
	n.publish(ctx, EventReceived, event.TransactionID, event.OccurredAt, event)
}

func (n *KafkaNotifier) Completed(ctx context.Context, event CompletedEvent) {
	n.publish(ctx, EventCompleted, event.TransactionID, event.OccurredAt, event)
}

// Overdue waits for the broker to acknowledge the event, since the sweep
// stamps the document only after a successful hand-off.
func (n *KafkaNotifier) Overdue(ctx context.Context, event OverdueEvent) error {
	if n.client == nil {
		return nil
	}
	record, err := n.record(EventOverdue, event.TransactionID, event.OccurredAt, event)
	if err != nil {
		return err
	}
	if err := n.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish overdue event: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) record(eventType EventType, txnID id.TransactionID, occurredAt time.Time, payload any) (*kgo.Record, error) {
	envelope := Envelope{Type: eventType, TransactionID: txnID, OccurredAt: occurredAt.UTC(), Payload: payload}
	value, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return &kgo.Record{
		Topic:   n.topic,
		Key:     []byte(txnID.String()),
		Value:   value,
		Headers: []kgo.RecordHeader{{Key: "event_type", Value: []byte(eventType)}},
	}, nil
}

func (n *KafkaNotifier) publish(ctx context.Context, eventType EventType, txnID id.TransactionID, occurredAt time.Time, payload any) {
	if n.client == nil {
		return
	}
	record, err := n.record(eventType, txnID, occurredAt, payload)
	if err != nil {
		n.logger.WarnContext(ctx, "notification: failed to marshal event",
			"event_type", string(eventType),
			"error", err,
		)
		return
	}
	// The request context ends with the request; delivery must outlive it.
	n.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			n.logger.Warn("notification: failed to publish event",
				"event_type", string(eventType),
				"transaction_id", txnID.String(),
				"topic", r.Topic,
				"error", err,
			)
		}
	})
}

// Flush waits for buffered events.
func (n *KafkaNotifier) Flush(ctx context.Context) error {
	if n.client == nil {
		return nil
	}
	return n.client.Flush(ctx)
}

// Close flushes buffered events for at most timeout, then closes the client.
// Events still unsent after the timeout are logged as lost.
func (n *KafkaNotifier) Close(timeout time.Duration) {
	if n.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := n.Flush(ctx); err != nil {
		n.logger.Warn("notification: flush on shutdown incomplete",
			"buffered", n.client.BufferedProduceRecords(),
			"error", err,
		)
	}
	n.client.Close()
}
