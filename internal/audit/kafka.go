package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/apexrewards/pointsledger/internal/logger"
	"github.com/apexrewards/pointsledger/internal/models"
)

const (
	eventTransactionCreated   = "transaction.created"
	eventTransactionProcessed = "transaction.processed"
	eventTransactionFlagged   = "transaction.flagged"
)

// record is the wire shape of one audit message
type record struct {
	Event       string    `json:"event"`
	Transaction uuid.UUID `json:"transaction"`
	Kind        string    `json:"kind"`
	Issuer      uuid.UUID `json:"issuer"`
	Receiver    uuid.UUID `json:"receiver"`
	Amount      int64     `json:"amount"`
	Suspicious  bool      `json:"suspicious"`
	Processed   bool      `json:"processed"`
	At          time.Time `json:"at"`
}

// KafkaPublisher streams audit records to a kafka topic. Writes are async;
// failures are logged and dropped rather than failing ledger operations.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger logger.Logger
}

func NewKafkaPublisher(brokers []string, topic string, l logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		Async:        true,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{writer: writer, logger: l}
}

func (p *KafkaPublisher) TransactionCreated(ctx context.Context, tr models.Transaction) {
	p.publish(ctx, eventTransactionCreated, tr)
}

func (p *KafkaPublisher) TransactionProcessed(ctx context.Context, tr models.Transaction) {
	p.publish(ctx, eventTransactionProcessed, tr)
}

func (p *KafkaPublisher) TransactionFlagged(ctx context.Context, tr models.Transaction) {
	p.publish(ctx, eventTransactionFlagged, tr)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) publish(ctx context.Context, event string, tr models.Transaction) {
	value, err := json.Marshal(record{
		Event:       event,
		Transaction: tr.ID,
		Kind:        tr.Kind,
		Issuer:      tr.IssuerID,
		Receiver:    tr.ReceiverID,
		Amount:      tr.Amount,
		Suspicious:  tr.Suspicious,
		Processed:   tr.Processed,
		At:          time.Now(),
	})
	if err != nil {
		p.logger.Error("Failed to encode audit record", "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(tr.ID.String()),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish audit record", "event", event, "error", err)
	}
}
