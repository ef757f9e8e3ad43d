package app

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/mapper"
	"github.com/vladislavdragonenkov/orderstore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderstore/internal/metrics"
)

// Результаты приёма заказа из Kafka (метка orders_ingested_total).
const (
	ingestCreated   = "created"
	ingestDuplicate = "duplicate"
	ingestRejected  = "rejected"
	ingestFailed    = "failed"
)

type orderCreator interface {
	Create(ctx context.Context, payload map[string]any) (*mapper.ExternalOrder, error)
}

// newIngestHandler создаёт обработчик входящих заказов во внешнем формате.
// Невалидные сообщения помечаются Permanent и сразу уходят в DLQ.
// Повторная доставка уже созданного заказа считается успехом.
func newIngestHandler(orders orderCreator, m *metrics.StoreMetrics, logger *log.Entry) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		fields := log.Fields{
			"topic":     message.Topic,
			"partition": message.Partition,
			"offset":    message.Offset,
		}

		payload, err := decodeIngestPayload(message.Value)
		if err != nil {
			m.RecordIngested(ingestRejected)
			logger.WithError(err).WithFields(fields).Warn("rejected malformed order message")
			return kafka.Permanent(err)
		}

		order, err := orders.Create(ctx, payload)
		switch {
		case err == nil:
			m.RecordIngested(ingestCreated)
			logger.WithFields(fields).WithField("order_id", order.OrderID).Info("order ingested")
			return nil
		case domain.IsConflict(err):
			m.RecordIngested(ingestDuplicate)
			logger.WithFields(fields).Info("order already exists, skipping redelivery")
			return nil
		case domain.KindOf(err) == domain.KindValidation, domain.KindOf(err) == domain.KindConstraint:
			m.RecordIngested(ingestRejected)
			return kafka.Permanent(err)
		default:
			m.RecordIngested(ingestFailed)
			return err
		}
	}
}

func decodeIngestPayload(value []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, domain.NewValidationError("malformed order message: %v", err)
	}
	if dec.More() {
		return nil, domain.NewValidationError("malformed order message: %s", "trailing data")
	}
	return payload, nil
}
