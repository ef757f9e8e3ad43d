package kafka

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// OrderEventPublisher публикует события заказов в заданный Kafka topic.
// Ключ сообщения равен бизнес-ключу заказа: события одного заказа идут в одну partition.
type OrderEventPublisher struct {
	producer *Producer
	topic    string
}

// NewOrderEventPublisher создаёт Kafka-паблишер событий заказов.
func NewOrderEventPublisher(producer *Producer, topic string) *OrderEventPublisher {
	if topic == "" {
		topic = DefaultEventsTopic
	}
	return &OrderEventPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish отправляет событие; контекст проверяется до отправки, сам SyncProducer его не поддерживает.
func (p *OrderEventPublisher) Publish(ctx context.Context, event domain.OrderEvent) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka order event publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := NewOrderEventMessage(event)
	if err != nil {
		return err
	}
	return p.producer.PublishEvent(p.topic, event.OrderID, msg)
}

var _ domain.EventPublisher = (*OrderEventPublisher)(nil)
