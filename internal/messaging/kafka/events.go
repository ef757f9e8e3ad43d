package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// Topics по умолчанию.
const (
	DefaultEventsTopic = "orders.events"
	DefaultIngestTopic = "orders.inbound"
	DefaultDLQTopic    = "orders.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
)

// OrderEventMessage — JSON-представление события заказа в топике событий.
type OrderEventMessage struct {
	EventID   string           `json:"event_id"`
	EventType domain.EventType `json:"event_type"`
	OrderID   string           `json:"order_id"`
	Timestamp time.Time        `json:"timestamp"`
	Order     json.RawMessage  `json:"order,omitempty"`
}

// DLQMessage — содержимое сообщения в Dead Letter Queue.
type DLQMessage struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
	Permanent         bool   `json:"permanent"`
}

// NewOrderEventMessage переводит доменное событие в формат сообщения.
func NewOrderEventMessage(event domain.OrderEvent) (*OrderEventMessage, error) {
	msg := &OrderEventMessage{
		EventID:   event.ID,
		EventType: event.Type,
		OrderID:   event.OrderID,
		Timestamp: event.OccurredAt.UTC(),
	}
	if event.Payload != nil {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal order payload: %w", err)
		}
		msg.Order = raw
	}
	return msg, nil
}

// ParseOrderEvent парсит OrderEventMessage из сообщения
func ParseOrderEvent(message *sarama.ConsumerMessage) (*OrderEventMessage, error) {
	var event OrderEventMessage
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return &event, nil
}

// ParseDLQMessage парсит сообщение из DLQ
func ParseDLQMessage(message *sarama.ConsumerMessage) (*DLQMessage, error) {
	var dlq DLQMessage
	if err := json.Unmarshal(message.Value, &dlq); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dlq message: %w", err)
	}
	return &dlq, nil
}
