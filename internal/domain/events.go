package domain

import (
	"context"
	"time"
)

// EventType — тип события жизненного цикла заказа.
type EventType string

const (
	EventOrderCreated  EventType = "order.created"
	EventOrderReplaced EventType = "order.replaced"
	EventOrderDeleted  EventType = "order.deleted"
)

// OrderEvent описывает изменение заказа, произошедшее после успешного коммита.
type OrderEvent struct {
	ID         string
	Type       EventType
	OrderID    string
	OccurredAt time.Time
	// Payload — снимок заказа во внешнем формате; для удаления пустой.
	Payload any
}

// EventPublisher публикует события заказов во внешнюю шину.
type EventPublisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}
