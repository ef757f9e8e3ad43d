// Package orders содержит прикладной сервис заказов: валидация и маппинг входа,
// транзакционная операция хранилища, обратный маппинг и публикация событий.
package orders

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/mapper"
	"github.com/vladislavdragonenkov/orderstore/internal/metrics"
)

// Имена операций для логов и метрик.
const (
	OpCreate  = "create"
	OpGet     = "get"
	OpList    = "list"
	OpReplace = "replace"
	OpDelete  = "delete"
)

const publishTimeout = 5 * time.Second

// Service выполняет операции над заказами поверх OrderStore.
type Service struct {
	store     domain.OrderStore
	publisher domain.EventPublisher
	metrics   *metrics.StoreMetrics
	logger    *log.Entry
	now       func() time.Time
	newID     func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithPublisher включает публикацию событий после успешных изменений.
func WithPublisher(publisher domain.EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithMetrics включает запись метрик.
func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService создаёт сервис заказов.
func NewService(store domain.OrderStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.WithField("component", "order-service"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create проверяет внешний payload, сохраняет заказ и возвращает его во внешнем формате.
func (s *Service) Create(ctx context.Context, payload map[string]any) (result *mapper.ExternalOrder, err error) {
	done := s.metrics.StartOperation(OpCreate)
	defer func() { done(resultLabel(err)) }()

	draft, err := mapper.ToInternal(payload)
	if err != nil {
		s.logFailure(OpCreate, stringField(payload, mapper.FieldOrderID), err)
		return nil, err
	}
	s.warnOnTotalMismatch(draft)

	order, err := s.store.Create(ctx, draft)
	if err != nil {
		s.logFailure(OpCreate, draft.OrderID, err)
		return nil, err
	}

	result = mapper.ToExternal(&order)
	s.publish(ctx, domain.EventOrderCreated, order.OrderID, result)
	s.logger.WithFields(log.Fields{
		"operation": OpCreate,
		"order_id":  order.OrderID,
		"items":     len(order.Items),
	}).Info("order created")

	return result, nil
}

// Get возвращает заказ по бизнес-ключу.
func (s *Service) Get(ctx context.Context, orderID string) (result *mapper.ExternalOrder, err error) {
	done := s.metrics.StartOperation(OpGet)
	defer func() { done(resultLabel(err)) }()

	if orderID == "" {
		return nil, domain.NewValidationError("required field missing: %s", mapper.FieldOrderID)
	}

	order, err := s.store.GetByOrderID(ctx, orderID)
	if err != nil {
		s.logFailure(OpGet, orderID, err)
		return nil, err
	}
	return mapper.ToExternal(&order), nil
}

// List возвращает все заказы, новые первыми.
func (s *Service) List(ctx context.Context) (result []*mapper.ExternalOrder, err error) {
	done := s.metrics.StartOperation(OpList)
	defer func() { done(resultLabel(err)) }()

	orders, err := s.store.List(ctx)
	if err != nil {
		s.logFailure(OpList, "", err)
		return nil, err
	}
	return mapper.ToExternalList(orders), nil
}

// Replace целиком заменяет заказ. Бизнес-ключ в теле, если указан, должен совпадать с orderID.
func (s *Service) Replace(ctx context.Context, orderID string, payload map[string]any) (result *mapper.ExternalOrder, err error) {
	done := s.metrics.StartOperation(OpReplace)
	defer func() { done(resultLabel(err)) }()

	if orderID == "" {
		return nil, domain.NewValidationError("required field missing: %s", mapper.FieldOrderID)
	}

	// Ключ из пути подставляется, если тело его не содержит.
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	if raw, ok := payload[mapper.FieldOrderID]; len(payload) > 0 && (!ok || raw == nil || raw == "") {
		body[mapper.FieldOrderID] = orderID
	}

	draft, err := mapper.ToInternal(body)
	if err != nil {
		s.logFailure(OpReplace, orderID, err)
		return nil, err
	}
	if draft.OrderID != orderID {
		err = domain.NewValidationError("invalid field: %s (must match the order being replaced)", mapper.FieldOrderID)
		s.logFailure(OpReplace, orderID, err)
		return nil, err
	}
	s.warnOnTotalMismatch(draft)

	order, err := s.store.Replace(ctx, orderID, draft)
	if err != nil {
		s.logFailure(OpReplace, orderID, err)
		return nil, err
	}

	result = mapper.ToExternal(&order)
	s.publish(ctx, domain.EventOrderReplaced, order.OrderID, result)
	s.logger.WithFields(log.Fields{
		"operation": OpReplace,
		"order_id":  order.OrderID,
		"items":     len(order.Items),
	}).Info("order replaced")

	return result, nil
}

// Delete удаляет заказ. Отсутствующий заказ возвращает false без ошибки.
func (s *Service) Delete(ctx context.Context, orderID string) (deleted bool, err error) {
	done := s.metrics.StartOperation(OpDelete)
	defer func() { done(resultLabel(err)) }()

	if orderID == "" {
		return false, domain.NewValidationError("required field missing: %s", mapper.FieldOrderID)
	}

	deleted, err = s.store.Delete(ctx, orderID)
	if err != nil {
		s.logFailure(OpDelete, orderID, err)
		return false, err
	}
	if deleted {
		s.publish(ctx, domain.EventOrderDeleted, orderID, nil)
		s.logger.WithFields(log.Fields{"operation": OpDelete, "order_id": orderID}).Info("order deleted")
	}
	return deleted, nil
}

// publish отправляет событие после коммита; ошибки публикации только логируются.
func (s *Service) publish(ctx context.Context, eventType domain.EventType, orderID string, payload *mapper.ExternalOrder) {
	if s.publisher == nil {
		return
	}

	event := domain.OrderEvent{
		ID:         s.newID(),
		Type:       eventType,
		OrderID:    orderID,
		OccurredAt: s.now(),
	}
	if payload != nil {
		event.Payload = payload
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := s.publisher.Publish(pubCtx, event)
	s.metrics.RecordEventPublished(string(eventType), err == nil)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"event_id":   event.ID,
			"order_id":   orderID,
		}).Warn("failed to publish order event")
	}
}

func (s *Service) warnOnTotalMismatch(draft domain.OrderDraft) {
	sum := draft.ItemsTotal()
	if math.Abs(sum-draft.Value) >= 0.005 {
		s.logger.WithFields(log.Fields{
			"order_id":    draft.OrderID,
			"valor_total": draft.Value,
			"items_total": sum,
		}).Debug("declared total differs from items sum")
	}
}

func (s *Service) logFailure(operation, orderID string, err error) {
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"kind":      domain.KindOf(err),
	})
	if orderID != "" {
		entry = entry.WithField("order_id", orderID)
	}

	if domain.KindOf(err) == domain.KindUnclassified {
		entry.Error("order operation failed")
		return
	}
	entry.Info("order operation rejected")
}

func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return string(domain.KindOf(err))
}

func stringField(payload map[string]any, name string) string {
	if s, ok := payload[name].(string); ok {
		return s
	}
	return ""
}
