package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// Ограничения колонок, повторяющие схему PostgreSQL.
const (
	maxOrderIDLen = 100
	maxItemIDLen  = 50
	moneyScale    = 2
)

// maxMoney на единицу старшего разряда больше предела NUMERIC(10,2).
var maxMoney = decimal.New(1, 8)

// orderRepositoryInMemory — in-memory реализация OrderStore с той же семантикой,
// что и PostgreSQL-хранилище.
type orderRepositoryInMemory struct {
	mu         sync.RWMutex
	orders     map[string]domain.Order
	nextID     int64
	nextItemID int64
	now        func() time.Time
}

// NewOrderRepository возвращает in-memory хранилище для локальной разработки и тестов.
func NewOrderRepository() domain.OrderStore {
	return &orderRepositoryInMemory{
		orders: make(map[string]domain.Order),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create сохраняет заказ, если бизнес-ключ ещё не занят.
func (r *orderRepositoryInMemory) Create(ctx context.Context, draft domain.OrderDraft) (domain.Order, error) {
	if err := ctxErr(ctx, "create order"); err != nil {
		return domain.Order{}, err
	}
	if err := checkColumns(draft); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[draft.OrderID]; exists {
		return domain.Order{}, domain.Wrap(domain.KindConflict, domain.ErrOrderExists, "order already exists")
	}

	now := r.now()
	r.nextID++
	order := domain.Order{
		ID:           r.nextID,
		OrderID:      draft.OrderID,
		Value:        roundMoney(draft.Value),
		CreationDate: draft.CreationDate.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.Items = r.buildItems(order.ID, draft.Items, now)

	r.orders[order.OrderID] = order
	return cloneOrder(order), nil
}

// GetByOrderID возвращает копию заказа или ErrOrderNotFound.
func (r *orderRepositoryInMemory) GetByOrderID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := ctxErr(ctx, "get order"); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, domain.NotFoundf("order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

// List возвращает все заказы, новые первыми.
func (r *orderRepositoryInMemory) List(ctx context.Context) ([]domain.Order, error) {
	if err := ctxErr(ctx, "list orders"); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

// Replace подменяет заголовок и весь набор позиций; created_at сохраняется.
func (r *orderRepositoryInMemory) Replace(ctx context.Context, orderID string, draft domain.OrderDraft) (domain.Order, error) {
	if err := ctxErr(ctx, "replace order"); err != nil {
		return domain.Order{}, err
	}
	if err := checkColumns(draft); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, domain.NotFoundf("order %s not found", orderID)
	}

	now := r.now()
	current.Value = roundMoney(draft.Value)
	current.CreationDate = draft.CreationDate.UTC()
	current.UpdatedAt = now
	current.Items = r.buildItems(current.ID, draft.Items, now)

	r.orders[orderID] = current
	return cloneOrder(current), nil
}

// Delete удаляет заказ вместе с позициями.
func (r *orderRepositoryInMemory) Delete(ctx context.Context, orderID string) (bool, error) {
	if err := ctxErr(ctx, "delete order"); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[orderID]; !ok {
		return false, nil
	}
	delete(r.orders, orderID)
	return true, nil
}

func (r *orderRepositoryInMemory) buildItems(orderRef int64, drafts []domain.ItemDraft, now time.Time) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(drafts))
	for _, d := range drafts {
		r.nextItemID++
		items = append(items, domain.LineItem{
			ID:        r.nextItemID,
			OrderRef:  orderRef,
			ItemID:    d.ItemID,
			Quantity:  d.Quantity,
			ItemValue: roundMoney(d.ItemValue),
			CreatedAt: now,
		})
	}
	return items
}

// checkColumns воспроизводит ограничения схемы: длины VARCHAR в символах,
// диапазоны NUMERIC(10,2) и INTEGER.
func checkColumns(draft domain.OrderDraft) error {
	if utf8.RuneCountInString(draft.OrderID) > maxOrderIDLen {
		return domain.NewValidationError("invalid value: order_id longer than %d characters", maxOrderIDLen)
	}
	if moneyOverflows(draft.Value) {
		return domain.NewValidationError("invalid value: value out of range for numeric(10,2)")
	}
	for _, item := range draft.Items {
		if utf8.RuneCountInString(item.ItemID) > maxItemIDLen {
			return domain.NewValidationError("invalid value: item_id longer than %d characters", maxItemIDLen)
		}
		if item.Quantity > math.MaxInt32 || item.Quantity < math.MinInt32 {
			return domain.NewValidationError("invalid value: quantity out of range for integer")
		}
		if moneyOverflows(item.ItemValue) {
			return domain.NewValidationError("invalid value: item_value out of range for numeric(10,2)")
		}
	}
	return nil
}

// moneyOverflows сообщает, что значение после округления до копеек не влезает в NUMERIC(10,2).
func moneyOverflows(v float64) bool {
	return decimal.NewFromFloat(v).Round(moneyScale).Abs().Cmp(maxMoney) >= 0
}

// roundMoney повторяет округление NUMERIC(10,2).
func roundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(moneyScale).InexactFloat64()
}

func cloneOrder(order domain.Order) domain.Order {
	items := make([]domain.LineItem, len(order.Items))
	copy(items, order.Items)
	order.Items = items
	return order
}

func ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return domain.Wrap(domain.KindUnclassified, err, fmt.Sprintf("%s: %v", op, err))
	}
	return nil
}

var _ domain.OrderStore = (*orderRepositoryInMemory)(nil)
