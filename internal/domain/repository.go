package domain

import "context"

// OrderStore описывает требования к хранилищу агрегатов заказа.
// Все изменения заказа и его позиций выполняются как одна атомарная единица.
type OrderStore interface {
	// Create сохраняет заказ со всеми позициями. Занятый бизнес-ключ даёт ошибку вида KindConflict.
	Create(ctx context.Context, draft OrderDraft) (Order, error)
	// GetByOrderID возвращает заказ по бизнес-ключу или ErrOrderNotFound.
	GetByOrderID(ctx context.Context, orderID string) (Order, error)
	// List возвращает все заказы, новые первыми.
	List(ctx context.Context) ([]Order, error)
	// Replace целиком заменяет заголовок и набор позиций существующего заказа.
	Replace(ctx context.Context, orderID string, draft OrderDraft) (Order, error)
	// Delete удаляет заказ вместе с позициями; false, если заказа не было.
	Delete(ctx context.Context, orderID string) (bool, error)
}
