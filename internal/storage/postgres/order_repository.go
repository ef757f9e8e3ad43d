package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

const orderColumns = `id, order_id, value, creation_date, created_at, updated_at`

type orderRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderStore поверх пула Store.
func NewOrderRepository(store *Store) domain.OrderStore {
	return &orderRepository{db: store.DB(), timeout: defaultOpTimeout}
}

func (r *orderRepository) Create(ctx context.Context, draft domain.OrderDraft) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var order domain.Order
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO orders (order_id, value, creation_date)
			VALUES ($1, $2, $3)
			RETURNING `+orderColumns,
			draft.OrderID, decimal.NewFromFloat(draft.Value), draft.CreationDate.UTC(),
		)
		header, err := scanOrder(row)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		items, err := insertItems(ctx, tx, header.ID, draft.Items)
		if err != nil {
			return err
		}
		header.Items = items
		order = header
		return nil
	})
	if err != nil {
		return domain.Order{}, translateError(err, "create order")
	}

	return order, nil
}

func (r *orderRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_id = $1
	`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.NotFoundf("order %s not found", orderID)
		}
		return domain.Order{}, translateError(fmt.Errorf("select order: %w", err), "get order")
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, translateError(err, "get order")
	}
	order.Items = items

	return order, nil
}

// List читает заголовки, затем позиции каждого заказа отдельными запросами.
// Снимок между этими запросами не фиксируется.
func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, translateError(fmt.Errorf("list orders: %w", err), "list orders")
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, translateError(fmt.Errorf("scan order row: %w", err), "list orders")
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, translateError(fmt.Errorf("iterate order rows: %w", err), "list orders")
	}
	_ = rows.Close()

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, translateError(err, "list orders")
		}
		orders[i].Items = items
	}

	return orders, nil
}

func (r *orderRepository) Replace(ctx context.Context, orderID string, draft domain.OrderDraft) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var order domain.Order
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE orders
			SET value = $1,
			    creation_date = $2,
			    updated_at = NOW()
			WHERE order_id = $3
			RETURNING `+orderColumns,
			decimal.NewFromFloat(draft.Value), draft.CreationDate.UTC(), orderID,
		)
		header, err := scanOrder(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NotFoundf("order %s not found", orderID)
			}
			return fmt.Errorf("update order: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_ref = $1`, header.ID); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}

		items, err := insertItems(ctx, tx, header.ID, draft.Items)
		if err != nil {
			return err
		}
		header.Items = items
		order = header
		return nil
	})
	if err != nil {
		return domain.Order{}, translateError(err, "replace order")
	}

	return order, nil
}

func (r *orderRepository) Delete(ctx context.Context, orderID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Позиции удаляются каскадом по внешнему ключу.
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		return false, translateError(fmt.Errorf("delete order: %w", err), "delete order")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, translateError(fmt.Errorf("rows affected: %w", err), "delete order")
	}
	return affected > 0, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, orderRef int64, drafts []domain.ItemDraft) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, len(drafts))
	for _, d := range drafts {
		item := domain.LineItem{
			OrderRef:  orderRef,
			ItemID:    d.ItemID,
			Quantity:  d.Quantity,
			ItemValue: d.ItemValue,
		}
		var value decimal.Decimal
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_ref, item_id, quantity, item_value)
			VALUES ($1, $2, $3, $4)
			RETURNING id, item_value, created_at
		`, orderRef, d.ItemID, d.Quantity, decimal.NewFromFloat(d.ItemValue),
		).Scan(&item.ID, &value, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert order item %s: %w", d.ItemID, err)
		}
		item.ItemValue = value.InexactFloat64()
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	return items, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderRef int64) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_ref, item_id, quantity, item_value, created_at
		FROM order_items
		WHERE order_ref = $1
		ORDER BY id ASC
	`, orderRef)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var (
			item  domain.LineItem
			value decimal.Decimal
		)
		if err := rows.Scan(&item.ID, &item.OrderRef, &item.ItemID, &item.Quantity, &value, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.ItemValue = value.InexactFloat64()
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order domain.Order
		value decimal.Decimal
	)
	if err := row.Scan(
		&order.ID, &order.OrderID, &value, &order.CreationDate, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Value = value.InexactFloat64()
	order.CreationDate = order.CreationDate.UTC()
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

var _ domain.OrderStore = (*orderRepository)(nil)
