package domain

import "time"

// LineItem представляет одну позицию заказа в хранилище.
type LineItem struct {
	// ID — суррогатный идентификатор позиции, назначается хранилищем.
	ID int64
	// OrderRef — суррогатный идентификатор заказа-владельца; наружу не отдаётся.
	OrderRef int64
	// ItemID — внешний идентификатор товара (SKU), не уникален между заказами.
	ItemID string
	// Quantity — количество единиц товара.
	Quantity int
	// ItemValue — цена за единицу.
	ItemValue float64
	// CreatedAt фиксирует момент вставки позиции.
	CreatedAt time.Time
}

// Order агрегирует заголовок заказа и его позиции.
type Order struct {
	// ID — суррогатный идентификатор, назначается хранилищем и не используется для поиска.
	ID int64
	// OrderID — бизнес-ключ заказа (numeroPedido), уникален и неизменяем.
	OrderID string
	// Value — объявленная сумма заказа, хранится как есть.
	Value        float64
	CreationDate time.Time
	Items        []LineItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ItemDraft — провалидированная позиция, ещё не сохранённая в хранилище.
type ItemDraft struct {
	ItemID    string
	Quantity  int
	ItemValue float64
}

// OrderDraft — провалидированный заказ во внутренней схеме, без суррогатных
// идентификаторов и служебных меток времени.
type OrderDraft struct {
	OrderID      string
	Value        float64
	CreationDate time.Time
	Items        []ItemDraft
}

// ItemsTotal возвращает сумму quantity * itemValue по всем позициям.
// С Value она не сверяется: объявленная сумма хранится как есть.
func (d *OrderDraft) ItemsTotal() float64 {
	var total float64
	for _, item := range d.Items {
		total += float64(item.Quantity) * item.ItemValue
	}
	return total
}
