package mapper

import "github.com/vladislavdragonenkov/orderstore/internal/domain"

// ExternalItem — позиция заказа во внешнем формате.
type ExternalItem struct {
	ID        int64   `json:"id,omitempty"`
	ItemID    string  `json:"idItem"`
	Quantity  int     `json:"quantidadeItem"`
	ItemValue float64 `json:"valorItem"`
}

// ExternalOrder — заказ во внешнем формате, как его видят клиенты API.
type ExternalOrder struct {
	ID           int64          `json:"id,omitempty"`
	OrderID      string         `json:"numeroPedido"`
	Value        float64        `json:"valorTotal"`
	CreationDate string         `json:"dataCriacao"`
	Items        []ExternalItem `json:"items"`
	CreatedAt    string         `json:"criadoEm,omitempty"`
	UpdatedAt    string         `json:"atualizadoEm,omitempty"`
}

// ToExternal переводит сохранённый заказ во внешний формат.
// Ссылка позиции на суррогатный ID заказа наружу не попадает.
func ToExternal(order *domain.Order) *ExternalOrder {
	if order == nil {
		return nil
	}

	items := make([]ExternalItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ExternalItem{
			ID:        item.ID,
			ItemID:    item.ItemID,
			Quantity:  item.Quantity,
			ItemValue: item.ItemValue,
		})
	}

	return &ExternalOrder{
		ID:           order.ID,
		OrderID:      order.OrderID,
		Value:        order.Value,
		CreationDate: FormatTime(order.CreationDate),
		Items:        items,
		CreatedAt:    FormatTime(order.CreatedAt),
		UpdatedAt:    FormatTime(order.UpdatedAt),
	}
}

// ToExternalList переводит список заказов, сохраняя порядок.
func ToExternalList(orders []domain.Order) []*ExternalOrder {
	out := make([]*ExternalOrder, 0, len(orders))
	for i := range orders {
		out = append(out, ToExternal(&orders[i]))
	}
	return out
}

// AsMap возвращает заказ в виде дерева map[string]any, пригодного для ToInternal и structpb.
func (e *ExternalOrder) AsMap() map[string]any {
	if e == nil {
		return nil
	}

	items := make([]any, 0, len(e.Items))
	for _, item := range e.Items {
		m := map[string]any{
			FieldItemID:    item.ItemID,
			FieldQuantity:  float64(item.Quantity),
			FieldItemValue: item.ItemValue,
		}
		if item.ID != 0 {
			m["id"] = float64(item.ID)
		}
		items = append(items, m)
	}

	out := map[string]any{
		FieldOrderID:      e.OrderID,
		FieldValue:        e.Value,
		FieldCreationDate: e.CreationDate,
		FieldItems:        items,
	}
	if e.ID != 0 {
		out["id"] = float64(e.ID)
	}
	if e.CreatedAt != "" {
		out["criadoEm"] = e.CreatedAt
	}
	if e.UpdatedAt != "" {
		out["atualizadoEm"] = e.UpdatedAt
	}
	return out
}
