package mapper

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

func validPayload() map[string]any {
	return map[string]any{
		"numeroPedido": "v10089015vdb-01",
		"valorTotal":   10000.0,
		"dataCriacao":  "2023-07-19T12:24:11.5299601+00:00",
		"items": []any{
			map[string]any{"idItem": "2434", "quantidadeItem": 1.0, "valorItem": 1000.0},
			map[string]any{"idItem": "2435", "quantidadeItem": 2.0, "valorItem": 2000.0},
		},
	}
}

func TestToInternal_ValidPayload(t *testing.T) {
	draft, err := ToInternal(validPayload())
	require.NoError(t, err)

	require.Equal(t, "v10089015vdb-01", draft.OrderID)
	require.Equal(t, 10000.0, draft.Value)
	require.Equal(t, time.Date(2023, 7, 19, 12, 24, 11, 529000000, time.UTC), draft.CreationDate)
	require.Len(t, draft.Items, 2)
	require.Equal(t, domain.ItemDraft{ItemID: "2434", Quantity: 1, ItemValue: 1000}, draft.Items[0])
	require.Equal(t, domain.ItemDraft{ItemID: "2435", Quantity: 2, ItemValue: 2000}, draft.Items[1])
}

func TestToInternal_DecodedJSONWithNumbers(t *testing.T) {
	body := `{"numeroPedido":"ord-1","valorTotal":"100.50","dataCriacao":"2024-01-02",
		"items":[{"idItem":123,"quantidadeItem":"3","valorItem":33.5}],"unknown":true}`

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	require.NoError(t, dec.Decode(&payload))

	draft, err := ToInternal(payload)
	require.NoError(t, err)
	require.Equal(t, 100.5, draft.Value)
	require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), draft.CreationDate)
	require.Equal(t, "123", draft.Items[0].ItemID)
	require.Equal(t, 3, draft.Items[0].Quantity)
}

func TestToInternal_DateFormats(t *testing.T) {
	want := time.Date(2023, 7, 19, 12, 24, 11, 0, time.UTC)
	cases := map[string]any{
		"rfc3339 offset": "2023-07-19T15:24:11+03:00",
		"no zone":        "2023-07-19T12:24:11",
		"zulu":           "2023-07-19T12:24:11Z",
		"unix millis":    float64(want.UnixMilli()),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			payload := validPayload()
			payload["dataCriacao"] = raw

			draft, err := ToInternal(payload)
			require.NoError(t, err)
			require.True(t, want.Equal(draft.CreationDate), "got %s", draft.CreationDate)
		})
	}
}

func TestToInternal_NumericKeysWithoutExponent(t *testing.T) {
	cases := map[string]struct {
		raw  any
		want string
	}{
		"json number exponent": {raw: json.Number("1e3"), want: "1000"},
		"json number integer":  {raw: json.Number("2434"), want: "2434"},
		"json number fraction": {raw: json.Number("12.50"), want: "12.5"},
		"float64":              {raw: 1000.0, want: "1000"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			payload := validPayload()
			payload["numeroPedido"] = tc.raw
			payload["items"].([]any)[0].(map[string]any)["idItem"] = tc.raw

			draft, err := ToInternal(payload)
			require.NoError(t, err)
			require.Equal(t, tc.want, draft.OrderID)
			require.Equal(t, tc.want, draft.Items[0].ItemID)
		})
	}
}

func TestToInternal_DateRangeBoundary(t *testing.T) {
	payload := validPayload()
	payload["dataCriacao"] = 8.64e15

	draft, err := ToInternal(payload)
	require.NoError(t, err)
	require.True(t, time.UnixMilli(8.64e15).Equal(draft.CreationDate), "got %s", draft.CreationDate)
}

func TestToInternal_SignedValuesAccepted(t *testing.T) {
	payload := validPayload()
	payload["valorTotal"] = -50.0
	first := payload["items"].([]any)[0].(map[string]any)
	first["quantidadeItem"] = 0.0
	first["valorItem"] = "-5"
	payload["items"].([]any)[1].(map[string]any)["quantidadeItem"] = json.Number("-2")

	draft, err := ToInternal(payload)
	require.NoError(t, err)
	require.Equal(t, -50.0, draft.Value)
	require.Equal(t, domain.ItemDraft{ItemID: "2434", Quantity: 0, ItemValue: -5}, draft.Items[0])
	require.Equal(t, -2, draft.Items[1].Quantity)
}

func TestToInternal_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		mut     func(p map[string]any)
		wantMsg string
	}{
		{
			name:    "missing business key",
			mut:     func(p map[string]any) { delete(p, "numeroPedido") },
			wantMsg: "required field missing: numeroPedido",
		},
		{
			name:    "empty business key",
			mut:     func(p map[string]any) { p["numeroPedido"] = "  " },
			wantMsg: "required field missing: numeroPedido",
		},
		{
			name:    "null total",
			mut:     func(p map[string]any) { p["valorTotal"] = nil },
			wantMsg: "required field missing: valorTotal",
		},
		{
			name:    "non numeric total",
			mut:     func(p map[string]any) { p["valorTotal"] = "abc" },
			wantMsg: "invalid field: valorTotal (must be a number)",
		},
		{
			name:    "missing date",
			mut:     func(p map[string]any) { delete(p, "dataCriacao") },
			wantMsg: "required field missing: dataCriacao",
		},
		{
			name:    "invalid date",
			mut:     func(p map[string]any) { p["dataCriacao"] = "yesterday" },
			wantMsg: "invalid field: dataCriacao (must be a valid date)",
		},
		{
			name:    "numeric date out of range",
			mut:     func(p map[string]any) { p["dataCriacao"] = 1e300 },
			wantMsg: "invalid field: dataCriacao (must be a valid date)",
		},
		{
			name:    "numeric date just past range",
			mut:     func(p map[string]any) { p["dataCriacao"] = -8.64e15 - 1 },
			wantMsg: "invalid field: dataCriacao (must be a valid date)",
		},
		{
			name:    "missing items",
			mut:     func(p map[string]any) { delete(p, "items") },
			wantMsg: "required field missing: items",
		},
		{
			name:    "items not array",
			mut:     func(p map[string]any) { p["items"] = "2434" },
			wantMsg: "invalid field: items (must be an array)",
		},
		{
			name:    "empty items",
			mut:     func(p map[string]any) { p["items"] = []any{} },
			wantMsg: "order must contain at least one item",
		},
		{
			name: "second item without idItem",
			mut: func(p map[string]any) {
				delete(p["items"].([]any)[1].(map[string]any), "idItem")
			},
			wantMsg: "item 2: required field missing: idItem",
		},
		{
			name: "first item without quantity",
			mut: func(p map[string]any) {
				delete(p["items"].([]any)[0].(map[string]any), "quantidadeItem")
			},
			wantMsg: "item 1: required field missing: quantidadeItem",
		},
		{
			name: "fractional quantity",
			mut: func(p map[string]any) {
				p["items"].([]any)[0].(map[string]any)["quantidadeItem"] = 1.5
			},
			wantMsg: "item 1: invalid field: quantidadeItem (must be an integer)",
		},
		{
			name: "item value missing",
			mut: func(p map[string]any) {
				p["items"].([]any)[1].(map[string]any)["valorItem"] = nil
			},
			wantMsg: "item 2: required field missing: valorItem",
		},
		{
			name:    "item not object",
			mut:     func(p map[string]any) { p["items"] = []any{"2434"} },
			wantMsg: "item 1: must be an object",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := validPayload()
			tc.mut(payload)

			_, err := ToInternal(payload)
			require.Error(t, err)
			require.Equal(t, tc.wantMsg, err.Error())
			require.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
}

func TestToInternal_EmptyPayload(t *testing.T) {
	_, err := ToInternal(nil)
	require.EqualError(t, err, "order payload is empty")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = ToInternal(map[string]any{})
	require.EqualError(t, err, "order payload is empty")
}

func TestToExternal(t *testing.T) {
	require.Nil(t, ToExternal(nil))

	now := time.Date(2024, 11, 29, 10, 0, 0, 123456789, time.UTC)
	order := &domain.Order{
		ID:           1,
		OrderID:      "v10089015vdb-01",
		Value:        10000,
		CreationDate: time.Date(2023, 7, 19, 12, 24, 11, 529000000, time.UTC),
		Items: []domain.LineItem{
			{ID: 7, OrderRef: 1, ItemID: "2434", Quantity: 1, ItemValue: 1000},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	ext := ToExternal(order)
	require.Equal(t, int64(1), ext.ID)
	require.Equal(t, "2023-07-19T12:24:11.529Z", ext.CreationDate)
	require.Equal(t, "2024-11-29T10:00:00.123Z", ext.CreatedAt)
	require.Equal(t, []ExternalItem{{ID: 7, ItemID: "2434", Quantity: 1, ItemValue: 1000}}, ext.Items)

	raw, err := json.Marshal(ext)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "order_ref")
	require.NotContains(t, string(raw), "OrderRef")
}

func TestToExternal_EmptyItems(t *testing.T) {
	ext := ToExternal(&domain.Order{OrderID: "ord-1"})
	require.NotNil(t, ext.Items)
	require.Empty(t, ext.Items)

	raw, err := json.Marshal(ext)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"items":[]`)
}

func TestRoundTrip(t *testing.T) {
	draft, err := ToInternal(validPayload())
	require.NoError(t, err)

	ext := ToExternal(storedFromDraft(draft))
	again, err := ToInternal(ext.AsMap())
	require.NoError(t, err)
	require.Equal(t, draft, again)

	// Повторное преобразование уже канонических данных ничего не меняет.
	require.Equal(t, ext, ToExternal(storedFromDraft(again)))
}

// storedFromDraft повторяет то, что хранилище делает с черновиком при вставке.
func storedFromDraft(draft domain.OrderDraft) *domain.Order {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	order := &domain.Order{
		ID:           1,
		OrderID:      draft.OrderID,
		Value:        draft.Value,
		CreationDate: draft.CreationDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, item := range draft.Items {
		order.Items = append(order.Items, domain.LineItem{
			ID:        int64(i + 1),
			OrderRef:  order.ID,
			ItemID:    item.ItemID,
			Quantity:  item.Quantity,
			ItemValue: item.ItemValue,
			CreatedAt: now,
		})
	}
	return order
}

func TestToExternalList(t *testing.T) {
	orders := []domain.Order{{OrderID: "b"}, {OrderID: "a"}}
	out := ToExternalList(orders)
	require.Len(t, out, 2)
	require.Equal(t, "b", out[0].OrderID)
	require.Equal(t, "a", out[1].OrderID)

	require.NotNil(t, ToExternalList(nil))
}
