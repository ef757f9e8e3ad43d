// Package mapper переводит заказ между внешним форматом API (numeroPedido, valorTotal, ...)
// и внутренней схемой хранения, попутно проверяя обязательные поля.
package mapper

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// Имена полей внешнего формата.
const (
	FieldOrderID      = "numeroPedido"
	FieldValue        = "valorTotal"
	FieldCreationDate = "dataCriacao"
	FieldItems        = "items"
	FieldItemID       = "idItem"
	FieldQuantity     = "quantidadeItem"
	FieldItemValue    = "valorItem"
)

// DateLayout задаёт каноническое представление дат наружу: UTC с миллисекундами.
const DateLayout = "2006-01-02T15:04:05.000Z"

// maxDateMillis ограничивает числовую дату диапазоном ±100 000 000 суток от эпохи.
const maxDateMillis = 8.64e15

var inputDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ToInternal проверяет внешний payload и переводит его во внутренний черновик заказа.
// Неизвестные поля игнорируются. Все ошибки имеют вид domain.KindValidation.
func ToInternal(payload map[string]any) (domain.OrderDraft, error) {
	if len(payload) == 0 {
		return domain.OrderDraft{}, domain.NewValidationError("order payload is empty")
	}

	orderID, err := requiredString(payload, FieldOrderID)
	if err != nil {
		return domain.OrderDraft{}, err
	}
	value, err := requiredNumber(payload, FieldValue)
	if err != nil {
		return domain.OrderDraft{}, err
	}
	creationDate, err := requiredDate(payload, FieldCreationDate)
	if err != nil {
		return domain.OrderDraft{}, err
	}

	rawItems, ok := payload[FieldItems]
	if !ok || rawItems == nil {
		return domain.OrderDraft{}, missing(FieldItems)
	}
	list, ok := rawItems.([]any)
	if !ok {
		return domain.OrderDraft{}, domain.NewValidationError("invalid field: %s (must be an array)", FieldItems)
	}
	if len(list) == 0 {
		return domain.OrderDraft{}, domain.NewValidationError("order must contain at least one item")
	}

	items := make([]domain.ItemDraft, 0, len(list))
	for i, raw := range list {
		item, err := toItem(raw)
		if err != nil {
			return domain.OrderDraft{}, domain.NewValidationError("item %d: %s", i+1, err.Error())
		}
		items = append(items, item)
	}

	return domain.OrderDraft{
		OrderID:      orderID,
		Value:        value,
		CreationDate: creationDate,
		Items:        items,
	}, nil
}

func toItem(raw any) (domain.ItemDraft, error) {
	fields, ok := raw.(map[string]any)
	if !ok {
		return domain.ItemDraft{}, errors.New("must be an object")
	}

	itemID, err := requiredString(fields, FieldItemID)
	if err != nil {
		return domain.ItemDraft{}, err
	}
	quantity, err := requiredNumber(fields, FieldQuantity)
	if err != nil {
		return domain.ItemDraft{}, err
	}
	if quantity != math.Trunc(quantity) || math.Abs(quantity) > math.MaxInt32 {
		return domain.ItemDraft{}, invalid(FieldQuantity, "must be an integer")
	}
	itemValue, err := requiredNumber(fields, FieldItemValue)
	if err != nil {
		return domain.ItemDraft{}, err
	}

	return domain.ItemDraft{
		ItemID:    itemID,
		Quantity:  int(quantity),
		ItemValue: itemValue,
	}, nil
}

func requiredString(fields map[string]any, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return "", missing(name)
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = strings.TrimSpace(v)
	case json.Number:
		s = numberText(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	default:
		return "", invalid(name, "must be a string")
	}
	if s == "" {
		return "", missing(name)
	}
	return s, nil
}

// numberText приводит json.Number к тому же виду, что и float64: без экспоненты.
func numberText(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return n.String()
}

func requiredNumber(fields map[string]any, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return 0, missing(name)
	}
	f, ok := toFloat(raw)
	if !ok {
		return 0, invalid(name, "must be a number")
	}
	return f, nil
}

func requiredDate(fields map[string]any, name string) (time.Time, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return time.Time{}, missing(name)
	}
	if s, isString := raw.(string); isString {
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, missing(name)
		}
		if t, ok := parseDate(s); ok {
			return t, nil
		}
		return time.Time{}, invalid(name, "must be a valid date")
	}
	// Число трактуется как Unix-время в миллисекундах.
	if ms, ok := toFloat(raw); ok && math.Abs(ms) <= maxDateMillis {
		return CanonicalTime(time.UnixMilli(int64(ms))), nil
	}
	return time.Time{}, invalid(name, "must be a valid date")
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range inputDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return CanonicalTime(t), true
		}
	}
	return time.Time{}, false
}

func toFloat(raw any) (float64, bool) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// CanonicalTime приводит момент времени к UTC с точностью до миллисекунд.
func CanonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FormatTime форматирует время в каноническом виде; нулевое время даёт пустую строку.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return CanonicalTime(t).Format(DateLayout)
}

func missing(name string) *domain.Error {
	return domain.NewValidationError("required field missing: %s", name)
}

func invalid(name, reason string) *domain.Error {
	return domain.NewValidationError("invalid field: %s (%s)", name, reason)
}
