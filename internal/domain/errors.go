package domain

import (
	"errors"
	"fmt"
)

// Kind — стабильная машинно-проверяемая категория ошибки.
type Kind string

const (
	// KindValidation — некорректный или неполный ввод, обнаруженный до обращения к хранилищу.
	KindValidation Kind = "validation"
	// KindNotFound — операция нацелена на бизнес-ключ без записи.
	KindNotFound Kind = "not_found"
	// KindConflict — создание с уже занятым бизнес-ключом.
	KindConflict Kind = "conflict"
	// KindConstraint — нарушение целостности на уровне хранилища, не пойманное валидацией.
	KindConstraint Kind = "constraint"
	// KindUnclassified — всё остальное (потеря соединения и т.п.).
	KindUnclassified Kind = "unclassified"
)

var (
	// Базовые ошибки по категориям; errors.Is(err, ErrNotFound) срабатывает для любого *Error нужного вида.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrConstraint = errors.New("constraint violation")

	// ErrOrderNotFound возвращается, если заказ с бизнес-ключом не найден.
	ErrOrderNotFound = &Error{Kind: KindNotFound, Message: "order not found"}
	// ErrOrderExists возвращается при попытке создать заказ с занятым бизнес-ключом.
	ErrOrderExists = &Error{Kind: KindConflict, Message: "order already exists"}
)

// Error — типизированная ошибка домена с категорией и человекочитаемым сообщением.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap отдаёт базовую ошибку категории и исходную причину, чтобы работали errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if base := kindSentinel(e.Kind); base != nil {
		errs = append(errs, base)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewValidationError создаёт ошибку валидации с форматированным сообщением.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf создаёт ошибку отсутствия записи, сохраняя ErrOrderNotFound в цепочке.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), Err: ErrOrderNotFound}
}

// Wrap оборачивает причину в ошибку указанной категории.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf возвращает категорию ошибки; nil и неизвестные ошибки считаются KindUnclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrConstraint):
		return KindConstraint
	default:
		return KindUnclassified
	}
}

// IsNotFound проверяет, относится ли ошибка к категории not_found.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsConflict проверяет, относится ли ошибка к категории conflict.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsValidation проверяет, относится ли ошибка к категории validation.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

func kindSentinel(kind Kind) error {
	switch kind {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindConstraint:
		return ErrConstraint
	default:
		return nil
	}
}
