package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// SQLSTATE коды, которые переводятся в категории домена.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidTextRepr     = "22P02"
	codeNumericOutOfRange   = "22003"
	codeInvalidDatetime     = "22007"
	codeDatetimeOverflow    = "22008"
	codeStringTooLong       = "22001"
	classIntegrity          = "23"
)

// translateError переводит ошибку драйвера в *domain.Error на границе хранилища.
// Исходная ошибка остаётся в цепочке для логов.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}

	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return domain.Wrap(domain.KindUnclassified, err, fmt.Sprintf("%s: %v", op, err))
	}

	switch {
	case pgErr.Code == codeUniqueViolation:
		return domain.Wrap(domain.KindConflict, errors.Join(domain.ErrOrderExists, err), "order already exists")
	case pgErr.Code == codeForeignKeyViolation:
		return domain.Wrap(domain.KindNotFound, err, "referenced order does not exist")
	case pgErr.Code == codeInvalidTextRepr,
		pgErr.Code == codeNumericOutOfRange,
		pgErr.Code == codeInvalidDatetime,
		pgErr.Code == codeDatetimeOverflow,
		pgErr.Code == codeStringTooLong:
		return domain.Wrap(domain.KindValidation, err, fmt.Sprintf("invalid value: %s", pgErr.Message))
	case strings.HasPrefix(pgErr.Code, classIntegrity):
		return domain.Wrap(domain.KindConstraint, err, fmt.Sprintf("constraint violation: %s", constraintName(pgErr)))
	default:
		return domain.Wrap(domain.KindUnclassified, err, fmt.Sprintf("%s: %s", op, pgErr.Message))
	}
}

func constraintName(pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return pgErr.Message
}
