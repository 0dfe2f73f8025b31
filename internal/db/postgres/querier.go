package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"serotonyl.ru/mate-bot/internal/common"
)

// Querier: общее подмножество *pgxpool.Pool и pgx.Tx.
// Репозитории работают через него, поэтому один и тот же код
// выполняется и на пуле, и внутри чужой транзакции.
type Querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InTx выполняет fn в транзакции. Если q уже транзакция: открывается savepoint.
// Commit только если fn вернула nil, иначе Rollback.
// Ошибки Begin/Commit и прочие ошибки без категории становятся ErrPersistence.
func InTx(ctx context.Context, q Querier, fn func(tx pgx.Tx) error) error {
	err := pgx.BeginFunc(ctx, q, fn)
	if err != nil && !common.Categorized(err) {
		return common.Persistence("транзакция", err)
	}
	return err
}

// IsUniqueViolation: нарушение уникального индекса (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsNoRows: запрос не вернул строк.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
