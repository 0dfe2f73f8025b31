// Package pgtest: помощники для тестов репозиториев.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/mate-bot/internal/db/postgres"
)

// DSNEnv: переменная с DSN тестовой базы.
const DSNEnv = "TEST_DATABASE_DSN"

// Pool подключается к тестовой базе и применяет миграции.
// Без TEST_DATABASE_DSN тест пропускается.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s не задан", DSNEnv)
	}
	require.NoError(t, postgres.Migrate(dsn))

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// DownQuerier: база, до которой не достучаться.
type DownQuerier struct {
	Err error
}

func (q DownQuerier) Begin(context.Context) (pgx.Tx, error) {
	return nil, q.Err
}

func (q DownQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, q.Err
}

func (q DownQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, q.Err
}

func (q DownQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{q.Err}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

var _ postgres.Querier = DownQuerier{}
