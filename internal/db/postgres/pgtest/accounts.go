package pgtest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/mate-bot/internal/db/postgres"
)

var tidSeq atomic.Int64

// Account создаёт счёт с уникальным Telegram ID и возвращает его id.
// Тесты не чистят таблицы, поэтому id не пересекаются между запусками.
func Account(t *testing.T, db postgres.Querier, name string) int64 {
	t.Helper()
	tid := time.Now().UnixNano() + tidSeq.Add(1)
	var id int64
	err := db.QueryRow(context.Background(),
		`INSERT INTO accounts (tid, name) VALUES ($1, $2) RETURNING id`, tid, name).Scan(&id)
	require.NoError(t, err)
	return id
}

// Balance читает баланс счёта напрямую.
func Balance(t *testing.T, db postgres.Querier, id int64) int64 {
	t.Helper()
	var b int64
	require.NoError(t, db.QueryRow(context.Background(),
		`SELECT balance FROM accounts WHERE id = $1`, id).Scan(&b))
	return b
}
