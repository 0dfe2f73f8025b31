package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/db/postgres/pgtest"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

func TestRepositoryCommitStoreDown(t *testing.T) {
	repo := ledger.NewRepository(pgtest.DownQuerier{Err: errors.New("dial tcp: connection refused")})

	_, err := repo.Commit(context.Background(), ledger.Transfer{SenderID: 1, ReceiverID: 2, Amount: 100})
	assert.ErrorIs(t, err, common.ErrPersistence)
	assert.NotContains(t, common.UserMessage(err), "dial tcp")
}

func TestRepositoryCommitMovesBothBalances(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	repo := ledger.NewRepository(pool)

	alice := pgtest.Account(t, pool, "alice")
	bob := pgtest.Account(t, pool, "bob")

	tx, err := repo.Commit(ctx, ledger.Transfer{SenderID: alice, ReceiverID: bob, Amount: 250, Reason: "мате"})
	require.NoError(t, err)
	assert.Equal(t, int64(250), tx.Amount)

	assert.Equal(t, int64(-250), pgtest.Balance(t, pool, alice))
	assert.Equal(t, int64(250), pgtest.Balance(t, pool, bob))

	got, err := repo.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "мате", got.Reason)
}

func TestRepositoryCommitMissingAccountChangesNothing(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	repo := ledger.NewRepository(pool)

	alice := pgtest.Account(t, pool, "alice")
	history, err := repo.History(ctx, alice, 10)
	require.NoError(t, err)
	require.Empty(t, history)

	_, err = repo.Commit(ctx, ledger.Transfer{SenderID: alice, ReceiverID: -1, Amount: 100})
	assert.ErrorIs(t, err, common.ErrAccountNotFound)

	assert.Equal(t, int64(0), pgtest.Balance(t, pool, alice))
	history, err = repo.History(ctx, alice, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}
