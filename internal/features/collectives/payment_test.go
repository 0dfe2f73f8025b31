package collectives

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/mate-bot/internal/common"
)

func TestDecidePayment(t *testing.T) {
	cfg := testConfig()
	cfg.CommunityPaymentConsent = 2
	cfg.CommunityPaymentDenial = 3

	assert.Equal(t, OutcomePending, decidePayment(1, 0, cfg))
	assert.Equal(t, OutcomeFulfilled, decidePayment(2, 0, cfg))
	assert.Equal(t, OutcomePending, decidePayment(3, 2, cfg))
	assert.Equal(t, OutcomeFulfilled, decidePayment(4, 2, cfg))
	assert.Equal(t, OutcomePending, decidePayment(0, 2, cfg))
	assert.Equal(t, OutcomeAborted, decidePayment(0, 3, cfg))
}

func TestPaymentAccepted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)
	bob := h.store.addAccount("bob", false)
	carol := h.store.addAccount("carol", false)
	st := h.create(t, KindPayment, alice, 1250)
	assert.Empty(t, st.Participants)

	res, err := h.svc.Vote(ctx, st.ID, bob, true)
	require.NoError(t, err)
	assert.False(t, res.Closed)
	assert.Equal(t, OutcomePending, res.Outcome)
	assert.Nil(t, res.Transaction)

	res, err = h.svc.Vote(ctx, st.ID, carol, true)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, OutcomeFulfilled, res.Outcome)
	assert.Equal(t, 2, res.Approvers)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, communityID, res.Transaction.SenderID)
	assert.Equal(t, alice, res.Transaction.ReceiverID)
	assert.Equal(t, int64(1250), res.Transaction.Amount)
	assert.Equal(t, "оплата: пицца на всех (#1)", res.Transaction.Reason)

	assert.Equal(t, int64(-1250), h.store.balance(communityID))
	assert.Equal(t, int64(1250), h.store.balance(alice))
	assert.Zero(t, h.store.total())
}

func TestPaymentDenied(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)
	bob := h.store.addAccount("bob", false)
	carol := h.store.addAccount("carol", false)
	dave := h.store.addAccount("dave", false)
	st := h.create(t, KindPayment, alice, 1000)

	_, err := h.svc.Vote(ctx, st.ID, bob, true)
	require.NoError(t, err)
	_, err = h.svc.Vote(ctx, st.ID, carol, false)
	require.NoError(t, err)
	res, err := h.svc.Vote(ctx, st.ID, dave, false)
	require.NoError(t, err)
	assert.False(t, res.Closed, "перевес против пока 1")

	eve := h.store.addAccount("eve", false)
	res, err = h.svc.Vote(ctx, st.ID, eve, false)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Nil(t, res.Transaction)
	assert.Empty(t, h.store.transactions())

	closed, err := h.svc.Load(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, ClosedByVote, closed.ClosedBy)
	assert.Contains(t, h.svc.Render(closed).Text, "отклонён голосованием")

	// Порог поменяли после закрытия: текст не меняется
	h.cfg.CommunityPaymentDenial = 10
	assert.Contains(t, h.svc.Render(closed).Text, "отклонён голосованием")
}

func TestPaymentCancelledAfterVotesAgainst(t *testing.T) {
	h := newHarness(t)
	h.cfg.CommunityPaymentDenial = 3
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)
	bob := h.store.addAccount("bob", false)
	carol := h.store.addAccount("carol", false)
	st := h.create(t, KindPayment, alice, 1000)

	_, err := h.svc.Vote(ctx, st.ID, bob, false)
	require.NoError(t, err)
	_, err = h.svc.Vote(ctx, st.ID, carol, false)
	require.NoError(t, err)
	closed, err := h.svc.Cancel(ctx, st.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, ClosedByCreator, closed.ClosedBy)

	// Перевес против дотягивает до нового порога, но отменил создатель
	h.cfg.CommunityPaymentDenial = 2
	text := h.svc.Render(closed).Text
	assert.Contains(t, text, "Запрос отменён.")
	assert.NotContains(t, text, "голосованием")
}

func TestVariantsDecideAndSettle(t *testing.T) {
	cfg := testConfig()
	cfg.CommunityPaymentConsent = 1
	yes := true
	parts := []Participant{{AccountID: 2, Vote: &yes}}

	assert.Equal(t, OutcomePending, variantOf(KindCommunism).decide(parts, cfg))
	assert.Equal(t, OutcomeFulfilled, variantOf(KindPayment).decide(parts, cfg))

	h := newHarness(t)
	c := &Collective{ID: 4, CreatorID: 7, Amount: 300, Description: "чай", Kind: KindPayment}
	require.NoError(t, h.store.Atomic(context.Background(), func(ctx context.Context, tx Tx) error {
		transfers, err := variantOf(KindPayment).settle(ctx, tx, c, parts)
		require.NoError(t, err)
		require.Len(t, transfers, 1)
		assert.Equal(t, communityID, transfers[0].SenderID)
		assert.Equal(t, int64(7), transfers[0].ReceiverID)
		assert.Equal(t, int64(300), transfers[0].Amount)
		return nil
	}))
}

func TestPaymentVoteRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)
	bob := h.store.addAccount("bob", false)
	carol := h.store.addAccount("carol", false)
	dave := h.store.addAccount("dave", false)
	st := h.create(t, KindPayment, alice, 1000)

	_, err := h.svc.Vote(ctx, st.ID, alice, true)
	assert.ErrorIs(t, err, common.ErrSelfVote)
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = h.svc.Vote(ctx, st.ID, bob, false)
	require.NoError(t, err)
	_, err = h.svc.Vote(ctx, st.ID, bob, true)
	assert.ErrorIs(t, err, common.ErrAlreadyVoted)

	loaded, err := h.svc.Load(ctx, st.ID)
	require.NoError(t, err)
	approve, disapprove := loaded.Tally()
	assert.Equal(t, 0, approve)
	assert.Equal(t, 1, disapprove)

	_, err = h.svc.Vote(ctx, st.ID, carol, false)
	require.NoError(t, err)

	// Закрыт после двух голосов против, третий голос отклоняется
	_, err = h.svc.Vote(ctx, st.ID, dave, true)
	assert.ErrorIs(t, err, common.ErrCollectiveClosed)
}

func TestPaymentWrongKindOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)
	bob := h.store.addAccount("bob", false)

	pay := h.create(t, KindPayment, alice, 1000)
	_, _, err := h.svc.Toggle(ctx, pay.ID, bob)
	assert.ErrorIs(t, err, common.ErrWrongKind)
	_, _, err = h.svc.Accept(ctx, pay.ID, alice)
	assert.ErrorIs(t, err, common.ErrWrongKind)

	_, err = h.svc.Cancel(ctx, pay.ID, alice)
	require.NoError(t, err)

	com := h.create(t, KindCommunism, alice, 1000)
	_, err = h.svc.Vote(ctx, com.ID, bob, true)
	assert.ErrorIs(t, err, common.ErrWrongKind)
}

func TestPaymentVoteRequiresPermission(t *testing.T) {
	h := newHarness(t)
	h.cfg.CommunityVoteRequiresPermission = true
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)
	bob := h.store.addAccount("bob", false)
	carol := h.store.addAccount("carol", true)
	st := h.create(t, KindPayment, alice, 1000)

	_, err := h.svc.Vote(ctx, st.ID, bob, true)
	assert.ErrorIs(t, err, common.ErrVoteNotPermitted)

	res, err := h.svc.Vote(ctx, st.ID, carol, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Approvers)
}

func TestPaymentConcurrentVotesSettleOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)
	st := h.create(t, KindPayment, alice, 700)

	var voters []int64
	for _, name := range []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8", "v9", "v10"} {
		voters = append(voters, h.store.addAccount(name, false))
	}

	var accepted, rejected, closedBy int32
	var g errgroup.Group
	for _, voter := range voters {
		g.Go(func() error {
			res, err := h.svc.Vote(ctx, st.ID, voter, true)
			switch {
			case err == nil:
				atomic.AddInt32(&accepted, 1)
				if res.Closed {
					atomic.AddInt32(&closedBy, 1)
				}
			case errors.Is(err, common.ErrCollectiveClosed):
				atomic.AddInt32(&rejected, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(2), accepted)
	assert.Equal(t, int32(8), rejected)
	assert.Equal(t, int32(1), closedBy)

	txs := h.store.transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, int64(700), txs[0].Amount)
	assert.Zero(t, h.store.total())
}
