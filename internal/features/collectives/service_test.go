package collectives

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/lock"
)

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)

	tests := []struct {
		name  string
		draft Draft
		want  error
	}{
		{"zero amount", Draft{Kind: KindCommunism, CreatorID: alice, Amount: 0, Description: "пицца"}, common.ErrInvalidAmount},
		{"too much", Draft{Kind: KindPayment, CreatorID: alice, Amount: 100001, Description: "пицца"}, common.ErrInvalidAmount},
		{"short description", Draft{Kind: KindCommunism, CreatorID: alice, Amount: 100, Description: "  аб  "}, common.ErrDescriptionTooShort},
		{"unknown kind", Draft{Kind: "lottery", CreatorID: alice, Amount: 100, Description: "пицца"}, common.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Create(ctx, tt.draft)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	st, err := h.svc.Create(ctx, Draft{Kind: KindCommunism, CreatorID: alice, Amount: 100, Description: "  чай  "})
	require.NoError(t, err)
	assert.Equal(t, "чай", st.Description)
	assert.Equal(t, "@alice", st.CreatorName)
}

func TestSingleActiveCollectivePerCreator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)
	bob := h.store.addAccount("bob", false)

	first := h.create(t, KindCommunism, alice, 500)

	_, err := h.svc.Create(ctx, Draft{Kind: KindPayment, CreatorID: alice, Amount: 100, Description: "другое"})
	assert.ErrorIs(t, err, common.ErrActiveCollectiveExists)
	assert.ErrorIs(t, err, common.ErrConflict)

	// У другого создателя свой сбор
	h.create(t, KindPayment, bob, 100)

	active, err := h.svc.ActiveByCreator(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	_, err = h.svc.Cancel(ctx, first.ID, alice)
	require.NoError(t, err)

	_, err = h.svc.ActiveByCreator(ctx, alice)
	assert.ErrorIs(t, err, common.ErrCollectiveNotFound)

	h.create(t, KindPayment, alice, 100)
}

func TestConcurrentCreateKeepsOneActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)

	errs := make([]error, 20)
	var g errgroup.Group
	for i := range errs {
		g.Go(func() error {
			kind := KindCommunism
			if i%2 == 1 {
				kind = KindPayment
			}
			_, errs[i] = h.svc.Create(ctx, Draft{Kind: kind, CreatorID: alice, Amount: 100, Description: "гонка"})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, common.ErrActiveCollectiveExists)
	}
	assert.Equal(t, 1, created)
}

func TestLoadUnknownCollective(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Load(context.Background(), 42)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = h.svc.Cancel(context.Background(), 42, 1)
	assert.ErrorIs(t, err, common.ErrCollectiveNotFound)
}

func TestViewsPublishedAndUnboundOnClose(t *testing.T) {
	store := newFakeStore()
	views := &viewSyncMock{}
	svc := NewService(store, views, lock.NewKeyed(), testConfig())
	ctx := context.Background()

	alice := store.addAccount("alice", false)
	bob := store.addAccount("bob", false)
	st, err := svc.Create(ctx, Draft{Kind: KindCommunism, CreatorID: alice, Amount: 300, Description: "пицца"})
	require.NoError(t, err)

	group := View{ChatID: -100, MessageID: 10}
	private := View{ChatID: 2000, MessageID: 3}
	_, err = svc.BindView(ctx, st.ID, group)
	require.NoError(t, err)
	_, err = svc.BindView(ctx, st.ID, private)
	require.NoError(t, err)

	interactive := mock.MatchedBy(func(r Rendering) bool { return len(r.Controls) > 0 })
	final := mock.MatchedBy(func(r Rendering) bool { return len(r.Controls) == 0 })
	both := []View{group, private}

	views.On("Publish", mock.Anything, mock.Anything, both, interactive).Return(nil).Once()
	_, _, err = svc.Toggle(ctx, st.ID, bob)
	require.NoError(t, err)

	views.On("Publish", mock.Anything, mock.Anything, both, final).Return(errors.New("telegram down")).Once()
	views.On("UnbindAll", mock.Anything, mock.Anything, both).Return(nil).Once()
	closed, _, err := svc.Accept(ctx, st.ID, alice)
	require.NoError(t, err, "ошибка публикации не откатывает закрытие")
	assert.False(t, closed.Active)

	views.AssertExpectations(t)
	assert.Zero(t, store.viewCount(st.ID))

	_, err = svc.BindView(ctx, st.ID, group)
	assert.ErrorIs(t, err, common.ErrCollectiveClosed)
}

func TestBindViewReplacesMessageInSameChat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)
	st := h.create(t, KindPayment, alice, 100)

	replaced, err := h.svc.BindView(ctx, st.ID, View{ChatID: -100, MessageID: 1})
	require.NoError(t, err)
	assert.Nil(t, replaced)

	replaced, err = h.svc.BindView(ctx, st.ID, View{ChatID: -100, MessageID: 7})
	require.NoError(t, err)
	require.NotNil(t, replaced)
	assert.Equal(t, 1, replaced.MessageID)

	views, err := h.svc.Views(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, []View{{ChatID: -100, MessageID: 7}}, views)

	require.NoError(t, h.svc.UnbindView(ctx, st.ID, -100))
	views, err = h.svc.Views(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestBusyLockIsReported(t *testing.T) {
	h := newHarness(t)
	h.svc.locker = busyLocker{}
	alice := h.store.addAccount("alice", false)

	_, err := h.svc.Create(context.Background(), Draft{Kind: KindCommunism, CreatorID: alice, Amount: 100, Description: "пицца"})
	assert.ErrorIs(t, err, common.ErrBusy)
	assert.ErrorIs(t, err, common.ErrPersistence)
}

type busyLocker struct{}

func (busyLocker) Lock(ctx context.Context, key string) (func(), error) {
	return nil, common.ErrBusy
}
