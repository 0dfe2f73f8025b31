package collectives

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/accounts"
	"serotonyl.ru/mate-bot/internal/features/ledger"
	"serotonyl.ru/mate-bot/internal/lock"
)

type fakePart struct {
	accountID int64
	vote      *bool
}

type fakeData struct {
	nextID       int64
	collectives  map[int64]Collective
	participants map[int64][]fakePart
	views        map[int64][]View
	accounts     map[int64]accounts.Account
	txs          []ledger.Transaction
}

func (d *fakeData) clone() *fakeData {
	c := &fakeData{
		nextID:       d.nextID,
		collectives:  make(map[int64]Collective, len(d.collectives)),
		participants: make(map[int64][]fakePart, len(d.participants)),
		views:        make(map[int64][]View, len(d.views)),
		accounts:     make(map[int64]accounts.Account, len(d.accounts)),
		txs:          append([]ledger.Transaction(nil), d.txs...),
	}
	for k, v := range d.collectives {
		c.collectives[k] = v
	}
	for k, v := range d.participants {
		c.participants[k] = append([]fakePart(nil), v...)
	}
	for k, v := range d.views {
		c.views[k] = append([]View(nil), v...)
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	return c
}

// fakeStore: Store в памяти. Atomic выполняется под одним мьютексом
// и откатывает все изменения, если fn вернула ошибку.
type fakeStore struct {
	mu   sync.Mutex
	data *fakeData

	// finishMiss: Finish отвечает «строка уже закрыта».
	finishMiss bool
}

const communityID int64 = 1

func newFakeStore() *fakeStore {
	return &fakeStore{data: &fakeData{
		nextID:       1,
		collectives:  map[int64]Collective{},
		participants: map[int64][]fakePart{},
		views:        map[int64][]View{},
		accounts: map[int64]accounts.Account{
			communityID: {ID: communityID, Name: "Сообщество"},
		},
	}}
}

func (f *fakeStore) addAccount(username string, permission bool) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.data.accounts) + 1)
	tid := id * 1000
	f.data.accounts[id] = accounts.Account{ID: id, TID: &tid, Username: username, Name: username, Permission: permission}
	return id
}

func (f *fakeStore) balance(id int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.accounts[id].Balance
}

func (f *fakeStore) total() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, a := range f.data.accounts {
		sum += a.Balance
	}
	return sum
}

func (f *fakeStore) transactions() []ledger.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.Transaction(nil), f.data.txs...)
}

func (f *fakeStore) viewCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data.views[id])
}

func (f *fakeStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := f.data.clone()
	if err := fn(ctx, &fakeTx{s: f}); err != nil {
		f.data = snapshot
		return err
	}
	return nil
}

type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) d() *fakeData { return t.s.data }

func (t *fakeTx) Lock(ctx context.Context, id int64) (*Collective, error) {
	return t.Get(ctx, id)
}

func (t *fakeTx) Get(_ context.Context, id int64) (*Collective, error) {
	c, ok := t.d().collectives[id]
	if !ok {
		return nil, common.ErrCollectiveNotFound
	}
	return &c, nil
}

func (t *fakeTx) ActiveByCreator(_ context.Context, creatorID int64) (*Collective, error) {
	for _, c := range t.d().collectives {
		if c.Active && c.CreatorID == creatorID {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (t *fakeTx) Insert(_ context.Context, d Draft) (*Collective, error) {
	for _, c := range t.d().collectives {
		if c.Active && c.CreatorID == d.CreatorID {
			return nil, common.ErrActiveCollectiveExists
		}
	}
	c := Collective{
		ID:          t.d().nextID,
		CreatorID:   d.CreatorID,
		Amount:      d.Amount,
		Description: d.Description,
		Kind:        d.Kind,
		Active:      true,
		Outcome:     OutcomePending,
		CreatedAt:   time.Now(),
	}
	t.d().nextID++
	t.d().collectives[c.ID] = c
	return &c, nil
}

func (t *fakeTx) SetExternals(_ context.Context, id int64, n int) error {
	c := t.d().collectives[id]
	c.Externals = n
	t.d().collectives[id] = c
	return nil
}

func (t *fakeTx) Finish(_ context.Context, id int64, outcome Outcome, by Closure) (bool, error) {
	c := t.d().collectives[id]
	if !c.Active || t.s.finishMiss {
		return false, nil
	}
	now := time.Now()
	c.Active, c.Outcome, c.ClosedBy, c.ClosedAt = false, outcome, by, &now
	t.d().collectives[id] = c
	return true, nil
}

func (t *fakeTx) Participants(_ context.Context, id int64) ([]Participant, error) {
	var out []Participant
	for _, p := range t.d().participants[id] {
		a := t.d().accounts[p.accountID]
		out = append(out, Participant{AccountID: p.accountID, Name: a.DisplayName(), Vote: p.vote})
	}
	return out, nil
}

func (t *fakeTx) AddParticipant(_ context.Context, id, accountID int64, vote *bool) (bool, error) {
	for _, p := range t.d().participants[id] {
		if p.accountID == accountID {
			return false, nil
		}
	}
	t.d().participants[id] = append(t.d().participants[id], fakePart{accountID: accountID, vote: vote})
	return true, nil
}

func (t *fakeTx) RemoveParticipant(_ context.Context, id, accountID int64) (bool, error) {
	parts := t.d().participants[id]
	for i, p := range parts {
		if p.accountID == accountID {
			t.d().participants[id] = append(parts[:i:i], parts[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) Views(_ context.Context, id int64) ([]View, error) {
	return append([]View(nil), t.d().views[id]...), nil
}

func (t *fakeTx) AddView(_ context.Context, id int64, v View) (*View, error) {
	views := t.d().views[id]
	for i, old := range views {
		if old.ChatID == v.ChatID {
			views[i] = v
			if old.MessageID == v.MessageID {
				return nil, nil
			}
			return &old, nil
		}
	}
	t.d().views[id] = append(views, v)
	return nil, nil
}

func (t *fakeTx) RemoveView(_ context.Context, id, chatID int64) (bool, error) {
	views := t.d().views[id]
	for i, v := range views {
		if v.ChatID == chatID {
			t.d().views[id] = append(views[:i:i], views[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) ClearViews(_ context.Context, id int64) error {
	delete(t.d().views, id)
	return nil
}

func (t *fakeTx) Account(_ context.Context, id int64) (*accounts.Account, error) {
	a, ok := t.d().accounts[id]
	if !ok {
		return nil, common.ErrAccountNotFound
	}
	return &a, nil
}

func (t *fakeTx) Community(ctx context.Context) (*accounts.Account, error) {
	return t.Account(ctx, communityID)
}

func (t *fakeTx) Commit(_ context.Context, tr ledger.Transfer) (*ledger.Transaction, error) {
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	sender, ok := t.d().accounts[tr.SenderID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", common.ErrAccountNotFound, tr.SenderID)
	}
	receiver, ok := t.d().accounts[tr.ReceiverID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", common.ErrAccountNotFound, tr.ReceiverID)
	}
	sender.Balance -= tr.Amount
	receiver.Balance += tr.Amount
	t.d().accounts[sender.ID] = sender
	t.d().accounts[receiver.ID] = receiver

	tx := ledger.Transaction{
		ID:         int64(len(t.d().txs) + 1),
		SenderID:   tr.SenderID,
		ReceiverID: tr.ReceiverID,
		Amount:     tr.Amount,
		Reason:     tr.Reason,
		CreatedAt:  time.Now(),
	}
	t.d().txs = append(t.d().txs, tx)
	return &tx, nil
}

type viewSyncMock struct {
	mock.Mock
}

func (m *viewSyncMock) Publish(ctx context.Context, st *State, views []View, r Rendering) error {
	return m.Called(ctx, st, views, r).Error(0)
}

func (m *viewSyncMock) UnbindAll(ctx context.Context, st *State, views []View) error {
	return m.Called(ctx, st, views).Error(0)
}

type harness struct {
	svc   *Service
	store *fakeStore
	views *viewSyncMock
	cfg   *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		LockWait:                time.Second,
		LockTTL:                 5 * time.Second,
		CommunityPaymentConsent: 2,
		CommunityPaymentDenial:  2,
		EconomyMaxAmount:        100000,
		EconomyCurrencySymbol:   "€",
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newFakeStore()
	views := &viewSyncMock{}
	views.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	views.On("UnbindAll", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	cfg := testConfig()
	return &harness{
		svc:   NewService(store, views, lock.NewKeyed(), cfg),
		store: store,
		views: views,
		cfg:   cfg,
	}
}

func (h *harness) create(t *testing.T, kind Kind, creator, amount int64) *State {
	t.Helper()
	st, err := h.svc.Create(context.Background(), Draft{
		Kind:        kind,
		CreatorID:   creator,
		Amount:      amount,
		Description: "пицца на всех",
	})
	require.NoError(t, err)
	return st
}
