package collectives

import (
	"context"

	"serotonyl.ru/mate-bot/internal/features/accounts"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

// Store открывает транзакцию хранилища. Если fn вернула ошибку,
// ничего из сделанного внутри fn не сохраняется.
type Store interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx: операции над сборами внутри одной транзакции.
// Переводы (Commit) попадают в ту же транзакцию, что и закрытие сбора.
type Tx interface {
	// Lock читает сбор с блокировкой строки до конца транзакции.
	Lock(ctx context.Context, id int64) (*Collective, error)
	Get(ctx context.Context, id int64) (*Collective, error)
	// ActiveByCreator возвращает nil, nil, если активного сбора нет.
	ActiveByCreator(ctx context.Context, creatorID int64) (*Collective, error)
	Insert(ctx context.Context, d Draft) (*Collective, error)
	SetExternals(ctx context.Context, id int64, n int) error
	// Finish закрывает сбор, только если он ещё активен. false: уже был закрыт.
	Finish(ctx context.Context, id int64, outcome Outcome, by Closure) (bool, error)

	Participants(ctx context.Context, id int64) ([]Participant, error)
	// AddParticipant возвращает false, если запись уже есть (она не меняется).
	AddParticipant(ctx context.Context, id, accountID int64, vote *bool) (bool, error)
	RemoveParticipant(ctx context.Context, id, accountID int64) (bool, error)

	Views(ctx context.Context, id int64) ([]View, error)
	// AddView привязывает сообщение; прежнее сообщение в том же чате возвращается.
	AddView(ctx context.Context, id int64, v View) (*View, error)
	RemoveView(ctx context.Context, id, chatID int64) (bool, error)
	ClearViews(ctx context.Context, id int64) error

	Account(ctx context.Context, id int64) (*accounts.Account, error)
	Community(ctx context.Context) (*accounts.Account, error)
	Commit(ctx context.Context, t ledger.Transfer) (*ledger.Transaction, error)
}
