// Package collectives, repository.go хранит сборы в PostgreSQL:
// таблицы collectives, collective_participants, collective_views.
package collectives

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/db/postgres"
	"serotonyl.ru/mate-bot/internal/features/accounts"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

const collectiveColumns = `id, creator_id, amount, description, kind, active, externals,
	COALESCE(outcome, 'pending'), COALESCE(closed_by, ''), created_at, closed_at`

// Repository: Store поверх пула. Счета и журнал работают в той же транзакции.
type Repository struct {
	db       postgres.Querier
	accounts *accounts.Repository
	ledger   *ledger.Repository
}

func NewRepository(db postgres.Querier, accountRepo *accounts.Repository, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, accounts: accountRepo, ledger: ledgerRepo}
}

// Atomic выполняет fn в транзакции БД.
func (r *Repository) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{
			tx:       tx,
			accounts: r.accounts.WithTx(tx),
			ledger:   r.ledger.WithTx(tx),
		})
	})
}

type pgTx struct {
	tx       pgx.Tx
	accounts *accounts.Repository
	ledger   *ledger.Repository
}

func (t *pgTx) Lock(ctx context.Context, id int64) (*Collective, error) {
	return t.one(ctx, id, `SELECT `+collectiveColumns+` FROM collectives WHERE id = $1 FOR UPDATE`)
}

func (t *pgTx) Get(ctx context.Context, id int64) (*Collective, error) {
	return t.one(ctx, id, `SELECT `+collectiveColumns+` FROM collectives WHERE id = $1`)
}

func (t *pgTx) one(ctx context.Context, id int64, query string) (*Collective, error) {
	c, err := scanCollective(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("%w (#%d)", common.ErrCollectiveNotFound, id)
		}
		return nil, common.Persistence("чтение сбора", err)
	}
	return c, nil
}

func (t *pgTx) ActiveByCreator(ctx context.Context, creatorID int64) (*Collective, error) {
	c, err := scanCollective(t.tx.QueryRow(ctx,
		`SELECT `+collectiveColumns+` FROM collectives WHERE creator_id = $1 AND active`, creatorID))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, common.Persistence("активный сбор создателя", err)
	}
	return c, nil
}

func (t *pgTx) Insert(ctx context.Context, d Draft) (*Collective, error) {
	c, err := scanCollective(t.tx.QueryRow(ctx, `
		INSERT INTO collectives (creator_id, amount, description, kind)
		VALUES ($1, $2, $3, $4)
		RETURNING `+collectiveColumns,
		d.CreatorID, d.Amount, d.Description, string(d.Kind)))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, common.ErrActiveCollectiveExists
		}
		return nil, common.Persistence("создание сбора", err)
	}
	return c, nil
}

func (t *pgTx) SetExternals(ctx context.Context, id int64, n int) error {
	if _, err := t.tx.Exec(ctx, `UPDATE collectives SET externals = $2 WHERE id = $1 AND active`, id, n); err != nil {
		return common.Persistence("обновление внешних участников", err)
	}
	return nil
}

func (t *pgTx) Finish(ctx context.Context, id int64, outcome Outcome, by Closure) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE collectives
		SET active = FALSE, outcome = $2, closed_by = $3, closed_at = NOW()
		WHERE id = $1 AND active
	`, id, string(outcome), string(by))
	if err != nil {
		return false, common.Persistence("закрытие сбора", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) Participants(ctx context.Context, id int64) ([]Participant, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT p.account_id, COALESCE(a.username, ''), a.name, p.vote
		FROM collective_participants p
		JOIN accounts a ON a.id = p.account_id
		WHERE p.collective_id = $1
		ORDER BY p.created_at, p.account_id
	`, id)
	if err != nil {
		return nil, common.Persistence("участники сбора", err)
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		var (
			p        Participant
			username string
			name     string
		)
		if err := rows.Scan(&p.AccountID, &username, &name, &p.Vote); err != nil {
			return nil, common.Persistence("сканирование участника", err)
		}
		a := accounts.Account{Username: username, Name: name}
		p.Name = a.DisplayName()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Persistence("чтение участников", err)
	}
	return out, nil
}

func (t *pgTx) AddParticipant(ctx context.Context, id, accountID int64, vote *bool) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO collective_participants (collective_id, account_id, vote)
		VALUES ($1, $2, $3)
		ON CONFLICT (collective_id, account_id) DO NOTHING
	`, id, accountID, vote)
	if err != nil {
		return false, common.Persistence("добавление участника", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) RemoveParticipant(ctx context.Context, id, accountID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM collective_participants WHERE collective_id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return false, common.Persistence("удаление участника", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) Views(ctx context.Context, id int64) ([]View, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT chat_id, message_id FROM collective_views WHERE collective_id = $1 ORDER BY chat_id`, id)
	if err != nil {
		return nil, common.Persistence("сообщения сбора", err)
	}
	defer rows.Close()

	var out []View
	for rows.Next() {
		var v View
		if err := rows.Scan(&v.ChatID, &v.MessageID); err != nil {
			return nil, common.Persistence("сканирование сообщения", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Persistence("чтение сообщений", err)
	}
	return out, nil
}

func (t *pgTx) AddView(ctx context.Context, id int64, v View) (*View, error) {
	var prev *View
	var old int
	err := t.tx.QueryRow(ctx,
		`SELECT message_id FROM collective_views WHERE collective_id = $1 AND chat_id = $2`, id, v.ChatID).Scan(&old)
	switch {
	case err == nil:
		if old != v.MessageID {
			prev = &View{ChatID: v.ChatID, MessageID: old}
		}
	case !postgres.IsNoRows(err):
		return nil, common.Persistence("чтение сообщения сбора", err)
	}

	if _, err := t.tx.Exec(ctx, `
		INSERT INTO collective_views (collective_id, chat_id, message_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (collective_id, chat_id) DO UPDATE SET message_id = EXCLUDED.message_id
	`, id, v.ChatID, v.MessageID); err != nil {
		return nil, common.Persistence("привязка сообщения", err)
	}
	return prev, nil
}

func (t *pgTx) RemoveView(ctx context.Context, id, chatID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM collective_views WHERE collective_id = $1 AND chat_id = $2`, id, chatID)
	if err != nil {
		return false, common.Persistence("отвязка сообщения", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) ClearViews(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM collective_views WHERE collective_id = $1`, id); err != nil {
		return common.Persistence("отвязка сообщений", err)
	}
	return nil
}

func (t *pgTx) Account(ctx context.Context, id int64) (*accounts.Account, error) {
	return t.accounts.GetByID(ctx, id)
}

func (t *pgTx) Community(ctx context.Context) (*accounts.Account, error) {
	return t.accounts.Community(ctx)
}

func (t *pgTx) Commit(ctx context.Context, tr ledger.Transfer) (*ledger.Transaction, error) {
	return t.ledger.Commit(ctx, tr)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCollective(row scanner) (*Collective, error) {
	var (
		c       Collective
		kind     string
		outcome  string
		closedBy string
	)
	if err := row.Scan(
		&c.ID, &c.CreatorID, &c.Amount, &c.Description, &kind, &c.Active,
		&c.Externals, &outcome, &closedBy, &c.CreatedAt, &c.ClosedAt,
	); err != nil {
		return nil, err
	}
	c.Kind = Kind(kind)
	c.Outcome = Outcome(outcome)
	c.ClosedBy = Closure(closedBy)
	return &c, nil
}
