// Package accounts, repository.go отвечает за все операции с таблицей accounts в БД.
package accounts

import (
	"context"
	"fmt"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/db/postgres"
)

const accountColumns = `id, tid, COALESCE(username, ''), name, balance, permission, created_at, accessed_at`

// Repository работает с таблицей accounts.
// db: пул или транзакция, см. postgres.Querier.
type Repository struct {
	db postgres.Querier
}

func NewRepository(db postgres.Querier) *Repository {
	return &Repository{db: db}
}

// WithTx возвращает репозиторий, работающий внутри транзакции.
func (r *Repository) WithTx(q postgres.Querier) *Repository {
	return &Repository{db: q}
}

// Ensure создаёт счёт или обновляет имя/username существующего.
// Баланс и права не трогает.
func (r *Repository) Ensure(ctx context.Context, p Profile) (*Account, error) {
	query := `
		INSERT INTO accounts (tid, username, name)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (tid) DO UPDATE
		SET username = EXCLUDED.username,
		    name = EXCLUDED.name,
		    accessed_at = NOW()
		RETURNING ` + accountColumns
	a, err := scanAccount(r.db.QueryRow(ctx, query, p.TID, p.Username, p.Name()))
	if err != nil {
		return nil, common.Persistence(fmt.Sprintf("регистрация счёта tid=%d", p.TID), err)
	}
	return a, nil
}

// GetByID возвращает common.ErrAccountNotFound, если счёта нет.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.one(ctx, fmt.Sprintf("id=%d", id), query, id)
}

// GetByUsername ищет по @username без учёта регистра (без @).
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(username) = LOWER($1)`
	return r.one(ctx, "username="+username, query, username)
}

// Community возвращает счёт сообщества (создаётся миграцией).
func (r *Repository) Community(ctx context.Context) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE tid IS NULL`
	return r.one(ctx, "community", query)
}

// ExistsTID: зарегистрирован ли пользователь.
func (r *Repository) ExistsTID(ctx context.Context, tid int64) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE tid = $1)`, tid).Scan(&exists); err != nil {
		return false, common.Persistence("проверка счёта", err)
	}
	return exists, nil
}

// SetPermission выставляет право голоса.
func (r *Repository) SetPermission(ctx context.Context, id int64, permission bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET permission = $2 WHERE id = $1`, id, permission)
	if err != nil {
		return common.Persistence("обновление прав", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrAccountNotFound
	}
	return nil
}

// List возвращает все счета, сообщество первым.
func (r *Repository) List(ctx context.Context) ([]*Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY tid NULLS FIRST, id`)
	if err != nil {
		return nil, common.Persistence("список счетов", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, common.Persistence("сканирование счёта", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Persistence("чтение счетов", err)
	}
	return out, nil
}

func (r *Repository) one(ctx context.Context, what, query string, args ...any) (*Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("%w (%s)", common.ErrAccountNotFound, what)
		}
		return nil, common.Persistence("чтение счёта "+what, err)
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*Account, error) {
	var a Account
	if err := row.Scan(
		&a.ID, &a.TID, &a.Username, &a.Name, &a.Balance,
		&a.Permission, &a.CreatedAt, &a.AccessedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
