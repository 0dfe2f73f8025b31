// Package ledger, repository.go выполняет операции с таблицами transactions и accounts.
// Все денежные операции выполняются в транзакциях БД.
package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/db/postgres"
)

type Repository struct {
	db postgres.Querier
}

func NewRepository(db postgres.Querier) *Repository {
	return &Repository{db: db}
}

// WithTx возвращает репозиторий поверх чужой транзакции.
// Commit тогда выполняется во вложенном savepoint и фиксируется вместе с внешней транзакцией.
func (r *Repository) WithTx(q postgres.Querier) *Repository {
	return &Repository{db: q}
}

// Commit записывает перевод: блокирует оба счёта в порядке id,
// меняет балансы и добавляет запись в журнал. Либо всё, либо ничего.
func (r *Repository) Commit(ctx context.Context, t Transfer) (*Transaction, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var out Transaction
	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		// Порядок блокировок одинаковый для всех, поэтому встречные переводы не дедлочатся
		rows, err := tx.Query(ctx, `
			SELECT id FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE
		`, []int64{t.SenderID, t.ReceiverID})
		if err != nil {
			return common.Persistence("блокировка счетов", err)
		}
		locked := 0
		for rows.Next() {
			locked++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return common.Persistence("блокировка счетов", err)
		}
		if locked != 2 {
			return fmt.Errorf("%w (отправитель %d, получатель %d)", common.ErrAccountNotFound, t.SenderID, t.ReceiverID)
		}

		if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance - $2 WHERE id = $1`, t.SenderID, t.Amount); err != nil {
			return common.Persistence("списание", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2 WHERE id = $1`, t.ReceiverID, t.Amount); err != nil {
			return common.Persistence("начисление", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO transactions (sender_id, receiver_id, amount, reason)
			VALUES ($1, $2, $3, $4)
			RETURNING id, sender_id, receiver_id, amount, reason, created_at
		`, t.SenderID, t.ReceiverID, t.Amount, t.Reason).Scan(
			&out.ID, &out.SenderID, &out.ReceiverID, &out.Amount, &out.Reason, &out.CreatedAt,
		)
		if err != nil {
			return common.Persistence("запись транзакции", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get возвращает транзакцию по id.
func (r *Repository) Get(ctx context.Context, id int64) (*Transaction, error) {
	var t Transaction
	err := r.db.QueryRow(ctx, `
		SELECT id, sender_id, receiver_id, amount, reason, created_at
		FROM transactions WHERE id = $1
	`, id).Scan(&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount, &t.Reason, &t.CreatedAt)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("%w (id=%d)", common.ErrTransactionNotFound, id)
		}
		return nil, common.Persistence("чтение транзакции", err)
	}
	return &t, nil
}

// Balance возвращает текущий баланс счёта.
func (r *Repository) Balance(ctx context.Context, accountID int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if postgres.IsNoRows(err) {
			return 0, fmt.Errorf("%w (id=%d)", common.ErrAccountNotFound, accountID)
		}
		return 0, common.Persistence("чтение баланса", err)
	}
	return balance, nil
}

// History возвращает последние limit транзакций счёта, новые первыми.
func (r *Repository) History(ctx context.Context, accountID int64, limit int) ([]*Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sender_id, receiver_id, amount, reason, created_at
		FROM transactions
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, common.Persistence("история транзакций", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount, &t.Reason, &t.CreatedAt); err != nil {
			return nil, common.Persistence("сканирование транзакции", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Persistence("чтение транзакций", err)
	}
	return out, nil
}

// Audit сверяет балансы с журналом в одном снимке (REPEATABLE READ).
func (r *Repository) Audit(ctx context.Context) (*AuditReport, error) {
	var report AuditReport

	err := postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SET TRANSACTION ISOLATION LEVEL REPEATABLE READ`); err != nil {
			return common.Persistence("уровень изоляции", err)
		}
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(balance), 0)::BIGINT, (SELECT COUNT(*) FROM transactions) FROM accounts
		`).Scan(&report.Total, &report.Transactions); err != nil {
			return common.Persistence("сумма балансов", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT a.id, a.balance, (COALESCE(inc.s, 0) - COALESCE(outg.s, 0))::BIGINT AS net
			FROM accounts a
			LEFT JOIN (SELECT receiver_id AS id, SUM(amount) AS s FROM transactions GROUP BY receiver_id) inc ON inc.id = a.id
			LEFT JOIN (SELECT sender_id AS id, SUM(amount) AS s FROM transactions GROUP BY sender_id) outg ON outg.id = a.id
			WHERE a.balance <> COALESCE(inc.s, 0) - COALESCE(outg.s, 0)
			ORDER BY a.id
		`)
		if err != nil {
			return common.Persistence("сверка счетов", err)
		}
		defer rows.Close()

		for rows.Next() {
			var m Mismatch
			if err := rows.Scan(&m.AccountID, &m.Balance, &m.Net); err != nil {
				return common.Persistence("сканирование сверки", err)
			}
			report.Mismatches = append(report.Mismatches, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}
