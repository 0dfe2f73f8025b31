// Package ledger ведёт журнал переводов между счетами.
// Журнал только дописывается: каждая запись меняет ровно два баланса
// в одной транзакции БД, поэтому сумма всех балансов всегда равна нулю.
package ledger

import (
	"fmt"
	"time"

	"serotonyl.ru/mate-bot/internal/common"
)

// Transfer: перевод, который ещё не записан в журнал.
type Transfer struct {
	SenderID   int64
	ReceiverID int64
	Amount     int64 // центы, > 0
	Reason     string
}

// Validate проверяет то, что можно проверить без БД.
func (t Transfer) Validate() error {
	if t.Amount <= 0 {
		return fmt.Errorf("%w: %d", common.ErrInvalidAmount, t.Amount)
	}
	if t.SenderID == t.ReceiverID {
		return common.ErrSelfTransfer
	}
	return nil
}

// Transaction: записанный перевод. Не меняется и не удаляется.
type Transaction struct {
	ID         int64     `db:"id"`
	SenderID   int64     `db:"sender_id"`
	ReceiverID int64     `db:"receiver_id"`
	Amount     int64     `db:"amount"`
	Reason     string    `db:"reason"`
	CreatedAt  time.Time `db:"created_at"`
}

// Mismatch: счёт, баланс которого не сходится с журналом.
type Mismatch struct {
	AccountID int64
	Balance   int64 // что записано в accounts.balance
	Net       int64 // получено − отправлено по журналу
}

// AuditReport: результат сверки журнала.
type AuditReport struct {
	Total        int64 // сумма всех балансов, должна быть 0
	Transactions int64
	Mismatches   []Mismatch
}

// OK: журнал и балансы согласованы.
func (r *AuditReport) OK() bool {
	return r.Total == 0 && len(r.Mismatches) == 0
}
