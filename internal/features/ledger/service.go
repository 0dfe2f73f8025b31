// Package ledger, service.go содержит бизнес-логику журнала:
// валидация, переводы, история и сверка балансов.
package ledger

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/config"
)

// SendPrefix: префикс причины прямого перевода между участниками.
const SendPrefix = "перевод"

// Store: хранилище журнала. Реализуется *Repository.
type Store interface {
	Commit(ctx context.Context, t Transfer) (*Transaction, error)
	Get(ctx context.Context, id int64) (*Transaction, error)
	Balance(ctx context.Context, accountID int64) (int64, error)
	History(ctx context.Context, accountID int64, limit int) ([]*Transaction, error)
	Audit(ctx context.Context) (*AuditReport, error)
}

type Service struct {
	store Store
	cfg   *config.Config
}

func NewService(store Store, cfg *config.Config) *Service {
	return &Service{store: store, cfg: cfg}
}

// Commit проверяет и записывает перевод.
func (s *Service) Commit(ctx context.Context, t Transfer) (*Transaction, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	tx, err := s.store.Commit(ctx, t)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"tx_id":    tx.ID,
		"sender":   tx.SenderID,
		"receiver": tx.ReceiverID,
		"amount":   tx.Amount,
		"reason":   tx.Reason,
	}).Info("Перевод записан")
	return tx, nil
}

// Send: прямой перевод от участника участнику.
// Сумма ограничена ECONOMY_MAX_AMOUNT, причина получает префикс «перевод».
func (s *Service) Send(ctx context.Context, senderID, receiverID, amount int64, reason string) (*Transaction, error) {
	if amount > s.cfg.EconomyMaxAmount {
		return nil, fmt.Errorf("%w: больше лимита %s", common.ErrInvalidAmount,
			common.FormatMoney(s.cfg.EconomyMaxAmount, s.cfg.EconomyCurrencySymbol))
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = SendPrefix
	} else {
		reason = SendPrefix + ": " + reason
	}

	return s.Commit(ctx, Transfer{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		Reason:     reason,
	})
}

// Get возвращает транзакцию по id.
func (s *Service) Get(ctx context.Context, id int64) (*Transaction, error) {
	return s.store.Get(ctx, id)
}

// Balance: текущий баланс счёта в центах.
func (s *Service) Balance(ctx context.Context, accountID int64) (int64, error) {
	return s.store.Balance(ctx, accountID)
}

// History возвращает последние транзакции счёта.
// limit <= 0: берём ECONOMY_HISTORY_LENGTH.
func (s *Service) History(ctx context.Context, accountID int64, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = s.cfg.EconomyHistoryLength
	}
	return s.store.History(ctx, accountID, limit)
}

// Audit сверяет журнал. Расхождение логируется как error: это баг, а не ошибка пользователя.
func (s *Service) Audit(ctx context.Context) (*AuditReport, error) {
	report, err := s.store.Audit(ctx)
	if err != nil {
		return nil, err
	}

	fields := log.Fields{
		"total":        report.Total,
		"transactions": report.Transactions,
		"mismatches":   len(report.Mismatches),
	}
	if report.OK() {
		log.WithFields(fields).Info("Сверка журнала: всё сходится")
	} else {
		log.WithFields(fields).Error("Сверка журнала: балансы не сходятся с журналом")
		for _, m := range report.Mismatches {
			log.WithFields(log.Fields{
				"account_id": m.AccountID,
				"balance":    m.Balance,
				"net":        m.Net,
			}).Error("Расхождение баланса")
		}
	}
	return report, nil
}

// FormatAudit: текст отчёта сверки для админов.
func FormatAudit(r *AuditReport, symbol string) string {
	if r.OK() {
		return fmt.Sprintf("✅ Журнал сходится: %d транзакций, сумма балансов %s",
			r.Transactions, common.FormatMoney(r.Total, symbol))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "❌ Журнал не сходится! Сумма балансов: %s\n", common.FormatMoney(r.Total, symbol))
	for _, m := range r.Mismatches {
		fmt.Fprintf(&sb, "счёт #%d: баланс %s, по журналу %s\n",
			m.AccountID, common.FormatMoney(m.Balance, symbol), common.FormatMoney(m.Net, symbol))
	}
	return strings.TrimRight(sb.String(), "\n")
}
