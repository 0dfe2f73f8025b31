package ledger

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/accounts"
)

// ConsumeReason: префикс причины списания за товар кассы.
const ConsumeReason = "потребление"

// Consume списывает price*n со счёта участника в пользу сообщества.
func (s *Service) Consume(ctx context.Context, accountID, communityID int64, item config.Consumable, n int) (*Transaction, error) {
	if n < 1 || n > s.cfg.EconomyMaxConsume {
		return nil, fmt.Errorf("%w (максимум %d)", common.ErrConsumeCount, s.cfg.EconomyMaxConsume)
	}
	return s.Commit(ctx, Transfer{
		SenderID:   accountID,
		ReceiverID: communityID,
		Amount:     item.Price * int64(n),
		Reason:     fmt.Sprintf("%s: %dx %s", ConsumeReason, n, item.Name()),
	})
}

// WorstDebtors: участники с отрицательным балансом, самые большие долги первыми.
// Счёт сообщества не учитывается.
func WorstDebtors(list []*accounts.Account, limit int) []*accounts.Account {
	var out []*accounts.Account
	for _, a := range list {
		if !a.IsCommunity() && a.Balance < 0 {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b *accounts.Account) int {
		return cmp.Or(cmp.Compare(a.Balance, b.Balance), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
