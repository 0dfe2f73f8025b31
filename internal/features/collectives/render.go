package collectives

import (
	"context"

	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

// Префиксы callback data кнопок сборов.
const (
	callbackCommunism = "communism"
	callbackPay       = "pay"
)

// variant: поведение, которое различается у видов сборов.
type variant interface {
	// decide: исход после нового голоса. OutcomePending: сбор остаётся открытым.
	decide(parts []Participant, cfg *config.Config) Outcome
	// settle: переводы при успешном закрытии, в транзакции закрытия.
	settle(ctx context.Context, tx Tx, c *Collective, parts []Participant) ([]ledger.Transfer, error)
	render(st *State, cfg *config.Config) Rendering
}

var variants = map[Kind]variant{
	KindCommunism: communism{},
	KindPayment:   payment{},
}

// variantOf возвращает вариант вида. Вид проверяется при создании и CHECK в БД.
func variantOf(k Kind) variant {
	if v, ok := variants[k]; ok {
		return v
	}
	panic("collectives: неизвестный вид сбора " + string(k))
}

// paymentTransfer: перевод сообщество → создатель по одобренной оплате.
func paymentTransfer(c *Collective, communityID int64) ledger.Transfer {
	return ledger.Transfer{
		SenderID:   communityID,
		ReceiverID: c.CreatorID,
		Amount:     c.Amount,
		Reason:     reason(PaymentReason, c),
	}
}
