package collectives

import (
	"context"
	"fmt"
	"strings"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

// CommunismReason: префикс причины переводов по коммунизму.
const CommunismReason = "коммунизм"

// Price возвращает долю одного участника, amount / participants с округлением вверх до цента.
func Price(amount int64, participants int) int64 {
	if participants <= 0 {
		return 0
	}
	n := int64(participants)
	price := amount / n
	if amount%n != 0 {
		price++
	}
	return price
}

// Toggle добавляет участника в коммунизм или убирает его. true: участник добавлен.
func (s *Service) Toggle(ctx context.Context, id, accountID int64) (bool, *State, error) {
	var joined bool
	st, err := s.mutate(ctx, id, KindCommunism, func(ctx context.Context, tx Tx, c *Collective) error {
		removed, err := tx.RemoveParticipant(ctx, id, accountID)
		if err != nil || removed {
			return err
		}
		joined, err = tx.AddParticipant(ctx, id, accountID, nil)
		return err
	})
	if err != nil {
		return false, nil, err
	}
	return joined, st, nil
}

// AdjustExternals меняет число внешних участников на delta (+1 или −1).
// Только создатель, результат не может быть отрицательным.
func (s *Service) AdjustExternals(ctx context.Context, id, caller int64, delta int) (*State, error) {
	if delta != 1 && delta != -1 {
		return nil, common.ErrExternalsDelta
	}
	return s.mutate(ctx, id, KindCommunism, func(ctx context.Context, tx Tx, c *Collective) error {
		return setExternals(ctx, tx, c, caller, c.Externals+delta)
	})
}

// SetExternals выставляет число внешних участников; отличаться от текущего оно должно ровно на 1.
func (s *Service) SetExternals(ctx context.Context, id, caller int64, n int) (*State, error) {
	return s.mutate(ctx, id, KindCommunism, func(ctx context.Context, tx Tx, c *Collective) error {
		return setExternals(ctx, tx, c, caller, n)
	})
}

func setExternals(ctx context.Context, tx Tx, c *Collective, caller int64, n int) error {
	if c.CreatorID != caller {
		return common.ErrNotCreator
	}
	if n < 0 || (n-c.Externals != 1 && c.Externals-n != 1) {
		return common.ErrExternalsDelta
	}
	if err := tx.SetExternals(ctx, c.ID, n); err != nil {
		return err
	}
	c.Externals = n
	return nil
}

// Accept закрывает коммунизм: каждый участник, кроме создателя, переводит создателю свою долю.
// Внешние участники учитываются в делителе, но переводов не создают.
func (s *Service) Accept(ctx context.Context, id, caller int64) (*State, []*ledger.Transaction, error) {
	var txs []*ledger.Transaction
	st, err := s.mutate(ctx, id, KindCommunism, func(ctx context.Context, tx Tx, c *Collective) error {
		if c.CreatorID != caller {
			return common.ErrNotCreator
		}
		var err error
		txs, err = s.close(ctx, tx, c, OutcomeFulfilled, ClosedByCreator)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return st, txs, nil
}

// settleCommunism считает переводы закрытия.
// Платить должен хотя бы кто-то, кроме создателя.
func settleCommunism(c *Collective, parts []Participant) ([]ledger.Transfer, error) {
	payers := c.Externals
	for _, p := range parts {
		if p.AccountID != c.CreatorID {
			payers++
		}
	}
	if payers == 0 {
		return nil, common.ErrNotEnoughParticipants
	}

	price := Price(c.Amount, c.Externals+len(parts))
	var out []ledger.Transfer
	for _, p := range parts {
		if p.AccountID == c.CreatorID {
			continue
		}
		out = append(out, ledger.Transfer{
			SenderID:   p.AccountID,
			ReceiverID: c.CreatorID,
			Amount:     price,
			Reason:     reason(CommunismReason, c),
		})
	}
	return out, nil
}

type communism struct{}

// decide: коммунизм закрывает только создатель.
func (communism) decide([]Participant, *config.Config) Outcome {
	return OutcomePending
}

func (communism) settle(_ context.Context, _ Tx, c *Collective, parts []Participant) ([]ledger.Transfer, error) {
	return settleCommunism(c, parts)
}

func (communism) render(st *State, cfg *config.Config) Rendering {
	money := func(v int64) string { return common.FormatMoney(v, cfg.EconomyCurrencySymbol) }

	joined := st.Names(nil)
	if joined == "" {
		joined = "никого"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Коммунизм #%d от %s\n\n", st.ID, st.CreatorName)
	fmt.Fprintf(&sb, "Причина: %s\n", st.Description)
	fmt.Fprintf(&sb, "Сумма: %s\n", money(st.Amount))
	fmt.Fprintf(&sb, "Внешние участники: %d\n", st.Externals)
	fmt.Fprintf(&sb, "Участники: %s\n\n", joined)

	switch st.Outcome {
	case OutcomeFulfilled:
		price := Price(st.Amount, st.Externals+len(st.Participants))
		fmt.Fprintf(&sb, "Коммунизм закрыт, все переводы выполнены. С каждого по %s.", money(price))
		if st.Externals > 0 {
			fmt.Fprintf(&sb, "\n%s собирает %s с каждого внешнего участника.", st.CreatorName, money(price))
		}
	case OutcomeAborted:
		sb.WriteString("Коммунизм отменён.")
	default:
		n := int64(st.Externals + len(st.Participants))
		fmt.Fprintf(&sb, "Коммунизм активен: %d %s, по %s с каждого.",
			n, common.PluralizeParticipants(n), money(Price(st.Amount, int(n))))
	}

	r := Rendering{Text: sb.String()}
	if st.Active {
		data := func(action string) string { return fmt.Sprintf("%s %s %d", callbackCommunism, action, st.ID) }
		r.Controls = [][]Control{
			{{Label: "Участвую / выхожу", Data: data("toggle")}},
			{{Label: "Внешние +", Data: data("increase")}, {Label: "Внешние −", Data: data("decrease")}},
			{{Label: "Принять", Data: data("accept")}, {Label: "Отменить", Data: data("cancel")}},
		}
	}
	return r
}
