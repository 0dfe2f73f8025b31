package collectives

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

// PaymentReason: префикс причины перевода по одобренной оплате.
const PaymentReason = "оплата"

// decidePayment: итог голосования при текущем перевесе.
// Пороги читаются из конфига в момент подсчёта.
func decidePayment(approve, disapprove int, cfg *config.Config) Outcome {
	switch {
	case approve-disapprove >= cfg.CommunityPaymentConsent:
		return OutcomeFulfilled
	case disapprove-approve >= cfg.CommunityPaymentDenial:
		return OutcomeAborted
	default:
		return OutcomePending
	}
}

// Vote записывает голос по запросу на оплату. Один голос на участника,
// создатель не голосует. Перевес «за»: сообщество переводит сумму создателю,
// перевес «против»: запрос отклоняется.
func (s *Service) Vote(ctx context.Context, id, voter int64, approve bool) (*VoteResult, error) {
	var res VoteResult
	_, err := s.mutate(ctx, id, KindPayment, func(ctx context.Context, tx Tx, c *Collective) error {
		if voter == c.CreatorID {
			return common.ErrSelfVote
		}
		if s.cfg.CommunityVoteRequiresPermission {
			a, err := tx.Account(ctx, voter)
			if err != nil {
				return err
			}
			if !a.Permission {
				return common.ErrVoteNotPermitted
			}
		}

		added, err := tx.AddParticipant(ctx, id, voter, &approve)
		if err != nil {
			return err
		}
		if !added {
			return common.ErrAlreadyVoted
		}

		parts, err := tx.Participants(ctx, id)
		if err != nil {
			return err
		}
		res.Approvers, res.Disapprovers = (&State{Participants: parts}).Tally()
		res.Outcome = variantOf(c.Kind).decide(parts, s.cfg)
		if res.Outcome == OutcomePending {
			return nil
		}

		txs, err := s.close(ctx, tx, c, res.Outcome, ClosedByVote)
		if err != nil {
			return err
		}
		res.Closed = true
		if len(txs) > 0 {
			res.Transaction = txs[0]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"collective_id": id,
		"voter":         voter,
		"approve":       approve,
		"approvers":     res.Approvers,
		"disapprovers":  res.Disapprovers,
		"outcome":       res.Outcome,
	}).Info("Голос по оплате учтён")
	return &res, nil
}

type payment struct{}

func (payment) decide(parts []Participant, cfg *config.Config) Outcome {
	approve, disapprove := (&State{Participants: parts}).Tally()
	return decidePayment(approve, disapprove, cfg)
}

func (payment) settle(ctx context.Context, tx Tx, c *Collective, _ []Participant) ([]ledger.Transfer, error) {
	community, err := tx.Community(ctx)
	if err != nil {
		return nil, err
	}
	return []ledger.Transfer{paymentTransfer(c, community.ID)}, nil
}

func (payment) render(st *State, cfg *config.Config) Rendering {
	money := func(v int64) string { return common.FormatMoney(v, cfg.EconomyCurrencySymbol) }
	approve, disapprove := st.Tally()

	names := func(want bool) string {
		n := st.Names(func(p Participant) bool { return p.Vote != nil && *p.Vote == want })
		if n == "" {
			return "—"
		}
		return n
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Запрос на оплату #%d от %s\n\n", st.ID, st.CreatorName)
	fmt.Fprintf(&sb, "Причина: %s\n", st.Description)
	fmt.Fprintf(&sb, "Сумма: %s\n", money(st.Amount))
	fmt.Fprintf(&sb, "За (%d): %s\n", approve, names(true))
	fmt.Fprintf(&sb, "Против (%d): %s\n\n", disapprove, names(false))

	switch st.Outcome {
	case OutcomeFulfilled:
		fmt.Fprintf(&sb, "Запрос одобрен, сообщество перевело %s %s.", st.CreatorName, money(st.Amount))
	case OutcomeAborted:
		if st.ClosedBy == ClosedByVote {
			sb.WriteString("Запрос отклонён голосованием.")
		} else {
			sb.WriteString("Запрос отменён.")
		}
	default:
		need := int64(cfg.CommunityPaymentConsent - (approve - disapprove))
		fmt.Fprintf(&sb, "Идёт голосование: для одобрения не хватает %d %s.",
			need, common.PluralizeVotes(need))
	}

	r := Rendering{Text: sb.String()}
	if st.Active {
		data := func(action string) string { return fmt.Sprintf("%s %s %d", callbackPay, action, st.ID) }
		r.Controls = [][]Control{
			{{Label: "👍 Одобрить", Data: data("approve")}, {Label: "👎 Отклонить", Data: data("disapprove")}},
			{{Label: "Отменить", Data: data("cancel")}},
		}
	}
	return r
}
