// Package ledger, handlers.go обрабатывает команды:
// !баланс, !история, !транзакция, !отправить, !сообщество, !счета, !должники
// и команды товаров кассы (!мате, !вода...).
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/accounts"
)

// maxHistory: верхняя граница для !история N.
const maxHistory = 50

// blameLimit: сколько должников показывает !должники.
const blameLimit = 5

type Handler struct {
	service  *Service
	accounts *accounts.Service
	bot      *tgbotapi.BotAPI
	cfg      *config.Config
}

func NewHandler(service *Service, accountService *accounts.Service, bot *tgbotapi.BotAPI, cfg *config.Config) *Handler {
	return &Handler{
		service:  service,
		accounts: accountService,
		bot:      bot,
		cfg:      cfg,
	}
}

// HandleBalance: !баланс [@username].
//
//	💰 Баланс: 12.50 €
func (h *Handler) HandleBalance(ctx context.Context, chatID int64, caller *accounts.Account, args []string) {
	target := caller
	if len(args) > 0 {
		a, err := h.accounts.GetByUsername(ctx, common.TrimUsername(args[0]))
		if err != nil {
			h.replyError(chatID, err)
			return
		}
		target = a
	}

	balance, err := h.service.Balance(ctx, target.ID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	if target.ID == caller.ID {
		h.sendMessage(chatID, fmt.Sprintf("💰 Ваш баланс: %s", h.money(balance)))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("💰 Баланс %s: %s", target.DisplayName(), h.money(balance)))
}

// HandleTransaction: !транзакция <id>.
func (h *Handler) HandleTransaction(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		h.sendMessage(chatID, "❌ Формат: !транзакция номер")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		h.sendMessage(chatID, "❌ Номер транзакции должен быть числом")
		return
	}

	tx, err := h.service.Get(ctx, id)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	names := map[int64]string{}
	h.sendMessage(chatID, fmt.Sprintf("🧾 Транзакция #%d\n%s\n%s → %s: %s\n%s",
		tx.ID,
		common.FormatDateTime(tx.CreatedAt, h.cfg.AppTimezone),
		h.name(ctx, names, tx.SenderID), h.name(ctx, names, tx.ReceiverID),
		h.money(tx.Amount),
		tx.Reason,
	))
}

// HandleCommunity: !сообщество, баланс счёта сообщества.
func (h *Handler) HandleCommunity(ctx context.Context, chatID int64) {
	community, err := h.accounts.Community(ctx)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	text := fmt.Sprintf("🏦 Баланс сообщества: %s", h.money(community.Balance))
	if community.Balance < 0 {
		text += "\nСообщество в минусе, пора скидываться"
	}
	h.sendMessage(chatID, text)
}

// HandleAccounts: !счета, балансы всех участников (сообщество первым).
func (h *Handler) HandleAccounts(ctx context.Context, chatID int64) {
	list, err := h.accounts.List(ctx)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	var sb strings.Builder
	sb.WriteString("📒 Счета:\n\n")
	for _, a := range list {
		name := a.DisplayName()
		if a.IsCommunity() {
			name = "🏦 сообщество"
		}
		fmt.Fprintf(&sb, "%s: %s\n", name, h.money(a.Balance))
	}
	h.sendMessage(chatID, strings.TrimRight(sb.String(), "\n"))
}

// HandleBlame: !должники, у кого самый большой долг.
func (h *Handler) HandleBlame(ctx context.Context, chatID int64) {
	list, err := h.accounts.List(ctx)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.sendMessage(chatID, h.formatDebtors(WorstDebtors(list, blameLimit)))
}

func (h *Handler) formatDebtors(debtors []*accounts.Account) string {
	if len(debtors) == 0 {
		return "🎉 Должников нет"
	}
	var sb strings.Builder
	if len(debtors) == 1 {
		sb.WriteString("Больше всех должен:\n")
	} else {
		sb.WriteString("Больше всех должны:\n")
	}
	for i, a := range debtors {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, a.DisplayName(), h.money(a.Balance))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// HandleConsume: !мате [N], списание за N штук товара в кассу сообщества.
func (h *Handler) HandleConsume(ctx context.Context, chatID int64, caller *accounts.Account, item config.Consumable, args []string) {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			h.sendMessage(chatID, fmt.Sprintf("❌ Формат: !%s [количество]", item.Name()))
			return
		}
		n = v
	}

	community, err := h.accounts.Community(ctx)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	tx, err := h.service.Consume(ctx, caller.ID, community.ID, item, n)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("Приятного! %s\n−%s (#%d)",
		strings.Repeat(item.Symbol, n), h.money(tx.Amount), tx.ID))
}

// HandleHistory: !история [N].
func (h *Handler) HandleHistory(ctx context.Context, chatID int64, caller *accounts.Account, args []string) {
	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 || n > maxHistory {
			h.sendMessage(chatID, fmt.Sprintf("❌ Формат: !история [1-%d]", maxHistory))
			return
		}
		limit = n
	}

	txs, err := h.service.History(ctx, caller.ID, limit)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if len(txs) == 0 {
		h.sendMessage(chatID, "📋 У вас пока нет транзакций")
		return
	}

	names := map[int64]string{}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Последние транзакции (%d):\n\n", len(txs))
	for i, tx := range txs {
		amount, other := tx.Amount, tx.SenderID
		if tx.SenderID == caller.ID {
			amount, other = -tx.Amount, tx.ReceiverID
		}
		sign := ""
		if amount > 0 {
			sign = "+"
		}
		fmt.Fprintf(&sb, "%d. %s | %s%s | %s | %s\n",
			i+1,
			common.FormatDateTime(tx.CreatedAt, h.cfg.AppTimezone),
			sign, h.money(amount),
			h.name(ctx, names, other),
			tx.Reason,
		)
	}
	h.sendMessage(chatID, strings.TrimRight(sb.String(), "\n"))
}

// HandleSend: !отправить <сумма> @username [причина].
func (h *Handler) HandleSend(ctx context.Context, chatID int64, caller *accounts.Account, args []string) {
	if len(args) < 2 {
		h.sendMessage(chatID, "❌ Формат: !отправить сумма @username [причина]")
		return
	}

	amount, err := common.ParseAmount(args[0], h.cfg.EconomyMaxAmount)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	receiver, err := h.accounts.GetByUsername(ctx, common.TrimUsername(args[1]))
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	tx, err := h.service.Send(ctx, caller.ID, receiver.ID, amount, strings.Join(args[2:], " "))
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("✅ %s → %s: %s (#%d)",
		caller.DisplayName(), receiver.DisplayName(), h.money(tx.Amount), tx.ID))
}

func (h *Handler) name(ctx context.Context, cache map[int64]string, id int64) string {
	if n, ok := cache[id]; ok {
		return n
	}
	n := fmt.Sprintf("#%d", id)
	if a, err := h.accounts.GetByID(ctx, id); err == nil {
		n = a.DisplayName()
		if a.IsCommunity() {
			n = "сообщество"
		}
	}
	cache[id] = n
	return n
}

func (h *Handler) money(cents int64) string {
	return common.FormatMoney(cents, h.cfg.EconomyCurrencySymbol)
}

func (h *Handler) replyError(chatID int64, err error) {
	log.WithError(err).WithField("chat_id", chatID).Debug("Команда экономики отклонена")
	h.sendMessage(chatID, common.UserMessage(err))
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
