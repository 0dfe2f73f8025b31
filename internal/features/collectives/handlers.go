// Package collectives, handlers.go обрабатывает команды сборов
// (!коммунизм, !оплата, !переслать) и нажатия кнопок под сообщениями сборов.
package collectives

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/accounts"
)

type Handler struct {
	service  *Service
	accounts *accounts.Service
	views    *TelegramViews
	bot      *tgbotapi.BotAPI
	cfg      *config.Config
}

func NewHandler(service *Service, accountService *accounts.Service, views *TelegramViews, bot *tgbotapi.BotAPI, cfg *config.Config) *Handler {
	return &Handler{
		service:  service,
		accounts: accountService,
		views:    views,
		bot:      bot,
		cfg:      cfg,
	}
}

// HandleCommand обрабатывает !коммунизм и !оплата:
//
//	!коммунизм 25,50 пицца на всех
//	!коммунизм стоп     : отменить свой активный сбор
//	!коммунизм показать : показать свой активный сбор здесь
func (h *Handler) HandleCommand(ctx context.Context, chatID int64, caller *accounts.Account, kind Kind, args []string) {
	if len(args) == 0 {
		h.sendMessage(chatID, usage(kind))
		return
	}

	switch strings.ToLower(args[0]) {
	case "стоп", "stop":
		h.handleStop(ctx, chatID, caller)
		return
	case "показать", "show":
		h.handleShow(ctx, chatID, caller)
		return
	}

	if len(args) < 2 {
		h.sendMessage(chatID, usage(kind))
		return
	}
	amount, err := common.ParseAmount(args[0], h.cfg.EconomyMaxAmount)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	st, err := h.service.Create(ctx, Draft{
		Kind:        kind,
		CreatorID:   caller.ID,
		Amount:      amount,
		Description: strings.Join(args[1:], " "),
	})
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	h.post(ctx, chatID, st)
}

// HandleForward обрабатывает !переслать <id> @username и отправляет сбор в личку участнику.
func (h *Handler) HandleForward(ctx context.Context, chatID int64, caller *accounts.Account, args []string) {
	if len(args) < 2 {
		h.sendMessage(chatID, "❌ Формат: !переслать номер_сбора @username")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		h.sendMessage(chatID, "❌ Номер сбора должен быть числом")
		return
	}

	st, err := h.service.Load(ctx, id)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if !st.Active {
		h.replyError(chatID, common.ErrCollectiveClosed)
		return
	}

	receiver, err := h.accounts.GetByUsername(ctx, common.TrimUsername(args[1]))
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if receiver.TID == nil {
		h.sendMessage(chatID, "❌ Сообществу переслать нельзя")
		return
	}

	if !h.post(ctx, *receiver.TID, st) {
		h.sendMessage(chatID, fmt.Sprintf("❌ Не удалось написать %s, пусть сначала напишет боту в личку", receiver.DisplayName()))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Сбор #%d переслан %s", st.ID, receiver.DisplayName()))
	log.WithFields(log.Fields{
		"collective_id": st.ID,
		"from":          caller.ID,
		"to":            receiver.ID,
	}).Info("Сбор переслан")
}

// HandleCallback обрабатывает кнопки: "communism toggle 12", "pay approve 7" и т.д.
func (h *Handler) HandleCallback(ctx context.Context, q *tgbotapi.CallbackQuery, caller *accounts.Account) {
	prefix, action, id, ok := parseCallback(q.Data)
	if !ok {
		h.answer(q.ID, "❌ Неизвестная кнопка", true)
		return
	}

	logger := log.WithFields(log.Fields{
		"collective_id": id,
		"action":        prefix + " " + action,
		"account_id":    caller.ID,
	})

	text, err := h.dispatch(ctx, prefix, action, id, caller)
	if err != nil {
		if errors.Is(err, common.ErrInvariant) || (errors.Is(err, common.ErrPersistence) && !errors.Is(err, common.ErrBusy)) {
			logger.WithError(err).Error("Ошибка обработки кнопки сбора")
		} else {
			logger.WithError(err).Debug("Кнопка сбора отклонена")
		}
		h.answer(q.ID, common.UserMessage(err), true)
		return
	}
	h.answer(q.ID, text, false)
}

func (h *Handler) dispatch(ctx context.Context, prefix, action string, id int64, caller *accounts.Account) (string, error) {
	switch prefix + " " + action {
	case "communism toggle":
		joined, _, err := h.service.Toggle(ctx, id, caller.ID)
		if err != nil {
			return "", err
		}
		if joined {
			return "Вы участвуете", nil
		}
		return "Вы вышли из коммунизма", nil

	case "communism increase", "communism decrease":
		delta := 1
		if action == "decrease" {
			delta = -1
		}
		st, err := h.service.AdjustExternals(ctx, id, caller.ID, delta)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Внешних участников: %d", st.Externals), nil

	case "communism accept":
		_, txs, err := h.service.Accept(ctx, id, caller.ID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Коммунизм закрыт, переводов: %d", len(txs)), nil

	case "communism cancel", "pay cancel":
		if _, err := h.service.Cancel(ctx, id, caller.ID); err != nil {
			return "", err
		}
		return "Сбор отменён", nil

	case "pay approve", "pay disapprove":
		res, err := h.service.Vote(ctx, id, caller.ID, action == "approve")
		if err != nil {
			return "", err
		}
		switch {
		case res.Outcome == OutcomeFulfilled:
			return "Голос учтён, запрос одобрен", nil
		case res.Outcome == OutcomeAborted:
			return "Голос учтён, запрос отклонён", nil
		}
		return "Голос учтён", nil
	}
	return "", fmt.Errorf("%w: неизвестное действие %q", common.ErrValidation, action)
}

func (h *Handler) handleStop(ctx context.Context, chatID int64, caller *accounts.Account) {
	st, err := h.service.ActiveByCreator(ctx, caller.ID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if _, err := h.service.Cancel(ctx, st.ID, caller.ID); err != nil {
		h.replyError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Сбор #%d отменён", st.ID))
}

func (h *Handler) handleShow(ctx context.Context, chatID int64, caller *accounts.Account) {
	st, err := h.service.ActiveByCreator(ctx, caller.ID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.post(ctx, chatID, st)
}

// post отправляет сбор новым сообщением и привязывает его.
// Старое сообщение в этом чате теряет кнопки.
func (h *Handler) post(ctx context.Context, chatID int64, st *State) bool {
	v, err := h.views.Post(ctx, chatID, h.service.Render(st))
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"collective_id": st.ID,
			"chat_id":       chatID,
		}).Warn("Не удалось отправить сообщение сбора")
		return false
	}

	if err := h.bind(ctx, st.ID, v); err != nil {
		h.replyError(chatID, err)
		return false
	}
	return true
}

// bind привязывает отправленное сообщение v.
// Если сбор закрылся раньше, v получает финальный текст без кнопок.
func (h *Handler) bind(ctx context.Context, id int64, v View) error {
	replaced, err := h.service.BindView(ctx, id, v)
	if errors.Is(err, common.ErrCollectiveClosed) {
		text := fmt.Sprintf("Сбор #%d закрыт", id)
		if final, lerr := h.service.Load(ctx, id); lerr == nil {
			text = h.service.Render(final).Text
		}
		if rerr := h.views.Retire(ctx, v, text); rerr != nil {
			log.WithError(rerr).WithField("collective_id", id).Warn("Не удалось убрать кнопки у сообщения закрытого сбора")
		}
		return err
	}
	if err != nil {
		return err
	}
	if replaced != nil {
		if err := h.views.Retire(ctx, *replaced, fmt.Sprintf("Сбор #%d перенесён ниже ⬇️", id)); err != nil {
			log.WithError(err).WithField("collective_id", id).Debug("Не удалось убрать кнопки у старого сообщения")
		}
	}
	return nil
}

// parseCallback разбирает "<prefix> <action> <id>".
func parseCallback(data string) (prefix, action string, id int64, ok bool) {
	parts := strings.Fields(data)
	if len(parts) != 3 {
		return "", "", 0, false
	}
	if parts[0] != callbackCommunism && parts[0] != callbackPay {
		return "", "", 0, false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return "", "", 0, false
	}
	return parts[0], parts[1], id, true
}

func usage(kind Kind) string {
	if kind == KindPayment {
		return "❌ Формат: !оплата сумма описание\nили !оплата стоп / !оплата показать"
	}
	return "❌ Формат: !коммунизм сумма описание\nили !коммунизм стоп / !коммунизм показать"
}

func (h *Handler) answer(callbackID, text string, alert bool) {
	cb := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := h.bot.Request(cb); err != nil {
		log.WithError(err).Debug("Не удалось ответить на callback")
	}
}

func (h *Handler) replyError(chatID int64, err error) {
	if errors.Is(err, common.ErrInvariant) {
		log.WithError(err).WithField("chat_id", chatID).Error("Команда сбора упала")
	} else {
		log.WithError(err).WithField("chat_id", chatID).Debug("Команда сбора отклонена")
	}
	h.sendMessage(chatID, common.UserMessage(err))
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
