// Package admin, handlers.go: /login и /logout в личке, !права и !аудит.
package admin

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
	cfg     *config.Config
}

func NewHandler(service *Service, bot *tgbotapi.BotAPI, cfg *config.Config) *Handler {
	return &Handler{service: service, bot: bot, cfg: cfg}
}

// HandleLogin: /login. Пароль принимаем только в личке.
func (h *Handler) HandleLogin(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	if !msg.Chat.IsPrivate() {
		h.sendMessage(msg.Chat.ID, "🔐 Вход в админку только в личных сообщениях")
		return
	}
	if !h.cfg.IsAdmin(userID) {
		h.replyError(msg.Chat.ID, common.ErrNotAdmin)
		return
	}
	if err := h.service.Authorize(ctx, userID); err == nil {
		h.sendMessage(msg.Chat.ID, "✅ Вы уже авторизованы")
		return
	}

	h.service.BeginLogin(userID)
	h.sendMessage(msg.Chat.ID, "🔐 Введите пароль администратора:")
}

// HandlePrivate перехватывает ввод пароля. Возвращает true, если сообщение обработано.
func (h *Handler) HandlePrivate(ctx context.Context, msg *tgbotapi.Message) bool {
	userID := msg.From.ID
	if h.service.State(userID) != StateAwaitingPassword {
		return false
	}
	h.service.ClearState(userID)

	// Пароль в истории чата не оставляем
	if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		log.WithError(err).Debug("Не удалось удалить сообщение с паролем")
	}

	if _, err := h.service.Login(ctx, userID, strings.TrimSpace(msg.Text)); err != nil {
		h.replyError(msg.Chat.ID, err)
		return true
	}
	h.sendMessage(msg.Chat.ID, "✅ Аутентификация успешна! Доступны !права и !аудит на 24 часа.")
	return true
}

// HandleLogout: /logout.
func (h *Handler) HandleLogout(ctx context.Context, chatID, userID int64) {
	if err := h.service.Logout(ctx, userID); err != nil {
		h.replyError(chatID, err)
		return
	}
	h.sendMessage(chatID, "👋 Сессия закрыта")
}

// HandlePermission: !права @username да|нет.
func (h *Handler) HandlePermission(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) != 2 {
		h.sendMessage(chatID, "Использование: !права @username да|нет")
		return
	}

	var permission bool
	switch strings.ToLower(args[1]) {
	case "да", "yes", "on":
		permission = true
	case "нет", "no", "off":
		permission = false
	default:
		h.sendMessage(chatID, "Использование: !права @username да|нет")
		return
	}

	a, err := h.service.SetPermission(ctx, userID, common.TrimUsername(args[0]), permission)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	if permission {
		h.sendMessage(chatID, fmt.Sprintf("✅ %s теперь может голосовать", a.DisplayName()))
	} else {
		h.sendMessage(chatID, fmt.Sprintf("🚫 %s больше не может голосовать", a.DisplayName()))
	}
}

// HandleAudit: !аудит.
func (h *Handler) HandleAudit(ctx context.Context, chatID, userID int64) {
	report, err := h.service.Audit(ctx, userID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.sendMessage(chatID, ledger.FormatAudit(report, h.cfg.EconomyCurrencySymbol))
}

func (h *Handler) replyError(chatID int64, err error) {
	log.WithError(err).Debug("Ошибка админ-команды")
	h.sendMessage(chatID, common.UserMessage(err))
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
