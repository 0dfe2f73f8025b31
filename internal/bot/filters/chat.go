// Package filters решает, в каких чатах бот отвечает.
// Основной чат открыт всем, личка только участникам основного чата.
package filters

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/features/accounts"
)

// Members: учёт участников.
type Members interface {
	IsMember(ctx context.Context, tid int64) (bool, error)
	Ensure(ctx context.Context, p accounts.Profile) (*accounts.Account, error)
}

// Telegram: методы *tgbotapi.BotAPI, нужные фильтру.
type Telegram interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type ChatFilter struct {
	mainChatID int64
	members    Members
	bot        Telegram
}

func NewChatFilter(mainChatID int64, members Members, bot Telegram) *ChatFilter {
	return &ChatFilter{
		mainChatID: mainChatID,
		members:    members,
		bot:        bot,
	}
}

// CheckMessage проверяет входящее сообщение.
func (f *ChatFilter) CheckMessage(ctx context.Context, message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "ChatFilter").Warn("nil message/chat")
		return false
	}
	return f.CheckAccess(ctx, message.Chat, message.From)
}

// CheckCallback проверяет нажатие кнопки: сообщение сбора должно быть
// в основном чате или в личке участника.
func (f *ChatFilter) CheckCallback(ctx context.Context, q *tgbotapi.CallbackQuery) bool {
	if q == nil || q.Message == nil || q.Message.Chat == nil {
		return false
	}
	return f.CheckAccess(ctx, q.Message.Chat, q.From)
}

// CheckAccess: общая проверка для чата и отправителя.
func (f *ChatFilter) CheckAccess(ctx context.Context, chat *tgbotapi.Chat, from *tgbotapi.User) bool {
	if from == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   chat.ID,
			"chat_type": chat.Type,
		}).Warn("nil From (service/channel message?)")
		return false
	}
	if from.IsBot {
		return false
	}

	logger := log.WithFields(log.Fields{
		"component":    "ChatFilter",
		"chat_id":      chat.ID,
		"chat_type":    chat.Type,
		"user_id":      from.ID,
		"main_chat_id": f.mainChatID,
	})

	// 1) Основной чат
	if chat.ID == f.mainChatID {
		return true
	}

	// 2) Остальные чаты игнорируем
	if !chat.IsPrivate() {
		logger.Info("deny: not main chat and not private")
		return false
	}

	// 3) Личка: сначала быстро по БД
	isMember, err := f.members.IsMember(ctx, from.ID)
	if err != nil {
		logger.WithError(err).Error("member check failed (db)")
		return false
	}
	if isMember {
		return true
	}

	// 3.1) БД не знает пользователя: проверяем членство через Telegram API
	cm, err := f.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: f.mainChatID,
			UserID: from.ID,
		},
	})
	if err != nil {
		logger.WithError(err).Error("member check failed (telegram GetChatMember)")
		return false
	}

	switch cm.Status {
	case "creator", "administrator", "member", "restricted":
		if _, err := f.members.Ensure(ctx, accounts.ProfileFromUser(from)); err != nil {
			logger.WithError(err).Warn("failed to backfill account (allowing anyway)")
		}
		logger.WithField("tg_status", cm.Status).Info("allow: private (telegram member, backfilled)")
		return true

	default:
		logger.WithField("tg_status", cm.Status).Info("deny: private (not a chat member)")
		msg := tgbotapi.NewMessage(chat.ID, "❌ Бот работает только для участников основного чата")
		if _, sendErr := f.bot.Send(msg); sendErr != nil {
			logger.WithError(sendErr).Warn("failed to send deny message")
		}
		return false
	}
}
