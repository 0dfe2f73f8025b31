// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

const maxLoggedText = 50

// LogMessage логирует входящее сообщение (текст обрезается до 50 символов).
func LogMessage(message *tgbotapi.Message) {
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}

	log.WithFields(log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.UserName,
		"text":     truncate(message.Text),
	}).Debug("Входящее сообщение")
}

// LogCallback логирует нажатие кнопки под сообщением сбора.
func LogCallback(q *tgbotapi.CallbackQuery) {
	if q == nil || q.From == nil {
		return
	}

	fields := log.Fields{
		"user_id":  q.From.ID,
		"username": q.From.UserName,
		"data":     q.Data,
	}
	if q.Message != nil && q.Message.Chat != nil {
		fields["chat_id"] = q.Message.Chat.ID
		fields["message_id"] = q.Message.MessageID
	}
	log.WithFields(fields).Debug("Нажата кнопка")
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxLoggedText {
		return s
	}
	return string(r[:maxLoggedText]) + "..."
}
