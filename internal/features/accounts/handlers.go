// Package accounts, handlers.go обрабатывает Telegram-события, связанные со счетами.
// Основное событие: новый пользователь вступил в чат.
package accounts

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleNewChatMembers регистрирует счёт каждому вступившему пользователю.
// Боты счёт не получают.
func (h *Handler) HandleNewChatMembers(ctx context.Context, newMembers []tgbotapi.User) {
	for _, user := range newMembers {
		if user.IsBot {
			continue
		}
		if _, err := h.service.Ensure(ctx, ProfileFromUser(&user)); err != nil {
			log.WithError(err).WithField("user_id", user.ID).Error("Ошибка регистрации нового участника")
		}
	}
}

// ProfileFromUser переводит пользователя Telegram в Profile.
func ProfileFromUser(u *tgbotapi.User) Profile {
	return Profile{
		TID:       u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
