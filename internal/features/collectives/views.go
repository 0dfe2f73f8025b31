package collectives

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxParallelEdits: сколько сообщений редактируем одновременно.
const maxParallelEdits = 8

// Sender: часть *tgbotapi.BotAPI, которой хватает для сообщений сборов.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramViews: ViewSync поверх сообщений Telegram.
// Запоминает последний показанный текст каждого сообщения: Telegram
// отвечает ошибкой на редактирование без изменений.
type TelegramViews struct {
	bot Sender

	mu    sync.Mutex
	shown map[View]string
}

func NewTelegramViews(bot Sender) *TelegramViews {
	return &TelegramViews{bot: bot, shown: make(map[View]string)}
}

// Post отправляет новое сообщение сбора в чат.
func (t *TelegramViews) Post(ctx context.Context, chatID int64, r Rendering) (View, error) {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	if len(r.Controls) > 0 {
		msg.ReplyMarkup = keyboard(r.Controls)
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return View{}, fmt.Errorf("ошибка отправки сообщения сбора: %w", err)
	}

	v := View{ChatID: chatID, MessageID: sent.MessageID}
	t.remember(v, fingerprint(r))
	return v, nil
}

// Publish редактирует все сообщения сбора параллельно.
// Ошибка в одном чате не мешает остальным: пробуем каждое сообщение
// и возвращаем все ошибки вместе.
func (t *TelegramViews) Publish(ctx context.Context, st *State, views []View, r Rendering) error {
	fp := fingerprint(r)

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(maxParallelEdits)
	for _, v := range views {
		if t.seen(v, fp) {
			continue
		}
		g.Go(func() error {
			if err := t.edit(v, r); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("сбор #%d, чат %d: %w", st.ID, v.ChatID, err))
				mu.Unlock()
				return nil
			}
			t.remember(v, fp)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// UnbindAll забывает сообщения закрытого сбора.
func (t *TelegramViews) UnbindAll(ctx context.Context, st *State, views []View) error {
	t.mu.Lock()
	for _, v := range views {
		delete(t.shown, v)
	}
	t.mu.Unlock()

	log.WithFields(log.Fields{
		"collective_id": st.ID,
		"views":         len(views),
	}).Debug("Сообщения сбора отвязаны")
	return nil
}

// Retire убирает кнопки у сообщения, которое заменили новым в том же чате.
func (t *TelegramViews) Retire(ctx context.Context, v View, text string) error {
	t.mu.Lock()
	delete(t.shown, v)
	t.mu.Unlock()
	return t.edit(v, Rendering{Text: text})
}

func (t *TelegramViews) edit(v View, r Rendering) error {
	var c tgbotapi.Chattable
	if len(r.Controls) > 0 {
		c = tgbotapi.NewEditMessageTextAndMarkup(v.ChatID, v.MessageID, r.Text, keyboard(r.Controls))
	} else {
		c = tgbotapi.NewEditMessageText(v.ChatID, v.MessageID, r.Text)
	}
	if _, err := t.bot.Send(c); err != nil && !strings.Contains(err.Error(), "message is not modified") {
		return err
	}
	return nil
}

func (t *TelegramViews) seen(v View, fp string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shown[v] == fp
}

func (t *TelegramViews) remember(v View, fp string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shown[v] = fp
}

func fingerprint(r Rendering) string {
	var sb strings.Builder
	sb.WriteString(r.Text)
	for _, row := range r.Controls {
		sb.WriteString("\x00")
		for _, c := range row {
			sb.WriteString(c.Label + "\x01" + c.Data + "\x02")
		}
	}
	return sb.String()
}

func keyboard(controls [][]Control) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(controls))
	for _, row := range controls {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, c := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
