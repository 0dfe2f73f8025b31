// Package bot содержит главный цикл бота: приём апдейтов, фильтры и маршрутизацию команд.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/bot/filters"
	"serotonyl.ru/mate-bot/internal/bot/middleware"
	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/accounts"
	"serotonyl.ru/mate-bot/internal/features/admin"
	"serotonyl.ru/mate-bot/internal/features/collectives"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

const helpText = `🧉 Общая касса

Сборы:
!коммунизм <сумма> <описание> — разделить расход на всех
!оплата <сумма> <описание> — попросить деньги из кассы сообщества
!коммунизм стоп | показать — отменить или показать свой сбор
!переслать <номер> @user — отправить сбор в личку

Счёт:
!баланс [@user] — баланс
!история [N] — последние операции
!транзакция <номер> — подробности перевода
!отправить <сумма> @user [причина] — перевод
!сообщество — баланс кассы сообщества
!счета — балансы всех участников
!должники — у кого самый большой долг

Касса:
!мате [N], !вода [N], !пицца [N]... — взять товар, цена уходит сообществу

Админам: /login (в личке), !права @user да|нет, !аудит`

// Handlers: обработчики фич, которые бот маршрутизирует.
type Handlers struct {
	Accounts    *accounts.Handler
	Ledger      *ledger.Handler
	Collectives *collectives.Handler
	Admin       *admin.Handler
}

// Bot: главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter

	accountService *accounts.Service
	handlers       Handlers

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	accountService *accounts.Service,
	handlers Handlers,
	chatFilter *filters.ChatFilter,
) *Bot {
	return &Bot{
		api:            api,
		cfg:            cfg,
		chatFilter:     chatFilter,
		rateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		accountService: accountService,
		handlers:       handlers,
		parser:         NewCommandParser(),
		inflight:       make(chan struct{}, cfg.BotMaxInflight),
	}
}

// Start запускает polling и блокируется до отмены ctx.
// Возвращается после завершения всех начатых обработчиков.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	defer b.drain()
	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func() {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// drain ждёт обработчики, которые ещё работают.
func (b *Bot) drain() {
	for i := 0; i < cap(b.inflight); i++ {
		b.inflight <- struct{}{}
	}
}

// Close освобождает ресурсы бота.
func (b *Bot) Close() {
	b.rateLimiter.Close()
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	message := update.Message
	if message == nil || message.Chat == nil {
		return
	}

	// Новые участники основного чата получают счёт сразу
	if len(message.NewChatMembers) > 0 {
		if message.Chat.ID == b.cfg.MainChatID {
			b.handlers.Accounts.HandleNewChatMembers(ctx, message.NewChatMembers)
		}
		return
	}

	if message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	if !b.chatFilter.CheckMessage(ctx, message) {
		return
	}

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID

	caller, err := b.accountService.Ensure(ctx, accounts.ProfileFromUser(message.From))
	if err != nil {
		log.WithError(err).WithField("user_id", message.From.ID).Error("Ensure account failed")
		b.sendMessage(chatID, common.UserMessage(err))
		return
	}

	// В личке сначала проверяем, не ждём ли пароль админа
	if message.Chat.IsPrivate() && b.handlers.Admin.HandlePrivate(ctx, message) {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	b.routeCommand(ctx, message, caller, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *tgbotapi.Message, caller *accounts.Account, cmd string, args []string) {
	chatID := message.Chat.ID
	userID := message.From.ID

	switch cmd {
	case "start", "help", "помощь":
		b.sendMessage(chatID, helpText)

	case "коммунизм", "communism":
		b.handlers.Collectives.HandleCommand(ctx, chatID, caller, collectives.KindCommunism, args)

	case "оплата", "pay":
		b.handlers.Collectives.HandleCommand(ctx, chatID, caller, collectives.KindPayment, args)

	case "переслать", "forward":
		b.handlers.Collectives.HandleForward(ctx, chatID, caller, args)

	case "баланс", "balance":
		b.handlers.Ledger.HandleBalance(ctx, chatID, caller, args)

	case "история", "history":
		b.handlers.Ledger.HandleHistory(ctx, chatID, caller, args)

	case "транзакция", "transaction":
		b.handlers.Ledger.HandleTransaction(ctx, chatID, args)

	case "отправить", "send":
		b.handlers.Ledger.HandleSend(ctx, chatID, caller, args)

	case "сообщество", "zwegat":
		b.handlers.Ledger.HandleCommunity(ctx, chatID)

	case "счета", "data":
		b.handlers.Ledger.HandleAccounts(ctx, chatID)

	case "должники", "blame":
		b.handlers.Ledger.HandleBlame(ctx, chatID)

	case "login":
		b.handlers.Admin.HandleLogin(ctx, message)

	case "logout":
		b.handlers.Admin.HandleLogout(ctx, chatID, userID)

	case "права":
		b.handlers.Admin.HandlePermission(ctx, chatID, userID, args)

	case "аудит", "audit":
		b.handlers.Admin.HandleAudit(ctx, chatID, userID)

	default:
		if item, ok := b.cfg.Consumable(cmd); ok {
			b.handlers.Ledger.HandleConsume(ctx, chatID, caller, item, args)
		}
	}
}

// handleCallback обрабатывает нажатия кнопок под сообщениями сборов.
func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	middleware.LogCallback(q)

	if !b.chatFilter.CheckCallback(ctx, q) {
		b.answerCallback(q.ID, "❌ Кнопка недоступна")
		return
	}
	if !b.rateLimiter.Allow(q.From.ID) {
		b.answerCallback(q.ID, "⏳ Слишком часто, подождите немного")
		return
	}

	caller, err := b.accountService.Ensure(ctx, accounts.ProfileFromUser(q.From))
	if err != nil {
		log.WithError(err).WithField("user_id", q.From.ID).Error("Ensure account failed")
		b.answerCallback(q.ID, common.UserMessage(err))
		return
	}

	b.handlers.Collectives.HandleCallback(ctx, q, caller)
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		log.WithError(err).Debug("Не удалось ответить на нажатие кнопки")
	}
}

// sendMessage: утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// SendMessageToUser пишет пользователю в личку (для уведомлений планировщика).
func (b *Bot) SendMessageToUser(userID int64, text string) {
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось отправить сообщение")
	}
}

// CommandParser парсит команды с префиксами !, . и /
type CommandParser struct {
	validPrefixes []string
}

func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс @имя_бота у команды отбрасывается: /balance@MateBot → balance.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command, _, _ := strings.Cut(parts[0], "@")
	command = strings.ToLower(command)
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}
