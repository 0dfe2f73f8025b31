// Package app инициализирует все компоненты приложения.
// app.go собирает приложение: создаёт БД-пул, блокировки, репозитории, сервисы,
// обработчики, фильтры и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/bot"
	"serotonyl.ru/mate-bot/internal/bot/filters"
	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/db/postgres"
	"serotonyl.ru/mate-bot/internal/features/accounts"
	"serotonyl.ru/mate-bot/internal/features/admin"
	"serotonyl.ru/mate-bot/internal/features/collectives"
	"serotonyl.ru/mate-bot/internal/features/ledger"
	"serotonyl.ru/mate-bot/internal/jobs"
	"serotonyl.ru/mate-bot/internal/lock"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	Redis     *redis.Client // nil, если блокировки в памяти
	BotAPI    *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	if err := postgres.Migrate(cfg.DatabaseDSN()); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// === 2. Блокировки сборов ===
	var (
		locker lock.Locker
		rdb    *redis.Client
	)
	if cfg.RedisURL != "" {
		rdb, err = lock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
		locker = lock.NewRedis(rdb, cfg.LockTTL)
		log.Info("Блокировки сборов: Redis")
	} else {
		locker = lock.NewKeyed()
		log.Info("Блокировки сборов: в памяти процесса")
	}

	// === 3. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		pool.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 4. Репозитории ===
	accountRepo := accounts.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	collectiveRepo := collectives.NewRepository(pool, accountRepo, ledgerRepo)
	adminRepo := admin.NewRepository(pool)

	// === 5. Сервисы ===
	accountService := accounts.NewService(accountRepo)
	ledgerService := ledger.NewService(ledgerRepo, cfg)
	views := collectives.NewTelegramViews(botAPI)
	collectiveService := collectives.NewService(collectiveRepo, views, locker, cfg)
	adminService := admin.NewService(adminRepo, accountService, ledgerService, cfg)

	// === 6. Обработчики ===
	handlers := bot.Handlers{
		Accounts:    accounts.NewHandler(accountService),
		Ledger:      ledger.NewHandler(ledgerService, accountService, botAPI, cfg),
		Collectives: collectives.NewHandler(collectiveService, accountService, views, botAPI, cfg),
		Admin:       admin.NewHandler(adminService, botAPI, cfg),
	}

	// === 7. Фильтры ===
	chatFilter := filters.NewChatFilter(cfg.MainChatID, accountService, botAPI)

	// === 8. Собираем бота ===
	b := bot.New(botAPI, cfg, accountService, handlers, chatFilter)

	// === 9. Планировщик задач ===
	scheduler := jobs.NewScheduler(ledgerService, cfg, b.SendMessageToUser)

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		DB:        pool,
		Redis:     rdb,
		BotAPI:    botAPI,
	}, nil
}

// Close освобождает соединения. Вызывать после остановки бота.
func (a *App) Close() {
	a.Bot.Close()
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	a.DB.Close()
}
