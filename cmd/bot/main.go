// Package main: точка входа бота.
// Загружает конфигурацию, инициализирует приложение и запускает.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // часовые пояса в минимальном образе

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/app"
	"serotonyl.ru/mate-bot/internal/config"
)

func main() {
	setupLogging()

	log.Info("=== Бот запускается ===")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err != nil {
		log.WithError(err).Warnf("Неизвестный APP_LOG_LEVEL %q, оставляем debug", cfg.AppLogLevel)
	} else {
		log.SetLevel(level)
	}

	// Контекст отменяется по Ctrl+C или docker stop
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.Close()

	if err := application.Scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Не удалось запустить планировщик")
	}
	defer application.Scheduler.Stop()

	log.Info("=== Бот готов к работе ===")

	// Блокируется до сигнала и ждёт начатые обработчики
	application.Bot.Start(ctx)

	log.Info("=== Бот остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
