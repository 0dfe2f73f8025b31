// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает ночную сверку журнала.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

// Auditor: сверка журнала.
type Auditor interface {
	Audit(ctx context.Context) (*ledger.AuditReport, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	auditor  Auditor
	cfg      *config.Config
	sendFunc func(userID int64, text string)
}

// NewScheduler создаёт планировщик в часовом поясе APP_TIMEZONE.
func NewScheduler(auditor Auditor, cfg *config.Config, sendFunc func(userID int64, text string)) *Scheduler {
	loc, err := time.LoadLocation(cfg.AppTimezone)
	if err != nil {
		log.WithError(err).Warnf("Не удалось загрузить %s, используем UTC", cfg.AppTimezone)
		loc = time.UTC
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		auditor:  auditor,
		cfg:      cfg,
		sendFunc: sendFunc,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.AuditSchedule, func() { s.runAudit(ctx) }); err != nil {
		return fmt.Errorf("некорректное расписание AUDIT_SCHEDULE %q: %w", s.cfg.AuditSchedule, err)
	}

	s.cron.Start()
	log.WithField("audit_schedule", s.cfg.AuditSchedule).Info("Планировщик задач запущен")
	return nil
}

// runAudit сверяет журнал и пишет админам, если балансы не сходятся.
func (s *Scheduler) runAudit(ctx context.Context) {
	log.Info("[CRON] Сверка журнала")
	report, err := s.auditor.Audit(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка сверки журнала")
		return
	}
	if report.OK() {
		return
	}

	text := "🚨 Ночная сверка\n" + ledger.FormatAudit(report, s.cfg.EconomyCurrencySymbol)
	for _, id := range s.cfg.AdminIDs {
		s.sendFunc(id, text)
	}
}

// Stop останавливает планировщик и ждёт текущие задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
