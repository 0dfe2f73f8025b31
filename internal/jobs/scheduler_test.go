package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

type auditorFunc func(ctx context.Context) (*ledger.AuditReport, error)

func (f auditorFunc) Audit(ctx context.Context) (*ledger.AuditReport, error) { return f(ctx) }

type sent struct {
	userID int64
	text   string
}

func newScheduler(report *ledger.AuditReport, err error, out *[]sent) *Scheduler {
	cfg := &config.Config{
		AdminIDs:              []int64{1, 2},
		AppTimezone:           "Europe/Berlin",
		AuditSchedule:         "0 4 * * *",
		EconomyCurrencySymbol: "€",
	}
	audit := auditorFunc(func(ctx context.Context) (*ledger.AuditReport, error) { return report, err })
	return NewScheduler(audit, cfg, func(userID int64, text string) {
		*out = append(*out, sent{userID, text})
	})
}

func TestRunAuditNotifiesAdminsOnMismatch(t *testing.T) {
	var out []sent
	report := &ledger.AuditReport{
		Total:      500,
		Mismatches: []ledger.Mismatch{{AccountID: 3, Balance: 500, Net: 0}},
	}
	s := newScheduler(report, nil, &out)

	s.runAudit(context.Background())

	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].userID)
	assert.Equal(t, int64(2), out[1].userID)
	assert.Contains(t, out[0].text, "счёт #3")
}

func TestRunAuditSilentWhenBalanced(t *testing.T) {
	var out []sent
	newScheduler(&ledger.AuditReport{Transactions: 10}, nil, &out).runAudit(context.Background())
	newScheduler(nil, errors.New("db down"), &out).runAudit(context.Background())
	assert.Empty(t, out)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	var out []sent
	s := newScheduler(nil, nil, &out)
	s.cfg.AuditSchedule = "каждую ночь"
	assert.Error(t, s.Start(context.Background()))

	s.cfg.AuditSchedule = "0 4 * * *"
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
