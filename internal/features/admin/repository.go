// Package admin, repository.go работает с таблицами admin_sessions и admin_login_attempts.
package admin

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/db/postgres"
)

type Repository struct {
	db postgres.Querier
}

func NewRepository(db postgres.Querier) *Repository {
	return &Repository{db: db}
}

// CreateSession закрывает прежние сессии пользователя и открывает новую.
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	return postgres.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE admin_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`,
			s.UserID); err != nil {
			return common.Persistence("deactivate admin sessions", err)
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO admin_sessions (user_id, session_token, expires_at, is_active)
			VALUES ($1, $2, $3, TRUE)
			RETURNING id, authenticated_at
		`, s.UserID, s.SessionToken, s.ExpiresAt).Scan(&s.ID, &s.AuthenticatedAt)
		return common.Persistence("create admin session", err)
	})
}

// ActiveSession возвращает действующую сессию или nil, если её нет.
func (r *Repository) ActiveSession(ctx context.Context, userID int64) (*Session, error) {
	var s Session
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, session_token, authenticated_at, expires_at, is_active
		FROM admin_sessions
		WHERE user_id = $1 AND is_active AND expires_at > NOW()
		ORDER BY authenticated_at DESC
		LIMIT 1
	`, userID).Scan(&s.ID, &s.UserID, &s.SessionToken, &s.AuthenticatedAt, &s.ExpiresAt, &s.IsActive)
	if postgres.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, common.Persistence("get admin session", err)
	}
	return &s, nil
}

func (r *Repository) DeactivateSessions(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE admin_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID)
	return common.Persistence("deactivate admin sessions", err)
}

func (r *Repository) LogAttempt(ctx context.Context, userID int64, success bool) error {
	_, err := r.db.Exec(ctx, `INSERT INTO admin_login_attempts (user_id, success) VALUES ($1, $2)`, userID, success)
	return common.Persistence("log admin attempt", err)
}

// RecentFailures: число неудачных попыток входа начиная с since.
func (r *Repository) RecentFailures(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE user_id = $1 AND NOT success AND attempt_time >= $2
	`, userID, since).Scan(&n)
	return n, common.Persistence("count admin attempts", err)
}
