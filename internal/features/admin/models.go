// Package admin реализует вход администраторов по паролю и админ-команды:
// права голоса и сверку журнала.
package admin

import "time"

// Session: активная сессия администратора.
type Session struct {
	ID              int64
	UserID          int64 // Telegram ID
	SessionToken    string
	AuthenticatedAt time.Time
	ExpiresAt       time.Time
	IsActive        bool
}

// Параметры входа
const (
	sessionTTL    = 24 * time.Hour
	attemptWindow = time.Hour
	maxAttempts   = 3
	stateTTL      = 5 * time.Minute
)

// Состояния диалога с админом в личке
const (
	StateNone             = ""
	StateAwaitingPassword = "awaiting_password"
)

type dialogState struct {
	name      string
	expiresAt time.Time
}
