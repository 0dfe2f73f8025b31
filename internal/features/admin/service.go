// Package admin, service.go: вход по паролю (Argon2id), сессии и админ-операции.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/features/accounts"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

// Store: хранилище сессий и попыток входа.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	ActiveSession(ctx context.Context, userID int64) (*Session, error)
	DeactivateSessions(ctx context.Context, userID int64) error
	LogAttempt(ctx context.Context, userID int64, success bool) error
	RecentFailures(ctx context.Context, userID int64, since time.Time) (int, error)
}

// Accounts: то, что админке нужно от счетов.
type Accounts interface {
	GetByUsername(ctx context.Context, username string) (*accounts.Account, error)
	SetPermission(ctx context.Context, id int64, permission bool) error
}

// Auditor: сверка журнала.
type Auditor interface {
	Audit(ctx context.Context) (*ledger.AuditReport, error)
}

type Service struct {
	store    Store
	accounts Accounts
	auditor  Auditor
	cfg      *config.Config
	now      func() time.Time

	mu     sync.Mutex
	states map[int64]dialogState
}

func NewService(store Store, accountService Accounts, auditor Auditor, cfg *config.Config) *Service {
	return &Service{
		store:    store,
		accounts: accountService,
		auditor:  auditor,
		cfg:      cfg,
		now:      time.Now,
		states:   make(map[int64]dialogState),
	}
}

// Login проверяет пароль и открывает сессию на 24 часа.
// После 3 неудачных попыток за час вход блокируется.
func (s *Service) Login(ctx context.Context, userID int64, password string) (*Session, error) {
	if !s.cfg.IsAdmin(userID) {
		return nil, common.ErrNotAdmin
	}

	failures, err := s.store.RecentFailures(ctx, userID, s.now().Add(-attemptWindow))
	if err != nil {
		return nil, err
	}
	if failures >= maxAttempts {
		log.WithField("user_id", userID).Warn("Вход в админку заблокирован: слишком много попыток")
		return nil, common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.cfg.AdminPasswordHash)
	if err := s.store.LogAttempt(ctx, userID, match); err != nil {
		return nil, err
	}
	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль администратора")
		return nil, common.ErrWrongPassword
	}

	session := &Session{
		UserID:       userID,
		SessionToken: uuid.NewString(),
		ExpiresAt:    s.now().Add(sessionTTL),
		IsActive:     true,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	log.WithField("user_id", userID).Info("Администратор вошёл")
	return session, nil
}

// Logout закрывает все сессии пользователя.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	s.ClearState(userID)
	return s.store.DeactivateSessions(ctx, userID)
}

// Authorize пропускает только админа с действующей сессией.
func (s *Service) Authorize(ctx context.Context, userID int64) error {
	if !s.cfg.IsAdmin(userID) {
		return common.ErrNotAdmin
	}
	session, err := s.store.ActiveSession(ctx, userID)
	if err != nil {
		return err
	}
	if session == nil || !session.ExpiresAt.After(s.now()) {
		return common.ErrSessionExpired
	}
	return nil
}

// SetPermission выдаёт или забирает право голоса у @username.
func (s *Service) SetPermission(ctx context.Context, userID int64, username string, permission bool) (*accounts.Account, error) {
	if err := s.Authorize(ctx, userID); err != nil {
		return nil, err
	}
	a, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetPermission(ctx, a.ID, permission); err != nil {
		return nil, err
	}
	a.Permission = permission

	log.WithFields(log.Fields{
		"admin_id":   userID,
		"account_id": a.ID,
		"permission": permission,
	}).Info("Админ изменил права")
	return a, nil
}

// Audit запускает сверку журнала по запросу админа.
func (s *Service) Audit(ctx context.Context, userID int64) (*ledger.AuditReport, error) {
	if err := s.Authorize(ctx, userID); err != nil {
		return nil, err
	}
	return s.auditor.Audit(ctx)
}

// --- Диалог входа ---

// BeginLogin ждёт пароль следующим сообщением в личке (5 минут).
func (s *Service) BeginLogin(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = dialogState{name: StateAwaitingPassword, expiresAt: s.now().Add(stateTTL)}
}

// State возвращает текущее состояние диалога, просроченное считается пустым.
func (s *Service) State(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		return StateNone
	}
	if s.now().After(st.expiresAt) {
		delete(s.states, userID)
		return StateNone
	}
	return st.name
}

func (s *Service) ClearState(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}

// --- Argon2id ---

// Параметры хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
const (
	argonMemory      uint32 = 64 * 1024
	argonIterations  uint32 = 3
	argonParallelism uint8  = 2
	argonKeyLength   uint32 = 32
	argonSaltLength         = 16
)

// HashPassword возвращает Argon2id-хеш для ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("пустой пароль")
	}
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	// Сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computed, expected) == 1
}
