// Package accounts, service.go содержит бизнес-логику управления счетами.
package accounts

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/common"
)

// Service связывает обработчики Telegram-событий с репозиторием счетов.
type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Ensure гарантирует, что у пользователя есть счёт, и обновляет его имя.
// Вызывается на каждое сообщение, поэтому логируем только новых.
func (s *Service) Ensure(ctx context.Context, p Profile) (*Account, error) {
	a, err := s.repo.Ensure(ctx, p)
	if err != nil {
		return nil, err
	}
	if a.CreatedAt.Equal(a.AccessedAt) {
		log.WithFields(log.Fields{
			"account_id": a.ID,
			"tid":        p.TID,
			"username":   p.Username,
		}).Info("Новый счёт зарегистрирован")
	}
	return a, nil
}

// IsMember: есть ли у пользователя счёт.
func (s *Service) IsMember(ctx context.Context, tid int64) (bool, error) {
	return s.repo.ExistsTID(ctx, tid)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByUsername принимает имя с @ или без.
func (s *Service) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return s.repo.GetByUsername(ctx, common.TrimUsername(username))
}

// Community возвращает счёт сообщества.
func (s *Service) Community(ctx context.Context) (*Account, error) {
	return s.repo.Community(ctx)
}

// List возвращает все счета.
func (s *Service) List(ctx context.Context) ([]*Account, error) {
	return s.repo.List(ctx)
}

// SetPermission выдаёт или забирает право голоса. Счёту сообщества право не выдаётся.
func (s *Service) SetPermission(ctx context.Context, id int64, permission bool) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.IsCommunity() {
		return fmt.Errorf("%w: счёту сообщества нельзя менять права", common.ErrValidation)
	}
	if err := s.repo.SetPermission(ctx, id, permission); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"account_id": id,
		"permission": permission,
	}).Info("Права счёта обновлены")
	return nil
}
