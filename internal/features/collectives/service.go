// Package collectives, service.go: жизненный цикл сбора.
// Active → Closed{Fulfilled} | Closed{Aborted}, переход ровно один раз.
package collectives

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/config"
	"serotonyl.ru/mate-bot/internal/lock"
)

// minDescription: минимальная длина описания (в символах, после trim).
const minDescription = 3

// ViewSync показывает состояние сбора во всех привязанных сообщениях.
// Publish вызывается после каждого изменения и один раз при закрытии
// (финальный текст без кнопок), UnbindAll: ровно один раз при закрытии.
type ViewSync interface {
	Publish(ctx context.Context, st *State, views []View, r Rendering) error
	UnbindAll(ctx context.Context, st *State, views []View) error
}

type Service struct {
	store  Store
	views  ViewSync
	locker lock.Locker
	cfg    *config.Config
}

func NewService(store Store, views ViewSync, locker lock.Locker, cfg *config.Config) *Service {
	return &Service{
		store:  store,
		views:  views,
		locker: locker,
		cfg:    cfg,
	}
}

// Create открывает новый сбор. У создателя может быть только один активный сбор
// любого вида. Создатель коммунизма сразу становится участником.
func (s *Service) Create(ctx context.Context, d Draft) (*State, error) {
	d.Description = strings.TrimSpace(d.Description)

	if !d.Kind.Valid() {
		return nil, fmt.Errorf("%w: неизвестный вид сбора %q", common.ErrValidation, d.Kind)
	}
	if d.Amount <= 0 || d.Amount > s.cfg.EconomyMaxAmount {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidAmount, common.FormatMoney(d.Amount, s.cfg.EconomyCurrencySymbol))
	}
	if utf8.RuneCountInString(d.Description) < minDescription {
		return nil, common.ErrDescriptionTooShort
	}

	var st *State
	err := s.withLock(ctx, creatorKey(d.CreatorID), func() error {
		return s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
			existing, err := tx.ActiveByCreator(ctx, d.CreatorID)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("%w (#%d)", common.ErrActiveCollectiveExists, existing.ID)
			}

			c, err := tx.Insert(ctx, d)
			if err != nil {
				return err
			}
			if c.Kind == KindCommunism {
				if _, err := tx.AddParticipant(ctx, c.ID, d.CreatorID, nil); err != nil {
					return err
				}
			}

			st, err = loadState(ctx, tx, c.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"collective_id": st.ID,
		"kind":          st.Kind,
		"creator_id":    st.CreatorID,
		"amount":        st.Amount,
	}).Info("Сбор создан")
	return st, nil
}

// Load возвращает сбор по id в любом состоянии.
func (s *Service) Load(ctx context.Context, id int64) (*State, error) {
	var st *State
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		st, err = loadState(ctx, tx, id)
		return err
	})
	return st, err
}

// ActiveByCreator возвращает активный сбор создателя или ErrCollectiveNotFound.
func (s *Service) ActiveByCreator(ctx context.Context, creatorID int64) (*State, error) {
	var st *State
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.ActiveByCreator(ctx, creatorID)
		if err != nil {
			return err
		}
		if c == nil {
			return common.ErrCollectiveNotFound
		}
		st, err = loadState(ctx, tx, c.ID)
		return err
	})
	return st, err
}

// Views возвращает сообщения, привязанные к сбору.
func (s *Service) Views(ctx context.Context, id int64) ([]View, error) {
	var views []View
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		views, err = tx.Views(ctx, id)
		return err
	})
	return views, err
}

// BindView привязывает сообщение к активному сбору.
// Если в этом чате уже было сообщение, оно отвязывается и возвращается.
func (s *Service) BindView(ctx context.Context, id int64, v View) (*View, error) {
	var replaced *View
	err := s.withLock(ctx, collectiveKey(id), func() error {
		return s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
			c, err := tx.Lock(ctx, id)
			if err != nil {
				return err
			}
			if !c.Active {
				return common.ErrCollectiveClosed
			}
			replaced, err = tx.AddView(ctx, id, v)
			return err
		})
	})
	return replaced, err
}

// UnbindView отвязывает сообщение в чате. Для закрытых сборов ничего не делает.
func (s *Service) UnbindView(ctx context.Context, id, chatID int64) error {
	return s.withLock(ctx, collectiveKey(id), func() error {
		return s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.RemoveView(ctx, id, chatID)
			return err
		})
	})
}

// Cancel прерывает сбор любого вида. Только создатель, без переводов.
func (s *Service) Cancel(ctx context.Context, id, caller int64) (*State, error) {
	return s.mutate(ctx, id, "", func(ctx context.Context, tx Tx, c *Collective) error {
		if c.CreatorID != caller {
			return common.ErrNotCreator
		}
		_, err := s.close(ctx, tx, c, OutcomeAborted, ClosedByCreator)
		return err
	})
}

// Render строит текст и кнопки сбора.
func (s *Service) Render(st *State) Rendering {
	return variantOf(st.Kind).render(st, s.cfg)
}
