package collectives

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/common"
	"serotonyl.ru/mate-bot/internal/features/ledger"
)

// mutation меняет активный сбор внутри транзакции. c уже заблокирован.
type mutation func(ctx context.Context, tx Tx, c *Collective) error

func collectiveKey(id int64) string {
	return fmt.Sprintf("collective:%d", id)
}

func creatorKey(id int64) string {
	return fmt.Sprintf("creator:%d", id)
}

// withLock держит блокировку key, пока выполняется fn.
// Ожидание ограничено LOCK_WAIT.
func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockWait)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Не дождались блокировки")
		return err
	}
	defer unlock()
	return fn()
}

// mutate: общий путь для всех изменений активного сбора:
// блокировка → транзакция → строка FOR UPDATE → проверка вида и активности → fn →
// перечитывание состояния. Если fn закрыла сбор, привязки удаляются в той же транзакции.
// После фиксации состояние публикуется во все сообщения.
// kind == "": подходит любой вид.
func (s *Service) mutate(ctx context.Context, id int64, kind Kind, fn mutation) (*State, error) {
	var (
		st    *State
		views []View
	)

	err := s.withLock(ctx, collectiveKey(id), func() error {
		return s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
			c, err := tx.Lock(ctx, id)
			if err != nil {
				return err
			}
			if kind != "" && c.Kind != kind {
				return common.ErrWrongKind
			}
			if !c.Active {
				return common.ErrCollectiveClosed
			}

			if err := fn(ctx, tx, c); err != nil {
				return err
			}

			if st, err = loadState(ctx, tx, id); err != nil {
				return err
			}
			if views, err = tx.Views(ctx, id); err != nil {
				return err
			}
			if !st.Active {
				return tx.ClearViews(ctx, id)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, st, views)
	return st, nil
}

// close закрывает сбор с исходом outcome. При OutcomeFulfilled сначала
// записываются переводы варианта, всё в одной транзакции.
func (s *Service) close(ctx context.Context, tx Tx, c *Collective, outcome Outcome, by Closure) ([]*ledger.Transaction, error) {
	var committed []*ledger.Transaction
	if outcome == OutcomeFulfilled {
		parts, err := tx.Participants(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		transfers, err := variantOf(c.Kind).settle(ctx, tx, c, parts)
		if err != nil {
			return nil, err
		}
		for _, t := range transfers {
			done, err := tx.Commit(ctx, t)
			if err != nil {
				return nil, err
			}
			committed = append(committed, done)
		}
	}
	if err := s.finish(ctx, tx, c, outcome, by); err != nil {
		return nil, err
	}
	return committed, nil
}

// finish закрывает сбор через CAS по active.
// Строка заблокирована и была активна, поэтому 0 обновлённых строк: баг.
func (s *Service) finish(ctx context.Context, tx Tx, c *Collective, outcome Outcome, by Closure) error {
	ok, err := tx.Finish(ctx, c.ID, outcome, by)
	if err != nil {
		return err
	}
	if !ok {
		log.WithFields(log.Fields{
			"collective_id": c.ID,
			"kind":          c.Kind,
			"outcome":       outcome,
		}).Error("Сбор закрыт кем-то другим при удержании блокировки")
		return fmt.Errorf("%w: сбор #%d закрыт повторно", common.ErrInvariant, c.ID)
	}

	c.Active = false
	c.Outcome = outcome
	c.ClosedBy = by

	log.WithFields(log.Fields{
		"collective_id": c.ID,
		"kind":          c.Kind,
		"outcome":       outcome,
		"closed_by":     by,
		"amount":        c.Amount,
	}).Info("Сбор закрыт")
	return nil
}

// publish обновляет все сообщения сбора. Ошибки только логируются:
// изменение уже зафиксировано.
// У закрытого сбора публикуется финальный текст без кнопок, затем UnbindAll.
func (s *Service) publish(ctx context.Context, st *State, views []View) {
	if s.views == nil || len(views) == 0 {
		return
	}

	logger := log.WithFields(log.Fields{
		"collective_id": st.ID,
		"views":         len(views),
	})

	if err := s.views.Publish(ctx, st, views, s.Render(st)); err != nil {
		logger.WithError(err).Warn("Не удалось обновить сообщения сбора")
	}
	if !st.Active {
		if err := s.views.UnbindAll(ctx, st, views); err != nil {
			logger.WithError(err).Warn("Не удалось отвязать сообщения сбора")
		}
	}
}

func loadState(ctx context.Context, tx Tx, id int64) (*State, error) {
	c, err := tx.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	creator, err := tx.Account(ctx, c.CreatorID)
	if err != nil {
		return nil, err
	}
	parts, err := tx.Participants(ctx, id)
	if err != nil {
		return nil, err
	}
	return &State{
		Collective:   *c,
		CreatorName:  creator.DisplayName(),
		Participants: parts,
	}, nil
}
