// Package lock сериализует изменения одного сбора между параллельными апдейтами.
// Keyed работает внутри процесса, Redis: между несколькими инстансами бота.
package lock

import (
	"context"
	"sync"

	"serotonyl.ru/mate-bot/internal/common"
)

// Locker выдаёт эксклюзивную блокировку по ключу.
// Lock ждёт, пока ctx не истечёт; на таймауте возвращает common.ErrBusy.
// unlock можно вызывать ровно один раз.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type slot struct {
	ch   chan struct{}
	refs int
}

// Keyed: блокировки в памяти процесса.
// Слот ключа живёт, пока кто-то держит или ждёт блокировку.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewKeyed создаёт пустой набор блокировок.
func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]*slot)}
}

func (k *Keyed) acquire(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *Keyed) release(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// Lock занимает ключ.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	s := k.acquire(key)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, s)
		return nil, common.ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.release(key, s)
		})
	}, nil
}

// Len: сколько ключей сейчас заняты или ожидаются.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
