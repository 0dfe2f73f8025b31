package middleware

import (
	"sync"
	"time"
)

// RateLimiter ограничивает число апдейтов (сообщений и нажатий кнопок)
// от одного пользователя скользящим окном.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[int64][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[int64][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup(5 * time.Minute)
	return rl
}

// Close останавливает фоновую очистку. Вызывать на shutdown.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow учитывает запрос и говорит, укладывается ли пользователь в лимит.
// limit <= 0 отключает ограничение.
func (rl *RateLimiter) Allow(userID int64) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := prune(rl.requests[userID], now.Add(-rl.window))
	if len(recent) >= rl.limit {
		rl.requests[userID] = recent
		return false
	}
	rl.requests[userID] = append(recent, now)
	return true
}

// Tracked: сколько пользователей сейчас в таблице.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.requests)
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for userID, times := range rl.requests {
		if recent := prune(times, cutoff); len(recent) == 0 {
			delete(rl.requests, userID)
		} else {
			rl.requests[userID] = recent
		}
	}
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// prune отбрасывает отметки не позже cutoff. Отметки идут по возрастанию.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}
