package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mate-bot/internal/common"
)

const keyPrefix = "matebot:lock:"

// retryInterval: пауза между попытками SET NX.
const retryInterval = 25 * time.Millisecond

// releaseScript удаляет ключ, только если он всё ещё наш.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis: блокировка через SET NX с TTL.
// TTL ограничивает время жизни блокировки упавшего инстанса.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis создаёт блокировку поверх готового клиента.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// Connect разбирает REDIS_URL и проверяет соединение.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis недоступен: %w", err)
	}
	return rdb, nil
}

// Lock занимает ключ, повторяя SET NX до истечения ctx.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	full := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.rdb.SetNX(ctx, full, token, r.ttl).Result()
		switch {
		case err == nil && ok:
			var once sync.Once
			return func() {
				once.Do(func() { r.release(full, token) })
			}, nil
		case err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled):
			return nil, common.Persistence("redis lock", err)
		}

		select {
		case <-ctx.Done():
			return nil, common.ErrBusy
		case <-ticker.C:
		}
	}
}

func (r *Redis) release(key, token string) {
	// Отпускаем даже если ctx запроса уже отменён
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, r.rdb, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		log.WithError(err).WithField("key", key).Warn("не удалось снять блокировку redis")
	}
}
