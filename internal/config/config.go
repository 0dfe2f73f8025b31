// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// локально переменные можно положить в .env (читается через godotenv).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS" required:"true"`
	AdminIDs         []int64 `envconfig:"-"` // заполним вручную
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	// ID группового чата, в котором живёт бот (туда же уходят сообщения о переводах)
	MainChatID int64 `envconfig:"MAIN_CHAT_ID" required:"true"`

	// --- Database ---
	// Дефолт "postgres": имя сервиса в docker-compose, для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"matebot"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"matebot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Locks ---
	// Пустой REDIS_URL: блокировки сборов живут в памяти процесса (один инстанс бота).
	RedisURL string        `envconfig:"REDIS_URL"`
	LockTTL  time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	LockWait time.Duration `envconfig:"LOCK_WAIT" default:"5s"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Berlin"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Admin ---
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`

	// --- Community ---
	// Перевес голосов «за», после которого запрос на оплату принимается.
	CommunityPaymentConsent int `envconfig:"COMMUNITY_PAYMENT_CONSENT" default:"2"`
	// Перевес голосов «против», после которого запрос отклоняется.
	CommunityPaymentDenial int `envconfig:"COMMUNITY_PAYMENT_DENIAL" default:"2"`
	// Голосовать могут только участники с флагом permission.
	CommunityVoteRequiresPermission bool `envconfig:"COMMUNITY_VOTE_REQUIRES_PERMISSION" default:"false"`

	// --- Economy ---
	EconomyCurrencySymbol string `envconfig:"ECONOMY_CURRENCY_SYMBOL" default:"€"`
	// Максимальная сумма одной операции в центах.
	EconomyMaxAmount int64 `envconfig:"ECONOMY_MAX_AMOUNT" default:"100000"`
	// Сколько записей показывает !история по умолчанию.
	EconomyHistoryLength int `envconfig:"ECONOMY_HISTORY_LENGTH" default:"10"`
	// Сколько штук товара можно взять одной командой.
	EconomyMaxConsume int `envconfig:"ECONOMY_MAX_CONSUME" default:"10"`
	// Товары кассы, см. Consumables.
	Consumables Consumables `envconfig:"CONSUMABLES" default:"напиток|drink:100:🍹,мате|mate:150:🧉,вода|water:50:💧,пицца|pizza:200:🍕,мороженое|ice:50:🍦"`

	// --- Jobs ---
	AuditSchedule string `envconfig:"AUDIT_SCHEDULE" default:"0 4 * * *"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Validate проверяет значения, которые envconfig проверить не умеет.
func (c *Config) Validate() error {
	if c.MainChatID == 0 {
		return fmt.Errorf("MAIN_CHAT_ID не задан или равен 0")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.CommunityPaymentConsent <= 0 || c.CommunityPaymentDenial <= 0 {
		return fmt.Errorf("COMMUNITY_PAYMENT_CONSENT и COMMUNITY_PAYMENT_DENIAL должны быть > 0")
	}
	if c.EconomyMaxAmount <= 0 {
		return fmt.Errorf("ECONOMY_MAX_AMOUNT должен быть > 0")
	}
	if c.EconomyHistoryLength <= 0 {
		return fmt.Errorf("ECONOMY_HISTORY_LENGTH должен быть > 0")
	}
	if c.EconomyMaxConsume <= 0 {
		return fmt.Errorf("ECONOMY_MAX_CONSUME должен быть > 0")
	}
	seen := map[string]bool{}
	for _, item := range c.Consumables {
		for _, n := range item.Names {
			if seen[n] {
				return fmt.Errorf("CONSUMABLES: имя %q повторяется", n)
			}
			seen[n] = true
		}
	}
	if c.LockWait <= 0 || c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_WAIT и LOCK_TTL должны быть > 0")
	}
	if c.LockTTL < c.LockWait {
		return fmt.Errorf("LOCK_TTL (%s) не может быть меньше LOCK_WAIT (%s)", c.LockTTL, c.LockWait)
	}
	return nil
}

// IsAdmin проверяет, входит ли Telegram ID в ADMIN_IDS.
func (c *Config) IsAdmin(tid int64) bool {
	for _, id := range c.AdminIDs {
		if id == tid {
			return true
		}
	}
	return false
}

// Load читает .env (если есть) и переменные окружения, заполняет структуру Config.
func Load() (*Config, error) {
	// Уже выставленные переменные окружения .env не перетирает
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("не удалось прочитать .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
