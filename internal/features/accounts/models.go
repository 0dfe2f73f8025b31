// Package accounts управляет счетами участников и счётом сообщества.
// models.go описывает структуры данных для работы с таблицей accounts.
package accounts

import "time"

// Account: счёт участника в базе данных.
// Баланс хранится в центах и может быть отрицательным (долг перед сообществом).
type Account struct {
	ID         int64     `db:"id"`          // Внутренний ID счёта (не меняется)
	TID        *int64    `db:"tid"`         // Telegram user ID, nil только у счёта сообщества
	Username   string    `db:"username"`    // @username (может быть пустым)
	Name       string    `db:"name"`        // Имя для вывода
	Balance    int64     `db:"balance"`     // Баланс в центах
	Permission bool      `db:"permission"`  // Право голосовать за оплаты
	CreatedAt  time.Time `db:"created_at"`  // Когда счёт создан
	AccessedAt time.Time `db:"accessed_at"` // Последнее обращение к боту
}

// Profile: данные из Telegram для регистрации/обновления счёта.
type Profile struct {
	TID       int64
	Username  string
	FirstName string
	LastName  string
}

// Name склеивает имя и фамилию.
func (p Profile) Name() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// IsCommunity: это счёт сообщества.
func (a *Account) IsCommunity() bool {
	return a.TID == nil
}

// DisplayName возвращает отображаемое имя.
// Если есть @username, возвращает его, иначе имя.
func (a *Account) DisplayName() string {
	if a.Username != "" {
		return "@" + a.Username
	}
	return a.Name
}
