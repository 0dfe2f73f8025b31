// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование и разбор денежных сумм,
// вывод даты.
package common

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Pluralize возвращает правильную форму слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
//
// Пример:
//
//	Pluralize(3, "участник", "участника", "участников") → "участника"
func Pluralize(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeParticipants: «участник» для числа n.
func PluralizeParticipants(n int64) string {
	return Pluralize(n, "участник", "участника", "участников")
}

// PluralizeVotes: «голос» для числа n.
func PluralizeVotes(n int64) string {
	return Pluralize(n, "голос", "голоса", "голосов")
}

// FormatMoney форматирует сумму в центах.
// Пример: FormatMoney(1250, "€") → "12.50 €", FormatMoney(-5, "€") → "-0.05 €"
func FormatMoney(cents int64, symbol string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, symbol)
}

// amountPattern: целая часть и до двух знаков после точки или запятой.
var amountPattern = regexp.MustCompile(`^(\d+)(?:[,.](\d)(\d)?)?$`)

// ParseAmount разбирает сумму вида "12", "12.5", "12,50" в центы.
// Сумма должна быть положительной и не больше max (если max > 0).
func ParseAmount(s string, max int64) (int64, error) {
	m := amountPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	whole, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || whole > (1<<62)/100 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	cents := whole * 100
	if m[2] != "" {
		cents += int64(m[2][0]-'0') * 10
	}
	if m[3] != "" {
		cents += int64(m[3][0] - '0')
	}

	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	if max > 0 && cents > max {
		return 0, fmt.Errorf("%w: максимум %s", ErrInvalidAmount, strings.TrimSpace(FormatMoney(max, "")))
	}
	return cents, nil
}

// FormatDateTime форматирует время для вывода в чат в часовом поясе tz.
// Если пояс не загрузился: UTC.
func FormatDateTime(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

// TrimUsername убирает ведущий @ из упоминания.
func TrimUsername(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}
