// Package common, errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Каждая ошибка принадлежит одной категории (валидация, конфликт, не найдено,
// хранилище, нарушение инварианта), обработчики проверяют категорию через errors.Is
// и отправляют пользователю понятное сообщение.
package common

import (
	"errors"
	"fmt"
)

// Категории ошибок
var (
	// ErrValidation: некорректные входные данные
	ErrValidation = errors.New("некорректные данные")
	// ErrConflict: операция противоречит текущему состоянию
	ErrConflict = errors.New("конфликт состояния")
	// ErrNotFound: запись не найдена
	ErrNotFound = errors.New("не найдено")
	// ErrPersistence: ошибка хранилища, изменений не произошло
	ErrPersistence = errors.New("ошибка хранилища")
	// ErrInvariant: нарушен внутренний инвариант (баг, логируется как error)
	ErrInvariant = errors.New("нарушен инвариант")
)

// Ошибки экономики (суммы, переводы)
var (
	// ErrInvalidAmount: сумма не положительная или больше лимита
	ErrInvalidAmount = fmt.Errorf("%w: сумма должна быть положительной", ErrValidation)
	// ErrSelfTransfer: отправитель и получатель совпадают
	ErrSelfTransfer = fmt.Errorf("%w: нельзя переводить деньги самому себе", ErrValidation)
	// ErrAccountNotFound: счёт не найден в базе
	ErrAccountNotFound = fmt.Errorf("%w: счёт не найден", ErrNotFound)
	// ErrTransactionNotFound: транзакция не найдена
	ErrTransactionNotFound = fmt.Errorf("%w: транзакция не найдена", ErrNotFound)
	// ErrConsumeCount: за раз можно взять от 1 до ECONOMY_MAX_CONSUME штук
	ErrConsumeCount = fmt.Errorf("%w: нельзя взять столько за раз", ErrValidation)
)

// Ошибки сборов (коммунизм, оплата)
var (
	ErrDescriptionTooShort   = fmt.Errorf("%w: описание должно быть не короче 3 символов", ErrValidation)
	ErrExternalsDelta        = fmt.Errorf("%w: число внешних участников меняется ровно на 1 и не бывает отрицательным", ErrValidation)
	ErrNotEnoughParticipants = fmt.Errorf("%w: недостаточно участников", ErrValidation)

	ErrActiveCollectiveExists = fmt.Errorf("%w: у вас уже есть активный сбор", ErrConflict)
	ErrCollectiveClosed       = fmt.Errorf("%w: сбор уже закрыт", ErrConflict)
	ErrNotCreator             = fmt.Errorf("%w: это может сделать только создатель сбора", ErrConflict)
	ErrAlreadyVoted           = fmt.Errorf("%w: вы уже голосовали", ErrConflict)
	ErrSelfVote               = fmt.Errorf("%w: нельзя голосовать за свой запрос", ErrConflict)
	ErrVoteNotPermitted       = fmt.Errorf("%w: у вас нет права голоса", ErrConflict)
	ErrWrongKind              = fmt.Errorf("%w: операция не поддерживается этим сбором", ErrConflict)

	ErrCollectiveNotFound = fmt.Errorf("%w: сбор не найден", ErrNotFound)

	// ErrBusy: не дождались блокировки сбора
	ErrBusy = fmt.Errorf("%w: сбор занят, попробуйте ещё раз", ErrPersistence)
)

// Ошибки админки
var (
	// ErrNotAdmin: пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword: неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts: слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired: сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)

// Persistence оборачивает ошибку хранилища в категорию ErrPersistence,
// сохраняя исходную ошибку для errors.Is/errors.As.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Categorized: ошибка уже относится к одной из категорий.
func Categorized(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrInvariant)
}

// UserMessage превращает ошибку в текст для пользователя.
// Ошибки хранилища и инварианта наружу не показываем.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return "⏳ " + ErrBusy.Error()
	case errors.Is(err, ErrInvariant), errors.Is(err, ErrPersistence):
		return "❌ Что-то пошло не так, попробуйте позже"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
		return "❌ " + err.Error()
	default:
		return "❌ " + err.Error()
	}
}
