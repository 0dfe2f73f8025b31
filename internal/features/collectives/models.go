// Package collectives реализует сборы: коммунизм (общий счёт делится между участниками)
// и оплату (сообщество возмещает расходы после голосования).
// models.go описывает структуры данных сборов.
package collectives

import (
	"fmt"
	"strings"
	"time"

	"serotonyl.ru/mate-bot/internal/features/ledger"
)

// Kind: вид сбора.
type Kind string

const (
	KindCommunism Kind = "communism"
	KindPayment   Kind = "payment"
)

// Valid: известный ли вид.
func (k Kind) Valid() bool {
	return k == KindCommunism || k == KindPayment
}

// Outcome: чем закончился сбор.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeFulfilled Outcome = "fulfilled"
	OutcomeAborted   Outcome = "aborted"
)

// Closure: кто закрыл сбор.
type Closure string

const (
	ClosedByCreator Closure = "creator" // принял или отменил создатель
	ClosedByVote    Closure = "vote"    // решило голосование
)

// Collective: строка таблицы collectives.
// Active меняется true→false ровно один раз, вместе с расчётом.
type Collective struct {
	ID          int64      `db:"id"`
	CreatorID   int64      `db:"creator_id"`
	Amount      int64      `db:"amount"` // центы
	Description string     `db:"description"`
	Kind        Kind       `db:"kind"`
	Active      bool       `db:"active"`
	Externals   int        `db:"externals"` // только коммунизм
	Outcome     Outcome    `db:"outcome"`
	ClosedBy    Closure    `db:"closed_by"`
	CreatedAt   time.Time  `db:"created_at"`
	ClosedAt    *time.Time `db:"closed_at"`
}

// Participant: участник коммунизма или голос в оплате.
// Vote == nil у участников коммунизма.
type Participant struct {
	AccountID int64
	Name      string
	Vote      *bool
}

// View: сообщение, в котором показывается сбор. Одно на чат.
type View struct {
	ChatID    int64
	MessageID int
}

// State: сбор со всем, что нужно для отображения.
type State struct {
	Collective
	CreatorName  string
	Participants []Participant
}

// Draft: параметры нового сбора.
type Draft struct {
	Kind        Kind
	CreatorID   int64
	Amount      int64
	Description string
}

// Control: кнопка под сообщением сбора.
type Control struct {
	Label string
	Data  string
}

// Rendering: текст и кнопки сбора. Без кнопок у закрытых сборов.
type Rendering struct {
	Text     string
	Controls [][]Control
}

// VoteResult: итог одного голоса по оплате.
type VoteResult struct {
	Approvers    int
	Disapprovers int
	Outcome      Outcome
	Closed       bool
	Transaction  *ledger.Transaction // перевод сообщество → создатель, если одобрено
}

// Tally считает голоса «за» и «против».
func (s *State) Tally() (approve, disapprove int) {
	for _, p := range s.Participants {
		if p.Vote == nil {
			continue
		}
		if *p.Vote {
			approve++
		} else {
			disapprove++
		}
	}
	return approve, disapprove
}

// Names: имена участников через запятую; filter выбирает, кого включить.
func (s *State) Names(filter func(Participant) bool) string {
	var names []string
	for _, p := range s.Participants {
		if filter == nil || filter(p) {
			names = append(names, p.Name)
		}
	}
	return strings.Join(names, ", ")
}

// reason: причина перевода по сбору, например «коммунизм: пицца (#12)».
func reason(prefix string, c *Collective) string {
	return fmt.Sprintf("%s: %s (#%d)", prefix, c.Description, c.ID)
}
