package collectives

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []tgbotapi.Chattable
	fail  map[int64]error
	msgID int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)

	if e, ok := c.(tgbotapi.EditMessageTextConfig); ok {
		if err := f.fail[e.ChatID]; err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.msgID++
	return tgbotapi.Message{MessageID: f.msgID}, nil
}

func (f *fakeSender) edits() []tgbotapi.EditMessageTextConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.EditMessageTextConfig
	for _, c := range f.sent {
		if e, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, e)
		}
	}
	return out
}

func TestTelegramViewsPostAndPublish(t *testing.T) {
	bot := &fakeSender{}
	tv := NewTelegramViews(bot)
	ctx := context.Background()
	st := &State{Collective: Collective{ID: 5, Active: true}}

	r := Rendering{Text: "v1", Controls: [][]Control{{{Label: "Принять", Data: "communism accept 5"}}}}
	v, err := tv.Post(ctx, -100, r)
	require.NoError(t, err)
	assert.Equal(t, View{ChatID: -100, MessageID: 1}, v)

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "communism accept 5", *markup.InlineKeyboard[0][0].CallbackData)

	// Тот же текст не редактируем
	require.NoError(t, tv.Publish(ctx, st, []View{v}, r))
	assert.Empty(t, bot.edits())

	other := View{ChatID: 7, MessageID: 2}
	final := Rendering{Text: "закрыт"}
	require.NoError(t, tv.Publish(ctx, st, []View{v, other}, final))
	edits := bot.edits()
	require.Len(t, edits, 2)
	for _, e := range edits {
		assert.Equal(t, "закрыт", e.Text)
		assert.Nil(t, e.ReplyMarkup)
	}

	require.NoError(t, tv.UnbindAll(ctx, st, []View{v, other}))
	assert.Empty(t, tv.shown)
}

func TestTelegramViewsPublishReportsErrors(t *testing.T) {
	bot := &fakeSender{fail: map[int64]error{
		7:  errors.New("Forbidden: bot was blocked by the user"),
		-1: errors.New("Bad Request: message is not modified"),
	}}
	tv := NewTelegramViews(bot)
	st := &State{Collective: Collective{ID: 1, Active: true}}

	err := tv.Publish(context.Background(), st, []View{{ChatID: -1, MessageID: 1}}, Rendering{Text: "a"})
	assert.NoError(t, err)

	err = tv.Publish(context.Background(), st, []View{{ChatID: 7, MessageID: 1}}, Rendering{Text: "a"})
	assert.ErrorContains(t, err, "blocked")
}

func TestTelegramViewsPublishReachesEveryChatWhenOneFails(t *testing.T) {
	bot := &fakeSender{fail: map[int64]error{
		1: errors.New("Bad Request: message to edit not found"),
		9: errors.New("Forbidden: bot was kicked from the group chat"),
	}}
	tv := NewTelegramViews(bot)
	st := &State{Collective: Collective{ID: 3}}

	views := make([]View, 0, 20)
	for i := int64(1); i <= 20; i++ {
		views = append(views, View{ChatID: i, MessageID: int(i)})
	}

	err := tv.Publish(context.Background(), st, views, Rendering{Text: "закрыт"})
	assert.ErrorContains(t, err, "message to edit not found")
	assert.ErrorContains(t, err, "kicked")

	chats := map[int64]bool{}
	for _, e := range bot.edits() {
		chats[e.ChatID] = true
	}
	assert.Len(t, chats, 20)

	// Удачные правки запомнены, повторная публикация трогает только упавшие чаты
	before := len(bot.edits())
	_ = tv.Publish(context.Background(), st, views, Rendering{Text: "закрыт"})
	assert.Equal(t, before+2, len(bot.edits()))
}
