package collectives

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCommunism(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)
	bob := h.store.addAccount("bob", false)
	st := h.create(t, KindCommunism, alice, 1000)
	_, st, err := h.svc.Toggle(ctx, st.ID, bob)
	require.NoError(t, err)

	r := h.svc.Render(st)
	assert.Contains(t, r.Text, "Коммунизм #1 от @alice")
	assert.Contains(t, r.Text, "Сумма: 10.00 €")
	assert.Contains(t, r.Text, "Участники: @alice, @bob")
	assert.Contains(t, r.Text, "по 5.00 € с каждого")
	require.Len(t, r.Controls, 3)
	assert.Equal(t, "communism toggle 1", r.Controls[0][0].Data)
	assert.Equal(t, "communism accept 1", r.Controls[2][0].Data)

	closed, err := h.svc.Cancel(ctx, st.ID, alice)
	require.NoError(t, err)
	r = h.svc.Render(closed)
	assert.Empty(t, r.Controls)
	assert.Contains(t, r.Text, "отменён")
}

func TestRenderPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.store.addAccount("alice", false)
	bob := h.store.addAccount("bob", false)
	st := h.create(t, KindPayment, alice, 450)

	r := h.svc.Render(st)
	assert.Contains(t, r.Text, "Запрос на оплату #1 от @alice")
	assert.Contains(t, r.Text, "не хватает 2 голоса")
	require.Len(t, r.Controls, 2)
	assert.Equal(t, "pay approve 1", r.Controls[0][0].Data)
	assert.Equal(t, "pay disapprove 1", r.Controls[0][1].Data)
	assert.Equal(t, "pay cancel 1", r.Controls[1][0].Data)

	_, err := h.svc.Vote(ctx, st.ID, bob, true)
	require.NoError(t, err)
	st, err = h.svc.Load(ctx, st.ID)
	require.NoError(t, err)
	r = h.svc.Render(st)
	assert.Contains(t, r.Text, "За (1): @bob")
	assert.Contains(t, r.Text, "не хватает 1 голос.")
}

func TestParseCallback(t *testing.T) {
	prefix, action, id, ok := parseCallback("communism toggle 12")
	require.True(t, ok)
	assert.Equal(t, "communism", prefix)
	assert.Equal(t, "toggle", action)
	assert.Equal(t, int64(12), id)

	_, _, id, ok = parseCallback("pay approve 7")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	for _, bad := range []string{"", "pay approve", "pay approve x", "casino spin 1", "pay approve -1", "pay approve 1 2"} {
		_, _, _, ok := parseCallback(bad)
		assert.False(t, ok, bad)
	}
}

func TestFingerprintDistinguishesControls(t *testing.T) {
	a := Rendering{Text: "x", Controls: [][]Control{{{Label: "a", Data: "1"}}}}
	b := Rendering{Text: "x"}
	assert.NotEqual(t, fingerprint(a), fingerprint(b))
	assert.Equal(t, fingerprint(a), fingerprint(Rendering{Text: "x", Controls: [][]Control{{{Label: "a", Data: "1"}}}}))
}
