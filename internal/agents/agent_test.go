package agents

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/agora/internal/entropy"
	"github.com/talgya/agora/internal/sink"
)

func testRand(seed uint64) *entropy.Source {
	return entropy.New(seed)
}

func TestSendAndMessages(t *testing.T) {
	a := newTestAgent("alpha", 0, 21)
	b := newTestAgent("beta", 0, 21)

	require.NoError(t, a.Send(b.Address(), "greeting", "hello"))
	require.NoError(t, a.Send(b.Address(), "greeting", "again"))
	require.NoError(t, a.Send(b.Address(), "other", 42))
	deliver(t, a, b)
	drain(t, b)

	greetings := b.Messages("greeting")
	assert.Len(t, greetings, 2)
	for _, env := range greetings {
		assert.Equal(t, a.Address(), env.Sender)
	}
	assert.Empty(t, b.Messages("greeting"), "messages are consumed on read")

	all := b.AllMessages()
	assert.Len(t, all, 1)
	assert.Equal(t, 42, all[0].Payload)
}

func TestReservedTopicsRefused(t *testing.T) {
	a := newTestAgent("alpha", 0, 21)
	for _, topic := range []string{TopicProposeSell, TopicProposeBuy, TopicAccept, TopicReject, TopicGood} {
		assert.Error(t, a.Send(Address{Group: "beta"}, topic, nil), "topic %s", topic)
	}
}

func TestMessageOrderIsShuffled(t *testing.T) {
	// With 20 messages, at least one of several seeds must break the
	// insertion order, or the shuffle is not happening.
	broke := false
	for seed := uint64(1); seed <= 5 && !broke; seed++ {
		b := newTestAgent("beta", 0, seed)
		a := newTestAgent("alpha", 0, seed)
		for i := 0; i < 20; i++ {
			require.NoError(t, a.Send(b.Address(), "seq", i))
		}
		deliver(t, a, b)
		drain(t, b)
		for i, env := range b.Messages("seq") {
			if env.Payload.(int) != i {
				broke = true
				break
			}
		}
	}
	assert.True(t, broke, "retrieval must not preserve send order")
}

func TestExecuteUnknownActionFails(t *testing.T) {
	a := newTestAgent("alpha", 0, 21)
	_, err := a.Execute("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestExecuteWrapsActionError(t *testing.T) {
	a := newTestAgent("alpha", 0, 21)
	a.RegisterAction("boom", func(*Agent) (any, error) {
		return nil, fmt.Errorf("model bug")
	})
	_, err := a.Execute("boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `action "boom"`)
}

func TestUnresolvedCountsUnreadState(t *testing.T) {
	a := newTestAgent("alpha", 0, 21)
	b := newTestAgent("beta", 0, 21)
	a.Inventory().Create(corn, 5)

	require.NoError(t, a.Send(b.Address(), "memo", "x"))
	_, err := a.Sell(b.Address(), corn, 1, 1, Money)
	require.NoError(t, err)
	deliver(t, a, b)

	msgs, offers := b.Unresolved()
	assert.Equal(t, 2, msgs, "undrained inbox counts everything")
	assert.Equal(t, 0, offers)

	drain(t, b)
	msgs, offers = b.Unresolved()
	assert.Equal(t, 1, msgs, "stored memo still unread")
	assert.Equal(t, 1, offers, "open offer unanswered")

	b.Messages("memo")
	b.Reject(b.GetOffers(corn)[0])
	msgs, offers = b.Unresolved()
	assert.Equal(t, 0, msgs)
	assert.Equal(t, 0, offers)
}

// capturingSink records every record put, for asserting log flushes.
type capturingSink struct {
	records []sink.Record
}

func (c *capturingSink) Put(r sink.Record) { c.records = append(c.records, r) }
func (c *capturingSink) Close() error      { return nil }

func TestLogWritesPanelRecord(t *testing.T) {
	cs := &capturingSink{}
	a := NewAgent(Address{Group: "firm", ID: 3}, testRand(1), cs, TradeLogIndividual)
	a.Round = 7

	a.Log("produce", map[string]float64{"output": 12.5})
	require.Len(t, cs.records, 1)
	panel, ok := cs.records[0].(sink.Panel)
	require.True(t, ok)
	assert.Equal(t, "firm", panel.Group)
	assert.Equal(t, 3, panel.Agent)
	assert.Equal(t, 7, panel.Round)
	assert.Equal(t, "produce", panel.Subround)
	assert.Equal(t, 12.5, panel.Data["output"])
}

func TestTradeLogFlushedAtRoundBegin(t *testing.T) {
	cs := &capturingSink{}
	s := NewAgent(Address{Group: "seller", ID: 0}, testRand(2), cs, TradeLogGroup)
	b := newTestAgent("buyer", 0, 2)
	s.Inventory().Create(corn, 10)
	b.Inventory().Create(Money, 10)

	_, err := s.Sell(b.Address(), corn, 2, 3, Money)
	require.NoError(t, err)
	deliver(t, s, b)
	drain(t, b)
	_, err = b.Accept(b.GetOffers(corn)[0])
	require.NoError(t, err)
	deliver(t, s, b)
	require.NoError(t, s.BeginRound(1))

	require.Len(t, cs.records, 1)
	trades, ok := cs.records[0].(sink.Trades)
	require.True(t, ok)
	assert.Equal(t, 0, trades.Round, "flushed under the round it settled in")
	key := sink.TradeKey{Good: string(corn), Seller: "seller", Buyer: "buyer", Price: 3}
	assert.Equal(t, 2.0, trades.Counts[key], "group mode keys by group names")

	// Counter resets after the flush.
	require.NoError(t, s.BeginRound(2))
	assert.Len(t, cs.records, 1)
}
