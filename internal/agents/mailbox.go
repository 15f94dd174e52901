package agents

import "fmt"

// Reserved topics drive the trade protocol. Model code may read offers
// through the trade API but cannot send under these names.
const (
	TopicProposeSell = "propose_sell"
	TopicProposeBuy  = "propose_buy"
	TopicAccept      = "receive_accept"
	TopicReject      = "receive_reject"
	TopicRetract     = "receive_retract"
	TopicGood        = "receive_good"
)

func reservedTopic(topic string) bool {
	switch topic {
	case TopicProposeSell, TopicProposeBuy, TopicAccept, TopicReject, TopicRetract, TopicGood:
		return true
	}
	return false
}

// Envelope is one routed message. Payload is opaque to the engine except
// under the reserved topics.
type Envelope struct {
	Sender   Address
	Receiver Address
	Topic    string
	Payload  any
}

// Mailbox holds an agent's undelivered outbox and its received but
// not-yet-read messages. Only the owning agent touches it directly; the
// scheduler moves envelopes between mailboxes at the subround barrier.
type Mailbox struct {
	inbox  []Envelope
	outbox []Envelope
	store  map[string][]Envelope // user topics, populated at drain
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{store: make(map[string][]Envelope)}
}

// push queues an envelope for delivery at the end of the subround.
func (m *Mailbox) push(env Envelope) {
	m.outbox = append(m.outbox, env)
}

// Deliver appends an envelope to the inbox. Called by the scheduler
// between subrounds, never while the owner is acting.
func (m *Mailbox) Deliver(env Envelope) {
	m.inbox = append(m.inbox, env)
}

// TakeOutbox removes and returns all queued outgoing envelopes.
func (m *Mailbox) TakeOutbox() []Envelope {
	out := m.outbox
	m.outbox = nil
	return out
}

// pending counts unread messages: undrained inbox plus unread topics.
func (m *Mailbox) pending() int {
	n := len(m.inbox)
	for _, envs := range m.store {
		n += len(envs)
	}
	return n
}

func (m *Mailbox) String() string {
	return fmt.Sprintf("mailbox{in:%d out:%d stored:%d}", len(m.inbox), len(m.outbox), m.pending()-len(m.inbox))
}
