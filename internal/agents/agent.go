package agents

import (
	"fmt"

	"github.com/talgya/agora/internal/entropy"
	"github.com/talgya/agora/internal/sink"
)

// TradeLogging selects how settled trades are keyed in the trade log.
type TradeLogging uint8

const (
	TradeLogOff        TradeLogging = iota
	TradeLogIndividual              // keyed by full agent names
	TradeLogGroup                   // keyed by group names only
)

// ActionFunc is one entry of an agent's command table. The returned
// value is collected by the scheduler; a non-nil error aborts the round
// unless it is the recoverable NotEnoughGoodsError handled inside the
// action itself.
type ActionFunc func(a *Agent) (any, error)

// Agent is the composition root: one addressable actor owning an
// Inventory, a Mailbox, its trade bookkeeping, and a command table of
// model-defined actions. All cross-agent effects go through messages;
// nothing here is ever touched by another agent directly.
type Agent struct {
	addr  Address
	Round int

	inv *Inventory
	mb  *Mailbox
	rng *entropy.Source

	actions map[string]ActionFunc

	// Trade bookkeeping. givenOffers holds originals of our outstanding
	// offers; the open tables hold copies of offers made to us, keyed by
	// good; polled holds offers taken out via GetOffers this subround.
	offerSeq       uint64
	givenOffers    map[OfferID]*Offer
	openOffersBuy  map[Good]map[OfferID]*Offer
	openOffersSell map[Good]map[OfferID]*Offer
	polled         map[OfferID]*Offer

	tradeMode TradeLogging
	trades    map[sink.TradeKey]float64
	sink      sink.Sink

	// State is a hook for arbitrary model-defined agent state.
	State any
}

// NewAgent creates an agent at addr with its own derived random stream.
func NewAgent(addr Address, rng *entropy.Source, sk sink.Sink, mode TradeLogging) *Agent {
	if sk == nil {
		sk = sink.Discard{}
	}
	return &Agent{
		addr:           addr,
		inv:            NewInventory(addr),
		mb:             NewMailbox(),
		rng:            rng,
		actions:        make(map[string]ActionFunc),
		givenOffers:    make(map[OfferID]*Offer),
		openOffersBuy:  make(map[Good]map[OfferID]*Offer),
		openOffersSell: make(map[Good]map[OfferID]*Offer),
		polled:         make(map[OfferID]*Offer),
		tradeMode:      mode,
		trades:         make(map[sink.TradeKey]float64),
		sink:           sk,
	}
}

// Address returns the agent's (group, id) routing address.
func (a *Agent) Address() Address { return a.addr }

// Group returns the agent's group name.
func (a *Agent) Group() string { return a.addr.Group }

// ID returns the agent's id within its group.
func (a *Agent) ID() int { return a.addr.ID }

// Inventory exposes the agent's goods for model code and tests.
func (a *Agent) Inventory() *Inventory { return a.inv }

// Mailbox exposes the agent's mailbox to the scheduler and tests.
func (a *Agent) Mailbox() *Mailbox { return a.mb }

// Rand returns the agent's random source.
func (a *Agent) Rand() *entropy.Source { return a.rng }

// RegisterAction binds a command name to an action. Registering over an
// existing name replaces it.
func (a *Agent) RegisterAction(name string, fn ActionFunc) {
	a.actions[name] = fn
}

// Execute runs one subround for this agent: drain the inbox, run the
// named action, then auto-reject every offer that was polled but left
// unanswered so no reservation leaks.
func (a *Agent) Execute(command string) (any, error) {
	if err := a.drainMessages(); err != nil {
		return nil, err
	}
	fn, ok := a.actions[command]
	if !ok {
		return nil, fmt.Errorf("%s: unknown action %q", a.addr, command)
	}
	res, err := fn(a)
	a.rejectPolledButNotAccepted()
	if err != nil {
		return nil, fmt.Errorf("%s: action %q: %w", a.addr, command, err)
	}
	return res, nil
}

// BeginRound is the per-round hook broadcast before the round's first
// subround: apply pending confirmations, flush the previous round's
// trade log, time out still-open offers, and age the inventory.
func (a *Agent) BeginRound(t int) error {
	if err := a.drainMessages(); err != nil {
		return err
	}
	a.flushTrades()
	a.Round = t
	a.rejectRemainingOpenOffers()
	lost := a.inv.RoundEnd()
	if len(lost) > 0 {
		a.perishGivenOffers()
	}
	return nil
}

// Send queues a message for delivery at the end of the subround.
// Reserved protocol topics are refused.
func (a *Agent) Send(receiver Address, topic string, payload any) error {
	if reservedTopic(topic) {
		return fmt.Errorf("%s: topic %q is reserved for the trade protocol", a.addr, topic)
	}
	a.mb.push(Envelope{Sender: a.addr, Receiver: receiver, Topic: topic, Payload: payload})
	return nil
}

// Messages pops and returns all received messages under topic, in
// randomized order so models cannot silently favor low sender ids.
func (a *Agent) Messages(topic string) []Envelope {
	envs := a.mb.store[topic]
	if len(envs) == 0 {
		return nil
	}
	delete(a.mb.store, topic)
	a.rng.Shuffle(len(envs), func(i, j int) { envs[i], envs[j] = envs[j], envs[i] })
	return envs
}

// AllMessages pops and returns every received message, shuffled.
func (a *Agent) AllMessages() []Envelope {
	var envs []Envelope
	for topic, list := range a.mb.store {
		envs = append(envs, list...)
		delete(a.mb.store, topic)
	}
	if len(envs) == 0 {
		return nil
	}
	a.rng.Shuffle(len(envs), func(i, j int) { envs[i], envs[j] = envs[j], envs[i] })
	return envs
}

// Log records a named data row for this agent in the sink's panel.
func (a *Agent) Log(action string, data map[string]float64) {
	a.sink.Put(sink.Panel{
		Group:    a.addr.Group,
		Agent:    a.addr.ID,
		Round:    a.Round,
		Subround: action,
		Data:     data,
	})
}

// Unresolved reports unread messages and unanswered incoming offers,
// for the strict lost-message check at round end.
func (a *Agent) Unresolved() (messages, offers int) {
	messages = a.mb.pending()
	for _, table := range a.openOffersBuy {
		offers += len(table)
	}
	for _, table := range a.openOffersSell {
		offers += len(table)
	}
	offers += len(a.polled)
	return messages, offers
}

// drainMessages dispatches every delivered envelope: protocol topics
// feed the trade state machine, everything else is stored for Messages.
func (a *Agent) drainMessages() error {
	inbox := a.mb.inbox
	a.mb.inbox = nil
	for _, env := range inbox {
		switch env.Topic {
		case TopicProposeSell:
			a.receiveOffer(env, true)
		case TopicProposeBuy:
			a.receiveOffer(env, false)
		case TopicAccept:
			p, ok := env.Payload.(acceptPayload)
			if !ok {
				return fmt.Errorf("%s: malformed accept payload %T", a.addr, env.Payload)
			}
			if err := a.receiveAccept(p); err != nil {
				return err
			}
		case TopicReject:
			p, ok := env.Payload.(rejectPayload)
			if !ok {
				return fmt.Errorf("%s: malformed reject payload %T", a.addr, env.Payload)
			}
			if err := a.receiveReject(p); err != nil {
				return err
			}
		case TopicRetract:
			p, ok := env.Payload.(retractPayload)
			if !ok {
				return fmt.Errorf("%s: malformed retract payload %T", a.addr, env.Payload)
			}
			a.receiveRetract(p)
		case TopicGood:
			p, ok := env.Payload.(goodPayload)
			if !ok {
				return fmt.Errorf("%s: malformed good payload %T", a.addr, env.Payload)
			}
			a.inv.Create(p.Good, p.Quantity)
		default:
			a.mb.store[env.Topic] = append(a.mb.store[env.Topic], env)
		}
	}
	return nil
}

func (a *Agent) receiveOffer(env Envelope, sell bool) {
	off, ok := env.Payload.(Offer)
	if !ok {
		return // propose payloads are always Offer copies
	}
	off.Status = OfferPending
	table := a.openOffersBuy
	if sell {
		table = a.openOffersSell
	}
	byID, ok := table[off.Good]
	if !ok {
		byID = make(map[OfferID]*Offer)
		table[off.Good] = byID
	}
	byID[off.ID] = &off
}

// flushTrades hands the accumulated trade counter for the closing round
// to the sink and resets it.
func (a *Agent) flushTrades() {
	if a.tradeMode == TradeLogOff || len(a.trades) == 0 {
		return
	}
	a.sink.Put(sink.Trades{Round: a.Round, Counts: a.trades})
	a.trades = make(map[sink.TradeKey]float64)
}

// recordTrade accumulates one settled trade into the round counter.
func (a *Agent) recordTrade(off *Offer, qty float64) {
	if a.tradeMode == TradeLogOff {
		return
	}
	seller, buyer := off.SellerBuyer()
	key := sink.TradeKey{Good: string(off.Good), Price: off.Price}
	if a.tradeMode == TradeLogGroup {
		key.Seller, key.Buyer = seller.Group, buyer.Group
	} else {
		key.Seller, key.Buyer = seller.String(), buyer.String()
	}
	a.trades[key] += qty
}
