package agents

import (
	"fmt"
	"sort"
)

// Trade state machine. An offer settles over a strict three-message
// protocol: the offerer reserves and proposes; the receiver accepts
// (possibly partially) or rejects; the confirmation travels back and the
// offerer commits or rewinds its reservation on its next drain. Offers
// never share state across agents — only copies and ids travel.

// Sell offers qty of good to receiver at the given unit price, payable
// in currency (usually Money). The quantity is reserved immediately; the
// returned offer is the live original whose Status updates as the
// protocol advances.
func (a *Agent) Sell(receiver Address, good Good, qty, price float64, currency Good) (*Offer, error) {
	qty, price, err := a.checkTerms(good, qty, price)
	if err != nil {
		return nil, err
	}
	available := a.inv.NotReserved(good)
	if qty > available+Epsilon {
		return nil, notEnough(a.addr, good, qty-available)
	}
	if qty > available {
		qty = available
	}
	if err := a.inv.Reserve(good, qty); err != nil {
		return nil, err
	}
	return a.postOffer(receiver, good, qty, price, currency, true), nil
}

// Buy offers to purchase qty of good from receiver at the given unit
// price. The money side (qty*price of currency) is reserved, not the
// good being bought.
func (a *Agent) Buy(receiver Address, good Good, qty, price float64, currency Good) (*Offer, error) {
	qty, price, err := a.checkTerms(good, qty, price)
	if err != nil {
		return nil, err
	}
	cost := qty * price
	available := a.inv.NotReserved(currency)
	if cost > available+Epsilon {
		return nil, notEnough(a.addr, currency, cost-available)
	}
	if cost > available {
		cost = available
		if price > 0 {
			qty = cost / price
		}
	}
	if err := a.inv.Reserve(currency, cost); err != nil {
		return nil, err
	}
	return a.postOffer(receiver, good, qty, price, currency, false), nil
}

// Take asks receiver to hand over qty of good for free: a zero-price
// buy the counterparty can still accept or reject.
func (a *Agent) Take(receiver Address, good Good, qty float64) (*Offer, error) {
	return a.Buy(receiver, good, qty, 0, Money)
}

// Give transfers qty of good to receiver unconditionally. The sender is
// debited immediately; the receiver is credited on its next drain. There
// is no confirmation and no way to refuse.
func (a *Agent) Give(receiver Address, good Good, qty float64) error {
	if qty < 0 {
		if qty < -Epsilon {
			return fmt.Errorf("%s: give: negative quantity %g", a.addr, qty)
		}
		qty = 0
	}
	if err := a.inv.Destroy(good, qty); err != nil {
		return err
	}
	a.mb.push(Envelope{
		Sender:   a.addr,
		Receiver: receiver,
		Topic:    TopicGood,
		Payload:  goodPayload{Good: good, Quantity: qty},
	})
	return nil
}

// GetOffers pulls all pending buy and sell offers for good addressed to
// this agent, marking them polled: a polled offer left unanswered is
// auto-rejected at the end of the subround. Offers are shuffled before
// the stable price sort so ties break randomly, not by arrival order.
func (a *Agent) GetOffers(good Good) []*Offer {
	return a.GetOffersSorted(good, false)
}

// GetOffersSorted is GetOffers with an explicit price direction.
func (a *Agent) GetOffersSorted(good Good, descending bool) []*Offer {
	offers := a.collectOffers(good, true)
	a.orderOffers(offers, descending)
	return offers
}

// PeekOffers returns copies of the pending offers for good without
// marking them polled, so inspection alone never risks a timeout reject.
func (a *Agent) PeekOffers(good Good) []Offer {
	live := a.collectOffers(good, false)
	a.orderOffers(live, false)
	out := make([]Offer, len(live))
	for i, off := range live {
		out[i] = *off
	}
	return out
}

// Accept settles an incoming offer in full.
func (a *Agent) Accept(off *Offer) (float64, error) {
	return a.AcceptQuantity(off, off.Quantity)
}

// AcceptQuantity settles an incoming offer for qty units, which may be
// less than offered. qty zero behaves as Reject. For a sell offer the
// currency balance must cover qty*price; for a buy offer the good must
// be on hand. Shortfalls beyond Epsilon leave all state unchanged and
// return NotEnoughGoodsError.
func (a *Agent) AcceptQuantity(off *Offer, qty float64) (float64, error) {
	if off.Status.Terminal() {
		return 0, fmt.Errorf("%s: accept: offer %v already %s", a.addr, off.ID, off.Status)
	}
	if qty > off.Quantity+Epsilon {
		return 0, fmt.Errorf("%s: accept: quantity %g exceeds offered %g", a.addr, qty, off.Quantity)
	}
	if qty > off.Quantity {
		qty = off.Quantity
	}
	if qty < 0 {
		if qty < -Epsilon {
			return 0, fmt.Errorf("%s: accept: negative quantity %g", a.addr, qty)
		}
		qty = 0
	}
	if qty <= Epsilon {
		a.Reject(off)
		return 0, nil
	}

	if off.Sell {
		// We buy: pay qty*price of currency, receive the good.
		cost := qty * off.Price
		have := a.inv.Have(off.Currency)
		if cost > have+Epsilon {
			return 0, notEnough(a.addr, off.Currency, cost-have)
		}
		if cost > have {
			cost = have
			qty = cost / off.Price
		}
		if err := a.inv.Destroy(off.Currency, cost); err != nil {
			return 0, err
		}
		a.inv.Create(off.Good, qty)
	} else {
		// We sell: hand over the good, receive qty*price of currency.
		have := a.inv.Have(off.Good)
		if qty > have+Epsilon {
			return 0, notEnough(a.addr, off.Good, qty-have)
		}
		if qty > have {
			qty = have
		}
		if err := a.inv.Destroy(off.Good, qty); err != nil {
			return 0, err
		}
		a.inv.Create(off.Currency, qty*off.Price)
	}

	off.Status = OfferAccepted
	off.FinalQuantity = qty
	off.StatusRound = a.Round
	a.dropIncomingOffer(off)
	a.mb.push(Envelope{
		Sender:   a.addr,
		Receiver: off.Sender,
		Topic:    TopicAccept,
		Payload:  acceptPayload{ID: off.ID, Quantity: qty},
	})
	return qty, nil
}

// Reject declines an incoming offer and notifies the sender so its
// reservation is released. Rejecting an offer that already reached a
// terminal status is a no-op, so double rejects never double-rewind.
func (a *Agent) Reject(off *Offer) {
	if off.Status.Terminal() {
		return
	}
	off.Status = OfferRejected
	off.StatusRound = a.Round
	a.dropIncomingOffer(off)
	a.mb.push(Envelope{
		Sender:   a.addr,
		Receiver: off.Sender,
		Topic:    TopicReject,
		Payload:  rejectPayload{ID: off.ID},
	})
}

// GivenOffer looks up one of this agent's own outstanding offers.
func (a *Agent) GivenOffer(id OfferID) (*Offer, bool) {
	off, ok := a.givenOffers[id]
	return off, ok
}

// checkTerms validates price and quantity, clamping float-noise
// negatives up to zero and refusing anything grossly negative.
func (a *Agent) checkTerms(good Good, qty, price float64) (float64, float64, error) {
	if qty < -Epsilon {
		return 0, 0, fmt.Errorf("%s: offer of %s: negative quantity %g", a.addr, good, qty)
	}
	if price < -Epsilon {
		return 0, 0, fmt.Errorf("%s: offer of %s: negative price %g", a.addr, good, price)
	}
	if qty < 0 {
		qty = 0
	}
	if price < 0 {
		price = 0
	}
	return qty, price, nil
}

// postOffer builds the offer, records the original in givenOffers, and
// queues a copy for the receiver.
func (a *Agent) postOffer(receiver Address, good Good, qty, price float64, currency Good, sell bool) *Offer {
	a.offerSeq++
	off := &Offer{
		ID:       OfferID{Sender: a.addr, Seq: a.offerSeq},
		Sender:   a.addr,
		Receiver: receiver,
		Good:     good,
		Quantity: qty,
		Price:    price,
		Currency: currency,
		Sell:     sell,
		Status:   OfferNew,
		Made:     a.Round,
	}
	a.givenOffers[off.ID] = off
	topic := TopicProposeBuy
	if sell {
		topic = TopicProposeSell
	}
	a.mb.push(Envelope{Sender: a.addr, Receiver: receiver, Topic: topic, Payload: *off})
	return off
}

// receiveAccept applies a settlement confirmation to one of our own
// offers: release the full reservation, remove what actually traded,
// credit the proceeds.
func (a *Agent) receiveAccept(p acceptPayload) error {
	off, ok := a.givenOffers[p.ID]
	if !ok {
		return fmt.Errorf("%s: accept confirmation for unknown offer %v", a.addr, p.ID)
	}
	if off.Status == OfferPerished {
		// Goods vanished before the answer arrived; the reservation is
		// already rewound and the trade is void.
		delete(a.givenOffers, p.ID)
		return nil
	}
	qty := p.Quantity
	if qty > off.Quantity+Epsilon {
		return fmt.Errorf("%s: accepted %g exceeds offered %g on %v", a.addr, qty, off.Quantity, p.ID)
	}
	if qty > off.Quantity {
		qty = off.Quantity
	}
	if off.Sell {
		a.inv.Commit(off.Good, off.Quantity, qty)
		a.inv.Create(off.Currency, qty*off.Price)
	} else {
		a.inv.Commit(off.Currency, off.Quantity*off.Price, qty*off.Price)
		a.inv.Create(off.Good, qty)
	}
	off.Status = OfferAccepted
	off.FinalQuantity = qty
	off.StatusRound = a.Round
	delete(a.givenOffers, p.ID)
	a.recordTrade(off, qty)
	return nil
}

// receiveReject releases the reservation behind one of our own offers.
func (a *Agent) receiveReject(p rejectPayload) error {
	off, ok := a.givenOffers[p.ID]
	if !ok {
		return fmt.Errorf("%s: reject confirmation for unknown offer %v", a.addr, p.ID)
	}
	if off.Status != OfferPerished {
		if off.Sell {
			a.inv.Rewind(off.Good, off.Quantity)
		} else {
			a.inv.Rewind(off.Currency, off.Quantity*off.Price)
		}
		off.Status = OfferRejected
		off.StatusRound = a.Round
	}
	delete(a.givenOffers, p.ID)
	return nil
}

// rejectPolledButNotAccepted is the end-of-subround safety net: every
// offer taken out via GetOffers and left unanswered is rejected so the
// sender's reservation cannot leak.
func (a *Agent) rejectPolledButNotAccepted() {
	for id, off := range a.polled {
		if !off.Status.Terminal() {
			a.Reject(off)
		}
		delete(a.polled, id)
	}
}

// rejectRemainingOpenOffers times out every incoming offer that was
// never polled. Runs at round advance, so an unanswered offer is
// implicitly rejected by the next round.
func (a *Agent) rejectRemainingOpenOffers() {
	for _, table := range [2]map[Good]map[OfferID]*Offer{a.openOffersBuy, a.openOffersSell} {
		for good, byID := range table {
			for _, off := range byID {
				a.Reject(off)
			}
			delete(table, good)
		}
	}
}

// perishGivenOffers voids outstanding offers whose backing vanished at
// the round boundary. Per committed good, offers are dropped
// newest-first until the total still committed fits the surviving
// stock; each voided offer is retracted at its receiver so it can no
// longer be accepted, and the reservation is rebuilt from the
// survivors. Anything weaker lets a later settlement commit more than
// is held, which would mint goods at the buyer.
func (a *Agent) perishGivenOffers() {
	type commitment struct {
		off    *Offer
		amount float64
	}
	byGood := make(map[Good][]commitment)
	totals := make(map[Good]float64)
	for _, off := range a.givenOffers {
		if off.Status == OfferPerished {
			continue
		}
		good, amount := off.Good, off.Quantity
		if !off.Sell {
			good = off.Currency
			amount = off.Quantity * off.Price
		}
		byGood[good] = append(byGood[good], commitment{off: off, amount: amount})
		totals[good] += amount
	}
	for good, commits := range byGood {
		have := a.inv.Have(good)
		total := totals[good]
		if total > have+Epsilon {
			sort.Slice(commits, func(i, j int) bool {
				return commits[i].off.ID.Seq > commits[j].off.ID.Seq
			})
			for _, c := range commits {
				if total <= have+Epsilon {
					break
				}
				total -= c.amount
				c.off.Status = OfferPerished
				c.off.StatusRound = a.Round
				a.mb.push(Envelope{
					Sender:   a.addr,
					Receiver: c.off.Receiver,
					Topic:    TopicRetract,
					Payload:  retractPayload{ID: c.off.ID, Good: c.off.Good},
				})
			}
		}
		a.inv.rebaseReserved(good, total)
	}
}

// receiveRetract voids the local copy of an offer the sender could no
// longer back, removing it from the open tables and the polled set.
func (a *Agent) receiveRetract(p retractPayload) {
	for _, table := range [2]map[Good]map[OfferID]*Offer{a.openOffersBuy, a.openOffersSell} {
		if byID, ok := table[p.Good]; ok {
			if off, ok := byID[p.ID]; ok {
				off.Status = OfferPerished
				off.StatusRound = a.Round
				delete(byID, p.ID)
				if len(byID) == 0 {
					delete(table, p.Good)
				}
			}
		}
	}
	if off, ok := a.polled[p.ID]; ok {
		off.Status = OfferPerished
		off.StatusRound = a.Round
		delete(a.polled, p.ID)
	}
}

// collectOffers gathers all pending offers for good from both tables,
// optionally moving them into the polled set.
func (a *Agent) collectOffers(good Good, poll bool) []*Offer {
	var offers []*Offer
	for _, table := range [2]map[Good]map[OfferID]*Offer{a.openOffersBuy, a.openOffersSell} {
		byID := table[good]
		for id, off := range byID {
			offers = append(offers, off)
			if poll {
				a.polled[id] = off
				delete(byID, id)
			}
		}
		if poll && len(byID) == 0 {
			delete(table, good)
		}
	}
	return offers
}

// orderOffers shuffles then stable-sorts by price. The shuffle is the
// tie-break: equal-price offers must come back in random relative order,
// never in arrival or id order, or models inherit a systematic bias.
func (a *Agent) orderOffers(offers []*Offer, descending bool) {
	a.rng.Shuffle(len(offers), func(i, j int) { offers[i], offers[j] = offers[j], offers[i] })
	sort.SliceStable(offers, func(i, j int) bool {
		if descending {
			return offers[i].Price > offers[j].Price
		}
		return offers[i].Price < offers[j].Price
	})
}

// dropIncomingOffer removes an answered offer from the open tables and
// the polled set.
func (a *Agent) dropIncomingOffer(off *Offer) {
	delete(a.polled, off.ID)
	for _, table := range [2]map[Good]map[OfferID]*Offer{a.openOffersBuy, a.openOffersSell} {
		if byID, ok := table[off.Good]; ok {
			delete(byID, off.ID)
			if len(byID) == 0 {
				delete(table, off.Good)
			}
		}
	}
}
