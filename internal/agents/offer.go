package agents

import "fmt"

// OfferStatus tracks an offer through its lifecycle.
type OfferStatus uint8

const (
	OfferNew      OfferStatus = iota // created, not yet seen by the receiver
	OfferPending                     // delivered, awaiting accept or reject
	OfferAccepted                    // settled; FinalQuantity transacted
	OfferRejected                    // declined, explicitly or by timeout
	OfferPerished                    // committed goods vanished before settlement
)

func (s OfferStatus) String() string {
	switch s {
	case OfferNew:
		return "new"
	case OfferPending:
		return "pending"
	case OfferAccepted:
		return "accepted"
	case OfferRejected:
		return "rejected"
	case OfferPerished:
		return "perished"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether the status can no longer change.
func (s OfferStatus) Terminal() bool {
	return s == OfferAccepted || s == OfferRejected || s == OfferPerished
}

// OfferID is the process-wide-unique handle of one offer: the sender's
// address plus a per-sender monotonic counter. It is valid for lookup at
// both ends for at most the round in which the offer is answered.
type OfferID struct {
	Sender Address
	Seq    uint64
}

// Offer is a reserved trade commitment. The sender owns the original;
// the receiver only ever holds a copy of it, so the two sides never
// share mutable state.
type Offer struct {
	ID       OfferID
	Sender   Address
	Receiver Address
	Good     Good
	Quantity float64
	Price    float64
	Currency Good
	Sell     bool // true: sender supplies Good; false: sender bids for it

	Status        OfferStatus
	FinalQuantity float64
	Made          int // round the offer was created
	StatusRound   int // round the status last changed
}

// SellerBuyer resolves which end supplies the good.
func (o *Offer) SellerBuyer() (seller, buyer Address) {
	if o.Sell {
		return o.Sender, o.Receiver
	}
	return o.Receiver, o.Sender
}

// acceptPayload and rejectPayload travel back from the receiver to the
// offering agent to settle or release the sender's reservation.
type acceptPayload struct {
	ID       OfferID
	Quantity float64
}

type rejectPayload struct {
	ID OfferID
}

// retractPayload travels from the offering agent to the receiver when a
// still-open offer is voided at a round boundary, pulling the copy off
// the receiver's table before it can be accepted.
type retractPayload struct {
	ID   OfferID
	Good Good
}

// goodPayload carries a unilateral Give transfer.
type goodPayload struct {
	Good     Good
	Quantity float64
}
