package agents

// Inventory is one agent's stock of goods with reservation tracking.
// Reservations earmark quantity against outstanding offers so the agent
// cannot commit the same goods twice while an answer is pending; they
// are purely local state, never visible to other agents.
//
// Invariant: for every good, reserved <= haves + Epsilon.
type Inventory struct {
	owner    Address
	haves    map[Good]float64
	reserved map[Good]float64

	perishable map[Good]bool
	expiring   map[Good]*ExpiringGood
}

// NewInventory creates an empty inventory owned by addr.
func NewInventory(addr Address) *Inventory {
	return &Inventory{
		owner:      addr,
		haves:      make(map[Good]float64),
		reserved:   make(map[Good]float64),
		perishable: make(map[Good]bool),
		expiring:   make(map[Good]*ExpiringGood),
	}
}

// Have returns the total quantity held, reserved or not.
func (inv *Inventory) Have(g Good) float64 {
	return inv.haves[g]
}

// Reserved returns the quantity earmarked against outstanding offers.
func (inv *Inventory) Reserved(g Good) float64 {
	return inv.reserved[g]
}

// NotReserved returns the quantity genuinely available for a new
// commitment: haves minus reserved, floored at zero.
func (inv *Inventory) NotReserved(g Good) float64 {
	free := inv.haves[g] - inv.reserved[g]
	if free < 0 {
		return 0
	}
	return free
}

// Goods returns the names of all goods with a nonzero entry.
func (inv *Inventory) Goods() []Good {
	out := make([]Good, 0, len(inv.haves))
	for g, qty := range inv.haves {
		if qty > Epsilon {
			out = append(out, g)
		}
	}
	return out
}

// Create synthesizes qty of g from nothing. This is the endowment
// primitive (labor, resource rents); it has no failure mode. Marginally
// negative quantities from float noise are treated as zero.
func (inv *Inventory) Create(g Good, qty float64) {
	if qty <= Epsilon {
		return
	}
	inv.haves[g] += qty
	if ring, ok := inv.expiring[g]; ok {
		ring.Add(qty)
	}
}

// Destroy removes qty of g. If fewer than qty are held (beyond Epsilon)
// nothing is removed and a NotEnoughGoodsError reports the shortfall.
func (inv *Inventory) Destroy(g Good, qty float64) error {
	if qty < 0 {
		qty = 0
	}
	have := inv.haves[g]
	if have < qty-Epsilon {
		return notEnough(inv.owner, g, qty-have)
	}
	if qty > have {
		qty = have // inside tolerance, snap to what is there
	}
	inv.remove(g, qty)
	return nil
}

// DestroyAll zeroes g and returns the quantity destroyed.
func (inv *Inventory) DestroyAll(g Good) float64 {
	qty := inv.haves[g]
	inv.remove(g, qty)
	return qty
}

// Reserve earmarks qty of g against an outstanding offer. Reserving
// beyond haves (past Epsilon) rolls back and reports the shortfall;
// an overshoot inside the tolerance clamps reserved down to haves.
func (inv *Inventory) Reserve(g Good, qty float64) error {
	inv.reserved[g] += qty
	if inv.reserved[g] > inv.haves[g]+Epsilon {
		inv.reserved[g] -= qty
		return notEnough(inv.owner, g, inv.reserved[g]+qty-inv.haves[g])
	}
	if inv.reserved[g] > inv.haves[g] {
		inv.reserved[g] = inv.haves[g]
	}
	return nil
}

// Rewind releases a reservation without touching haves, used when an
// offer is rejected or retracted.
func (inv *Inventory) Rewind(g Good, qty float64) {
	inv.reserved[g] -= qty
	if inv.reserved[g] < 0 {
		inv.reserved[g] = 0
	}
}

// Commit settles a reservation: the full committed quantity is released
// and the finally-transacted quantity leaves the inventory. final may be
// less than committed on a partial accept.
func (inv *Inventory) Commit(g Good, committed, final float64) {
	inv.Rewind(g, committed)
	if final > inv.haves[g] {
		final = inv.haves[g]
	}
	inv.remove(g, final)
}

// SetPerishable marks g as zeroed at every round boundary.
func (inv *Inventory) SetPerishable(g Good) {
	inv.perishable[g] = true
}

// SetExpiring gives g an age structure with the given lifetime in
// rounds. Quantity already held enters the youngest cohort.
func (inv *Inventory) SetExpiring(g Good, lifetime int) {
	ring := NewExpiringGood(lifetime)
	ring.Add(inv.haves[g])
	inv.expiring[g] = ring
}

// RoundEnd ages every expiring good one cohort and zeroes every
// perishable good. It returns the quantity lost per good, for logging.
// Reservations caught holding vanished goods are clamped; the offers
// behind them are the caller's problem (see Agent.BeginRound).
func (inv *Inventory) RoundEnd() map[Good]float64 {
	lost := make(map[Good]float64)
	for g, ring := range inv.expiring {
		gone := ring.Age()
		if gone > 0 {
			inv.haves[g] -= gone
			if inv.haves[g] < 0 {
				inv.haves[g] = 0
			}
			lost[g] += gone
		}
		inv.clampReserved(g)
	}
	for g := range inv.perishable {
		gone := inv.haves[g]
		if gone > 0 {
			lost[g] += gone
		}
		inv.haves[g] = 0
		inv.clampReserved(g)
	}
	return lost
}

// remove takes qty out of haves and, for expiring goods, out of the
// cohort ring oldest-first. qty must already be validated.
func (inv *Inventory) remove(g Good, qty float64) {
	inv.haves[g] -= qty
	if inv.haves[g] < 0 {
		inv.haves[g] = 0
	}
	if ring, ok := inv.expiring[g]; ok {
		ring.Remove(qty)
	}
}

// rebaseReserved sets the reservation for g outright, used when offers
// are voided at a round boundary and the earmark must be rebuilt from
// the surviving commitments.
func (inv *Inventory) rebaseReserved(g Good, qty float64) {
	if qty > inv.haves[g] {
		qty = inv.haves[g]
	}
	if qty < 0 {
		qty = 0
	}
	inv.reserved[g] = qty
}

func (inv *Inventory) clampReserved(g Good) {
	if inv.reserved[g] > inv.haves[g] {
		inv.reserved[g] = inv.haves[g]
	}
}
