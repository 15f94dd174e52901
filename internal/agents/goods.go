// Package agents provides the agent data model: goods inventory with
// reservation tracking, the typed mailbox, and the trade-offer state
// machine every agent carries.
package agents

import "fmt"

// Good names a tradeable good. Goods are opaque to the engine; only the
// distinguished Money good has built-in meaning (it is the default
// currency of offers).
type Good string

// Money is the default currency good.
const Money Good = "money"

// Epsilon is the tolerance applied to every quantity comparison.
// Floating-point noise from repeated trades must never be promoted to a
// shortfall error, so all checks allow a slack of this size.
const Epsilon = 1e-11

// Address identifies an agent globally as (group, id). It is the routing
// key for all messages and offers.
type Address struct {
	Group string
	ID    int
}

func (a Address) String() string {
	return fmt.Sprintf("%s %d", a.Group, a.ID)
}
