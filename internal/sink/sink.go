// Package sink defines the contract between the simulation core and the
// observation sink that persists panel data, aggregates, and settled
// trades. The core only ever puts records and closes once; it never
// waits for the sink, so a slow writer cannot stall a round.
package sink

// Record is a tagged observation handed to a sink. The concrete types
// below are the only implementations.
type Record interface {
	isRecord()
}

// Panel is one agent's logged data for one subround.
type Panel struct {
	Group    string
	Agent    int
	Round    int
	Subround string
	Data     map[string]float64
}

// Aggregate is a group-level snapshot for one round.
type Aggregate struct {
	Round int
	Group string
	Data  map[string]float64
}

// TradeKey identifies one (good, seller, buyer, price) trade flow.
type TradeKey struct {
	Good   string
	Seller string
	Buyer  string
	Price  float64
}

// Trades carries the settled-trade volumes accumulated over one round.
type Trades struct {
	Round  int
	Counts map[TradeKey]float64
}

func (Panel) isRecord()     {}
func (Aggregate) isRecord() {}
func (Trades) isRecord()    {}

// Sink consumes records. Put must not block on downstream I/O beyond
// queueing; Close flushes and must be called exactly once, after which
// Put must not be called again.
type Sink interface {
	Put(Record)
	Close() error
}

// Discard is a Sink that drops everything. Zero value is ready to use.
type Discard struct{}

func (Discard) Put(Record)   {}
func (Discard) Close() error { return nil }
