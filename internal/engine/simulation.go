// Package engine drives the round-based simulation: groups of agents,
// the subround scheduler, and the per-round bookkeeping that keeps
// execution simultaneous and reservations honest.
package engine

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/agora/internal/agents"
	"github.com/talgya/agora/internal/entropy"
	"github.com/talgya/agora/internal/sink"
)

// Simulation is the composition root of one run: configuration, groups,
// the scheduler, and the observation sink. A round is an ordered
// sequence of subrounds, each a Group.Do broadcast; AdvanceRound runs
// the per-agent round-begin hook between rounds.
type Simulation struct {
	RunID uuid.UUID

	cfg       Config
	tradeMode agents.TradeLogging
	rng       *entropy.Source
	sink      sink.Sink
	sched     scheduler
	groups    map[string]*Group

	perishable []agents.Good
	expiring   map[agents.Good]int

	round    int
	started  time.Time
	finished bool
}

// New creates a simulation from cfg, writing observations to sk (nil
// means discard). The effective seed is logged so unseeded runs can
// still be replayed.
func New(cfg Config, sk sink.Sink) (*Simulation, error) {
	return NewRun(uuid.New(), cfg, sk)
}

// NewRun is New with a caller-chosen run id, for callers that need the
// id before construction (the sink tags its rows with it).
func NewRun(runID uuid.UUID, cfg Config, sk sink.Sink) (*Simulation, error) {
	mode, err := cfg.tradeMode()
	if err != nil {
		return nil, err
	}
	if sk == nil {
		sk = sink.Discard{}
	}
	rng := entropy.New(cfg.Seed)

	var sched scheduler
	if cfg.Workers > 1 {
		sched = newPoolScheduler(cfg.Workers)
	} else {
		sched = newSerialScheduler()
	}

	s := &Simulation{
		RunID:     runID,
		cfg:       cfg,
		tradeMode: mode,
		rng:       rng,
		sink:      sk,
		sched:     sched,
		groups:    make(map[string]*Group),
		expiring:  make(map[agents.Good]int),
		started:   time.Now(),
	}
	slog.Info("simulation created",
		"run_id", s.RunID,
		"seed", rng.Seed(),
		"workers", cfg.Workers,
		"trade_logging", cfg.TradeLogging,
	)
	return s, nil
}

// DeclarePerishable marks a good as zeroed at every round boundary in
// every inventory built afterwards.
func (s *Simulation) DeclarePerishable(g agents.Good) {
	s.perishable = append(s.perishable, g)
}

// DeclareExpiring gives a good an age structure with the given lifetime
// in rounds in every inventory built afterwards.
func (s *Simulation) DeclareExpiring(g agents.Good, lifetime int) {
	s.expiring[g] = lifetime
}

// BuildAgents creates n agents in the named group, running setup on
// each to register its actions and endowments. Calling again with the
// same name extends the group with fresh ids.
func (s *Simulation) BuildAgents(name string, n int, setup func(*agents.Agent)) (*Group, error) {
	if n < 0 {
		return nil, fmt.Errorf("build agents %s: negative count %d", name, n)
	}
	g, ok := s.groups[name]
	if !ok {
		g = newGroup(name, s)
		s.groups[name] = g
	}
	start := nextID(g)
	for i := 0; i < n; i++ {
		addr := agents.Address{Group: name, ID: start + i}
		ag := agents.NewAgent(addr, s.rng.Derive(addrKey(addr)), s.sink, s.tradeMode)
		ag.Round = s.round
		for _, good := range s.perishable {
			ag.Inventory().SetPerishable(good)
		}
		for good, lifetime := range s.expiring {
			ag.Inventory().SetExpiring(good, lifetime)
		}
		if setup != nil {
			setup(ag)
		}
		s.sched.add(ag)
		g.append(addr)
	}
	slog.Info("agents built", "group", name, "count", n, "total", g.Len())
	return g, nil
}

// Group returns the named group, or nil if it was never built.
func (s *Simulation) Group(name string) *Group {
	return s.groups[name]
}

// Round returns the current round number.
func (s *Simulation) Round() int {
	return s.round
}

// AdvanceRound broadcasts the round-begin hook to every agent: pending
// confirmations are applied, the previous round's trade log is flushed,
// unanswered offers time out, and perishable and expiring goods age.
func (s *Simulation) AdvanceRound(t int) error {
	if _, err := s.sched.run(job{kind: jobBegin, round: t}); err != nil {
		return fmt.Errorf("advance round %d: %w", t, err)
	}
	s.round = t
	return nil
}

// CheckLostMessages fails if any agent still holds unread messages or
// unanswered incoming offers — a model bug where someone forgot to
// drain a topic they were sent on.
func (s *Simulation) CheckLostMessages() error {
	results, err := s.sched.run(job{kind: jobCheck})
	if err != nil {
		return err
	}
	for _, r := range results {
		counts, ok := r.Value.([2]int)
		if !ok {
			return fmt.Errorf("lost-message check: unexpected value %T", r.Value)
		}
		if counts[0] > 0 || counts[1] > 0 {
			return fmt.Errorf("lost messages at %s: %d unread messages, %d unanswered offers",
				r.Addr, counts[0], counts[1])
		}
	}
	return nil
}

// Finish flushes the final round's trade logs, runs the strict
// lost-message check when configured, stops the scheduler, and closes
// the sink exactly once. The simulation cannot be used afterwards.
func (s *Simulation) Finish() error {
	if s.finished {
		return fmt.Errorf("simulation already finished")
	}
	s.finished = true

	// One last begin-round flushes trade counters accumulated in the
	// final round and times out still-open offers.
	if _, err := s.sched.run(job{kind: jobBegin, round: s.round + 1}); err != nil {
		s.sched.stop()
		s.sink.Close()
		return fmt.Errorf("final flush: %w", err)
	}
	var checkErr error
	if s.cfg.CheckLostMessages {
		checkErr = s.CheckLostMessages()
	}
	s.sched.stop()
	if err := s.sink.Close(); err != nil {
		return fmt.Errorf("close sink: %w", err)
	}
	if checkErr != nil {
		return checkErr
	}
	slog.Info("simulation finished",
		"run_id", s.RunID,
		"rounds", s.round+1,
		"elapsed", time.Since(s.started).Round(time.Millisecond),
	)
	return nil
}

// nextID returns the next unused agent id for a group: one past the
// highest current member, so removed ids stay parked until the caller
// reuses them deliberately.
func nextID(g *Group) int {
	next := 0
	for _, addr := range g.addrs {
		if addr.ID >= next {
			next = addr.ID + 1
		}
	}
	return next
}

// addrKey hashes an address into the key for its derived random stream.
func addrKey(addr agents.Address) uint64 {
	h := fnv.New64a()
	h.Write([]byte(addr.Group))
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(addr.ID >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum64()
}
