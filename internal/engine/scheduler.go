package engine

import (
	"fmt"

	"github.com/talgya/agora/internal/agents"
)

// The scheduler executes one named action against a set of agents and
// exchanges the resulting messages before the next action runs. One
// dispatch moves Idle → Dispatching → barrier → Delivering → Idle; the
// barrier-then-deliver shape is what makes execution "simultaneous":
// within one subround every agent acts on the same frozen view of its
// inbox, and nothing sent during the subround is visible before the
// next one.

// Result pairs an agent's address with its action return value.
type Result struct {
	Addr  agents.Address
	Value any
}

type jobKind uint8

const (
	jobAction   jobKind = iota // run a named action from the command table
	jobBegin                   // per-round begin hook
	jobSnapshot                // read inventory totals for goods
	jobCheck                   // count unread messages and open offers
)

type job struct {
	kind    jobKind
	command string
	round   int
	addrs   map[agents.Address]bool // nil targets every owned agent
	goods   []agents.Good           // jobSnapshot only
}

type scheduler interface {
	add(ag *agents.Agent)
	// run dispatches the job to every targeted agent, waits for all of
	// them, then routes every produced envelope into recipient inboxes.
	// The first agent error is returned after the barrier completes.
	run(j job) ([]Result, error)
	stop()
}

// executeOn runs one job against one agent. Shared by both schedulers.
func executeOn(ag *agents.Agent, j job) (any, error) {
	switch j.kind {
	case jobAction:
		return ag.Execute(j.command)
	case jobBegin:
		return nil, ag.BeginRound(j.round)
	case jobSnapshot:
		data := make(map[string]float64, len(j.goods))
		for _, g := range j.goods {
			data[string(g)] = ag.Inventory().Have(g)
		}
		return data, nil
	case jobCheck:
		msgs, offers := ag.Unresolved()
		return [2]int{msgs, offers}, nil
	}
	return nil, fmt.Errorf("unknown job kind %d", j.kind)
}

// serialScheduler runs every agent in one goroutine, in build order.
// It is the reference implementation of the dispatch contract and the
// default for Workers <= 1.
type serialScheduler struct {
	agents map[agents.Address]*agents.Agent
	order  []agents.Address
}

func newSerialScheduler() *serialScheduler {
	return &serialScheduler{agents: make(map[agents.Address]*agents.Agent)}
}

func (s *serialScheduler) add(ag *agents.Agent) {
	addr := ag.Address()
	if _, exists := s.agents[addr]; !exists {
		s.order = append(s.order, addr)
	}
	s.agents[addr] = ag
}

func (s *serialScheduler) run(j job) ([]Result, error) {
	var results []Result
	var outbox []agents.Envelope
	for _, addr := range s.order {
		if j.addrs != nil && !j.addrs[addr] {
			continue
		}
		ag := s.agents[addr]
		value, err := executeOn(ag, j)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Addr: addr, Value: value})
		outbox = append(outbox, ag.Mailbox().TakeOutbox()...)
	}
	if err := s.deliver(outbox); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *serialScheduler) deliver(envs []agents.Envelope) error {
	for _, env := range envs {
		rcpt, ok := s.agents[env.Receiver]
		if !ok {
			return fmt.Errorf("undeliverable message: %q from %s to unknown agent %s",
				env.Topic, env.Sender, env.Receiver)
		}
		rcpt.Mailbox().Deliver(env)
	}
	return nil
}

func (s *serialScheduler) stop() {}
