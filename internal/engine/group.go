package engine

import (
	"fmt"

	"github.com/talgya/agora/internal/agents"
	"github.com/talgya/agora/internal/sink"
)

// Group is a named set of agent addresses that can be broadcast-invoked
// as a unit. A group does not own its agents (the scheduler's partitions
// do); it is an addressing view, so groups compose freely via Union and
// Select without moving any state.
type Group struct {
	name  string
	sim   *Simulation
	addrs []agents.Address
	index map[int]int // agent id → position in addrs
}

func newGroup(name string, sim *Simulation) *Group {
	return &Group{name: name, sim: sim, index: make(map[int]int)}
}

// Name returns the group's name.
func (g *Group) Name() string { return g.name }

// Len returns the number of member addresses.
func (g *Group) Len() int { return len(g.addrs) }

// Addresses returns a copy of the member addresses.
func (g *Group) Addresses() []agents.Address {
	out := make([]agents.Address, len(g.addrs))
	copy(out, g.addrs)
	return out
}

// Address returns the member address for one agent id.
func (g *Group) Address(id int) (agents.Address, bool) {
	pos, ok := g.index[id]
	if !ok {
		return agents.Address{}, false
	}
	return g.addrs[pos], true
}

func (g *Group) append(addr agents.Address) {
	g.index[addr.ID] = len(g.addrs)
	g.addrs = append(g.addrs, addr)
}

// Union returns a new group over the combined membership of both
// groups. The result is a view for broadcasting; it is not registered
// under a name of its own.
func (g *Group) Union(other *Group) *Group {
	u := &Group{name: g.name + "+" + other.name, sim: g.sim}
	seen := make(map[agents.Address]bool, len(g.addrs)+len(other.addrs))
	for _, addr := range g.addrs {
		seen[addr] = true
		u.addrs = append(u.addrs, addr)
	}
	for _, addr := range other.addrs {
		if !seen[addr] {
			u.addrs = append(u.addrs, addr)
		}
	}
	return u
}

// Select returns the sub-group holding just the given agent ids.
// Unknown ids are skipped.
func (g *Group) Select(ids ...int) *Group {
	sub := &Group{name: g.name, sim: g.sim, index: make(map[int]int)}
	for _, id := range ids {
		if pos, ok := g.index[id]; ok {
			sub.append(g.addrs[pos])
		}
	}
	return sub
}

// Remove detaches the agent id from this group's address set. The agent
// itself is parked, not destroyed: messages already addressed to it
// remain deliverable, and the id may be reused by a later build.
func (g *Group) Remove(id int) {
	pos, ok := g.index[id]
	if !ok {
		return
	}
	g.addrs = append(g.addrs[:pos], g.addrs[pos+1:]...)
	delete(g.index, id)
	for i := pos; i < len(g.addrs); i++ {
		g.index[g.addrs[i].ID] = i
	}
}

// Do broadcasts the named action to every member, waits for all of them
// at the barrier, delivers every message produced, and returns each
// agent's return value. Member execution order is unspecified.
func (g *Group) Do(command string) ([]Result, error) {
	if len(g.addrs) == 0 {
		return nil, nil
	}
	targets := make(map[agents.Address]bool, len(g.addrs))
	for _, addr := range g.addrs {
		targets[addr] = true
	}
	results, err := g.sim.sched.run(job{kind: jobAction, command: command, addrs: targets})
	if err != nil {
		return nil, fmt.Errorf("group %s: action %q: %w", g.name, command, err)
	}
	return results, nil
}

// AggregateSnapshot sums the given goods over the group's inventories
// and records the totals in the sink for the current round.
func (g *Group) AggregateSnapshot(goods ...agents.Good) error {
	if len(g.addrs) == 0 {
		return nil
	}
	targets := make(map[agents.Address]bool, len(g.addrs))
	for _, addr := range g.addrs {
		targets[addr] = true
	}
	results, err := g.sim.sched.run(job{kind: jobSnapshot, addrs: targets, goods: goods})
	if err != nil {
		return fmt.Errorf("group %s: snapshot: %w", g.name, err)
	}
	totals := make(map[string]float64, len(goods))
	for _, r := range results {
		data, ok := r.Value.(map[string]float64)
		if !ok {
			return fmt.Errorf("group %s: snapshot: unexpected value %T", g.name, r.Value)
		}
		for k, v := range data {
			totals[k] += v
		}
	}
	g.sim.sink.Put(sink.Aggregate{Round: g.sim.round, Group: g.name, Data: totals})
	return nil
}
