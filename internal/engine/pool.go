package engine

import (
	"fmt"

	"github.com/talgya/agora/internal/agents"
)

// poolScheduler shards agents statically across a fixed set of worker
// goroutines. Agents are assigned round-robin at build time and never
// rebalanced, so every agent is owned by exactly one worker for the
// whole run. The driver goroutine is the only synchronization point:
// it waits for every worker to finish the current action before any
// envelope is routed, and routes deliveries back through the owning
// worker's job channel so agent state is only ever touched under a
// channel happens-before edge.
type poolScheduler struct {
	workers []*worker
	owner   map[agents.Address]int
	next    int
}

type worker struct {
	id     int
	jobs   chan workerJob
	agents map[agents.Address]*agents.Agent
	order  []agents.Address
}

type workerJob struct {
	job     job
	deliver []agents.Envelope // non-nil: delivery batch instead of a dispatch
	reply   chan workerReply
}

type workerReply struct {
	results []Result
	outbox  []agents.Envelope
	err     error
}

func newPoolScheduler(n int) *poolScheduler {
	p := &poolScheduler{
		workers: make([]*worker, n),
		owner:   make(map[agents.Address]int),
	}
	for i := range p.workers {
		w := &worker{
			id:     i,
			jobs:   make(chan workerJob),
			agents: make(map[agents.Address]*agents.Agent),
		}
		p.workers[i] = w
		go w.loop()
	}
	return p
}

// add assigns the agent to the next worker round-robin. Only the driver
// calls add, and only between dispatches, so the worker's map is never
// written while the worker reads it.
func (p *poolScheduler) add(ag *agents.Agent) {
	addr := ag.Address()
	if i, exists := p.owner[addr]; exists {
		p.workers[i].agents[addr] = ag
		return
	}
	w := p.workers[p.next%len(p.workers)]
	p.next++
	p.owner[addr] = w.id
	w.agents[addr] = ag
	w.order = append(w.order, addr)
}

func (p *poolScheduler) run(j job) ([]Result, error) {
	// Dispatching: every worker gets the job with its own target subset.
	replies := make([]chan workerReply, len(p.workers))
	for i, w := range p.workers {
		wj := workerJob{job: j, reply: make(chan workerReply, 1)}
		replies[i] = wj.reply
		w.jobs <- wj
	}

	// Barrier: wait for every worker before anything else happens, so a
	// failing sibling never lets a message leak mid-subround.
	var results []Result
	var outbox []agents.Envelope
	var firstErr error
	for _, reply := range replies {
		r := <-reply
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		results = append(results, r.results...)
		outbox = append(outbox, r.outbox...)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	// Delivering: route each envelope to its recipient's owning worker.
	batches := make([][]agents.Envelope, len(p.workers))
	for _, env := range outbox {
		i, ok := p.owner[env.Receiver]
		if !ok {
			return nil, fmt.Errorf("undeliverable message: %q from %s to unknown agent %s",
				env.Topic, env.Sender, env.Receiver)
		}
		batches[i] = append(batches[i], env)
	}
	for i, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		wj := workerJob{deliver: batch, reply: make(chan workerReply, 1)}
		p.workers[i].jobs <- wj
		if r := <-wj.reply; r.err != nil {
			return nil, r.err
		}
	}
	return results, nil
}

func (p *poolScheduler) stop() {
	for _, w := range p.workers {
		close(w.jobs)
	}
}

func (w *worker) loop() {
	for wj := range w.jobs {
		if wj.deliver != nil {
			for _, env := range wj.deliver {
				w.agents[env.Receiver].Mailbox().Deliver(env)
			}
			wj.reply <- workerReply{}
			continue
		}
		wj.reply <- w.execute(wj.job)
	}
}

// execute runs the job over this worker's partition. On an agent error
// the worker stops early; agents after it in the partition do not run
// that subround, matching the fail-fast, no-partial-recovery policy.
func (w *worker) execute(j job) workerReply {
	var r workerReply
	for _, addr := range w.order {
		if j.addrs != nil && !j.addrs[addr] {
			continue
		}
		ag := w.agents[addr]
		value, err := executeOn(ag, j)
		if err != nil {
			r.err = err
			return r
		}
		r.results = append(r.results, Result{Addr: addr, Value: value})
		r.outbox = append(r.outbox, ag.Mailbox().TakeOutbox()...)
	}
	return r
}
