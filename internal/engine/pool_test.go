package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/agora/internal/agents"
	"github.com/talgya/agora/internal/sink"
)

// runDraws runs one "draw" subround over n agents and returns each
// agent's random draw keyed by address.
func runDraws(t *testing.T, workers, n int) map[agents.Address]float64 {
	t.Helper()
	sim, err := New(Config{Workers: workers, Seed: 99, TradeLogging: "off"}, sink.Discard{})
	require.NoError(t, err)
	g, err := sim.BuildAgents("draw", n, func(a *agents.Agent) {
		a.RegisterAction("draw", func(a *agents.Agent) (any, error) {
			return a.Rand().Float64(), nil
		})
	})
	require.NoError(t, err)

	results, err := g.Do("draw")
	require.NoError(t, err)
	draws := make(map[agents.Address]float64, n)
	for _, r := range results {
		draws[r.Addr] = r.Value.(float64)
	}
	require.NoError(t, sim.Finish())
	return draws
}

// Random draws come from per-agent derived streams, so the same seed
// yields the same numbers no matter how the agents are sharded.
func TestDrawsIndependentOfWorkerCount(t *testing.T) {
	serial := runDraws(t, 1, 9)
	require.Len(t, serial, 9)
	for _, workers := range []int{2, 4, 16} {
		assert.Equal(t, serial, runDraws(t, workers, 9), "workers=%d", workers)
	}

	// Distinct agents draw from distinct streams.
	seen := make(map[float64]bool)
	for _, v := range serial {
		assert.False(t, seen[v])
		seen[v] = true
	}
}

// A full propose-accept-confirm cycle across two groups, run on the
// pool scheduler, must conserve goods and money.
func TestPooledTradeConservation(t *testing.T) {
	sim, err := New(Config{Workers: 3, Seed: 5, TradeLogging: "individual"}, sink.Discard{})
	require.NoError(t, err)

	var all []*agents.Agent
	const price = 2.0
	bakers, err := sim.BuildAgents("baker", 3, func(a *agents.Agent) {
		all = append(all, a)
		a.Inventory().Create(bread, 15)
		a.RegisterAction("offer", func(a *agents.Agent) (any, error) {
			buyer := agents.Address{Group: "eater", ID: a.ID()}
			_, err := a.Sell(buyer, bread, 4, price, agents.Money)
			return nil, err
		})
	})
	require.NoError(t, err)
	eaters, err := sim.BuildAgents("eater", 3, func(a *agents.Agent) {
		all = append(all, a)
		a.Inventory().Create(agents.Money, 30)
		a.RegisterAction("shop", func(a *agents.Agent) (any, error) {
			for _, off := range a.GetOffers(bread) {
				if _, err := a.Accept(off); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
	})
	require.NoError(t, err)

	for round := 1; round <= 3; round++ {
		_, err = bakers.Do("offer")
		require.NoError(t, err)
		_, err = eaters.Do("shop")
		require.NoError(t, err)
		require.NoError(t, sim.AdvanceRound(round))
	}

	totalBread, totalMoney := 0.0, 0.0
	for _, a := range all {
		totalBread += a.Inventory().Have(bread)
		totalMoney += a.Inventory().Have(agents.Money)
		assert.Zero(t, a.Inventory().Reserved(bread), "%s: no reservation leaks", a.Address())
		assert.Zero(t, a.Inventory().Reserved(agents.Money), "%s", a.Address())
	}
	assert.InDelta(t, 45.0, totalBread, 1e-9)
	assert.InDelta(t, 90.0, totalMoney, 1e-9)

	// Each eater bought 4 bread at 2 money for three rounds.
	for _, a := range all {
		if a.Group() == "eater" {
			assert.InDelta(t, 12.0, a.Inventory().Have(bread), 1e-9)
			assert.InDelta(t, 30.0-3*4*price, a.Inventory().Have(agents.Money), 1e-9)
		}
	}
	require.NoError(t, sim.Finish())
}

// An agent error inside one worker's partition must fail the whole
// dispatch and leave the pool usable for the next call.
func TestPoolFailFastKeepsBarrier(t *testing.T) {
	sim, err := New(Config{Workers: 2, Seed: 1, TradeLogging: "off"}, sink.Discard{})
	require.NoError(t, err)
	g, err := sim.BuildAgents("farm", 4, func(a *agents.Agent) {
		a.RegisterAction("fail_odd", func(a *agents.Agent) (any, error) {
			if a.ID()%2 == 1 {
				return nil, a.Inventory().Destroy(bread, 1)
			}
			return a.ID(), nil
		})
		a.RegisterAction("ok", func(a *agents.Agent) (any, error) {
			return a.ID(), nil
		})
	})
	require.NoError(t, err)

	_, err = g.Do("fail_odd")
	require.Error(t, err)

	// The barrier drained every worker, so the next dispatch is clean.
	results, err := g.Do("ok")
	require.NoError(t, err)
	assert.Len(t, results, 4)
	require.NoError(t, sim.Finish())
}
