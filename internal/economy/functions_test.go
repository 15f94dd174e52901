package economy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/agora/internal/agents"
	"github.com/talgya/agora/internal/entropy"
	"github.com/talgya/agora/internal/sink"
)

const (
	labor   agents.Good = "labor"
	capital agents.Good = "capital"
	widgets agents.Good = "widgets"
)

func TestCobbDouglasKnownValues(t *testing.T) {
	fn := CobbDouglas{
		Output:     widgets,
		Multiplier: 2,
		Exponents:  map[agents.Good]float64{labor: 0.5, capital: 0.5},
	}

	out := fn.Evaluate(map[agents.Good]float64{labor: 4, capital: 9})
	assert.InDelta(t, 2*2*3, out[widgets], 1e-12)

	// A missing input zeroes the product.
	out = fn.Evaluate(map[agents.Good]float64{labor: 4})
	assert.Zero(t, out[widgets])
}

func TestCESKnownValues(t *testing.T) {
	// Rho = 1 degenerates to a weighted sum.
	fn := CES{
		Output:     widgets,
		Multiplier: 1,
		Gamma:      map[agents.Good]float64{labor: 0.25, capital: 0.75},
		Rho:        1,
	}
	out := fn.Evaluate(map[agents.Good]float64{labor: 8, capital: 4})
	assert.InDelta(t, 0.25*8+0.75*4, out[widgets], 1e-12)

	// Rho = 0.5 with symmetric weights and equal inputs: output equals
	// the common input level.
	fn = CES{
		Output:     widgets,
		Multiplier: 1,
		Gamma:      map[agents.Good]float64{labor: 0.5, capital: 0.5},
		Rho:        0.5,
	}
	out = fn.Evaluate(map[agents.Good]float64{labor: 9, capital: 9})
	assert.InDelta(t, 9, out[widgets], 1e-9)

	out = fn.Evaluate(map[agents.Good]float64{})
	assert.Zero(t, out[widgets])
}

func TestLeontiefKnownValues(t *testing.T) {
	// One widget takes 2 labor and 1 capital.
	fn := Leontief{
		Output:       widgets,
		Multiplier:   1,
		Coefficients: map[agents.Good]float64{labor: 2, capital: 1},
	}
	out := fn.Evaluate(map[agents.Good]float64{labor: 10, capital: 3})
	assert.InDelta(t, 3, out[widgets], 1e-12, "capital binds")

	out = fn.Evaluate(map[agents.Good]float64{labor: 4, capital: 99})
	assert.InDelta(t, 2, out[widgets], 1e-12, "labor binds")

	out = fn.Evaluate(map[agents.Good]float64{capital: 99})
	assert.Zero(t, out[widgets], "missing input halts the line")

	empty := Leontief{Output: widgets, Multiplier: 1}
	assert.Zero(t, empty.Evaluate(map[agents.Good]float64{labor: 5})[widgets])
}

func TestUtilityKnownValues(t *testing.T) {
	cd := CobbDouglasUtility{Exponents: map[agents.Good]float64{labor: 0.5, capital: 0.5}}
	assert.InDelta(t, 6, cd.Evaluate(map[agents.Good]float64{labor: 4, capital: 9}), 1e-12)

	lu := LogUtility{Weights: map[agents.Good]float64{widgets: 2}}
	assert.InDelta(t, 2*math.Log1p(3), lu.Evaluate(map[agents.Good]float64{widgets: 3}), 1e-12)
	assert.Zero(t, lu.Evaluate(map[agents.Good]float64{}), "empty bundle is worth nothing")
}

func newProducer(t *testing.T) *agents.Agent {
	t.Helper()
	addr := agents.Address{Group: "plant", ID: 0}
	return agents.NewAgent(addr, entropy.New(11), sink.Discard{}, agents.TradeLogOff)
}

func TestProduceConsumesByUsageShares(t *testing.T) {
	a := newProducer(t)
	a.Inventory().Create(labor, 4)
	a.Inventory().Create(capital, 9)

	fn := CobbDouglas{
		Output:     widgets,
		Multiplier: 1,
		Exponents:  map[agents.Good]float64{labor: 0.5, capital: 0.5},
		Shares:     map[agents.Good]float64{capital: 0.1}, // capital depreciates, labor is used up
	}
	out, err := a.Produce(fn, map[agents.Good]float64{labor: 4, capital: 9})
	require.NoError(t, err)
	assert.InDelta(t, 6, out[widgets], 1e-12)

	assert.InDelta(t, 6, a.Inventory().Have(widgets), 1e-12)
	assert.Zero(t, a.Inventory().Have(labor), "full share consumed")
	assert.InDelta(t, 9-0.9, a.Inventory().Have(capital), 1e-12, "only the depreciation share")
}

func TestProduceShortfallConsumesNothing(t *testing.T) {
	a := newProducer(t)
	a.Inventory().Create(labor, 1)

	fn := Leontief{Output: widgets, Multiplier: 1, Coefficients: map[agents.Good]float64{labor: 1}}
	_, err := a.Produce(fn, map[agents.Good]float64{labor: 5})
	var shortfall *agents.NotEnoughGoodsError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, labor, shortfall.Good)
	assert.InDelta(t, 4, shortfall.Shortfall, 1e-12)
	assert.InDelta(t, 1, a.Inventory().Have(labor), 1e-12, "inputs untouched on failure")
	assert.Zero(t, a.Inventory().Have(widgets))
}

func TestProduceRespectsReservations(t *testing.T) {
	a := newProducer(t)
	a.Inventory().Create(labor, 5)
	require.NoError(t, a.Inventory().Reserve(labor, 3))

	fn := Leontief{Output: widgets, Multiplier: 1, Coefficients: map[agents.Good]float64{labor: 1}}
	_, err := a.Produce(fn, map[agents.Good]float64{labor: 4})
	var shortfall *agents.NotEnoughGoodsError
	require.ErrorAs(t, err, &shortfall, "reserved stock is off limits")

	out, err := a.Produce(fn, map[agents.Good]float64{labor: 2})
	require.NoError(t, err)
	assert.InDelta(t, 2, out[widgets], 1e-12)
	assert.InDelta(t, 3, a.Inventory().Reserved(labor), 1e-12, "reservation untouched")
}

func TestConsumeDestroysBundle(t *testing.T) {
	a := newProducer(t)
	a.Inventory().Create(widgets, 3)

	u, err := a.Consume(LogUtility{Weights: map[agents.Good]float64{widgets: 1}},
		map[agents.Good]float64{widgets: 3})
	require.NoError(t, err)
	assert.InDelta(t, math.Log1p(3), u, 1e-12)
	assert.Zero(t, a.Inventory().Have(widgets))

	_, err = a.Consume(LogUtility{Weights: map[agents.Good]float64{widgets: 1}},
		map[agents.Good]float64{widgets: 1})
	var shortfall *agents.NotEnoughGoodsError
	assert.ErrorAs(t, err, &shortfall)
}
