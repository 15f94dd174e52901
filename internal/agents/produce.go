package agents

// ProductionFunction turns input goods into output goods. UsageShares
// declares which fraction of each input is consumed by one evaluation
// (capital goods carry a share below 1, intermediates a share of 1;
// inputs not listed are consumed fully). Implementations live in the
// economy package; the engine treats them as opaque pure functions.
type ProductionFunction interface {
	Evaluate(inputs map[Good]float64) map[Good]float64
	UsageShares() map[Good]float64
}

// UtilityFunction maps a consumption bundle to a utility level.
type UtilityFunction interface {
	Evaluate(inputs map[Good]float64) float64
}

// Produce runs fn over the given inputs, consuming them according to
// the function's usage shares and crediting the outputs. Inputs are
// checked against the unreserved stock first; any shortfall beyond
// Epsilon returns NotEnoughGoodsError with nothing consumed.
func (a *Agent) Produce(fn ProductionFunction, inputs map[Good]float64) (map[Good]float64, error) {
	checked := make(map[Good]float64, len(inputs))
	for g, qty := range inputs {
		available := a.inv.NotReserved(g)
		if qty > available+Epsilon {
			return nil, notEnough(a.addr, g, qty-available)
		}
		if qty > available {
			qty = available
		}
		checked[g] = qty
	}

	outputs := fn.Evaluate(checked)

	shares := fn.UsageShares()
	for g, qty := range checked {
		share, ok := shares[g]
		if !ok {
			share = 1
		}
		if err := a.inv.Destroy(g, qty*share); err != nil {
			return nil, err
		}
	}
	for g, qty := range outputs {
		a.inv.Create(g, qty)
	}
	return outputs, nil
}

// Consume destroys the given bundle and returns its utility under fn.
// The whole bundle must be on hand unreserved, or nothing is consumed.
func (a *Agent) Consume(fn UtilityFunction, inputs map[Good]float64) (float64, error) {
	checked := make(map[Good]float64, len(inputs))
	for g, qty := range inputs {
		available := a.inv.NotReserved(g)
		if qty > available+Epsilon {
			return 0, notEnough(a.addr, g, qty-available)
		}
		if qty > available {
			qty = available
		}
		checked[g] = qty
	}
	for g, qty := range checked {
		if err := a.inv.Destroy(g, qty); err != nil {
			return 0, err
		}
	}
	return fn.Evaluate(checked), nil
}
