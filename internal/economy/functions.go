// Package economy provides the standard production and utility
// functions models reach for: Cobb-Douglas, CES, and Leontief. Each is
// a plain value implementing the interfaces in the agents package.
package economy

import (
	"math"

	"github.com/talgya/agora/internal/agents"
)

// CobbDouglas produces Multiplier * Π input^exponent of Output.
type CobbDouglas struct {
	Output     agents.Good
	Multiplier float64
	Exponents  map[agents.Good]float64
	Shares     map[agents.Good]float64 // usage shares; nil means all inputs consumed
}

// Evaluate computes the Cobb-Douglas output for the given inputs.
// Inputs without an exponent contribute nothing and are ignored.
func (f CobbDouglas) Evaluate(inputs map[agents.Good]float64) map[agents.Good]float64 {
	out := f.Multiplier
	for g, e := range f.Exponents {
		out *= math.Pow(inputs[g], e)
	}
	if math.IsNaN(out) || out < 0 {
		out = 0
	}
	return map[agents.Good]float64{f.Output: out}
}

func (f CobbDouglas) UsageShares() map[agents.Good]float64 {
	return f.Shares
}

// CES produces Multiplier * (Σ gamma_g * input^Rho)^(1/Rho) of Output.
// Rho must be nonzero and at most 1.
type CES struct {
	Output     agents.Good
	Multiplier float64
	Gamma      map[agents.Good]float64
	Rho        float64
	Shares     map[agents.Good]float64
}

func (f CES) Evaluate(inputs map[agents.Good]float64) map[agents.Good]float64 {
	sum := 0.0
	for g, gamma := range f.Gamma {
		sum += gamma * math.Pow(inputs[g], f.Rho)
	}
	out := 0.0
	if sum > 0 {
		out = f.Multiplier * math.Pow(sum, 1/f.Rho)
	}
	if math.IsNaN(out) || out < 0 {
		out = 0
	}
	return map[agents.Good]float64{f.Output: out}
}

func (f CES) UsageShares() map[agents.Good]float64 {
	return f.Shares
}

// Leontief produces Multiplier * min(input_g / Coefficients_g) of
// Output: fixed proportions, no substitution.
type Leontief struct {
	Output       agents.Good
	Multiplier   float64
	Coefficients map[agents.Good]float64 // units of input required per unit of output
	Shares       map[agents.Good]float64
}

func (f Leontief) Evaluate(inputs map[agents.Good]float64) map[agents.Good]float64 {
	out := math.Inf(1)
	for g, coeff := range f.Coefficients {
		if coeff <= 0 {
			continue
		}
		ratio := inputs[g] / coeff
		if ratio < out {
			out = ratio
		}
	}
	if math.IsInf(out, 1) || math.IsNaN(out) || out < 0 {
		out = 0
	}
	return map[agents.Good]float64{f.Output: out * f.Multiplier}
}

func (f Leontief) UsageShares() map[agents.Good]float64 {
	return f.Shares
}

// CobbDouglasUtility is the consumption-side Cobb-Douglas:
// u = Π input^exponent.
type CobbDouglasUtility struct {
	Exponents map[agents.Good]float64
}

func (f CobbDouglasUtility) Evaluate(inputs map[agents.Good]float64) float64 {
	u := 1.0
	for g, e := range f.Exponents {
		u *= math.Pow(inputs[g], e)
	}
	if math.IsNaN(u) || u < 0 {
		return 0
	}
	return u
}

// LogUtility is Σ weight_g * ln(1 + input_g), a safe default for demo
// models: zero consumption yields zero utility instead of -Inf.
type LogUtility struct {
	Weights map[agents.Good]float64
}

func (f LogUtility) Evaluate(inputs map[agents.Good]float64) float64 {
	u := 0.0
	for g, w := range f.Weights {
		u += w * math.Log1p(inputs[g])
	}
	if math.IsNaN(u) || u < 0 {
		return 0
	}
	return u
}
