package agents

// ExpiringGood tracks an age-structured good as a fixed-length ring of
// per-age cohorts. New quantity enters the youngest cohort; Age shifts
// every cohort one slot and drops whatever reached the end of the ring.
type ExpiringGood struct {
	cohorts []float64 // index 0 = oldest
}

// NewExpiringGood creates a ring with the given lifetime in rounds.
// A lifetime below 1 is clamped to 1 (perishes after one aging).
func NewExpiringGood(lifetime int) *ExpiringGood {
	if lifetime < 1 {
		lifetime = 1
	}
	return &ExpiringGood{cohorts: make([]float64, lifetime)}
}

// Total returns the quantity summed over all cohorts.
func (e *ExpiringGood) Total() float64 {
	sum := 0.0
	for _, c := range e.cohorts {
		sum += c
	}
	return sum
}

// Add places qty into the youngest cohort.
func (e *ExpiringGood) Add(qty float64) {
	e.cohorts[len(e.cohorts)-1] += qty
}

// Remove takes qty out oldest-first and returns how much was actually
// removed (at most the total held).
func (e *ExpiringGood) Remove(qty float64) float64 {
	removed := 0.0
	for i := range e.cohorts {
		if qty <= 0 {
			break
		}
		take := e.cohorts[i]
		if take > qty {
			take = qty
		}
		e.cohorts[i] -= take
		qty -= take
		removed += take
	}
	return removed
}

// Age advances every cohort one slot, appends an empty youngest cohort,
// and returns the quantity lost from the dropped oldest cohort.
func (e *ExpiringGood) Age() float64 {
	lost := e.cohorts[0]
	copy(e.cohorts, e.cohorts[1:])
	e.cohorts[len(e.cohorts)-1] = 0
	return lost
}
