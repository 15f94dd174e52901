package agents

import "fmt"

// NotEnoughGoodsError reports that an operation would have driven a
// good's available quantity negative beyond Epsilon. It is the one
// recoverable domain error: model code is expected to check for it with
// errors.As and retry with a smaller quantity. Every other error from
// this package is a model or engine bug and aborts the round.
type NotEnoughGoodsError struct {
	Agent     string
	Good      Good
	Shortfall float64
}

func (e *NotEnoughGoodsError) Error() string {
	return fmt.Sprintf("%s: not enough %s, short %g", e.Agent, e.Good, e.Shortfall)
}

func notEnough(owner Address, good Good, shortfall float64) error {
	return &NotEnoughGoodsError{Agent: owner.String(), Good: good, Shortfall: shortfall}
}
