// Package predictor implements PunkVM's pluggable branch-prediction
// subsystem: the five predictor modes (Static, Dynamic, GShare, Hybrid,
// Perceptron), the branch target buffer, and the return address stack.
// Structurally grounded on original_source/src/pvm/branch_predictor.rs;
// reimplemented idiomatically as a Go interface with one struct per
// mode rather than a Rust tagged enum.
package predictor

// Prediction is the binary outcome a predictor returns for a branch.
type Prediction int

const (
	NotTaken Prediction = iota
	Taken
)

// TwoBitState is the saturating counter state backing the Dynamic,
// GShare, and Hybrid predictors.
type TwoBitState int

const (
	StronglyNotTaken TwoBitState = iota
	WeaklyNotTaken
	WeaklyTaken
	StronglyTaken
)

// TwoBitCounter is a single saturating 2-bit predictor.
type TwoBitCounter struct {
	state TwoBitState
}

// NewTwoBitCounter creates a counter initialized to WeaklyNotTaken, the
// conventional cold-start bias.
func NewTwoBitCounter() TwoBitCounter {
	return TwoBitCounter{state: WeaklyNotTaken}
}

// NewTwoBitCounterBiased creates a counter initialized to a specific
// state (used by tests and by predictors that want a different cold
// bias).
func NewTwoBitCounterBiased(bias TwoBitState) TwoBitCounter {
	return TwoBitCounter{state: bias}
}

// Predict returns Taken iff the counter's state is WeaklyTaken or
// StronglyTaken.
func (c TwoBitCounter) Predict() Prediction {
	if c.state >= WeaklyTaken {
		return Taken
	}
	return NotTaken
}

// Update saturates the counter toward StronglyTaken on a taken outcome
// and toward StronglyNotTaken otherwise.
func (c *TwoBitCounter) Update(taken bool) {
	if taken {
		if c.state < StronglyTaken {
			c.state++
		}
	} else {
		if c.state > StronglyNotTaken {
			c.state--
		}
	}
}
