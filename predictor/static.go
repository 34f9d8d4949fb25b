package predictor

// staticPredictor always predicts NotTaken, per spec.md §4.5.
type staticPredictor struct {
	accuracyTracker
}

func newStaticPredictor() *staticPredictor {
	return &staticPredictor{}
}

func (p *staticPredictor) Predict(pc uint64) Prediction {
	return NotTaken
}

func (p *staticPredictor) Update(pc uint64, actualTaken bool, prior Prediction) {
	p.record(!actualTaken)
}
