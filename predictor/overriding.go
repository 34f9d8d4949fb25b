package predictor

// OverridingStats tracks the tournament between the fast GShare
// prediction issued at Fetch and the delayed perceptron prediction,
// per spec.md §4.5.
type OverridingStats struct {
	GShareCorrect     uint64
	PerceptronCorrect uint64
	Overrides         uint64
	OverridesHelped   uint64
	Total             uint64
}

// overridingPredictor issues GShare's prediction immediately, then
// consults the (conceptually slower) perceptron; when the two
// disagree, the perceptron's call overrides GShare's. Predict returns
// only the final call, so an override causes no separate pipeline
// flush.
type overridingPredictor struct {
	accuracyTracker
	gshare     *gSharePredictor
	perceptron *perceptronPredictor
	stats      OverridingStats

	lastGShare     Prediction
	lastPerceptron Prediction
	lastOverrode   bool
}

func newOverridingPredictor(cfg Config) *overridingPredictor {
	return &overridingPredictor{
		gshare:     newGSharePredictor(cfg),
		perceptron: newPerceptronPredictor(cfg),
	}
}

// Predict returns the final (post-override) prediction. The initial,
// fast GShare call is still recorded for statistics even though the
// perceptron's verdict is what Predict ultimately reports.
func (o *overridingPredictor) Predict(pc uint64) Prediction {
	o.lastGShare = o.gshare.Predict(pc)
	o.lastPerceptron = o.perceptron.Predict(pc)
	o.lastOverrode = o.lastGShare != o.lastPerceptron
	if o.lastOverrode {
		return o.lastPerceptron
	}
	return o.lastGShare
}

func (o *overridingPredictor) Update(pc uint64, actualTaken bool, prior Prediction) {
	o.gshare.Update(pc, actualTaken, o.lastGShare)
	o.perceptron.Update(pc, actualTaken, o.lastPerceptron)

	o.stats.Total++
	if (o.lastGShare == Taken) == actualTaken {
		o.stats.GShareCorrect++
	}
	if (o.lastPerceptron == Taken) == actualTaken {
		o.stats.PerceptronCorrect++
	}
	if o.lastOverrode {
		o.stats.Overrides++
		gshareRight := (o.lastGShare == Taken) == actualTaken
		perceptronRight := (o.lastPerceptron == Taken) == actualTaken
		if perceptronRight && !gshareRight {
			o.stats.OverridesHelped++
		}
	}

	correct := (prior == Taken) == actualTaken
	o.record(correct)
}

// Statistics returns a snapshot of the override bookkeeping.
func (o *overridingPredictor) Statistics() OverridingStats {
	return o.stats
}
