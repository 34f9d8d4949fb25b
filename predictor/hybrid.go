package predictor

// hybridPredictor is a tournament predictor combining a per-PC local
// two-level predictor with a global GShare predictor, selected per
// branch by a meta-selector counter indexed by the low 10 bits of the
// PC (spec.md §4.5).
type hybridPredictor struct {
	accuracyTracker

	localHistoryBits int
	localHistory     []uint16 // pc-indexed history register
	localPattern     []TwoBitCounter

	globalHistoryBits int
	globalHistory     uint64
	gsharePattern     []TwoBitCounter

	selector []TwoBitCounter // meta-selector, indexed by low 10 bits of PC

	lastLocalPred  Prediction
	lastGSharePred Prediction
}

const selectorBits = 10

func newHybridPredictor(cfg Config) *hybridPredictor {
	localSize := 1 << uint(cfg.LocalHistoryBits)
	globalSize := 1 << uint(cfg.GlobalHistoryBits)
	selectorSize := 1 << selectorBits

	h := &hybridPredictor{
		localHistoryBits:  cfg.LocalHistoryBits,
		localHistory:      make([]uint16, 1<<uint(cfg.LocalHistoryBits)),
		localPattern:      make([]TwoBitCounter, localSize),
		globalHistoryBits: cfg.GlobalHistoryBits,
		gsharePattern:     make([]TwoBitCounter, globalSize),
		selector:          make([]TwoBitCounter, selectorSize),
	}
	for i := range h.localPattern {
		h.localPattern[i] = NewTwoBitCounter()
	}
	for i := range h.gsharePattern {
		h.gsharePattern[i] = NewTwoBitCounter()
	}
	for i := range h.selector {
		// Bias the meta-selector toward gshare (state 3) on cold start,
		// matching the convention that global history outperforms a
		// cold local table.
		h.selector[i] = NewTwoBitCounterBiased(StronglyTaken)
	}
	return h
}

func (h *hybridPredictor) localHistoryIndex(pc uint64) uint64 {
	return pc & uint64(len(h.localHistory)-1)
}

func (h *hybridPredictor) localPatternIndex(pc uint64) uint64 {
	hist := h.localHistory[h.localHistoryIndex(pc)]
	return uint64(hist) & uint64(len(h.localPattern)-1)
}

func (h *hybridPredictor) gshareIndex(pc uint64) uint64 {
	return (pc ^ h.globalHistory) & uint64(len(h.gsharePattern)-1)
}

func (h *hybridPredictor) selectorIndex(pc uint64) uint64 {
	return pc & (1<<selectorBits - 1)
}

// Predict chooses between the local and gshare components based on
// the meta-selector's state for this PC.
func (h *hybridPredictor) Predict(pc uint64) Prediction {
	h.lastLocalPred = h.localPattern[h.localPatternIndex(pc)].Predict()
	h.lastGSharePred = h.gsharePattern[h.gshareIndex(pc)].Predict()

	if h.selector[h.selectorIndex(pc)].Predict() == Taken {
		return h.lastGSharePred
	}
	return h.lastLocalPred
}

// Update trains both components, the meta-selector, and the history
// registers.
func (h *hybridPredictor) Update(pc uint64, actualTaken bool, prior Prediction) {
	localCorrect := (h.lastLocalPred == Taken) == actualTaken
	gshareCorrect := (h.lastGSharePred == Taken) == actualTaken

	h.localPattern[h.localPatternIndex(pc)].Update(actualTaken)
	h.gsharePattern[h.gshareIndex(pc)].Update(actualTaken)

	// Only one of the two agreed with the outcome: steer the selector
	// toward whichever was right. If both agreed (or both were wrong),
	// leave the selector unchanged.
	if localCorrect != gshareCorrect {
		sel := &h.selector[h.selectorIndex(pc)]
		if localCorrect {
			sel.Update(false) // toward local (state 0)
		} else {
			sel.Update(true) // toward gshare (state 3)
		}
	}

	idx := h.localHistoryIndex(pc)
	h.localHistory[idx] <<= 1
	if actualTaken {
		h.localHistory[idx] |= 1
	}
	h.localHistory[idx] &= uint16(len(h.localPattern) - 1)

	h.globalHistory <<= 1
	if actualTaken {
		h.globalHistory |= 1
	}
	h.globalHistory &= uint64(len(h.gsharePattern) - 1)

	correct := (prior == Taken) == actualTaken
	h.record(correct)
}
