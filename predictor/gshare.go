package predictor

// gSharePredictor indexes a 2-bit counter table by (PC XOR global
// history), per spec.md §4.5.
type gSharePredictor struct {
	accuracyTracker
	table         []TwoBitCounter
	mask          uint64
	historyBits   int
	globalHistory uint64
}

func newGSharePredictor(cfg Config) *gSharePredictor {
	size := 1 << uint(cfg.GlobalHistoryBits)
	table := make([]TwoBitCounter, size)
	for i := range table {
		table[i] = NewTwoBitCounter()
	}
	return &gSharePredictor{
		table:       table,
		mask:        uint64(size - 1),
		historyBits: cfg.GlobalHistoryBits,
	}
}

func (p *gSharePredictor) index(pc uint64) uint64 {
	return (pc ^ p.globalHistory) & p.mask
}

func (p *gSharePredictor) Predict(pc uint64) Prediction {
	return p.table[p.index(pc)].Predict()
}

func (p *gSharePredictor) Update(pc uint64, actualTaken bool, prior Prediction) {
	idx := p.index(pc)
	p.table[idx].Update(actualTaken)
	correct := (prior == Taken) == actualTaken
	p.record(correct)

	p.globalHistory <<= 1
	if actualTaken {
		p.globalHistory |= 1
	}
	p.globalHistory &= p.mask
}
