package predictor

// dynamicPredictor maintains one 2-bit saturating counter per PC,
// indexed by the low TableBits bits of the PC.
type dynamicPredictor struct {
	accuracyTracker
	table []TwoBitCounter
	mask  uint64
}

func newDynamicPredictor(cfg Config) *dynamicPredictor {
	size := 1 << uint(cfg.TableBits)
	table := make([]TwoBitCounter, size)
	for i := range table {
		table[i] = NewTwoBitCounter()
	}
	return &dynamicPredictor{table: table, mask: uint64(size - 1)}
}

func (p *dynamicPredictor) index(pc uint64) uint64 {
	return pc & p.mask
}

func (p *dynamicPredictor) Predict(pc uint64) Prediction {
	return p.table[p.index(pc)].Predict()
}

func (p *dynamicPredictor) Update(pc uint64, actualTaken bool, prior Prediction) {
	idx := p.index(pc)
	p.table[idx].Update(actualTaken)
	correct := (prior == Taken) == actualTaken
	p.record(correct)
}
