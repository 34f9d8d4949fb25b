package predictor

import "testing"

func TestTwoBitCounterSaturation(t *testing.T) {
	c := NewTwoBitCounter()
	if c.Predict() != NotTaken {
		t.Fatalf("cold counter should predict NotTaken")
	}
	for i := 0; i < 4; i++ {
		c.Update(true)
	}
	if c.Predict() != Taken {
		t.Fatalf("counter saturated taken should predict Taken")
	}
	for i := 0; i < 4; i++ {
		c.Update(false)
	}
	if c.Predict() != NotTaken {
		t.Fatalf("counter saturated not-taken should predict NotTaken")
	}
}

func TestStaticPredictorAlwaysNotTaken(t *testing.T) {
	p := New(ModeStatic, Config{})
	for _, pc := range []uint64{0, 4, 1000} {
		if p.Predict(pc) != NotTaken {
			t.Fatalf("static predictor must always predict NotTaken")
		}
	}
}

func TestDynamicPredictorLearnsLoop(t *testing.T) {
	p := New(ModeDynamic, Config{})
	const pc = 0x1000
	for i := 0; i < 10; i++ {
		pred := p.Predict(pc)
		p.Update(pc, true, pred)
	}
	if p.Predict(pc) != Taken {
		t.Fatalf("dynamic predictor should learn an always-taken branch")
	}
	if acc := p.Accuracy(); acc <= 0.5 {
		t.Fatalf("expected high accuracy after convergence, got %f", acc)
	}
}

func TestGSharePredictorDistinguishesHistories(t *testing.T) {
	p := New(ModeGShare, Config{})
	const pc = 0x2000
	for i := 0; i < 50; i++ {
		taken := i%2 == 0
		pred := p.Predict(pc)
		p.Update(pc, taken, pred)
	}
	if p.Accuracy() < 0 {
		t.Fatalf("accuracy should never be negative")
	}
	// The last outcome (i=49) was not-taken; the history after it
	// indexes a counter trained only on taken outcomes.
	if p.Predict(pc) != Taken {
		t.Fatalf("gshare should predict Taken after a not-taken outcome in an alternating pattern")
	}
}

func TestHybridPredictorTournament(t *testing.T) {
	p := New(ModeHybrid, Config{})
	const pc = 0x3000
	for i := 0; i < 200; i++ {
		pred := p.Predict(pc)
		p.Update(pc, true, pred)
	}
	if p.Predict(pc) != Taken {
		t.Fatalf("hybrid predictor should converge to Taken for an always-taken branch")
	}
}

func TestPerceptronConvergesOnAlternatingPattern(t *testing.T) {
	pp := newPerceptronPredictor(DefaultConfig())
	const pc = 0x4000
	correct := 0
	const rounds = 400
	for i := 0; i < rounds; i++ {
		taken := i%2 == 0
		pred := pp.Predict(pc)
		if (pred == Taken) == taken {
			correct++
		}
		pp.Update(pc, taken, pred)
	}
	if correct < rounds/4 {
		t.Fatalf("perceptron should learn some signal from an alternating pattern, got %d/%d correct", correct, rounds)
	}
	// The last outcome (i=399) was not-taken; a converged perceptron
	// predicts the next one as taken.
	if pp.Predict(pc) != Taken {
		t.Fatalf("perceptron should predict Taken after a not-taken outcome in an alternating pattern")
	}
}

func TestOverridingPredictorTracksStatistics(t *testing.T) {
	p := New(ModePerceptron, Config{})
	op, ok := p.(*overridingPredictor)
	if !ok {
		t.Fatalf("ModePerceptron must construct an *overridingPredictor")
	}
	const pc = 0x5000
	for i := 0; i < 50; i++ {
		pred := op.Predict(pc)
		op.Update(pc, true, pred)
	}
	stats := op.Statistics()
	if stats.Total != 50 {
		t.Fatalf("expected 50 recorded updates, got %d", stats.Total)
	}
}

func TestBTBHitAfterUpdate(t *testing.T) {
	b := NewBTB(16)
	const pc = 0x100
	const target = 0x200
	if _, hit := b.Lookup(pc); hit {
		t.Fatalf("cold BTB should miss")
	}
	b.Update(pc, target, true)
	got, hit := b.Lookup(pc)
	if !hit || got != target {
		t.Fatalf("expected hit with target %x, got hit=%v target=%x", target, hit, got)
	}
}

func TestBTBConfidenceIncrementsOnRepeatedCorrectTarget(t *testing.T) {
	b := NewBTB(16)
	const pc = 0x100
	const target = 0x200
	for i := 0; i < 10; i++ {
		b.Update(pc, target, true)
	}
	if c := b.Confidence(pc); c != 137 {
		t.Fatalf("expected confidence 137 (cold insert at 128, then 9 correct-target increments), got %d", c)
	}
}

func TestBTBPenalizesWrongTargetButRetainsEntry(t *testing.T) {
	b := NewBTB(16)
	const pc = 0x100
	b.Update(pc, 0x200, true) // cold insert: confidence 128
	b.Update(pc, 0x200, true) // tag match, correct: confidence 129
	b.Update(pc, 0x300, true) // tag match, wrong target: confidence 119, entry retained
	got, hit := b.Lookup(pc)
	if !hit || got != 0x200 {
		t.Fatalf("a tag match with a wrong resolved target must retain the cached entry, got hit=%v target=%x", hit, got)
	}
	if c := b.Confidence(pc); c != 119 {
		t.Fatalf("expected confidence 119 (128 +1 -10), got %d", c)
	}
}

func TestBTBReplacesOnTrueTagMismatch(t *testing.T) {
	b := NewBTB(16)
	b.Update(0x100, 0x200, true) // cold insert for pc 0x100
	b.Update(0x110, 0x400, true) // same index (0x100 & 15 == 0x110 & 15), different tag: true mismatch
	got, hit := b.Lookup(0x110)
	if !hit || got != 0x400 {
		t.Fatalf("expected the conflicting tag to replace the entry with 0x400, got hit=%v target=%x", hit, got)
	}
	if c := b.Confidence(0x110); c != 128 {
		t.Fatalf("expected confidence 128 on a true tag-mismatch replace, got %d", c)
	}
	if _, hit := b.Lookup(0x100); hit {
		t.Fatalf("the old entry for 0x100 should have been evicted by the conflicting tag")
	}
}

func TestRASPushPopOrder(t *testing.T) {
	r := NewRAS(4)
	r.Push(0x10)
	r.Push(0x20)
	r.Push(0x30)
	if v, ok := r.Pop(); !ok || v != 0x30 {
		t.Fatalf("expected LIFO pop of 0x30, got %x ok=%v", v, ok)
	}
	if v, ok := r.Peek(); !ok || v != 0x20 {
		t.Fatalf("expected peek of 0x20, got %x ok=%v", v, ok)
	}
}

func TestRASCapacityDropsExcessPushes(t *testing.T) {
	r := NewRAS(2)
	r.Push(1)
	r.Push(2)
	r.Push(3) // dropped, stack is full
	if !r.IsFull() {
		t.Fatalf("expected RAS to report full at capacity")
	}
	v, _ := r.Pop()
	if v != 2 {
		t.Fatalf("expected top to be 2 (push of 3 was dropped), got %d", v)
	}
}

func TestRASEmptyPopReturnsFalse(t *testing.T) {
	r := NewRAS(2)
	if _, ok := r.Pop(); ok {
		t.Fatalf("pop on empty RAS should return ok=false")
	}
	if !r.IsEmpty() {
		t.Fatalf("fresh RAS should be empty")
	}
}
