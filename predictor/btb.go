package predictor

// btbEntry holds one direct-mapped slot of the branch target buffer.
type btbEntry struct {
	valid      bool
	tag        uint64
	target     uint64
	confidence uint8 // saturating 0-255
	lastUsed   uint64
}

// BTB is a direct-mapped branch target buffer: it caches the last
// resolved target for a branch PC and tracks a saturating confidence
// counter used to decide whether its cached target should be trusted,
// per spec.md §4.5.
type BTB struct {
	entries []btbEntry
	mask    uint64
	clock   uint64
	hits    uint64
	total   uint64
}

// NewBTB constructs a BTB with the given number of entries, rounded
// down to the previous power of two (minimum 1).
func NewBTB(size int) *BTB {
	if size <= 0 {
		size = 1
	}
	p := 1
	for p*2 <= size {
		p *= 2
	}
	return &BTB{entries: make([]btbEntry, p), mask: uint64(p - 1)}
}

func (b *BTB) index(pc uint64) uint64 {
	return pc & b.mask
}

// Lookup reports the cached target for pc, if any, and whether it was
// a valid hit (tag match).
func (b *BTB) Lookup(pc uint64) (target uint64, hit bool) {
	e := &b.entries[b.index(pc)]
	if !e.valid || e.tag != pc {
		return 0, false
	}
	b.clock++
	e.lastUsed = b.clock
	return e.target, true
}

// Update records the resolved target for pc and adjusts confidence per
// spec.md §4.5: if the tag matches, confidence += 1 on a correct
// repeat target or −= 10 (saturating at 0) on a wrong one, with the
// entry retained either way; on a true tag mismatch the entry is
// replaced with the new target at confidence 128. Also tallies whether
// the entry already cached for pc (if any) matched this resolution,
// feeding HitRate.
func (b *BTB) Update(pc, target uint64, taken bool) {
	e := &b.entries[b.index(pc)]
	b.clock++
	if !taken {
		return
	}
	b.total++
	switch {
	case e.valid && e.tag == pc && e.target == target:
		b.hits++
		if e.confidence < 255 {
			e.confidence++
		}
		e.lastUsed = b.clock

	case e.valid && e.tag == pc:
		if e.confidence >= 10 {
			e.confidence -= 10
		} else {
			e.confidence = 0
		}
		e.lastUsed = b.clock

	default:
		*e = btbEntry{valid: true, tag: pc, target: target, confidence: 128, lastUsed: b.clock}
	}
}

// HitRate returns the fraction of taken branches whose resolved target
// matched the BTB's previously cached entry for that PC.
func (b *BTB) HitRate() float64 {
	if b.total == 0 {
		return 0
	}
	return float64(b.hits) / float64(b.total)
}

// Confidence returns the saturating confidence counter for pc's
// entry, or 0 if there is no valid entry.
func (b *BTB) Confidence(pc uint64) uint8 {
	e := &b.entries[b.index(pc)]
	if !e.valid || e.tag != pc {
		return 0
	}
	return e.confidence
}
