package predictor

// Predictor is the common contract every branch-prediction mode
// satisfies (spec.md §4.5).
type Predictor interface {
	// Predict returns the predicted direction for a branch at pc.
	Predict(pc uint64) Prediction
	// Update trains the predictor with the branch's actual outcome and
	// the prediction that was made for it.
	Update(pc uint64, actualTaken bool, priorPrediction Prediction)
	// Accuracy returns the fraction of resolved branches predicted
	// correctly so far.
	Accuracy() float64
}

// Mode selects which predictor implementation a VM is constructed
// with.
type Mode int

const (
	ModeStatic Mode = iota
	ModeDynamic
	ModeGShare
	ModeHybrid
	ModePerceptron
)

// Config parameterizes the table sizes and history lengths of the
// dynamic predictor modes. Zero values are replaced with sane defaults
// by New.
type Config struct {
	TableBits        int // log2 of the pattern-table size for Dynamic
	GlobalHistoryBits int // GShare/Hybrid/Perceptron global history length; also log2 of GShare's table size
	LocalHistoryBits int // Hybrid/Perceptron local history length
	Perceptrons      int // number of perceptrons (Perceptron mode)
	PerceptronThreshold int
	BTBSize          int
	RASSize          int
}

// DefaultConfig returns the table sizes used when a caller does not
// override them.
func DefaultConfig() Config {
	return Config{
		TableBits:           12,
		GlobalHistoryBits:   12,
		LocalHistoryBits:    10,
		Perceptrons:         256,
		PerceptronThreshold: 20,
		BTBSize:             1024,
		RASSize:             64,
	}
}

func withDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.TableBits <= 0 {
		cfg.TableBits = d.TableBits
	}
	if cfg.GlobalHistoryBits <= 0 {
		cfg.GlobalHistoryBits = d.GlobalHistoryBits
	}
	if cfg.LocalHistoryBits <= 0 {
		cfg.LocalHistoryBits = d.LocalHistoryBits
	}
	if cfg.Perceptrons <= 0 {
		cfg.Perceptrons = d.Perceptrons
	}
	if cfg.PerceptronThreshold <= 0 {
		cfg.PerceptronThreshold = d.PerceptronThreshold
	}
	if cfg.BTBSize <= 0 {
		cfg.BTBSize = d.BTBSize
	}
	if cfg.RASSize <= 0 {
		cfg.RASSize = d.RASSize
	}
	return cfg
}

// New constructs the Predictor implementation for mode.
func New(mode Mode, cfg Config) Predictor {
	cfg = withDefaults(cfg)
	switch mode {
	case ModeStatic:
		return newStaticPredictor()
	case ModeDynamic:
		return newDynamicPredictor(cfg)
	case ModeGShare:
		return newGSharePredictor(cfg)
	case ModeHybrid:
		return newHybridPredictor(cfg)
	case ModePerceptron:
		return newOverridingPredictor(cfg)
	default:
		return newStaticPredictor()
	}
}

// accuracyTracker is embedded by every predictor implementation to
// share the correct/total bookkeeping behind Accuracy().
type accuracyTracker struct {
	correct uint64
	total   uint64
}

func (a *accuracyTracker) record(wasCorrect bool) {
	a.total++
	if wasCorrect {
		a.correct++
	}
}

func (a *accuracyTracker) Accuracy() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.correct) / float64(a.total)
}
