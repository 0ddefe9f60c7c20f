package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

// Evaluator scores transactions. It is safe for concurrent use when its
// RandomSource is.
type Evaluator struct {
	cfg Config
	rng RandomSource
}

// NewEvaluator creates an evaluator. A nil rng falls back to a randomly
// seeded source.
func NewEvaluator(cfg Config, rng RandomSource) *Evaluator {
	if rng == nil {
		rng = NewRand(0)
	}
	return &Evaluator{cfg: cfg, rng: rng}
}

// Config returns the evaluator's configuration.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Evaluate scores a single transaction and derives its classification.
func (e *Evaluator) Evaluate(in Input) (*Assessment, error) {
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if in.HistoricalAverage != nil {
		avg := *in.HistoricalAverage
		if math.IsNaN(avg) || math.IsInf(avg, 0) || avg < 0 {
			return nil, ErrInvalidHistory
		}
	}

	var score float64
	var factors map[string]float64
	if e.cfg.HistoryAware {
		score, factors = e.historyScore(in)
	} else {
		lo := math.Max(0, e.cfg.UniformMin)
		score = Round2(e.rng.Uniform(lo, MaxScore))
		factors = map[string]float64{"uniform_min": lo}
	}

	a := e.Classify(score)
	a.Factors = factors
	return a, nil
}

// historyScore implements the ratio/jitter/anomaly heuristic.
func (e *Evaluator) historyScore(in Input) (float64, map[string]float64) {
	avg := DefaultBaselineAverage
	if in.HistoricalAverage != nil {
		avg = *in.HistoricalAverage
	}

	ratio := in.Amount / math.Max(1.0, avg) * DefaultScaleFactor
	jitter := e.rng.Uniform(-DefaultJitter, DefaultJitter)
	base := clamp(ratio+jitter, DefaultFloor, DefaultCeiling)

	var bonus float64
	if e.rng.Bernoulli(DefaultAnomalyProbability) {
		bonus = DefaultAnomalyBonus
	}

	score := Round2(math.Min(MaxScore, base+bonus))
	return score, map[string]float64{
		"baseline_avg":  avg,
		"ratio":         ratio,
		"jitter":        jitter,
		"anomaly_bonus": bonus,
	}
}

// Classify derives the label, enforcement flags and reasons for a score.
// The score is used as given; callers pass an already rounded value.
func (e *Evaluator) Classify(score float64) *Assessment {
	a := &Assessment{
		Score:                score,
		Label:                e.label(score),
		Blocked:              score > BlockThreshold,
		VerificationRequired: score > SuspiciousThreshold && score <= BlockThreshold,
		VerificationStatus:   VerificationNone,
		Reasons:              []string{},
	}
	if a.VerificationRequired {
		a.VerificationStatus = VerificationPending
	}
	if score > e.cfg.ReasonsThreshold {
		a.Reasons = append(a.Reasons, DefaultReasons...)
	}
	a.DisplayLabel = string(a.Label)
	if e.cfg.DecoratedLabels {
		a.DisplayLabel = a.Label.Decorated()
	}
	return a
}

func (e *Evaluator) label(score float64) Label {
	switch {
	case score > BlockThreshold:
		return LabelHighRisk
	case score > SuspiciousThreshold:
		return LabelSuspicious
	case score == SuspiciousThreshold && !e.cfg.SafeAtLowerBound:
		return LabelSuspicious
	default:
		return LabelSafe
	}
}

// Round2 rounds to 2 decimal places, halves away from zero. The input is
// taken at its shortest decimal form, so 2.675 becomes 2.68.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
