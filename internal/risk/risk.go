// Package risk implements the heuristic risk scoring applied to every
// synthetic transaction.
//
// A transaction amount is compared against the account's historical average
// (or a fixed baseline when there is no history), jittered, occasionally
// bumped by a simulated geo/device anomaly and mapped onto a score in
// [0, 100]. The score then drives a three-way classification:
//
//	score < 70          Safe
//	70 <= score <= 90   Suspicious (verification required only above 70)
//	score > 90          High Risk, blocked
//
// The evaluator holds no state; randomness comes from an injected RandomSource.
package risk

import (
	"errors"
)

// Label is the human-readable classification of a risk score.
type Label string

const (
	LabelSafe       Label = "Safe"
	LabelSuspicious Label = "Suspicious"
	LabelHighRisk   Label = "High Risk"
)

// Decorated returns the label with the emoji suffix some clients display.
// The decoration carries no meaning.
func (l Label) Decorated() string {
	switch l {
	case LabelSafe:
		return string(l) + " ✅"
	case LabelSuspicious:
		return string(l) + " ⚠️"
	case LabelHighRisk:
		return string(l) + " 🚨"
	default:
		return string(l)
	}
}

// VerificationStatus tracks whether a transaction awaits user confirmation.
type VerificationStatus string

const (
	VerificationNone    VerificationStatus = "none"
	VerificationPending VerificationStatus = "pending"
)

// Score boundaries. The classification predicates partition [0, 100] at
// these values: blocked is score > BlockThreshold, verification is
// SuspiciousThreshold < score <= BlockThreshold.
const (
	SuspiciousThreshold = 70.0
	BlockThreshold      = 90.0
	MaxScore            = 100.0
)

// Heuristic constants for history-aware scoring.
const (
	DefaultBaselineAverage    = 200.0
	DefaultScaleFactor        = 20.0
	DefaultJitter             = 10.0
	DefaultFloor              = 5.0
	DefaultCeiling            = 95.0
	DefaultAnomalyProbability = 0.05
	DefaultAnomalyBonus       = 20.0
)

// Defaults for the configurable thresholds. Earlier iterations of the demo
// populated reasons above 80 and drew uniform scores from [0, 100].
const (
	DefaultReasonsThreshold = 75.0
	LegacyReasonsThreshold  = 80.0
	DefaultUniformMin       = 10.0
)

// DefaultReasons is the placeholder justification list attached to
// high-scoring transactions.
var DefaultReasons = []string{"Large amount", "Unusual merchant"}

var (
	ErrInvalidAmount  = errors.New("risk: amount must be a positive finite number")
	ErrInvalidHistory = errors.New("risk: historical average must be a non-negative finite number")
)

// Config selects between the scoring variants.
type Config struct {
	// HistoryAware scales the amount against the account's average. When
	// false the score is a uniform draw over [UniformMin, 100].
	HistoryAware bool
	UniformMin   float64

	// ReasonsThreshold: reasons are populated when score > ReasonsThreshold.
	ReasonsThreshold float64

	// SafeAtLowerBound labels a score of exactly 70 Safe instead of
	// Suspicious. Blocked/verification predicates are unaffected.
	SafeAtLowerBound bool

	// DecoratedLabels fills Assessment.DisplayLabel with the emoji variant.
	DecoratedLabels bool
}

// DefaultConfig returns the history-aware configuration.
func DefaultConfig() Config {
	return Config{
		HistoryAware:     true,
		UniformMin:       DefaultUniformMin,
		ReasonsThreshold: DefaultReasonsThreshold,
	}
}

// Input carries what the evaluator needs for one transaction.
type Input struct {
	Amount float64
	// HistoricalAverage is nil when the account has no prior transactions.
	HistoricalAverage *float64
}

// Assessment is the result of evaluating a single transaction.
type Assessment struct {
	Score                float64            `json:"risk_score"`
	Label                Label              `json:"risk_label"`
	DisplayLabel         string             `json:"display_label"`
	Blocked              bool               `json:"blocked"`
	VerificationRequired bool               `json:"verification_required"`
	VerificationStatus   VerificationStatus `json:"verification_status"`
	Reasons              []string           `json:"reasons"`
	Factors              map[string]float64 `json:"factors,omitempty"`
}
