package rubric

import (
	"math"

	"t3-curator/internal/cases"
)

type Verdict string

const (
	VerdictApproved    Verdict = "APPROVED"
	VerdictNeedsReview Verdict = "NEEDS_REVIEW"
	VerdictRejected    Verdict = "REJECTED"
)

// Priority levels, urgency-ordered: 1 demands action first.
const (
	PriorityUrgent = 1
	PriorityNormal = 2
	PriorityMinor  = 3
)

type Decision struct {
	Verdict  Verdict
	Priority int
}

// Policy maps a total score to a Decision. Default is the unified threshold
// table; PerLevel, when populated, overrides it for specific levels.
type Policy struct {
	Default  Band
	PerLevel map[cases.PearlLevel]Band
}

func (p Policy) band(level cases.PearlLevel) Band {
	if b, ok := p.PerLevel[level]; ok {
		return b
	}
	return p.Default
}

// Decide applies the threshold table. Scores in the open gap between the
// review ceiling and the approval floor reject, same as anything below the
// review floor.
func (p Policy) Decide(level cases.PearlLevel, total float64) Decision {
	b := p.band(level)
	switch {
	case total >= b.ApproveMin:
		return Decision{Verdict: VerdictApproved, Priority: PriorityMinor}
	case total >= b.ReviewMin && total <= b.ReviewMax:
		return Decision{Verdict: VerdictNeedsReview, Priority: PriorityNormal}
	default:
		return Decision{Verdict: VerdictRejected, Priority: PriorityUrgent}
	}
}

// totalTolerance is how far a scorer-reported total may drift from the
// recomputed category sum before we stop trusting it.
const totalTolerance = 0.01

// ReconcileTotal recomputes the total from the category scores. The
// scorer-reported total is used only when it agrees with the sum within
// tolerance, which keeps its rounding but discards internally inconsistent
// arithmetic.
func ReconcileTotal(scores map[string]float64, reported *float64) float64 {
	var sum float64
	for _, v := range scores {
		sum += v
	}
	if reported != nil && math.Abs(*reported-sum) <= totalTolerance {
		return *reported
	}
	return sum
}
