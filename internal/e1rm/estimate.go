// Package e1rm estimates one-rep maxes with the Epley formula and keeps the
// per-exercise e1RM ledger at analytics/e1rm-history.yaml.
package e1rm

import "math"

// MaxReps is the largest rep count the formula is trusted for.
const MaxReps = 10

// Estimate returns the Epley e1RM of weight for reps, rounded to a whole
// unit. It is 0 outside 1..MaxReps reps.
func Estimate(weight float64, reps int) float64 {
	return epley(weight, float64(reps))
}

// EstimateWithRPE counts reps in reserve as extra reps: a set of reps at rpe
// is treated as reps + (10 - rpe) reps to failure. rpe is clamped to 1..10.
func EstimateWithRPE(weight float64, reps int, rpe float64) float64 {
	rpe = math.Max(1, math.Min(10, rpe))
	return epley(weight, float64(reps)+(10-rpe))
}

// EstimateSet applies EstimateWithRPE when the set carries an RPE.
func EstimateSet(weight float64, reps int, rpe *float64) float64 {
	if rpe != nil {
		return EstimateWithRPE(weight, reps, *rpe)
	}
	return Estimate(weight, reps)
}

func epley(weight, reps float64) float64 {
	if weight <= 0 || reps < 1 || reps > MaxReps {
		return 0
	}
	if reps == 1 {
		return math.Round(weight)
	}
	return math.Round(weight * (1 + reps/30))
}
