package pr

import "github.com/p-blackswan/liftlog/internal/workout"

// Milestone is a fixed target weight celebrated the first time it is lifted.
type Milestone struct {
	Weight float64 `json:"weight" yaml:"weight"`
	Name   string  `json:"name" yaml:"name"`
}

// Ascending by weight.
var milestoneTables = map[string][]Milestone{
	workout.BenchPress: {
		{135, "One plate club"},
		{225, "Two plate club"},
		{315, "Three plate club"},
		{405, "Four plate club"},
	},
	workout.Squat: {
		{135, "One plate squat"},
		{225, "Two plate squat"},
		{315, "Three plate squat"},
		{405, "Four plate squat"},
		{495, "Five plate squat"},
	},
	workout.Deadlift: {
		{225, "Two plate pull"},
		{315, "Three plate pull"},
		{405, "Four plate pull"},
		{495, "Five plate pull"},
		{585, "Six plate pull"},
	},
	workout.OverheadPress: {
		{95, "Bar and quarters press"},
		{135, "One plate press"},
		{185, "Bodyweight press"},
		{225, "Two plate press"},
	},
}

// Milestones returns the milestone table for an exercise, nil if it has none.
func Milestones(exercise string) []Milestone {
	table := milestoneTables[workout.CanonicalExercise(exercise)]
	if table == nil {
		return nil
	}
	return append([]Milestone(nil), table...)
}

// firstCrossed returns the lowest milestone that weight reaches, that the
// previous best did not, and that was never celebrated. Only one milestone is
// reported even when a jump crosses several.
func firstCrossed(exercise string, weight float64, prev *Record, celebrated []string) *Milestone {
	for _, m := range milestoneTables[exercise] {
		if weight < m.Weight {
			break
		}
		if prev != nil && prev.Weight >= m.Weight {
			continue
		}
		if contains(celebrated, m.Name) {
			continue
		}
		found := m
		return &found
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
