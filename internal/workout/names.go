package workout

import (
	"strings"
	"unicode"
)

// Canonical keys for the lifts the analytics engines know about.
const (
	Squat            = "squat"
	FrontSquat       = "front_squat"
	BenchPress       = "bench_press"
	InclineBench     = "incline_bench_press"
	Deadlift         = "deadlift"
	RomanianDeadlift = "romanian_deadlift"
	OverheadPress    = "overhead_press"
	BarbellRow       = "barbell_row"
	PullUp           = "pull_up"
)

var aliases = map[string]string{
	"ohp":               OverheadPress,
	"press":             OverheadPress,
	"overhead_press":    OverheadPress,
	"military_press":    OverheadPress,
	"shoulder_press":    OverheadPress,
	"strict_press":      OverheadPress,
	"bench":             BenchPress,
	"bp":                BenchPress,
	"bench_press":       BenchPress,
	"flat_bench":        BenchPress,
	"barbell_bench":     BenchPress,
	"incline_bench":     InclineBench,
	"incline_press":     InclineBench,
	"squat":             Squat,
	"squats":            Squat,
	"back_squat":        Squat,
	"front_squat":       FrontSquat,
	"deadlift":          Deadlift,
	"deadlifts":         Deadlift,
	"dl":                Deadlift,
	"conventional":      Deadlift,
	"rdl":               RomanianDeadlift,
	"romanian_deadlift": RomanianDeadlift,
	"row":               BarbellRow,
	"rows":              BarbellRow,
	"barbell_row":       BarbellRow,
	"bent_over_row":     BarbellRow,
	"pullup":            PullUp,
	"pullups":           PullUp,
	"pull_up":           PullUp,
	"pull_ups":          PullUp,
	"chin_up":           PullUp,
}

var compound = map[string]bool{
	Squat:            true,
	FrontSquat:       true,
	BenchPress:       true,
	InclineBench:     true,
	Deadlift:         true,
	RomanianDeadlift: true,
	OverheadPress:    true,
	BarbellRow:       true,
}

var displayNames = map[string]string{
	OverheadPress:    "Overhead Press",
	RomanianDeadlift: "Romanian Deadlift",
	PullUp:           "Pull-up",
}

// CanonicalExercise normalizes a free-form exercise name to a snake_case key,
// resolving known aliases: "OHP" and "Press" both become "overhead_press".
func CanonicalExercise(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	key := strings.TrimSuffix(b.String(), "_")
	if canon, ok := aliases[key]; ok {
		return canon
	}
	return key
}

// IsCompound reports whether the exercise is tracked by the e1RM engine.
func IsCompound(name string) bool {
	return compound[CanonicalExercise(name)]
}

// DisplayName turns a canonical key back into a readable title.
func DisplayName(key string) string {
	key = CanonicalExercise(key)
	if d, ok := displayNames[key]; ok {
		return d
	}
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
