// Package workout holds the training-log domain types shared by the session
// manager and the analytics engines, plus the repository path conventions the
// external coaching agent also reads and writes.
package workout

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used in paths, branch names and ledgers.
const DateLayout = "2006-01-02"

// Status is the lifecycle state of a workout session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInProgress, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// LoggedSet is one performed set. Bodyweight sets carry Weight 0.
type LoggedSet struct {
	Reps       int      `json:"reps" yaml:"reps"`
	Weight     float64  `json:"weight" yaml:"weight"`
	Bodyweight bool     `json:"bodyweight,omitempty" yaml:"bodyweight,omitempty"`
	RPE        *float64 `json:"rpe,omitempty" yaml:"rpe,omitempty"`
}

// HasRPE reports whether the set was logged with an effort rating.
func (s LoggedSet) HasRPE() bool { return s.RPE != nil }

// LoggedExercise is an exercise with its sets in the order performed.
type LoggedExercise struct {
	Name  string      `json:"name" yaml:"name"`
	Sets  []LoggedSet `json:"sets" yaml:"sets"`
	Notes string      `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Key returns the canonical exercise key for the exercise name.
func (e LoggedExercise) Key() string { return CanonicalExercise(e.Name) }

// Session is one workout: a dated, typed list of exercises.
type Session struct {
	Date      time.Time        `json:"date"`
	Type      string           `json:"type"`
	Status    Status           `json:"status"`
	Exercises []LoggedExercise `json:"exercises"`
}

// DateString returns the session date formatted with DateLayout.
func (s Session) DateString() string { return s.Date.Format(DateLayout) }

// TotalSets counts every set across all exercises.
func (s Session) TotalSets() int {
	n := 0
	for _, ex := range s.Exercises {
		n += len(ex.Sets)
	}
	return n
}

// Clone returns a deep copy so callers can append without aliasing.
func (s Session) Clone() Session {
	out := s
	out.Exercises = make([]LoggedExercise, len(s.Exercises))
	for i, ex := range s.Exercises {
		cp := ex
		cp.Sets = make([]LoggedSet, len(ex.Sets))
		for j, set := range ex.Sets {
			cp.Sets[j] = set
			if set.RPE != nil {
				v := *set.RPE
				cp.Sets[j].RPE = &v
			}
		}
		out.Exercises[i] = cp
	}
	return out
}

// Validate checks the invariants a logged session must hold before it is stored.
func (s Session) Validate() error {
	if s.Date.IsZero() {
		return fmt.Errorf("session date is required")
	}
	if s.Type == "" {
		return fmt.Errorf("session type is required")
	}
	for _, ex := range s.Exercises {
		if ex.Name == "" {
			return fmt.Errorf("exercise name is required")
		}
		for i, set := range ex.Sets {
			if set.Reps < 0 {
				return fmt.Errorf("%s set %d: negative reps", ex.Name, i+1)
			}
			if set.Weight < 0 {
				return fmt.Errorf("%s set %d: negative weight", ex.Name, i+1)
			}
			if set.RPE != nil && (*set.RPE < 1 || *set.RPE > 10) {
				return fmt.Errorf("%s set %d: rpe %.1f outside 1-10", ex.Name, i+1, *set.RPE)
			}
		}
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD date into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return d, nil
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RPE returns a pointer to v, for building sets in code.
func RPE(v float64) *float64 { return &v }
