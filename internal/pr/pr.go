// Package pr detects personal records and plate milestones and maintains the
// prs.yaml ledger. Every function is pure: ledgers passed in are never
// modified.
package pr

import (
	"fmt"
	"math"

	"github.com/p-blackswan/liftlog/internal/e1rm"
	"github.com/p-blackswan/liftlog/internal/workout"
)

// Type is the kind of record a set set.
type Type string

const (
	TypeWeight       Type = "weight"
	TypeReps         Type = "reps"
	TypeEstimated1RM Type = "estimated_1rm"
	TypeMilestone    Type = "milestone"
)

// Severity ranks celebrations: milestone > weight > reps > estimated_1rm.
func (t Type) Severity() int {
	switch t {
	case TypeMilestone:
		return 4
	case TypeWeight:
		return 3
	case TypeReps:
		return 2
	case TypeEstimated1RM:
		return 1
	}
	return 0
}

// Record is a best performance.
type Record struct {
	Weight       float64 `json:"weight" yaml:"weight"`
	Reps         int     `json:"reps" yaml:"reps"`
	Date         string  `json:"date,omitempty" yaml:"date,omitempty"`
	Estimated1RM float64 `json:"estimated_1rm" yaml:"estimated_1rm"`
}

// ExercisePR is the ledger entry of one exercise. History holds every
// superseded Current in order; Milestones every milestone celebrated.
type ExercisePR struct {
	Current    *Record  `json:"current,omitempty" yaml:"current,omitempty"`
	History    []Record `json:"history,omitempty" yaml:"history,omitempty"`
	Milestones []string `json:"milestones,omitempty" yaml:"milestones,omitempty"`
}

// Ledger maps canonical exercise keys to their records.
type Ledger map[string]ExercisePR

// Clone deep-copies the ledger.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, ex := range l {
		cp := ExercisePR{
			History:    append([]Record(nil), ex.History...),
			Milestones: append([]string(nil), ex.Milestones...),
		}
		if ex.Current != nil {
			cur := *ex.Current
			cp.Current = &cur
		}
		out[k] = cp
	}
	return out
}

// Celebration describes a new record.
type Celebration struct {
	Exercise     string     `json:"exercise"`
	Type         Type       `json:"type"`
	Weight       float64    `json:"weight"`
	Reps         int        `json:"reps"`
	Date         string     `json:"date,omitempty"`
	Estimated1RM float64    `json:"estimated_1rm"`
	Previous     *Record    `json:"previous,omitempty"`
	Milestone    *Milestone `json:"milestone,omitempty"`
	Message      string     `json:"message"`
}

// Evaluate checks a set of weight x reps against the ledger. It returns nil
// when the set is not a record.
func Evaluate(name string, weight float64, reps int, ledger Ledger) *Celebration {
	return evaluate(name, weight, reps, nil, "", ledger)
}

// EvaluateSet is Evaluate for a logged set, using the RPE-adjusted e1RM when
// the set has an RPE. Bodyweight sets are never records.
func EvaluateSet(name string, set workout.LoggedSet, date string, ledger Ledger) *Celebration {
	if set.Bodyweight {
		return nil
	}
	return evaluate(name, set.Weight, set.Reps, set.RPE, date, ledger)
}

func evaluate(name string, weight float64, reps int, rpe *float64, date string, ledger Ledger) *Celebration {
	key := workout.CanonicalExercise(name)
	if key == "" || weight <= 0 || reps < 1 {
		return nil
	}
	est := e1rm.EstimateSet(weight, reps, rpe)
	entry := ledger[key]
	cur := entry.Current

	var typ Type
	switch {
	case cur == nil, weight > cur.Weight:
		typ = TypeWeight
	case weight == cur.Weight && reps > cur.Reps:
		typ = TypeReps
	case est > cur.Estimated1RM:
		typ = TypeEstimated1RM
	default:
		return nil
	}

	c := &Celebration{
		Exercise:     key,
		Type:         typ,
		Weight:       weight,
		Reps:         reps,
		Date:         date,
		Estimated1RM: est,
	}
	if cur != nil {
		prev := *cur
		c.Previous = &prev
	}
	if typ == TypeWeight {
		if m := firstCrossed(key, weight, cur, entry.Milestones); m != nil {
			c.Type = TypeMilestone
			c.Milestone = m
		}
	}
	c.Message = message(c)
	return c
}

func message(c *Celebration) string {
	name := workout.DisplayName(c.Exercise)
	set := fmt.Sprintf("%s x %d", num(c.Weight), c.Reps)
	prev := c.Previous

	switch c.Type {
	case TypeMilestone:
		if prev == nil {
			return fmt.Sprintf("%s! %s %s", c.Milestone.Name, name, set)
		}
		return fmt.Sprintf("%s! %s %s (+%s over %s)", c.Milestone.Name, name, set, num(c.Weight-prev.Weight), num(prev.Weight))
	case TypeWeight:
		if prev == nil {
			return fmt.Sprintf("First %s record: %s", name, set)
		}
		return fmt.Sprintf("%s weight PR: %s (+%s over %s)", name, set, num(c.Weight-prev.Weight), num(prev.Weight))
	case TypeReps:
		return fmt.Sprintf("%s rep PR: %s (+%d reps at %s)", name, set, c.Reps-prev.Reps, num(c.Weight))
	default:
		return fmt.Sprintf("%s e1RM PR: %s from %s (+%s over %s)", name, num(c.Estimated1RM), set,
			num(c.Estimated1RM-prev.Estimated1RM), num(prev.Estimated1RM))
	}
}

func num(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

// Apply returns a new ledger with the celebration recorded: the old current
// record is appended to history, then replaced. A nil celebration returns a
// copy of the ledger.
func Apply(ledger Ledger, c *Celebration) Ledger {
	out := ledger.Clone()
	if c == nil {
		return out
	}
	entry := out[c.Exercise]
	if entry.Current != nil {
		entry.History = append(entry.History, *entry.Current)
	}
	entry.Current = &Record{Weight: c.Weight, Reps: c.Reps, Date: c.Date, Estimated1RM: c.Estimated1RM}
	if c.Milestone != nil && !contains(entry.Milestones, c.Milestone.Name) {
		entry.Milestones = append(entry.Milestones, c.Milestone.Name)
	}
	out[c.Exercise] = entry
	return out
}

// EvaluateSession runs every set of a session through Evaluate in order,
// applying each record before the next set is checked. It returns the most
// severe celebration per exercise (the latest on ties) and the updated ledger.
func EvaluateSession(exercises []workout.LoggedExercise, date string, ledger Ledger) ([]Celebration, Ledger) {
	running := ledger.Clone()
	var order []string
	best := make(map[string]*Celebration)
	for _, ex := range exercises {
		for _, set := range ex.Sets {
			c := EvaluateSet(ex.Name, set, date, running)
			if c == nil {
				continue
			}
			running = Apply(running, c)
			prior, seen := best[c.Exercise]
			if !seen {
				order = append(order, c.Exercise)
			}
			if !seen || c.Type.Severity() >= prior.Type.Severity() {
				best[c.Exercise] = c
			}
		}
	}
	out := make([]Celebration, 0, len(order))
	for _, key := range order {
		out = append(out, *best[key])
	}
	return out, running
}
