package e1rm

import (
	"fmt"
	"math"
	"time"

	"github.com/p-blackswan/liftlog/internal/workout"
)

// SessionUpdate is the entry recorded for one lift of a session.
type SessionUpdate struct {
	Exercise     string  `json:"exercise"`
	Entry        Entry   `json:"entry"`
	PreviousBest float64 `json:"previous_best"`
	IsPR         bool    `json:"is_pr"`
}

// SessionResult lists what RecordSession appended, in session order.
type SessionResult struct {
	Date    string          `json:"date"`
	Source  string          `json:"source,omitempty"`
	Updates []SessionUpdate `json:"updates"`
}

// PRs returns the updates that set a new best.
func (r SessionResult) PRs() []SessionUpdate {
	var out []SessionUpdate
	for _, u := range r.Updates {
		if u.IsPR {
			out = append(out, u)
		}
	}
	return out
}

// RecordSession adds the best-e1RM set of every compound lift in exercises to
// a copy of h. A session is identified by its date and source: recording it
// again replaces its earlier entries, so each exercise holds at most one
// entry per session. CurrentBest moves only on a strictly greater e1RM. The
// input history is not modified.
func RecordSession(exercises []workout.LoggedExercise, date time.Time, source string, h History) (History, SessionResult) {
	out := h.Clone()
	res := SessionResult{Date: date.Format(workout.DateLayout), Source: source}

	var order []string
	best := make(map[string]Entry)
	for _, ex := range exercises {
		key := ex.Key()
		if !workout.IsCompound(key) {
			continue
		}
		for _, set := range ex.Sets {
			if set.Bodyweight {
				continue
			}
			v := EstimateSet(set.Weight, set.Reps, set.RPE)
			if v <= 0 {
				continue
			}
			cur, seen := best[key]
			if !seen {
				order = append(order, key)
			}
			if !seen || v > cur.E1RM {
				e := Entry{Date: res.Date, Weight: set.Weight, Reps: set.Reps, E1RM: v, Source: source}
				if set.RPE != nil {
					rpe := *set.RPE
					e.RPE = &rpe
				}
				best[key] = e
			}
		}
	}

	for key, eh := range out {
		trimmed, ok := eh.withoutSession(res.Date, source)
		switch {
		case !ok:
		case len(trimmed.Sessions) == 0 && trimmed.CurrentBest == nil:
			delete(out, key)
		default:
			out[key] = trimmed
		}
	}

	for _, key := range order {
		e := best[key]
		eh := out[key]
		eh.Sessions = insertEntry(eh.Sessions, e)
		u := SessionUpdate{Exercise: key, Entry: e}
		if eh.CurrentBest != nil {
			u.PreviousBest = eh.CurrentBest.E1RM
		}
		if eh.CurrentBest == nil || e.E1RM > eh.CurrentBest.E1RM {
			cb := e.clone()
			eh.CurrentBest = &cb
			u.IsPR = true
		}
		out[key] = eh
		res.Updates = append(res.Updates, u)
	}
	return out, res
}

// withoutSession drops the entries recorded for the session at date and
// source. A CurrentBest set by that session falls back to the best retained
// entry.
func (eh ExerciseHistory) withoutSession(date, source string) (ExerciseHistory, bool) {
	kept := eh.Sessions[:0:0]
	for _, e := range eh.Sessions {
		if e.Date != date || e.Source != source {
			kept = append(kept, e)
		}
	}
	bestFromSession := eh.CurrentBest != nil && eh.CurrentBest.Date == date && eh.CurrentBest.Source == source
	if len(kept) == len(eh.Sessions) && !bestFromSession {
		return eh, false
	}
	eh.Sessions = kept
	if bestFromSession {
		eh.CurrentBest = nil
		for _, e := range kept {
			if eh.CurrentBest == nil || e.E1RM > eh.CurrentBest.E1RM {
				cb := e.clone()
				eh.CurrentBest = &cb
			}
		}
	}
	return eh, true
}

// insertEntry keeps sessions in date order; same-day entries keep their
// recording order.
func insertEntry(sessions []Entry, e Entry) []Entry {
	i := len(sessions)
	for i > 0 && sessions[i-1].Date > e.Date {
		i--
	}
	sessions = append(sessions, Entry{})
	copy(sessions[i+1:], sessions[i:])
	sessions[i] = e
	return sessions
}

// Direction summarizes a trend.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// flatBand is the percentage change treated as no change.
const flatBand = 1.0

// TrendReport describes e1RM movement over a period.
type TrendReport struct {
	Exercise      string    `json:"exercise"`
	Sessions      int       `json:"sessions"`
	StartDate     string    `json:"start_date"`
	EndDate       string    `json:"end_date"`
	Start         float64   `json:"start"`
	End           float64   `json:"end"`
	Change        float64   `json:"change"`
	PercentChange float64   `json:"percent_change"`
	PerWeek       float64   `json:"per_week"`
	CurrentBest   float64   `json:"current_best"`
	Direction     Direction `json:"direction"`
}

// Trend compares the first and last sessions of exercise since the given
// date. ok is false with fewer than two sessions.
func Trend(h History, exercise string, since time.Time) (TrendReport, bool) {
	key := workout.CanonicalExercise(exercise)
	entries := h.Since(key, since)
	if len(entries) < 2 {
		return TrendReport{}, false
	}
	first, last := entries[0], entries[len(entries)-1]
	r := TrendReport{
		Exercise:    key,
		Sessions:    len(entries),
		StartDate:   first.Date,
		EndDate:     last.Date,
		Start:       first.E1RM,
		End:         last.E1RM,
		Change:      last.E1RM - first.E1RM,
		CurrentBest: h.Best(key),
		Direction:   DirectionFlat,
	}
	if r.Start > 0 {
		r.PercentChange = round1(r.Change / r.Start * 100)
	}
	start, err1 := workout.ParseDate(first.Date)
	end, err2 := workout.ParseDate(last.Date)
	if err1 == nil && err2 == nil {
		if weeks := end.Sub(start).Hours() / (24 * 7); weeks > 0 {
			r.PerWeek = round1(r.Change / weeks)
		}
	}
	switch {
	case r.PercentChange > flatBand:
		r.Direction = DirectionUp
	case r.PercentChange < -flatBand:
		r.Direction = DirectionDown
	}
	return r, true
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// SummaryLines renders one human-readable line per update, for the agent to
// relay.
func SummaryLines(res SessionResult) []string {
	lines := make([]string, 0, len(res.Updates))
	for _, u := range res.Updates {
		e := u.Entry
		set := fmt.Sprintf("%s x %d", formatWeight(e.Weight), e.Reps)
		if e.RPE != nil {
			set += fmt.Sprintf(" @ %s", formatWeight(*e.RPE))
		}
		name := workout.DisplayName(u.Exercise)
		switch {
		case u.IsPR && u.PreviousBest == 0:
			lines = append(lines, fmt.Sprintf("%s: e1RM %s from %s (first recorded)", name, formatWeight(e.E1RM), set))
		case u.IsPR:
			lines = append(lines, fmt.Sprintf("%s: e1RM %s from %s, new best (+%s)", name, formatWeight(e.E1RM), set, formatWeight(e.E1RM-u.PreviousBest)))
		default:
			lines = append(lines, fmt.Sprintf("%s: e1RM %s from %s (best %s)", name, formatWeight(e.E1RM), set, formatWeight(u.PreviousBest)))
		}
	}
	return lines
}

func formatWeight(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
