// Package rpe mines logged sets for strength-gain, fatigue and consistency
// signals and scores how hard a session was.
package rpe

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/p-blackswan/liftlog/internal/workout"
)

// DefaultWindowSessions is how many recent sessions Window keeps by default.
const DefaultWindowSessions = 20

const (
	fatigueSessions     = 3
	fatigueMinIncrease  = 0.5
	consistencySessions = 4
	consistencyMaxVar   = 0.3
)

// Point is one set with an effort rating.
type Point struct {
	Date   time.Time `json:"date"`
	Weight float64   `json:"weight"`
	Reps   int       `json:"reps"`
	RPE    float64   `json:"rpe"`
}

// Kind names the pattern an insight reports.
type Kind string

const (
	KindStrengthGain Kind = "strength_gain"
	KindFatigue      Kind = "fatigue"
	KindConsistency  Kind = "consistency"
)

// Severity says how the insight should be relayed.
type Severity string

const (
	SeverityPositive Severity = "positive"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Insight is one detected pattern.
type Insight struct {
	Exercise    string   `json:"exercise"`
	Kind        Kind     `json:"kind"`
	Severity    Severity `json:"severity"`
	Weight      float64  `json:"weight,omitempty"`
	RPE         float64  `json:"rpe,omitempty"`
	GainPercent float64  `json:"gain_percent,omitempty"`
	Message     string   `json:"message"`
}

// PointsFromSessions collects the RPE-rated sets of exercise from logged
// sessions, oldest first. Bodyweight sets and sets without RPE are skipped.
func PointsFromSessions(sessions []workout.Session, exercise string) []Point {
	key := workout.CanonicalExercise(exercise)
	var points []Point
	for _, s := range sessions {
		for _, ex := range s.Exercises {
			if ex.Key() != key {
				continue
			}
			for _, set := range ex.Sets {
				if set.Bodyweight || set.RPE == nil || set.Weight <= 0 {
					continue
				}
				points = append(points, Point{Date: workout.Day(s.Date), Weight: set.Weight, Reps: set.Reps, RPE: *set.RPE})
			}
		}
	}
	sortByDate(points)
	return points
}

// Window keeps the points of the most recent n distinct session dates.
func Window(points []Point, n int) []Point {
	if n <= 0 {
		n = DefaultWindowSessions
	}
	dates := sessionDates(points)
	if len(dates) <= n {
		return points
	}
	cutoff := dates[len(dates)-n]
	var out []Point
	for _, p := range points {
		if !p.Date.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// Analyze runs every detector over points. Insights are ordered strength
// gains first (by RPE), then fatigue and consistency (by weight).
func Analyze(exercise string, points []Point) []Insight {
	key := workout.CanonicalExercise(exercise)
	points = append([]Point(nil), points...)
	sortByDate(points)

	var out []Insight
	out = append(out, strengthGains(key, points)...)
	for _, w := range weights(points) {
		sessions := sessionMeans(points, w)
		if in, ok := fatigue(key, w, sessions); ok {
			out = append(out, in)
		}
		if in, ok := consistency(key, w, sessions); ok {
			out = append(out, in)
		}
	}
	return out
}

func strengthGains(key string, points []Point) []Insight {
	groups := make(map[float64][]Point)
	for _, p := range points {
		groups[p.RPE] = append(groups[p.RPE], p)
	}
	rpes := make([]float64, 0, len(groups))
	for r := range groups {
		rpes = append(rpes, r)
	}
	sort.Float64s(rpes)

	var out []Insight
	for _, r := range rpes {
		g := groups[r]
		first, last := g[0], g[len(g)-1]
		if len(g) < 2 || last.Weight <= first.Weight {
			continue
		}
		gain := round1((last.Weight - first.Weight) / first.Weight * 100)
		out = append(out, Insight{
			Exercise:    key,
			Kind:        KindStrengthGain,
			Severity:    SeverityPositive,
			Weight:      last.Weight,
			RPE:         r,
			GainPercent: gain,
			Message: fmt.Sprintf("%s: %s at RPE %s, up from %s (+%s%%)",
				workout.DisplayName(key), num(last.Weight), num(r), num(first.Weight), num(gain)),
		})
	}
	return out
}

type sessionRPE struct {
	date time.Time
	rpe  float64
}

// sessionMeans averages the RPE of every set at weight per session date,
// oldest first.
func sessionMeans(points []Point, weight float64) []sessionRPE {
	var out []sessionRPE
	var sum float64
	var n int
	flush := func(d time.Time) {
		if n > 0 {
			out = append(out, sessionRPE{date: d, rpe: sum / float64(n)})
		}
		sum, n = 0, 0
	}
	var current time.Time
	for _, p := range points {
		if p.Weight != weight {
			continue
		}
		if n > 0 && !p.Date.Equal(current) {
			flush(current)
		}
		current = p.Date
		sum += p.RPE
		n++
	}
	flush(current)
	return out
}

func fatigue(key string, weight float64, sessions []sessionRPE) (Insight, bool) {
	if len(sessions) < fatigueSessions {
		return Insight{}, false
	}
	recent := sessions[len(sessions)-fatigueSessions:]
	for i := 1; i < len(recent); i++ {
		if recent[i].rpe < recent[i-1].rpe {
			return Insight{}, false
		}
	}
	from, to := recent[0].rpe, recent[len(recent)-1].rpe
	if to-from < fatigueMinIncrease {
		return Insight{}, false
	}
	return Insight{
		Exercise: key,
		Kind:     KindFatigue,
		Severity: SeverityWarning,
		Weight:   weight,
		RPE:      round1(to),
		Message: fmt.Sprintf("%s at %s: RPE climbed from %s to %s over the last %d sessions",
			workout.DisplayName(key), num(weight), num(round1(from)), num(round1(to)), fatigueSessions),
	}, true
}

func consistency(key string, weight float64, sessions []sessionRPE) (Insight, bool) {
	if len(sessions) < consistencySessions {
		return Insight{}, false
	}
	recent := sessions[len(sessions)-consistencySessions:]
	var mean float64
	for _, s := range recent {
		mean += s.rpe
	}
	mean /= float64(len(recent))
	var variance float64
	for _, s := range recent {
		variance += (s.rpe - mean) * (s.rpe - mean)
	}
	variance /= float64(len(recent))
	if variance >= consistencyMaxVar {
		return Insight{}, false
	}
	return Insight{
		Exercise: key,
		Kind:     KindConsistency,
		Severity: SeverityInfo,
		Weight:   weight,
		RPE:      round1(mean),
		Message: fmt.Sprintf("%s at %s: RPE steady around %s over the last %d sessions",
			workout.DisplayName(key), num(weight), num(round1(mean)), consistencySessions),
	}, true
}

func weights(points []Point) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, p := range points {
		if !seen[p.Weight] {
			seen[p.Weight] = true
			out = append(out, p.Weight)
		}
	}
	sort.Float64s(out)
	return out
}

func sessionDates(points []Point) []time.Time {
	var out []time.Time
	for _, p := range points {
		if len(out) == 0 || !out[len(out)-1].Equal(p.Date) {
			out = append(out, p.Date)
		}
	}
	return out
}

func sortByDate(points []Point) {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func num(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
