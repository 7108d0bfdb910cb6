package e1rm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/liftlog/internal/workout"
)

// DefaultMaxSessions bounds the per-exercise session list when serialized.
const DefaultMaxSessions = 50

// Entry is the best set of one session for one exercise.
type Entry struct {
	Date   string   `json:"date" yaml:"date"`
	Weight float64  `json:"weight" yaml:"weight"`
	Reps   int      `json:"reps" yaml:"reps"`
	RPE    *float64 `json:"rpe,omitempty" yaml:"rpe,omitempty"`
	E1RM   float64  `json:"e1rm" yaml:"e1rm"`
	Source string   `json:"source,omitempty" yaml:"source,omitempty"`
}

// ExerciseHistory is the ledger of one exercise. CurrentBest survives
// truncation of Sessions.
type ExerciseHistory struct {
	CurrentBest *Entry  `yaml:"current_best,omitempty"`
	Sessions    []Entry `yaml:"sessions"`
}

// History maps canonical exercise keys to their ledgers.
type History map[string]ExerciseHistory

// Best returns the current best e1RM of exercise, 0 when unknown.
func (h History) Best(exercise string) float64 {
	eh, ok := h[workout.CanonicalExercise(exercise)]
	if !ok || eh.CurrentBest == nil {
		return 0
	}
	return eh.CurrentBest.E1RM
}

// Clone deep-copies the history.
func (h History) Clone() History {
	out := make(History, len(h))
	for k, eh := range h {
		out[k] = eh.clone()
	}
	return out
}

func (eh ExerciseHistory) clone() ExerciseHistory {
	out := ExerciseHistory{Sessions: make([]Entry, len(eh.Sessions))}
	for i, e := range eh.Sessions {
		out.Sessions[i] = e.clone()
	}
	if eh.CurrentBest != nil {
		best := eh.CurrentBest.clone()
		out.CurrentBest = &best
	}
	return out
}

func (e Entry) clone() Entry {
	if e.RPE != nil {
		v := *e.RPE
		e.RPE = &v
	}
	return e
}

// Parse decodes and validates the ledger. CurrentBest is recomputed as the
// larger of the stored value and the best retained session so the two
// cannot drift apart.
func Parse(data []byte) (History, error) {
	h := History{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding e1rm history: %w", err)
	}

	out := make(History, len(h))
	for name, eh := range h {
		key := workout.CanonicalExercise(name)
		if key == "" {
			return nil, fmt.Errorf("e1rm history: empty exercise name")
		}
		for i, e := range eh.Sessions {
			if err := e.validate(); err != nil {
				return nil, fmt.Errorf("e1rm history %s session %d: %w", key, i+1, err)
			}
		}
		if eh.CurrentBest != nil {
			if err := eh.CurrentBest.validate(); err != nil {
				return nil, fmt.Errorf("e1rm history %s current_best: %w", key, err)
			}
		}
		merged := out[key]
		merged.Sessions = append(merged.Sessions, eh.Sessions...)
		merged.CurrentBest = maxEntry(merged.CurrentBest, eh.CurrentBest)
		for i := range eh.Sessions {
			merged.CurrentBest = maxEntry(merged.CurrentBest, &eh.Sessions[i])
		}
		out[key] = merged
	}
	for key, eh := range out {
		sort.SliceStable(eh.Sessions, func(i, j int) bool { return eh.Sessions[i].Date < eh.Sessions[j].Date })
		if eh.CurrentBest != nil {
			best := eh.CurrentBest.clone()
			eh.CurrentBest = &best
		}
		out[key] = eh
	}
	return out, nil
}

func (e Entry) validate() error {
	if _, err := workout.ParseDate(e.Date); err != nil {
		return err
	}
	if e.E1RM < 0 || e.Weight < 0 || e.Reps < 0 {
		return fmt.Errorf("negative value")
	}
	if e.RPE != nil && (*e.RPE < 1 || *e.RPE > 10) {
		return fmt.Errorf("rpe %.1f outside 1-10", *e.RPE)
	}
	return nil
}

func maxEntry(a, b *Entry) *Entry {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.E1RM > a.E1RM:
		return b
	}
	return a
}

// Marshal encodes the ledger keeping the most recent maxSessions sessions per
// exercise. maxSessions <= 0 means DefaultMaxSessions.
func Marshal(h History, maxSessions int) ([]byte, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	trimmed := make(History, len(h))
	for k, eh := range h {
		eh = eh.clone()
		if n := len(eh.Sessions); n > maxSessions {
			eh.Sessions = eh.Sessions[n-maxSessions:]
		}
		trimmed[k] = eh
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(trimmed); err != nil {
		return nil, fmt.Errorf("encoding e1rm history: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Since returns the sessions of exercise dated on or after since.
func (h History) Since(exercise string, since time.Time) []Entry {
	eh := h[workout.CanonicalExercise(exercise)]
	cutoff := since.Format(workout.DateLayout)
	var out []Entry
	for _, e := range eh.Sessions {
		if since.IsZero() || e.Date >= cutoff {
			out = append(out, e.clone())
		}
	}
	return out
}
