package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/p-blackswan/liftlog/internal/docstore"
	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/internal/e1rm"
	"github.com/p-blackswan/liftlog/internal/rpe"
	"github.com/p-blackswan/liftlog/internal/workout"
)

const (
	retroTrendDays = 28
	retroRPEDays   = 42
)

// Retro is a written weekly retrospective.
type Retro struct {
	Week     string             `json:"week"`
	Path     string             `json:"path"`
	SHA      string             `json:"sha"`
	Sessions int                `json:"sessions"`
	Sets     int                `json:"sets"`
	Trends   []e1rm.TrendReport `json:"trends"`
	Insights []rpe.Insight      `json:"insights"`
	Content  string             `json:"content"`
}

// WeeklyRetro summarizes an ISO week ("2026-W42") and writes it to
// weeks/<week>/retro.md, replacing an earlier retro for the same week.
func (t *Tracker) WeeklyRetro(ctx context.Context, week string) (retro *Retro, err error) {
	started := time.Now()
	defer func() { t.metrics.ObserveJob("weekly_retro", started, err) }()

	if t.sessions == nil {
		return nil, fmt.Errorf("retro: %w: no session history configured", perrors.ErrUnavailable)
	}
	monday, err := workout.ParseISOWeek(week)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", perrors.ErrInvalidInput, err)
	}
	sunday := monday.AddDate(0, 0, 6)

	sessions, err := t.sessions.Week(week)
	if err != nil {
		return nil, err
	}
	recent, err := t.sessions.Sessions(sunday.AddDate(0, 0, -retroRPEDays), sunday)
	if err != nil {
		return nil, err
	}
	_, hist, err := t.readHistory(ctx)
	if err != nil {
		return nil, err
	}

	retro = &Retro{Week: week, Path: workout.RetroPathForWeek(week), Sessions: len(sessions)}
	lifts := liftsIn(sessions)
	for _, lift := range lifts {
		if tr, ok := e1rm.Trend(hist, lift, sunday.AddDate(0, 0, -retroTrendDays)); ok {
			retro.Trends = append(retro.Trends, tr)
		}
		points := rpe.Window(rpe.PointsFromSessions(recent, lift), rpe.DefaultWindowSessions)
		retro.Insights = append(retro.Insights, rpe.Analyze(lift, points)...)
	}
	for _, s := range sessions {
		retro.Sets += s.TotalSets()
	}
	retro.Content = renderRetro(week, sessions, retro)

	doc, err := docstore.ReadOrEmpty(ctx, t.store, retro.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", retro.Path, err)
	}
	retro.SHA, err = t.store.Write(ctx, retro.Path, retro.Content, doc.SHA, "Weekly retro "+week)
	if err != nil {
		return nil, fmt.Errorf("writing %s: %w", retro.Path, err)
	}
	t.logger.Info().Str("week", week).Int("sessions", retro.Sessions).Int("insights", len(retro.Insights)).Msg("weekly retro written")
	return retro, nil
}

// liftsIn returns the canonical keys of every exercise logged, sorted.
func liftsIn(sessions []workout.Session) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range sessions {
		for _, ex := range s.Exercises {
			if k := ex.Key(); k != "" && !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}

func renderRetro(week string, sessions []workout.Session, r *Retro) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Week %s retro\n\n", week)
	fmt.Fprintf(&b, "%d sessions, %d sets.\n\n## Sessions\n\n", r.Sessions, r.Sets)
	if len(sessions) == 0 {
		b.WriteString("No sessions logged.\n")
	}
	for _, s := range sessions {
		d := rpe.ScoreSession(s)
		fmt.Fprintf(&b, "- %s %s: %d sets, difficulty %d (%s)\n", s.Date.Format("Mon 2006-01-02"), s.Type, s.TotalSets(), d.Score, d.Bucket)
	}

	if len(r.Trends) > 0 {
		b.WriteString("\n## e1RM trends\n\n")
		for _, tr := range r.Trends {
			fmt.Fprintf(&b, "- %s: %s to %s (%+.1f%%, %s)\n", workout.DisplayName(tr.Exercise),
				trimFloat(tr.Start), trimFloat(tr.End), tr.PercentChange, tr.Direction)
		}
	}
	if len(r.Insights) > 0 {
		b.WriteString("\n## RPE signals\n\n")
		for _, in := range r.Insights {
			fmt.Fprintf(&b, "- [%s] %s\n", in.Severity, in.Message)
		}
	}
	return b.String()
}

func trimFloat(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", v), "0"), ".")
}
