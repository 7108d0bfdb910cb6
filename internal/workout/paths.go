package workout

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Fixed document paths shared with the coaching agent.
const (
	ProfilePath     = "profile.md"
	PRsPath         = "prs.yaml"
	E1RMHistoryPath = "analytics/e1rm-history.yaml"
	WeeksDir        = "weeks"
)

const inProgressSuffix = ".in-progress.md"

// ISOWeek formats the ISO-8601 week of t as "2026-W42".
func ISOWeek(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

// WeekDir returns "weeks/<ISO-week>" for the week containing t.
func WeekDir(t time.Time) string {
	return path.Join(WeeksDir, ISOWeek(t))
}

// PlanPath is the weekly plan written by the agent.
func PlanPath(t time.Time) string { return path.Join(WeekDir(t), "plan.md") }

// RetroPath is the weekly retrospective for the week containing t.
func RetroPath(t time.Time) string { return path.Join(WeekDir(t), "retro.md") }

// RetroPathForWeek is RetroPath keyed by an ISO week string.
func RetroPathForWeek(week string) string { return path.Join(WeeksDir, week, "retro.md") }

// LogPath is the permanent dated workout log.
func LogPath(t time.Time) string {
	return path.Join(WeekDir(t), t.Format(DateLayout)+".md")
}

// InProgressPath is where an open session lives on its branch until finalized.
func InProgressPath(t time.Time) string {
	return path.Join(WeekDir(t), t.Format(DateLayout)+inProgressSuffix)
}

// IsInProgressPath reports whether p names an in-progress document.
func IsInProgressPath(p string) bool {
	return strings.HasSuffix(p, inProgressSuffix)
}

// LogDate extracts the date from a dated workout log path such as
// "weeks/2026-W42/2026-10-16.md". ok is false for plans, retros and
// in-progress documents.
func LogDate(p string) (time.Time, bool) {
	base := path.Base(p)
	if IsInProgressPath(base) || !strings.HasSuffix(base, ".md") {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, strings.TrimSuffix(base, ".md"))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// ParseISOWeek returns the Monday starting the given "2026-W42" week.
func ParseISOWeek(week string) (time.Time, error) {
	var year, w int
	if _, err := fmt.Sscanf(week, "%d-W%d", &year, &w); err != nil {
		return time.Time{}, fmt.Errorf("parsing ISO week %q: %w", week, err)
	}
	if w < 1 || w > 53 {
		return time.Time{}, fmt.Errorf("parsing ISO week %q: week out of range", week)
	}
	// Jan 4th is always in week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (w-1)*7), nil
}
