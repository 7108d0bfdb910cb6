package main

import (
	"path/filepath"
	"testing"
	"time"

	"4d63.com/testcli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/liftlog/internal/e1rm"
	"github.com/p-blackswan/liftlog/internal/workout"
)

// setupMirror points the config at a fresh mirror directory.
func setupMirror(t *testing.T) string {
	dir := testcli.MkdirTemp(t)
	t.Setenv("MIRROR_DIR", dir)
	t.Setenv("LIFTLOG_CONFIG", "")
	return dir
}

func writeLog(t *testing.T, dir string, s workout.Session) {
	doc, err := workout.Render(s)
	require.NoError(t, err)
	testcli.WriteFile(t, filepath.Join(dir, filepath.FromSlash(workout.LogPath(s.Date))), []byte(doc))
}

func squat(date time.Time, w float64, rpe *float64) workout.Session {
	return workout.Session{
		Date:   date,
		Type:   "lower",
		Status: workout.StatusCompleted,
		Exercises: []workout.LoggedExercise{{
			Name: "Squat",
			Sets: []workout.LoggedSet{{Weight: w, Reps: 5, RPE: rpe}},
		}},
	}
}

func TestEstimate(t *testing.T) {
	exitCode, stdout, stderr := testcli.Main(t, []string{"liftctl", "--no-color", "estimate", "180", "5"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "", stderr)
	assert.Equal(t, "e1RM 210 (180 x 5)\n", stdout)

	exitCode, stdout, _ = testcli.Main(t, []string{"liftctl", "--no-color", "estimate", "180", "5", "--rpe", "8"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "e1RM 222 (180 x 5 @ 8)\n", stdout)
}

func TestEstimate_InvalidInput(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"estimate", "heavy", "5"}, `invalid weight "heavy"`},
		{[]string{"estimate", "180", "-1"}, `invalid reps "-1"`},
		{[]string{"estimate", "180", "5", "--rpe", "11"}, "rpe 11 outside 1-10"},
	}
	for _, tt := range tests {
		args := append([]string{"liftctl", "--no-color"}, tt.args...)
		exitCode, _, stderr := testcli.Main(t, args, nil, run)
		assert.Equal(t, 1, exitCode, tt.args)
		assert.Contains(t, stderr, tt.want)
	}
}

func TestDryRun_Trend(t *testing.T) {
	dir := setupMirror(t)

	var h e1rm.History
	h, _ = e1rm.RecordSession(squat(time.Date(2026, 10, 9, 0, 0, 0, 0, time.UTC), 300, nil).Exercises,
		time.Date(2026, 10, 9, 0, 0, 0, 0, time.UTC), "weeks/2026-W41/2026-10-09.md", h)
	h, _ = e1rm.RecordSession(squat(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), 330, nil).Exercises,
		time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), "weeks/2026-W42/2026-10-16.md", h)
	data, err := e1rm.Marshal(h, e1rm.DefaultMaxSessions)
	require.NoError(t, err)
	testcli.WriteFile(t, filepath.Join(dir, "analytics", "e1rm-history.yaml"), data)

	exitCode, stdout, stderr := testcli.Main(t, []string{"liftctl", "--no-color", "--dry-run", "trend", "squat"}, nil, run)
	assert.Equal(t, 0, exitCode, stderr)
	assert.Equal(t, "Squat: 350 to 385 (+10.0%, up)\n2 sessions from 2026-10-09 to 2026-10-16, 17.5 per week, best 385\n", stdout)

	exitCode, _, stderr = testcli.Main(t, []string{"liftctl", "--no-color", "--dry-run", "trend", "deadlift"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "fewer than two sessions")
}

func TestDryRun_RPE(t *testing.T) {
	dir := setupMirror(t)
	today := workout.Day(time.Now())
	for i, r := range []float64{7, 7.5, 8.5} {
		writeLog(t, dir, squat(today.AddDate(0, 0, -6+2*i), 225, workout.RPE(r)))
	}

	exitCode, stdout, stderr := testcli.Main(t, []string{"liftctl", "--no-color", "--dry-run", "rpe", "squat", "--days", "30"}, nil, run)
	assert.Equal(t, 0, exitCode, stderr)
	assert.Contains(t, stdout, "[warning] Squat at 225: RPE climbed from 7 to 8.5 over the last 3 sessions")

	exitCode, stdout, _ = testcli.Main(t, []string{"liftctl", "--no-color", "--dry-run", "rpe", "bench", "--days", "30"}, nil, run)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "no RPE insights for Bench Press in the last 30 days\n", stdout)
}

func TestDryRun_InspectAndSync(t *testing.T) {
	dir := setupMirror(t)
	writeLog(t, dir, squat(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), 300, nil))

	exitCode, stdout, stderr := testcli.Main(t, []string{"liftctl", "--no-color", "--dry-run", "inspect"}, nil, run)
	assert.Equal(t, 0, exitCode, stderr)
	assert.Equal(t, "no session branches need repair\n", stdout)

	exitCode, stdout, stderr = testcli.Main(t, []string{"liftctl", "--no-color", "--dry-run", "sync"}, nil, run)
	assert.Equal(t, 0, exitCode, stderr)
	assert.Equal(t, "mirror "+dir+" up to date (1 week documents)\n", stdout)
}

func TestDryRun_Repair(t *testing.T) {
	setupMirror(t)

	exitCode, _, stderr := testcli.Main(t, []string{"liftctl", "--no-color", "--dry-run", "repair", "push"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "not a session branch")

	exitCode, _, stderr = testcli.Main(t, []string{"liftctl", "--no-color", "--dry-run", "repair", "2026-10-16-push"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "resource not found")
}

func TestDryRun_NeedsMirror(t *testing.T) {
	t.Setenv("MIRROR_DIR", filepath.Join(testcli.MkdirTemp(t), "missing"))
	t.Setenv("LIFTLOG_CONFIG", "")

	exitCode, _, stderr := testcli.Main(t, []string{"liftctl", "--no-color", "--dry-run", "inspect"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "dry run needs a local mirror")
}

func TestRequiresRepositoryConfig(t *testing.T) {
	setupMirror(t)
	t.Setenv("GITHUB_OWNER", "")
	t.Setenv("GITHUB_REPO", "")

	exitCode, _, stderr := testcli.Main(t, []string{"liftctl", "--no-color", "inspect"}, nil, run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "GITHUB_OWNER and GITHUB_REPO are required")
}
