package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/liftlog/internal/docstore"
	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/internal/workout"
)

var friday = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore("main")
	store.Seed(map[string]string{workout.ProfilePath: "# Profile\n"})
	return NewManager(store, nil, zerolog.Nop()), store
}

func bench(sets ...workout.LoggedSet) workout.LoggedExercise {
	return workout.LoggedExercise{Name: "Bench Press", Sets: sets}
}

func TestBranchName(t *testing.T) {
	assert.Equal(t, "session/2026-10-16-upper-body-push", BranchName(friday, "Upper Body  Push!"))
	assert.Equal(t, "session/2026-10-16-workout", BranchName(friday, "???"))

	date, slug, ok := ParseBranch("session/2026-10-16-upper-body-push")
	require.True(t, ok)
	assert.Equal(t, friday, date)
	assert.Equal(t, "upper-body-push", slug)

	for _, bad := range []string{"main", "session/", "session/2026-13-01-x", "session/2026-10-16", "feature/2026-10-16-x"} {
		_, _, ok := ParseBranch(bad)
		assert.False(t, ok, bad)
	}
}

func TestHandleFor(t *testing.T) {
	h, err := HandleFor("2026-10-16-push")
	require.NoError(t, err)
	assert.Equal(t, "session/2026-10-16-push", h.Branch)
	assert.Equal(t, friday, h.Date)
	assert.Equal(t, "weeks/2026-W42/2026-10-16.in-progress.md", h.Path)

	same, err := HandleFor("session/2026-10-16-push")
	require.NoError(t, err)
	assert.Equal(t, h, same)

	_, err = HandleFor("push")
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestOpen_ThenFindInProgress(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	h, err := m.Open(ctx, friday.Add(18*time.Hour), "Push")
	require.NoError(t, err)
	assert.Equal(t, "session/2026-10-16-push", h.Branch)
	assert.Equal(t, "weeks/2026-W42/2026-10-16.in-progress.md", h.Path)
	assert.NotEmpty(t, h.SHA)

	found, err := m.FindInProgress(ctx)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, h.Branch, found.Branch)
	assert.Equal(t, "Push", found.Type)

	_, err = store.Read(ctx, h.Path)
	assert.ErrorIs(t, err, perrors.ErrNotFound, "in-progress data stays off the base branch")
}

func TestFindInProgress_None(t *testing.T) {
	m, _ := newTestManager(t)
	h, err := m.FindInProgress(context.Background())
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestOpen_RejectsSecondSessionForDate(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	_, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)

	_, err = m.Open(ctx, friday, "Push")
	assert.ErrorIs(t, err, ErrSessionExists)

	_, err = m.Open(ctx, friday, "Legs")
	assert.ErrorIs(t, err, ErrSessionExists, "one open session per date")

	_, err = m.Open(ctx, friday.AddDate(0, 0, 1), "Legs")
	assert.NoError(t, err)
}

func TestOpen_RemovesBranchWhenWriteFails(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	store.FailNext("write", perrors.NewAPIError("github", 503, "unavailable"))

	_, err := m.Open(ctx, friday, "Push")
	require.ErrorIs(t, err, perrors.ErrUnavailable)

	branches, err := store.ListBranches(ctx, BranchPrefix)
	require.NoError(t, err)
	assert.Empty(t, branches)
}

func TestOpen_RequiresType(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Open(context.Background(), friday, "")
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	h, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)

	_, err = m.Append(ctx, h, bench(workout.LoggedSet{Reps: 5, Weight: 185, RPE: workout.RPE(7)}))
	require.NoError(t, err)
	_, err = m.Append(ctx, h, workout.LoggedExercise{Name: "OHP", Sets: []workout.LoggedSet{{Reps: 8, Weight: 95}}})
	require.NoError(t, err)
	s, err := m.Append(ctx, h, workout.LoggedExercise{Name: "bench", Sets: []workout.LoggedSet{{Reps: 5, Weight: 185, RPE: workout.RPE(8)}}})
	require.NoError(t, err)

	require.Len(t, s.Exercises, 2)
	assert.Len(t, s.Exercises[0].Sets, 2, "sets for the same lift are appended to it")
	assert.Equal(t, 8.0, *s.Exercises[0].Sets[1].RPE)

	loaded, err := m.Load(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.TotalSets())
	assert.Equal(t, workout.StatusInProgress, loaded.Status)
}

func TestAppend_SurfacesConflict(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	h, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)

	store.FailNext("write", fmt.Errorf("writing: %w", perrors.ErrConflict))
	_, err = m.Append(ctx, h, bench(workout.LoggedSet{Reps: 5, Weight: 185}))
	assert.ErrorIs(t, err, perrors.ErrConflict)
}

func TestAppend_RejectsInvalidSet(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	h, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)

	_, err = m.Append(ctx, h, bench(workout.LoggedSet{Reps: 5, Weight: 185, RPE: workout.RPE(11)}))
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	h, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)
	_, err = m.Append(ctx, h, bench(workout.LoggedSet{Reps: 5, Weight: 185}))
	require.NoError(t, err)

	res, err := m.Finalize(ctx, h, friday)
	require.NoError(t, err)
	assert.Equal(t, "weeks/2026-W42/2026-10-16.md", res.Path)
	assert.NotEmpty(t, res.MergeSHA)
	assert.Equal(t, workout.StatusCompleted, res.Session.Status)

	found, err := m.FindInProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, found)

	doc, err := store.Read(ctx, res.Path)
	require.NoError(t, err)
	s, err := workout.Parse(doc.Content)
	require.NoError(t, err)
	assert.Equal(t, workout.StatusCompleted, s.Status)
	assert.Equal(t, 1, s.TotalSets())

	branches, err := store.ListBranches(ctx, BranchPrefix)
	require.NoError(t, err)
	assert.Empty(t, branches)
}

func TestFinalize_FilesUnderFinalDateWeek(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	sunday := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	h, err := m.Open(ctx, sunday, "Legs")
	require.NoError(t, err)

	res, err := m.Finalize(ctx, h, sunday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "weeks/2026-W43/2026-10-19.md", res.Path)

	_, err = store.Read(ctx, res.Path)
	assert.NoError(t, err)
}

func TestFinalize_MergeFailureIsInconsistentAndRepairable(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	h, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)
	_, err = m.Append(ctx, h, bench(workout.LoggedSet{Reps: 5, Weight: 185}))
	require.NoError(t, err)

	store.FailNext("merge", perrors.NewAPIError("github", 502, "bad gateway"))
	_, err = m.Finalize(ctx, h, friday)
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrInconsistentState)

	var incErr *InconsistentStateError
	require.True(t, errors.As(err, &incErr))
	assert.Equal(t, "merge", incErr.Phase)

	found, err := m.FindInProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, found, "the in-progress document was already moved")

	anomalies, err := m.Inspect(ctx)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, FinalizedUnmerged, anomalies[0].Kind)
	assert.Equal(t, "weeks/2026-W42/2026-10-16.md", anomalies[0].FinalPath)

	res, err := m.Repair(ctx, h.Branch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Session.TotalSets())

	_, err = store.Read(ctx, "weeks/2026-W42/2026-10-16.md")
	require.NoError(t, err)
	anomalies, err = m.Inspect(ctx)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestFinalize_DeleteFailureLeavesDuplicate(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	h, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)

	store.FailNext("delete", perrors.NewAPIError("github", 500, "boom"))
	_, err = m.Finalize(ctx, h, friday)
	var incErr *InconsistentStateError
	require.True(t, errors.As(err, &incErr))
	assert.Equal(t, "move", incErr.Phase)

	anomalies, err := m.Inspect(ctx)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, DuplicateAfterMove, anomalies[0].Kind)

	_, err = m.Repair(ctx, h.Branch)
	require.NoError(t, err)

	_, err = store.Read(ctx, "weeks/2026-W42/2026-10-16.md")
	assert.NoError(t, err)
	_, err = store.Read(ctx, h.Path)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestFinalize_MergeFailureAfterLaterFinalDate(t *testing.T) {
	tests := []struct {
		name  string
		final time.Time
		path  string
	}{
		{"same week", friday.AddDate(0, 0, 2), "weeks/2026-W42/2026-10-18.md"},
		{"next week", friday.AddDate(0, 0, 4), "weeks/2026-W43/2026-10-20.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, store := newTestManager(t)
			h, err := m.Open(ctx, friday, "Push")
			require.NoError(t, err)
			_, err = m.Append(ctx, h, bench(workout.LoggedSet{Reps: 5, Weight: 185}))
			require.NoError(t, err)

			store.FailNext("merge", perrors.NewAPIError("github", 502, "bad gateway"))
			_, err = m.Finalize(ctx, h, tt.final)
			require.ErrorIs(t, err, perrors.ErrInconsistentState)

			anomalies, err := m.Inspect(ctx)
			require.NoError(t, err)
			require.Len(t, anomalies, 1)
			assert.Equal(t, FinalizedUnmerged, anomalies[0].Kind)
			assert.Equal(t, tt.path, anomalies[0].FinalPath)

			res, err := m.Repair(ctx, h.Branch)
			require.NoError(t, err)
			assert.Equal(t, tt.path, res.Path)
			assert.NotEmpty(t, res.MergeSHA)

			doc, err := store.Read(ctx, tt.path)
			require.NoError(t, err)
			s, err := workout.Parse(doc.Content)
			require.NoError(t, err)
			assert.Equal(t, 1, s.TotalSets())
		})
	}
}

func TestFinalize_WriteFailureLeavesSessionOpen(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	h, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)

	store.FailNext("write", perrors.NewAPIError("github", 503, "unavailable"))
	_, err = m.Finalize(ctx, h, friday)
	require.Error(t, err)
	assert.NotErrorIs(t, err, perrors.ErrInconsistentState)

	anomalies, err := m.Inspect(ctx)
	require.NoError(t, err)
	assert.Empty(t, anomalies)

	found, err := m.FindInProgress(ctx)
	require.NoError(t, err)
	require.NotNil(t, found)
	_, err = m.Append(ctx, found, bench(workout.LoggedSet{Reps: 5, Weight: 185}))
	require.NoError(t, err)

	res, err := m.Finalize(ctx, found, friday)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Session.TotalSets())
}

func TestRepair_DuplicateKeepsSetsLoggedAfterCopy(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	h, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)
	_, err = m.Append(ctx, h, bench(workout.LoggedSet{Reps: 5, Weight: 185}))
	require.NoError(t, err)

	store.FailNext("delete", perrors.NewAPIError("github", 500, "boom"))
	_, err = m.Finalize(ctx, h, friday.AddDate(0, 0, 3))
	require.ErrorIs(t, err, perrors.ErrInconsistentState)

	found, err := m.FindInProgress(ctx)
	require.NoError(t, err)
	require.NotNil(t, found)
	_, err = m.Append(ctx, found, bench(workout.LoggedSet{Reps: 3, Weight: 195}))
	require.NoError(t, err)

	anomalies, err := m.Inspect(ctx)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, DuplicateAfterMove, anomalies[0].Kind)
	assert.Equal(t, "weeks/2026-W43/2026-10-19.md", anomalies[0].FinalPath)

	res, err := m.Repair(ctx, h.Branch)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Session.TotalSets())
	assert.Equal(t, workout.StatusCompleted, res.Session.Status)

	_, err = store.Read(ctx, h.Path)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestInspect_CompletedButNotMoved(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	h, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)

	content, err := workout.Render(workout.Session{
		Date:      friday.AddDate(0, 0, 1),
		Type:      "Push",
		Status:    workout.StatusCompleted,
		Exercises: []workout.LoggedExercise{bench(workout.LoggedSet{Reps: 5, Weight: 185})},
	})
	require.NoError(t, err)
	_, err = store.Write(ctx, h.Path, content, h.SHA, "Complete session", docstore.OnBranch(h.Branch))
	require.NoError(t, err)

	found, err := m.FindInProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, found)

	anomalies, err := m.Inspect(ctx)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, CompletedUnmoved, anomalies[0].Kind)
	assert.Equal(t, "weeks/2026-W42/2026-10-17.md", anomalies[0].FinalPath)

	_, err = m.Open(ctx, friday, "Pull")
	assert.ErrorIs(t, err, ErrSessionExists)

	res, err := m.Repair(ctx, h.Branch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Session.TotalSets())
	_, err = store.Read(ctx, "weeks/2026-W42/2026-10-17.md")
	assert.NoError(t, err)
}

func TestRepair_RefusesDivergedBranch(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	branch := "session/2026-10-14-pull"
	_, err := store.CreateBranch(ctx, branch)
	require.NoError(t, err)
	_, err = store.Write(ctx, workout.PRsPath, "bench_press: {}\n", "", "hand edit", docstore.OnBranch(branch))
	require.NoError(t, err)

	anomalies, err := m.Inspect(ctx)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, Diverged, anomalies[0].Kind)
	assert.Equal(t, []string{"added prs.yaml"}, anomalies[0].Changed)

	_, err = m.Repair(ctx, branch)
	assert.ErrorIs(t, err, perrors.ErrInconsistentState)

	branches, err := store.ListBranches(ctx, branch)
	require.NoError(t, err)
	assert.Len(t, branches, 1, "a branch with changes is never deleted")
}

func TestInspect_StaleBranch(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	_, err := store.CreateBranch(ctx, "session/2026-10-14-pull")
	require.NoError(t, err)
	_, err = store.CreateBranch(ctx, "session/not-a-date")
	require.NoError(t, err)

	anomalies, err := m.Inspect(ctx)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, StaleBranch, anomalies[0].Kind)

	_, err = m.Repair(ctx, "session/2026-10-14-pull")
	require.NoError(t, err)
	branches, err := store.ListBranches(ctx, "session/2026")
	require.NoError(t, err)
	assert.Empty(t, branches)
}

func TestInspect_IgnoresOpenSessions(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	h, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)

	anomalies, err := m.Inspect(ctx)
	require.NoError(t, err)
	assert.Empty(t, anomalies)

	_, err = m.Repair(ctx, h.Branch)
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestAbandon(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	h, err := m.Open(ctx, friday, "Push")
	require.NoError(t, err)

	require.NoError(t, m.Abandon(ctx, h))

	found, err := m.FindInProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, found)
	_, err = store.Read(ctx, "weeks/2026-W42/2026-10-16.md")
	assert.ErrorIs(t, err, perrors.ErrNotFound)

	assert.ErrorIs(t, m.Abandon(ctx, h), perrors.ErrNotFound)
}
