package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/p-blackswan/liftlog/internal/docstore"
	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/internal/workout"
)

// AnomalyKind classifies a session branch left behind by an interrupted
// finalize.
type AnomalyKind string

const (
	// FinalizedUnmerged: the dated log exists on the branch, the in-progress
	// document is gone, and the branch was never merged.
	FinalizedUnmerged AnomalyKind = "finalized_unmerged"
	// DuplicateAfterMove: both the in-progress document and its dated copy exist.
	DuplicateAfterMove AnomalyKind = "duplicate_after_move"
	// CompletedUnmoved: the in-progress document is marked completed but no
	// dated copy was written.
	CompletedUnmoved AnomalyKind = "completed_unmoved"
	// StaleBranch: the branch holds nothing the base lacks.
	StaleBranch AnomalyKind = "stale_branch"
	// Diverged: the branch changed documents other than its own session log.
	// Repair refuses it.
	Diverged AnomalyKind = "diverged"
)

// Anomaly is one branch needing operator attention.
type Anomaly struct {
	Branch         string      `json:"branch"`
	Kind           AnomalyKind `json:"kind"`
	InProgressPath string      `json:"in_progress_path,omitempty"`
	FinalPath      string      `json:"final_path,omitempty"`
	Changed        []string    `json:"changed,omitempty"`
}

// Inspect reports every session branch that is not a plain open session.
func (m *Manager) Inspect(ctx context.Context) ([]Anomaly, error) {
	branches, err := m.store.ListBranches(ctx, BranchPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing session branches: %w", err)
	}
	anomalies := []Anomaly{}
	for _, b := range branches {
		a, err := m.classify(ctx, b.Name)
		if err != nil {
			return nil, err
		}
		if a != nil {
			anomalies = append(anomalies, *a)
		}
	}
	m.metrics.SetSessionAnomalies(len(anomalies))
	return anomalies, nil
}

// classify returns nil for an open session or an unrecognized branch name.
// The dated log is located from the branch's own changes, so a session filed
// under any date is found.
func (m *Manager) classify(ctx context.Context, branch string) (*Anomaly, error) {
	date, _, ok := ParseBranch(branch)
	if !ok {
		return nil, nil
	}
	changes, err := m.store.Changes(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", branch, err)
	}
	inProgress := workout.InProgressPath(date)

	var logs, other []string
	for _, c := range changes {
		switch {
		case c.Path == inProgress:
		case c.Status != docstore.Removed && isLogPath(c.Path):
			logs = append(logs, c.Path)
		default:
			other = append(other, c.Path)
		}
	}
	diverged := &Anomaly{Branch: branch, Kind: Diverged, InProgressPath: inProgress, Changed: changedPaths(changes)}
	if len(other) > 0 || len(logs) > 1 {
		return diverged, nil
	}

	doc, err := m.store.Read(ctx, inProgress, docstore.OnBranch(branch))
	if err != nil && !errors.Is(err, perrors.ErrNotFound) {
		return nil, fmt.Errorf("inspecting %s: %w", branch, err)
	}
	open := err == nil
	switch {
	case len(logs) == 1 && open:
		return &Anomaly{Branch: branch, Kind: DuplicateAfterMove, InProgressPath: inProgress, FinalPath: logs[0]}, nil
	case len(logs) == 1:
		return &Anomaly{Branch: branch, Kind: FinalizedUnmerged, FinalPath: logs[0]}, nil
	case open:
		s, perr := workout.Parse(doc.Content)
		if perr != nil || s.Status != workout.StatusCompleted {
			return nil, nil
		}
		if s.Date.IsZero() {
			s.Date = date
		}
		return &Anomaly{Branch: branch, Kind: CompletedUnmoved, InProgressPath: inProgress, FinalPath: workout.LogPath(s.Date)}, nil
	case len(changes) == 0:
		return &Anomaly{Branch: branch, Kind: StaleBranch}, nil
	}
	// Only the in-progress document changed, and it is gone now.
	return diverged, nil
}

func isLogPath(p string) bool {
	_, ok := workout.LogDate(p)
	return ok && strings.HasPrefix(p, workout.WeeksDir+"/")
}

func changedPaths(changes []docstore.Change) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, string(c.Status)+" "+c.Path)
	}
	return out
}

// Repair completes whatever the interrupted finalize left undone on branch.
// Open sessions are refused, and so are branches whose changes are not a
// single session log. Only a branch with no changes is deleted.
func (m *Manager) Repair(ctx context.Context, branch string) (*Result, error) {
	a, err := m.classify(ctx, branch)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("repair %s: %w: not an interrupted finalize", branch, perrors.ErrInvalidInput)
	}
	log := m.logger.With().Str("branch", branch).Str("kind", string(a.Kind)).Logger()
	on := docstore.OnBranch(branch)

	switch a.Kind {
	case Diverged:
		return nil, fmt.Errorf("repair %s: %w: branch changes need manual review: %s",
			branch, perrors.ErrInconsistentState, strings.Join(a.Changed, ", "))

	case StaleBranch:
		if err := m.store.DeleteBranch(ctx, branch); err != nil {
			return nil, fmt.Errorf("repair %s: %w", branch, err)
		}
		log.Info().Msg("stale session branch removed")
		return &Result{Branch: branch}, nil

	case CompletedUnmoved:
		if _, err := docstore.Move(ctx, m.store, a.InProgressPath, a.FinalPath, "Finalize session (repair)", on); err != nil {
			return nil, &InconsistentStateError{Branch: branch, Phase: "move", Err: err}
		}

	case DuplicateAfterMove:
		if err := m.dropInProgress(ctx, branch, a); err != nil {
			return nil, &InconsistentStateError{Branch: branch, Phase: "move", Err: err}
		}
	}

	doc, err := m.store.Read(ctx, a.FinalPath, on)
	if err != nil {
		return nil, fmt.Errorf("repair %s: %w", branch, err)
	}
	mergeSHA, err := m.store.MergeBranch(ctx, branch, true)
	if err != nil {
		return nil, &InconsistentStateError{Branch: branch, Phase: "merge", Err: err}
	}
	s, err := workout.Parse(doc.Content)
	if err != nil {
		log.Warn().Err(err).Msg("repaired session log does not parse")
	}
	log.Info().Str("path", a.FinalPath).Msg("session finalize repaired")
	return &Result{Branch: branch, Path: a.FinalPath, SHA: doc.SHA, MergeSHA: mergeSHA, Session: s}, nil
}

// dropInProgress finishes a move whose copy landed. Sets appended to the
// in-progress document after the copy are carried into the dated log first.
func (m *Manager) dropInProgress(ctx context.Context, branch string, a *Anomaly) error {
	on := docstore.OnBranch(branch)
	src, err := m.store.Read(ctx, a.InProgressPath, on)
	if err != nil {
		return err
	}
	dst, err := m.store.Read(ctx, a.FinalPath, on)
	if err != nil {
		return err
	}
	s, err := workout.Parse(src.Content)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", a.InProgressPath, err)
	}
	finalDate, _ := workout.LogDate(a.FinalPath)
	s.Status = workout.StatusCompleted
	s.Date = finalDate
	content, err := workout.Render(s)
	if err != nil {
		return err
	}
	if content != dst.Content {
		if _, err := m.store.Write(ctx, a.FinalPath, content, dst.SHA, "Finalize session (repair)", on); err != nil {
			return err
		}
	}
	return m.store.Delete(ctx, a.InProgressPath, src.SHA, "Finalize session (repair)", on)
}
