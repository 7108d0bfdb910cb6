// Package session isolates an in-progress workout on its own branch of the
// data repository until it is finalized into a dated log on the base branch.
//
// A session moves none -> open -> {finalized, abandoned}. Finalizing is two
// remote steps that cannot be made atomic: the document move on the branch
// and the merge into the base. A failure between them leaves the branch for
// Inspect and Repair; nothing retries it automatically.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/liftlog/internal/docstore"
	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/internal/metrics"
	"github.com/p-blackswan/liftlog/internal/workout"
)

// ErrSessionExists is returned by Open when the date already has a session.
var ErrSessionExists = errors.New("session already open")

// Handle identifies an open session.
type Handle struct {
	Branch string
	Date   time.Time
	Type   string
	Path   string // in-progress document on Branch
	SHA    string // last SHA of the in-progress document this handle saw
}

// Result describes a finalized session.
type Result struct {
	Branch   string
	Path     string
	SHA      string
	MergeSHA string
	Session  workout.Session
}

// InconsistentStateError reports a finalize that stopped after changing
// remote state. The session is neither open nor finalized until repaired.
type InconsistentStateError struct {
	Branch string
	Phase  string // "move" or "merge"
	Err    error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("session %s: finalize stopped at %s: %v", e.Branch, e.Phase, e.Err)
}

func (e *InconsistentStateError) Unwrap() error { return e.Err }

// Is makes the error match errors.ErrInconsistentState.
func (e *InconsistentStateError) Is(target error) bool {
	return target == perrors.ErrInconsistentState
}

// Manager runs session transitions against a document store.
type Manager struct {
	store   docstore.Store
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewManager creates a Manager.
func NewManager(store docstore.Store, m *metrics.Metrics, logger zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		metrics: m,
		logger:  logger.With().Str("component", "session").Logger(),
	}
}

// Open creates the session branch and its in-progress document.
func (m *Manager) Open(ctx context.Context, date time.Time, workoutType string) (*Handle, error) {
	if workoutType == "" {
		return nil, fmt.Errorf("open session: %w: workout type is required", perrors.ErrInvalidInput)
	}
	date = workout.Day(date)
	branch := BranchName(date, workoutType)

	// One session per date, whatever its type or state.
	if h, err := m.findOpen(ctx, BranchPrefix+date.Format(workout.DateLayout)+"-", true); err != nil {
		return nil, err
	} else if h != nil {
		return nil, fmt.Errorf("open %s: %w: %s", branch, ErrSessionExists, h.Branch)
	}

	if _, err := m.store.CreateBranch(ctx, branch); err != nil {
		if errors.Is(err, perrors.ErrConflict) {
			return nil, fmt.Errorf("open %s: %w", branch, ErrSessionExists)
		}
		return nil, fmt.Errorf("open %s: %w", branch, err)
	}

	doc, err := workout.Render(workout.Session{Date: date, Type: workoutType, Status: workout.StatusInProgress})
	if err != nil {
		return nil, err
	}
	p := workout.InProgressPath(date)
	sha, err := m.store.Write(ctx, p, doc, "", fmt.Sprintf("Start %s session %s", workoutType, date.Format(workout.DateLayout)), docstore.OnBranch(branch))
	if err != nil {
		if derr := m.store.DeleteBranch(ctx, branch); derr != nil {
			m.logger.Warn().Err(derr).Str("branch", branch).Msg("failed to remove branch after open failed")
		}
		return nil, fmt.Errorf("open %s: writing in-progress document: %w", branch, err)
	}

	m.logger.Info().Str("branch", branch).Str("type", workoutType).Msg("session opened")
	return &Handle{Branch: branch, Date: date, Type: workoutType, Path: p, SHA: sha}, nil
}

// FindInProgress returns the first open session, or nil when there is none.
func (m *Manager) FindInProgress(ctx context.Context) (*Handle, error) {
	return m.findOpen(ctx, BranchPrefix, false)
}

// findOpen returns the first branch under prefix holding an in-progress
// document. Documents already marked completed count only with anyStatus.
func (m *Manager) findOpen(ctx context.Context, prefix string, anyStatus bool) (*Handle, error) {
	branches, err := m.store.ListBranches(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing session branches: %w", err)
	}
	for _, b := range branches {
		date, _, ok := ParseBranch(b.Name)
		if !ok {
			continue
		}
		p := workout.InProgressPath(date)
		doc, err := m.store.Read(ctx, p, docstore.OnBranch(b.Name))
		if errors.Is(err, perrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s on %s: %w", p, b.Name, err)
		}
		s, err := workout.Parse(doc.Content)
		if err != nil {
			m.logger.Warn().Err(err).Str("branch", b.Name).Msg("unparseable in-progress document")
		} else if !anyStatus && s.Status != workout.StatusInProgress {
			continue
		}
		return &Handle{Branch: b.Name, Date: date, Type: s.Type, Path: p, SHA: doc.SHA}, nil
	}
	return nil, nil
}

// Load returns the session as currently recorded on its branch.
func (m *Manager) Load(ctx context.Context, h *Handle) (*workout.Session, error) {
	s, doc, err := m.load(ctx, h)
	if err != nil {
		return nil, err
	}
	h.SHA = doc.SHA
	return &s, nil
}

func (m *Manager) load(ctx context.Context, h *Handle) (workout.Session, *docstore.Document, error) {
	doc, err := m.store.Read(ctx, h.Path, docstore.OnBranch(h.Branch))
	if err != nil {
		return workout.Session{}, nil, fmt.Errorf("loading session %s: %w", h.Branch, err)
	}
	s, err := workout.Parse(doc.Content)
	if err != nil {
		return workout.Session{}, nil, fmt.Errorf("parsing session %s: %w", h.Branch, err)
	}
	if s.Date.IsZero() {
		s.Date = h.Date
	}
	return s, doc, nil
}

// Append adds an exercise's sets to the open session. Sets for an exercise
// already in the log are appended to it in order. A concurrent edit surfaces
// as errors.ErrConflict.
func (m *Manager) Append(ctx context.Context, h *Handle, ex workout.LoggedExercise) (*workout.Session, error) {
	s, doc, err := m.load(ctx, h)
	if err != nil {
		return nil, err
	}
	if s.Status != workout.StatusInProgress {
		return nil, fmt.Errorf("append to %s: %w: session is %s", h.Branch, perrors.ErrInvalidInput, s.Status)
	}

	next := s.Clone()
	merged := false
	for i := range next.Exercises {
		if next.Exercises[i].Key() == ex.Key() {
			next.Exercises[i].Sets = append(next.Exercises[i].Sets, ex.Sets...)
			if ex.Notes != "" {
				next.Exercises[i].Notes = joinNotes(next.Exercises[i].Notes, ex.Notes)
			}
			merged = true
			break
		}
	}
	if !merged {
		next.Exercises = append(next.Exercises, ex)
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("append to %s: %w: %v", h.Branch, perrors.ErrInvalidInput, err)
	}

	content, err := workout.Render(next)
	if err != nil {
		return nil, err
	}
	sha, err := m.store.Write(ctx, h.Path, content, doc.SHA, fmt.Sprintf("Log %s", ex.Name), docstore.OnBranch(h.Branch))
	if err != nil {
		return nil, fmt.Errorf("append to %s: %w", h.Branch, err)
	}
	h.SHA = sha
	return &next, nil
}

func joinNotes(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}

// Finalize writes the completed session to its permanent path for finalDate,
// deletes the in-progress document and merges the branch into the base,
// deleting the branch. A failure before the first commit leaves the session
// open; a later one returns *InconsistentStateError.
func (m *Manager) Finalize(ctx context.Context, h *Handle, finalDate time.Time) (*Result, error) {
	s, doc, err := m.load(ctx, h)
	if err != nil {
		return nil, err
	}
	if s.Status != workout.StatusInProgress {
		return nil, fmt.Errorf("finalize %s: %w: session is %s", h.Branch, perrors.ErrInvalidInput, s.Status)
	}
	finalDate = workout.Day(finalDate)
	s.Status = workout.StatusCompleted
	s.Date = finalDate
	content, err := workout.Render(s)
	if err != nil {
		return nil, err
	}
	on := docstore.OnBranch(h.Branch)
	final := workout.LogPath(finalDate)
	msg := "Finalize session " + finalDate.Format(workout.DateLayout)

	var sha string
	existing, err := m.store.Read(ctx, final, on)
	switch {
	case err == nil && existing.Content == content:
		sha = existing.SHA
	case err == nil:
		return nil, fmt.Errorf("finalize %s: %w: %s already holds a different log", h.Branch, perrors.ErrConflict, final)
	case !errors.Is(err, perrors.ErrNotFound):
		return nil, fmt.Errorf("finalize %s: %w", h.Branch, err)
	default:
		if sha, err = m.store.Write(ctx, final, content, "", msg, on); err != nil {
			return nil, fmt.Errorf("finalize %s: %w", h.Branch, err)
		}
	}

	if err := m.store.Delete(ctx, h.Path, doc.SHA, msg, on); err != nil {
		m.logger.Error().Err(err).Str("branch", h.Branch).Msg("finalize left a duplicate document")
		return nil, &InconsistentStateError{Branch: h.Branch, Phase: "move", Err: err}
	}

	mergeSHA, err := m.store.MergeBranch(ctx, h.Branch, true)
	if err != nil {
		m.logger.Error().Err(err).Str("branch", h.Branch).Msg("finalize moved the document but merge failed")
		return nil, &InconsistentStateError{Branch: h.Branch, Phase: "merge", Err: err}
	}

	m.logger.Info().Str("branch", h.Branch).Str("path", final).Int("sets", s.TotalSets()).Msg("session finalized")
	return &Result{Branch: h.Branch, Path: final, SHA: sha, MergeSHA: mergeSHA, Session: s}, nil
}

// Abandon deletes the session branch without merging.
func (m *Manager) Abandon(ctx context.Context, h *Handle) error {
	if err := m.store.DeleteBranch(ctx, h.Branch); err != nil {
		return fmt.Errorf("abandon %s: %w", h.Branch, err)
	}
	m.logger.Info().Str("branch", h.Branch).Msg("session abandoned")
	return nil
}
