// Package tracker runs the jobs the coaching agent triggers: recording a
// logged session against the PR and e1RM ledgers, and writing the weekly
// retrospective.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/liftlog/internal/docstore"
	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/internal/e1rm"
	"github.com/p-blackswan/liftlog/internal/metrics"
	"github.com/p-blackswan/liftlog/internal/pr"
	"github.com/p-blackswan/liftlog/internal/retry"
	"github.com/p-blackswan/liftlog/internal/rpe"
	"github.com/p-blackswan/liftlog/internal/workout"
)

// SessionSource lists finalized sessions, usually a history.Reader over the
// mirror.
type SessionSource interface {
	Sessions(from, to time.Time) ([]workout.Session, error)
	Week(week string) ([]workout.Session, error)
}

// Tracker updates the ledgers through the document store.
type Tracker struct {
	store       docstore.Store
	sessions    SessionSource
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	maxSessions int
	retry       retry.Config
	now         func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMaxSessions bounds the per-exercise e1RM session list written back.
func WithMaxSessions(n int) Option {
	return func(t *Tracker) { t.maxSessions = n }
}

// WithRetry sets the backoff used around ledger reads. Writes are never
// retried.
func WithRetry(cfg retry.Config) Option {
	return func(t *Tracker) { t.retry = cfg }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker. sessions may be nil when only Record and LogSession
// are used.
func New(store docstore.Store, sessions SessionSource, m *metrics.Metrics, logger zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:       store,
		sessions:    sessions,
		metrics:     m,
		logger:      logger.With().Str("component", "tracker").Logger(),
		maxSessions: e1rm.DefaultMaxSessions,
		retry:       retry.DefaultConfig(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Report is what a recorded session produced.
type Report struct {
	Date         string             `json:"date"`
	Type         string             `json:"type"`
	LogPath      string             `json:"log_path,omitempty"`
	LogSHA       string             `json:"log_sha,omitempty"`
	Celebrations []pr.Celebration   `json:"celebrations"`
	E1RM         e1rm.SessionResult `json:"e1rm"`
	Lines        []string           `json:"lines"`
	Difficulty   rpe.Difficulty     `json:"difficulty"`
	PRsSHA       string             `json:"prs_sha,omitempty"`
	HistorySHA   string             `json:"history_sha,omitempty"`
}

// LogSession writes a finished session straight to its dated log on the base
// branch, then records it. Re-logging a date replaces that day's log.
func (t *Tracker) LogSession(ctx context.Context, s workout.Session) (rep *Report, err error) {
	started := time.Now()
	defer func() { t.metrics.ObserveJob("log_session", started, err) }()

	s.Date = workout.Day(s.Date)
	s.Status = workout.StatusCompleted
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", perrors.ErrInvalidInput, err)
	}
	content, err := workout.Render(s)
	if err != nil {
		return nil, err
	}
	path := workout.LogPath(s.Date)
	doc, err := docstore.ReadOrEmpty(ctx, t.store, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	sha, err := t.store.Write(ctx, path, content, doc.SHA, fmt.Sprintf("Log %s workout %s", s.Type, s.DateString()))
	if err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}

	rep, err = t.record(ctx, s, path)
	if err != nil {
		return nil, err
	}
	rep.LogPath, rep.LogSHA = path, sha
	return rep, nil
}

// Record evaluates a session already stored at source against prs.yaml and
// the e1RM history and writes back whichever ledger changed. A conflict on
// either ledger is returned as is; retrying re-reads both.
func (t *Tracker) Record(ctx context.Context, s workout.Session, source string) (rep *Report, err error) {
	started := time.Now()
	defer func() { t.metrics.ObserveJob("record_session", started, err) }()
	return t.record(ctx, s, source)
}

func (t *Tracker) record(ctx context.Context, s workout.Session, source string) (*Report, error) {
	date := s.DateString()
	rep := &Report{Date: date, Type: s.Type, Difficulty: rpe.ScoreSession(s)}

	prDoc, ledger, err := t.readLedger(ctx)
	if err != nil {
		return nil, err
	}
	histDoc, hist, err := t.readHistory(ctx)
	if err != nil {
		return nil, err
	}

	celebrations, nextLedger := pr.EvaluateSession(s.Exercises, date, ledger)
	nextHist, res := e1rm.RecordSession(s.Exercises, s.Date, source, hist)
	rep.Celebrations = celebrations
	rep.E1RM = res
	rep.Lines = e1rm.SummaryLines(res)

	if len(celebrations) > 0 {
		data, err := pr.MarshalLedger(nextLedger)
		if err != nil {
			return nil, err
		}
		rep.PRsSHA, err = t.store.Write(ctx, workout.PRsPath, string(data), prDoc.SHA, "Update PRs from "+date)
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", workout.PRsPath, err)
		}
	}
	// Recording a session again can leave the history unchanged.
	data, err := e1rm.Marshal(nextHist, t.maxSessions)
	if err != nil {
		return nil, err
	}
	prev, err := e1rm.Marshal(hist, t.maxSessions)
	if err != nil {
		return nil, err
	}
	if string(data) != string(prev) {
		rep.HistorySHA, err = t.store.Write(ctx, workout.E1RMHistoryPath, string(data), histDoc.SHA, "Update e1RM history from "+date)
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", workout.E1RMHistoryPath, err)
		}
	}

	for _, c := range celebrations {
		t.metrics.RecordCelebration(string(c.Type))
	}
	t.logger.Info().
		Str("date", date).
		Str("source", source).
		Int("celebrations", len(celebrations)).
		Int("e1rm_updates", len(res.Updates)).
		Int("difficulty", rep.Difficulty.Score).
		Msg("session recorded")
	return rep, nil
}

func (t *Tracker) read(ctx context.Context, path string) (*docstore.Document, error) {
	return retry.Value(ctx, t.retry, func(ctx context.Context) (*docstore.Document, error) {
		return docstore.ReadOrEmpty(ctx, t.store, path)
	})
}

func (t *Tracker) readLedger(ctx context.Context) (*docstore.Document, pr.Ledger, error) {
	doc, err := t.read(ctx, workout.PRsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", workout.PRsPath, err)
	}
	ledger, err := pr.ParseLedger([]byte(doc.Content))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", perrors.ErrInvalidInput, err)
	}
	return doc, ledger, nil
}

func (t *Tracker) readHistory(ctx context.Context) (*docstore.Document, e1rm.History, error) {
	doc, err := t.read(ctx, workout.E1RMHistoryPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", workout.E1RMHistoryPath, err)
	}
	hist, err := e1rm.Parse([]byte(doc.Content))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", perrors.ErrInvalidInput, err)
	}
	return doc, hist, nil
}

// PRs returns the current ledger.
func (t *Tracker) PRs(ctx context.Context) (pr.Ledger, error) {
	_, ledger, err := t.readLedger(ctx)
	return ledger, err
}

// Trend reports the e1RM trend of exercise over the last days days.
// perrors.ErrNotFound when there are fewer than two sessions.
func (t *Tracker) Trend(ctx context.Context, exercise string, days int) (*e1rm.TrendReport, error) {
	_, hist, err := t.readHistory(ctx)
	if err != nil {
		return nil, err
	}
	since := workout.Day(t.now()).AddDate(0, 0, -days)
	if days <= 0 {
		since = time.Time{}
	}
	report, ok := e1rm.Trend(hist, exercise, since)
	if !ok {
		return nil, fmt.Errorf("trend for %s: %w: fewer than two sessions", workout.CanonicalExercise(exercise), perrors.ErrNotFound)
	}
	return &report, nil
}

// RPE analyzes the rated sets of exercise over the last days days.
func (t *Tracker) RPE(exercise string, days int) ([]rpe.Insight, error) {
	if t.sessions == nil {
		return nil, fmt.Errorf("rpe: %w: no session history configured", perrors.ErrUnavailable)
	}
	now := workout.Day(t.now())
	sessions, err := t.sessions.Sessions(now.AddDate(0, 0, -days), now)
	if err != nil {
		return nil, err
	}
	points := rpe.Window(rpe.PointsFromSessions(sessions, exercise), rpe.DefaultWindowSessions)
	return rpe.Analyze(exercise, points), nil
}
