package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/internal/health"
	"github.com/p-blackswan/liftlog/internal/requestid"
	"github.com/p-blackswan/liftlog/internal/rpe"
	"github.com/p-blackswan/liftlog/internal/runtime"
	"github.com/p-blackswan/liftlog/internal/session"
	"github.com/p-blackswan/liftlog/internal/tracker"
	"github.com/p-blackswan/liftlog/internal/workout"
)

const defaultRPEWindowDays = 90

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	rt        *runtime.Runtime
	rpeDays   int
	logger    zerolog.Logger
	startTime time.Time
	now       func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(rt *runtime.Runtime, rpeDays int, logger zerolog.Logger) *Handlers {
	if rpeDays <= 0 {
		rpeDays = defaultRPEWindowDays
	}
	return &Handlers{
		rt:        rt,
		rpeDays:   rpeDays,
		logger:    logger,
		startTime: time.Now(),
		now:       time.Now,
	}
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: request body: %v", perrors.ErrInvalidInput, err)
	}
	return nil
}

func (h *Handlers) parseDay(value string) (time.Time, error) {
	if value == "" {
		return workout.Day(h.now()), nil
	}
	d, err := workout.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", perrors.ErrInvalidInput, err)
	}
	return d, nil
}

// --- Sessions ---

// LogSession handles POST /api/v1/sessions: a finished session written
// straight to its dated log and recorded against the ledgers.
func (h *Handlers) LogSession(c *fiber.Ctx) error {
	var req LogSessionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	date, err := h.parseDay(req.Date)
	if err != nil {
		return err
	}
	rep, err := h.rt.Tracker.LogSession(c.UserContext(), workout.Session{
		Date:      date,
		Type:      req.Type,
		Exercises: req.Exercises,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rep)
}

// OpenSession handles POST /api/v1/sessions/open.
func (h *Handlers) OpenSession(c *fiber.Ctx) error {
	var req OpenSessionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	date, err := h.parseDay(req.Date)
	if err != nil {
		return err
	}
	handle, err := h.rt.Sessions.Open(c.UserContext(), date, req.Type)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(SessionResponse{Session: handleView(handle)})
}

// InProgress handles GET /api/v1/sessions/in-progress.
func (h *Handlers) InProgress(c *fiber.Ctx) error {
	ctx := c.UserContext()
	handle, err := h.rt.Sessions.FindInProgress(ctx)
	if err != nil {
		return err
	}
	if handle == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"no_open_session", "Not Found", "No session is in progress")
	}
	s, err := h.rt.Sessions.Load(ctx, handle)
	if err != nil {
		return err
	}
	return c.JSON(SessionResponse{Session: handleView(handle), Log: sessionView(*s)})
}

// AppendExercise handles POST /api/v1/sessions/:id/exercises.
func (h *Handlers) AppendExercise(c *fiber.Ctx) error {
	handle, err := session.HandleFor(c.Params("id"))
	if err != nil {
		return err
	}
	var ex workout.LoggedExercise
	if err := parseBody(c, &ex); err != nil {
		return err
	}
	if ex.Name == "" {
		return fmt.Errorf("%w: exercise name is required", perrors.ErrInvalidInput)
	}
	s, err := h.rt.Sessions.Append(c.UserContext(), handle, ex)
	if err != nil {
		return err
	}
	handle.Type = s.Type
	return c.JSON(SessionResponse{Session: handleView(handle), Log: sessionView(*s)})
}

// FinalizeSession handles POST /api/v1/sessions/:id/finalize. The finalized
// log is then recorded against the ledgers.
func (h *Handlers) FinalizeSession(c *fiber.Ctx) error {
	handle, err := session.HandleFor(c.Params("id"))
	if err != nil {
		return err
	}
	var req FinalizeRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	finalDate := handle.Date
	if req.FinalDate != "" {
		if finalDate, err = h.parseDay(req.FinalDate); err != nil {
			return err
		}
	}
	ctx := c.UserContext()
	res, err := h.rt.Sessions.Finalize(ctx, handle, finalDate)
	if err != nil {
		return err
	}
	return c.JSON(h.recordFinalized(ctx, res))
}

// AbandonSession handles DELETE /api/v1/sessions/:id.
func (h *Handlers) AbandonSession(c *fiber.Ctx) error {
	handle, err := session.HandleFor(c.Params("id"))
	if err != nil {
		return err
	}
	if err := h.rt.Sessions.Abandon(c.UserContext(), handle); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListAnomalies handles GET /api/v1/anomalies.
func (h *Handlers) ListAnomalies(c *fiber.Ctx) error {
	anomalies, err := h.rt.Inspect(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(AnomalyListResponse{Anomalies: anomalies, Total: len(anomalies)})
}

// RepairAnomaly handles POST /api/v1/anomalies/:id/repair.
func (h *Handlers) RepairAnomaly(c *fiber.Ctx) error {
	handle, err := session.HandleFor(c.Params("id"))
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	res, err := h.rt.Sessions.Repair(ctx, handle.Branch)
	if err != nil {
		return err
	}
	return c.JSON(h.recordFinalized(ctx, res))
}

// recordFinalized updates the ledgers for a merged session. A failure here
// does not undo the merge, so it is reported alongside the result.
func (h *Handlers) recordFinalized(ctx context.Context, res *session.Result) FinalizeResponse {
	out := FinalizeResponse{Branch: res.Branch, Path: res.Path, SHA: res.SHA, MergeSHA: res.MergeSHA}
	if res.MergeSHA == "" {
		// Stale branch removed; nothing was merged.
		return out
	}
	out.Log = sessionView(res.Session)
	rep, err := h.rt.Tracker.Record(ctx, res.Session, res.Path)
	if err != nil {
		reqLogger := requestid.Logger(ctx, h.logger)
		reqLogger.Error().Err(err).Str("branch", res.Branch).Msg("recording finalized session failed")
		out.RecordError = err.Error()
		return out
	}
	out.Report = rep
	return out
}

// --- Analytics ---

// PRs handles GET /api/v1/prs.
func (h *Handlers) PRs(c *fiber.Ctx) error {
	ledger, err := h.rt.Tracker.PRs(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(ledger)
}

// Trend handles GET /api/v1/e1rm/:exercise/trend?days=N. Without days the
// whole recorded history is used.
func (h *Handlers) Trend(c *fiber.Ctx) error {
	report, err := h.rt.Tracker.Trend(c.UserContext(), c.Params("exercise"), c.QueryInt("days", 0))
	if err != nil {
		return err
	}
	return c.JSON(TrendResponse{Trend: *report})
}

// RPE handles GET /api/v1/rpe/:exercise?days=N over the freshly synced mirror.
func (h *Handlers) RPE(c *fiber.Ctx) error {
	exercise := c.Params("exercise")
	days := c.QueryInt("days", h.rpeDays)
	var insights []rpe.Insight
	err := h.rt.WithMirror(c.UserContext(), "", func(context.Context, runtime.Mirror) error {
		var err error
		insights, err = h.rt.Tracker.RPE(exercise, days)
		return err
	})
	if err != nil {
		return err
	}
	if insights == nil {
		insights = []rpe.Insight{}
	}
	return c.JSON(RPEResponse{Exercise: workout.CanonicalExercise(exercise), Days: days, Insights: insights})
}

// WeeklyRetro handles POST /api/v1/retro/:week.
func (h *Handlers) WeeklyRetro(c *fiber.Ctx) error {
	week := c.Params("week")
	var retro *tracker.Retro
	err := h.rt.WithMirror(c.UserContext(), "", func(ctx context.Context, _ runtime.Mirror) error {
		var err error
		retro, err = h.rt.Tracker.WeeklyRetro(ctx, week)
		return err
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(retro)
}

// --- Probes ---

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	results := h.rt.Health.RunAll(c.UserContext())
	resp := HealthResponse{Status: "ready", Checks: checkStrings(results)}
	if !health.Ready(results) {
		resp.Status = "not_ready"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

// HealthDetail handles GET /api/v1/health with the last results and uptime.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"checks": checkStrings(h.rt.Health.Last()),
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

func checkStrings(results map[string]health.Status) map[string]string {
	out := make(map[string]string, len(results))
	for name, st := range results {
		out[name] = string(st)
	}
	return out
}
