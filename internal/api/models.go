package api

import (
	"strings"

	"github.com/p-blackswan/liftlog/internal/e1rm"
	"github.com/p-blackswan/liftlog/internal/rpe"
	"github.com/p-blackswan/liftlog/internal/session"
	"github.com/p-blackswan/liftlog/internal/tracker"
	"github.com/p-blackswan/liftlog/internal/workout"
)

// --- Session requests ---

// LogSessionRequest is the body of POST /api/v1/sessions.
type LogSessionRequest struct {
	Date      string                   `json:"date"`
	Type      string                   `json:"type"`
	Exercises []workout.LoggedExercise `json:"exercises"`
}

// OpenSessionRequest is the body of POST /api/v1/sessions/open. Date
// defaults to today.
type OpenSessionRequest struct {
	Date string `json:"date,omitempty"`
	Type string `json:"type"`
}

// FinalizeRequest is the optional body of POST /api/v1/sessions/:id/finalize.
// FinalDate defaults to the date the session was opened for.
type FinalizeRequest struct {
	FinalDate string `json:"final_date,omitempty"`
}

// --- Session responses ---

// SessionHandle identifies an open session. ID is the branch name without
// the session prefix and is what the :id route parameter expects.
type SessionHandle struct {
	ID     string `json:"id"`
	Branch string `json:"branch"`
	Date   string `json:"date"`
	Type   string `json:"type,omitempty"`
	Path   string `json:"path"`
	SHA    string `json:"sha,omitempty"`
}

// SessionView is a workout session with its date as a calendar day.
type SessionView struct {
	Date      string                   `json:"date"`
	Type      string                   `json:"type"`
	Status    workout.Status           `json:"status"`
	Exercises []workout.LoggedExercise `json:"exercises"`
	Sets      int                      `json:"sets"`
}

// SessionResponse pairs a handle with the session it points at.
type SessionResponse struct {
	Session SessionHandle `json:"session"`
	Log     *SessionView  `json:"log,omitempty"`
}

// FinalizeResponse describes a finalized or repaired session. The merge has
// already happened when Report is missing; RecordError then says why the
// ledgers were not updated.
type FinalizeResponse struct {
	Branch      string          `json:"branch"`
	Path        string          `json:"path,omitempty"`
	SHA         string          `json:"sha,omitempty"`
	MergeSHA    string          `json:"merge_sha,omitempty"`
	Log         *SessionView    `json:"log,omitempty"`
	Report      *tracker.Report `json:"report,omitempty"`
	RecordError string          `json:"record_error,omitempty"`
}

// AnomalyListResponse is the body of GET /api/v1/anomalies.
type AnomalyListResponse struct {
	Anomalies []session.Anomaly `json:"anomalies"`
	Total     int               `json:"total"`
}

// --- Analytics responses ---

// TrendResponse is the body of GET /api/v1/e1rm/:exercise/trend.
type TrendResponse struct {
	Trend e1rm.TrendReport `json:"trend"`
}

// RPEResponse is the body of GET /api/v1/rpe/:exercise.
type RPEResponse struct {
	Exercise string        `json:"exercise"`
	Days     int           `json:"days"`
	Insights []rpe.Insight `json:"insights"`
}

// HealthResponse is the body of the probe endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func handleView(h *session.Handle) SessionHandle {
	return SessionHandle{
		ID:     strings.TrimPrefix(h.Branch, session.BranchPrefix),
		Branch: h.Branch,
		Date:   h.Date.Format(workout.DateLayout),
		Type:   h.Type,
		Path:   h.Path,
		SHA:    h.SHA,
	}
}

func sessionView(s workout.Session) *SessionView {
	exercises := s.Exercises
	if exercises == nil {
		exercises = []workout.LoggedExercise{}
	}
	return &SessionView{
		Date:      s.DateString(),
		Type:      s.Type,
		Status:    s.Status,
		Exercises: exercises,
		Sets:      s.TotalSets(),
	}
}
