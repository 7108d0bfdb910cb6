package session

import (
	"fmt"
	"strings"
	"time"

	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/internal/workout"
)

// BranchPrefix namespaces every session branch.
const BranchPrefix = "session/"

// BranchName derives the branch for a session, e.g.
// "session/2026-10-16-upper-body-push".
func BranchName(date time.Time, workoutType string) string {
	return BranchPrefix + date.Format(workout.DateLayout) + "-" + Slug(workoutType)
}

// ParseBranch splits a session branch name into its date and type slug.
func ParseBranch(name string) (time.Time, string, bool) {
	rest, ok := strings.CutPrefix(name, BranchPrefix)
	if !ok || len(rest) < len(workout.DateLayout)+2 || rest[len(workout.DateLayout)] != '-' {
		return time.Time{}, "", false
	}
	date, err := time.Parse(workout.DateLayout, rest[:len(workout.DateLayout)])
	if err != nil {
		return time.Time{}, "", false
	}
	return date, rest[len(workout.DateLayout)+1:], true
}

// Slug lowercases s and joins its alphanumeric runs with dashes.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
		default:
			dash = true
		}
	}
	if b.Len() == 0 {
		return "workout"
	}
	return b.String()
}

// HandleFor rebuilds the handle of an open session from its branch name.
// Branch may omit BranchPrefix. The SHA is filled in by the first load.
func HandleFor(branch string) (*Handle, error) {
	if !strings.HasPrefix(branch, BranchPrefix) {
		branch = BranchPrefix + branch
	}
	date, _, ok := ParseBranch(branch)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a session branch", perrors.ErrInvalidInput, branch)
	}
	return &Handle{Branch: branch, Date: date, Path: workout.InProgressPath(date)}, nil
}
