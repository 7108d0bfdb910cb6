// Package docstore reads and writes named text documents in a remote Git
// repository. Each document carries its blob SHA, which every later write or
// delete must present: a stale SHA is rejected with errors.ErrConflict rather
// than overwriting someone else's change.
package docstore

import (
	"context"
	"errors"
	"fmt"

	perrors "github.com/p-blackswan/liftlog/internal/errors"
)

// Document is a versioned blob of text at a repository path.
type Document struct {
	Path    string
	Content string
	SHA     string
}

// Branch is a named line of history and the commit at its tip.
type Branch struct {
	Name string
	SHA  string
}

// Store is the remote system of record. Every write is one commit.
type Store interface {
	// Read returns the document at path. errors.ErrNotFound when absent.
	Read(ctx context.Context, path string, opts ...Option) (*Document, error)

	// Write stores content at path and returns the new SHA. A non-empty
	// expectedSHA must match the current remote SHA or errors.ErrConflict is
	// returned. An empty expectedSHA creates or overwrites unconditionally and
	// is meant for first-time writes only.
	Write(ctx context.Context, path, content, expectedSHA, message string, opts ...Option) (string, error)

	// Delete removes the document if expectedSHA is still current.
	Delete(ctx context.Context, path, expectedSHA, message string, opts ...Option) error

	// List returns the entry names directly under dir, sorted. A missing
	// directory yields an empty list, not an error.
	List(ctx context.Context, dir string, opts ...Option) ([]string, error)

	CreateBranch(ctx context.Context, name string) (*Branch, error)
	DeleteBranch(ctx context.Context, name string) error

	// MergeBranch merges name into the base branch and returns the merge
	// commit SHA, deleting the branch afterwards when deleteAfter is set.
	MergeBranch(ctx context.Context, name string, deleteAfter bool) (string, error)

	// ListBranches returns branches whose name starts with prefix.
	ListBranches(ctx context.Context, prefix string) ([]Branch, error)

	// Changes returns the paths branch changed since it forked from the
	// base, sorted by path. A branch with nothing the base lacks yields none.
	Changes(ctx context.Context, branch string) ([]Change, error)
}

// ChangeStatus says what a branch did to a path.
type ChangeStatus string

const (
	Added    ChangeStatus = "added"
	Modified ChangeStatus = "modified"
	Removed  ChangeStatus = "removed"
)

// Change is one path a branch touched.
type Change struct {
	Path   string
	Status ChangeStatus
}

// Option scopes a document call.
type Option func(*callOptions)

type callOptions struct {
	branch string
}

// OnBranch scopes a call to the named branch instead of the base branch.
func OnBranch(name string) Option {
	return func(o *callOptions) { o.branch = name }
}

func applyOptions(opts []Option) callOptions {
	var o callOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// MoveError reports a move whose copy landed but whose delete did not, so the
// same content now exists at both paths.
type MoveError struct {
	From   string
	To     string
	NewSHA string
	Err    error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s -> %s: copy written but source not deleted: %v", e.From, e.To, e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }

// Is makes a MoveError match errors.ErrInconsistentState.
func (e *MoveError) Is(target error) bool { return target == perrors.ErrInconsistentState }

// Move copies from to to and deletes from. It is three commits and not
// atomic: a failed delete after a successful write returns *MoveError and
// leaves reconciliation to the caller.
func Move(ctx context.Context, s Store, from, to, message string, opts ...Option) (string, error) {
	if from == to {
		return "", fmt.Errorf("move %s: %w: source and destination are the same", from, perrors.ErrInvalidInput)
	}
	doc, err := s.Read(ctx, from, opts...)
	if err != nil {
		return "", fmt.Errorf("move %s: reading source: %w", from, err)
	}

	var destSHA string
	if existing, err := s.Read(ctx, to, opts...); err == nil {
		if existing.Content != doc.Content {
			return "", fmt.Errorf("move %s -> %s: %w: destination exists with different content", from, to, perrors.ErrConflict)
		}
		destSHA = existing.SHA
	} else if !errors.Is(err, perrors.ErrNotFound) {
		return "", fmt.Errorf("move %s: checking destination: %w", from, err)
	}

	newSHA := destSHA
	if destSHA == "" {
		newSHA, err = s.Write(ctx, to, doc.Content, "", message, opts...)
		if err != nil {
			return "", fmt.Errorf("move %s: writing destination: %w", from, err)
		}
	}

	if err := s.Delete(ctx, from, doc.SHA, message, opts...); err != nil {
		return newSHA, &MoveError{From: from, To: to, NewSHA: newSHA, Err: err}
	}
	return newSHA, nil
}

// ReadOrEmpty returns the document, or an empty one with no SHA when it does
// not exist yet. Callers then write with the returned SHA either way.
func ReadOrEmpty(ctx context.Context, s Store, path string, opts ...Option) (*Document, error) {
	doc, err := s.Read(ctx, path, opts...)
	if errors.Is(err, perrors.ErrNotFound) {
		return &Document{Path: path}, nil
	}
	return doc, err
}
