package docstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	perrors "github.com/p-blackswan/liftlog/internal/errors"
)

// Commit is one entry of the MemoryStore audit trail.
type Commit struct {
	Branch  string
	Message string
	SHA     string
}

type memBranch struct {
	files  map[string]string
	forked map[string]string // base files at branch creation
	head   string
}

// MemoryStore is an in-process Store with the same conflict semantics as the
// GitHub implementation. Content SHAs are Git blob hashes.
type MemoryStore struct {
	mu       sync.Mutex
	base     string
	branches map[string]*memBranch
	commits  []Commit
	failures map[string][]error
}

// NewMemoryStore creates an empty store whose base branch is named base.
func NewMemoryStore(base string) *MemoryStore {
	if base == "" {
		base = "main"
	}
	m := &MemoryStore{
		base:     base,
		branches: make(map[string]*memBranch),
		failures: make(map[string][]error),
	}
	m.branches[base] = &memBranch{files: make(map[string]string)}
	m.branches[base].head = m.commitLocked(base, "initial commit")
	return m
}

// BlobSHA returns the Git blob hash of content.
func BlobSHA(content string) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// FailNext makes the next call of op ("read", "write", "delete", "list",
// "create_branch", "delete_branch", "merge", "list_branches", "changes")
// return err.
func (m *MemoryStore) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// Commits returns the audit trail in order.
func (m *MemoryStore) Commits() []Commit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Commit(nil), m.commits...)
}

// Seed writes content on the base branch without a SHA check, for fixtures.
func (m *MemoryStore) Seed(files map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.branches[m.base]
	for p, c := range files {
		b.files[cleanPath(p)] = c
	}
	b.head = m.commitLocked(m.base, "seed")
}

func (m *MemoryStore) injected(op string) error {
	errs := m.failures[op]
	if len(errs) == 0 {
		return nil
	}
	m.failures[op] = errs[1:]
	return errs[0]
}

func (m *MemoryStore) commitLocked(branch, message string) string {
	sha := BlobSHA(fmt.Sprintf("commit %d %s %s", len(m.commits), branch, message))
	m.commits = append(m.commits, Commit{Branch: branch, Message: message, SHA: sha})
	return sha
}

func (m *MemoryStore) branchLocked(opts []Option) (string, *memBranch, error) {
	name := applyOptions(opts).branch
	if name == "" {
		name = m.base
	}
	b, ok := m.branches[name]
	if !ok {
		return name, nil, fmt.Errorf("branch %s: %w", name, perrors.ErrNotFound)
	}
	return name, b, nil
}

func (m *MemoryStore) Read(_ context.Context, p string, opts ...Option) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("read"); err != nil {
		return nil, err
	}
	_, b, err := m.branchLocked(opts)
	if err != nil {
		return nil, err
	}
	p = cleanPath(p)
	content, ok := b.files[p]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", p, perrors.ErrNotFound)
	}
	return &Document{Path: p, Content: content, SHA: BlobSHA(content)}, nil
}

func (m *MemoryStore) Write(_ context.Context, p, content, expectedSHA, message string, opts ...Option) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("write"); err != nil {
		return "", err
	}
	name, b, err := m.branchLocked(opts)
	if err != nil {
		return "", err
	}
	p = cleanPath(p)
	if expectedSHA != "" {
		current, ok := b.files[p]
		if !ok || BlobSHA(current) != expectedSHA {
			return "", fmt.Errorf("writing %s: %w: expected %s", p, perrors.ErrConflict, shortSHA(expectedSHA))
		}
	}
	b.files[p] = content
	b.head = m.commitLocked(name, message)
	return BlobSHA(content), nil
}

func (m *MemoryStore) Delete(_ context.Context, p, expectedSHA, message string, opts ...Option) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("delete"); err != nil {
		return err
	}
	name, b, err := m.branchLocked(opts)
	if err != nil {
		return err
	}
	p = cleanPath(p)
	current, ok := b.files[p]
	if !ok {
		return fmt.Errorf("deleting %s: %w", p, perrors.ErrNotFound)
	}
	if BlobSHA(current) != expectedSHA {
		return fmt.Errorf("deleting %s: %w: expected %s", p, perrors.ErrConflict, shortSHA(expectedSHA))
	}
	delete(b.files, p)
	b.head = m.commitLocked(name, message)
	return nil
}

func (m *MemoryStore) List(_ context.Context, dir string, opts ...Option) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("list"); err != nil {
		return nil, err
	}
	_, b, err := m.branchLocked(opts)
	if err != nil {
		return nil, err
	}
	prefix := cleanPath(dir)
	if prefix != "" {
		prefix += "/"
	}
	seen := make(map[string]bool)
	for p := range b.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		seen[rest] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) CreateBranch(_ context.Context, name string) (*Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("create_branch"); err != nil {
		return nil, err
	}
	if _, ok := m.branches[name]; ok {
		return nil, fmt.Errorf("creating branch %s: %w: already exists", name, perrors.ErrConflict)
	}
	base := m.branches[m.base]
	b := &memBranch{
		files:  copyFiles(base.files),
		forked: copyFiles(base.files),
		head:   base.head,
	}
	m.branches[name] = b
	return &Branch{Name: name, SHA: b.head}, nil
}

func (m *MemoryStore) DeleteBranch(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("delete_branch"); err != nil {
		return err
	}
	return m.deleteBranchLocked(name)
}

func (m *MemoryStore) deleteBranchLocked(name string) error {
	if name == m.base {
		return fmt.Errorf("deleting branch %s: %w: base branch", name, perrors.ErrInvalidInput)
	}
	if _, ok := m.branches[name]; !ok {
		return fmt.Errorf("deleting branch %s: %w", name, perrors.ErrNotFound)
	}
	delete(m.branches, name)
	return nil
}

// MergeBranch applies the branch's changes since it forked onto the base. A
// path changed differently on both sides is a conflict and nothing is merged.
func (m *MemoryStore) MergeBranch(_ context.Context, name string, deleteAfter bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("merge"); err != nil {
		return "", err
	}
	b, ok := m.branches[name]
	if !ok || name == m.base {
		return "", fmt.Errorf("merging %s: %w", name, perrors.ErrNotFound)
	}
	base := m.branches[m.base]

	paths := make(map[string]bool)
	for p := range b.files {
		paths[p] = true
	}
	for p := range b.forked {
		paths[p] = true
	}

	changes := make(map[string]*string)
	for p := range paths {
		mine, inMine := b.files[p]
		orig, inOrig := b.forked[p]
		if inMine == inOrig && mine == orig {
			continue
		}
		theirs, inTheirs := base.files[p]
		baseMoved := inTheirs != inOrig || theirs != orig
		if baseMoved && (inTheirs != inMine || theirs != mine) {
			return "", fmt.Errorf("merging %s: %w: %s changed on both sides", name, perrors.ErrConflict, p)
		}
		if inMine {
			v := mine
			changes[p] = &v
		} else {
			changes[p] = nil
		}
	}

	for p, c := range changes {
		if c == nil {
			delete(base.files, p)
		} else {
			base.files[p] = *c
		}
	}
	base.head = m.commitLocked(m.base, "Merge branch "+name)
	b.forked = copyFiles(base.files)

	if deleteAfter {
		if err := m.deleteBranchLocked(name); err != nil {
			return base.head, err
		}
	}
	return base.head, nil
}

func (m *MemoryStore) ListBranches(_ context.Context, prefix string) ([]Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("list_branches"); err != nil {
		return nil, err
	}
	var out []Branch
	for name, b := range m.branches {
		if strings.HasPrefix(name, prefix) {
			out = append(out, Branch{Name: name, SHA: b.head})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) Changes(_ context.Context, branch string) ([]Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("changes"); err != nil {
		return nil, err
	}
	b, ok := m.branches[branch]
	if !ok || branch == m.base {
		return nil, fmt.Errorf("comparing %s: %w", branch, perrors.ErrNotFound)
	}
	var out []Change
	for p, c := range b.files {
		orig, inOrig := b.forked[p]
		switch {
		case !inOrig:
			out = append(out, Change{Path: p, Status: Added})
		case orig != c:
			out = append(out, Change{Path: p, Status: Modified})
		}
	}
	for p := range b.forked {
		if _, ok := b.files[p]; !ok {
			out = append(out, Change{Path: p, Status: Removed})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func copyFiles(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cleanPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
