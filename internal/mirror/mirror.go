// Package mirror keeps a local clone of the data repository for bulk reads
// and for jobs that commit several files at once. It does no locking of its
// own: one Mirror owns one directory and callers serialize access.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/internal/metrics"
)

// TokenSource supplies the credential embedded in the remote URL.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config describes the clone.
type Config struct {
	Dir         string
	RemoteURL   string // e.g. https://github.com/athlete/training.git
	BaseBranch  string
	GitBinary   string
	AuthorName  string
	AuthorEmail string
}

// Mirror is a local checkout of the remote repository.
type Mirror struct {
	cfg     Config
	tokens  TokenSource
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a Mirror. tokens may be nil for remotes that need no
// credential, such as a local bare repository.
func New(cfg Config, tokens TokenSource, m *metrics.Metrics, logger zerolog.Logger) *Mirror {
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if cfg.GitBinary == "" {
		cfg.GitBinary = "git"
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = "liftlog"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "liftlog@users.noreply.github.com"
	}
	return &Mirror{
		cfg:     cfg,
		tokens:  tokens,
		metrics: m,
		logger:  logger.With().Str("component", "mirror").Str("dir", cfg.Dir).Logger(),
	}
}

// Path returns the local checkout directory.
func (m *Mirror) Path() string { return m.cfg.Dir }

// Sync brings the checkout in line with the remote base branch and returns
// its path. The first call clones and fails hard. Later calls discard local
// changes; if the credential, fetching or resetting fails the stale checkout
// is returned and the failure is only logged.
func (m *Mirror) Sync(ctx context.Context) (string, error) {
	remote, err := m.remoteURL(ctx)
	if err != nil && m.cloned() {
		m.metrics.RecordMirrorStep("credential", err)
		m.logger.Warn().Err(err).Msg("credential unavailable, serving stale checkout")
		return m.cfg.Dir, nil
	}
	if err != nil {
		return "", err
	}

	if !m.cloned() {
		if err := os.MkdirAll(filepath.Dir(m.cfg.Dir), 0o755); err != nil {
			return "", fmt.Errorf("creating mirror parent: %w", err)
		}
		_, err := m.git(ctx, "", "clone", "--branch", m.cfg.BaseBranch, remote, m.cfg.Dir)
		m.metrics.RecordMirrorStep("clone", err)
		if err != nil {
			return "", fmt.Errorf("cloning %s: %w", Redact(remote), err)
		}
		m.logger.Info().Str("remote", Redact(remote)).Msg("cloned data repository")
		return m.cfg.Dir, nil
	}

	// The credential may have rotated since the clone.
	if _, err := m.git(ctx, m.cfg.Dir, "remote", "set-url", "origin", remote); err != nil {
		m.logger.Warn().Err(err).Msg("updating remote URL failed")
	}

	_, err = m.git(ctx, m.cfg.Dir, "fetch", "--prune", "origin")
	m.metrics.RecordMirrorStep("fetch", err)
	if err != nil {
		m.logger.Warn().Err(err).Msg("fetch failed, serving stale checkout")
		return m.cfg.Dir, nil
	}

	steps := [][]string{
		{"checkout", "--force", m.cfg.BaseBranch},
		{"reset", "--hard", "origin/" + m.cfg.BaseBranch},
		{"clean", "-fd"},
	}
	for _, args := range steps {
		_, err := m.git(ctx, m.cfg.Dir, args...)
		m.metrics.RecordMirrorStep(args[0], err)
		if err != nil {
			m.logger.Warn().Err(err).Str("step", args[0]).Msg("reset failed, serving stale checkout")
			return m.cfg.Dir, nil
		}
	}
	m.logger.Debug().Msg("mirror synced")
	return m.cfg.Dir, nil
}

// CommitAndPush stages everything, commits and pushes the current branch.
// A clean tree is a no-op.
func (m *Mirror) CommitAndPush(ctx context.Context, message string) error {
	if _, err := m.git(ctx, m.cfg.Dir, "add", "-A"); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}
	status, err := m.git(ctx, m.cfg.Dir, "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}
	if status == "" {
		m.logger.Debug().Msg("nothing to commit")
		return nil
	}

	_, err = m.git(ctx, m.cfg.Dir,
		"-c", "user.name="+m.cfg.AuthorName,
		"-c", "user.email="+m.cfg.AuthorEmail,
		"commit", "-m", message)
	m.metrics.RecordMirrorStep("commit", err)
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	branch, err := m.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	args := []string{"push", "origin", branch}
	if _, err := m.git(ctx, m.cfg.Dir, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}"); err != nil {
		args = []string{"push", "--set-upstream", "origin", branch}
	}
	_, err = m.git(ctx, m.cfg.Dir, args...)
	m.metrics.RecordMirrorStep("push", err)
	if err != nil {
		return fmt.Errorf("pushing %s: %w", branch, err)
	}
	m.logger.Info().Str("branch", branch).Str("message", message).Msg("pushed mirror commit")
	return nil
}

// CurrentBranch returns the checked out branch name.
func (m *Mirror) CurrentBranch(ctx context.Context) (string, error) {
	branch, err := m.git(ctx, m.cfg.Dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving branch: %w", err)
	}
	return branch, nil
}

// ReadFile reads a repository-relative, slash-separated path.
func (m *Mirror) ReadFile(rel string) ([]byte, error) {
	full, err := m.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", rel, perrors.ErrNotFound)
	}
	return data, err
}

// Stat describes a repository-relative path.
func (m *Mirror) Stat(rel string) (fs.FileInfo, error) {
	full, err := m.resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", rel, perrors.ErrNotFound)
	}
	return info, err
}

// WriteFile writes a repository-relative path, creating parent directories.
// The change is local until CommitAndPush.
func (m *Mirror) WriteFile(rel string, data []byte) error {
	full, err := m.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", rel, err)
	}
	return os.WriteFile(full, data, 0o644)
}

// Glob returns the sorted repository-relative paths matching pattern.
func (m *Mirror) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(m.cfg.Dir, filepath.FromSlash(pattern)))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, perrors.ErrInvalidInput)
	}
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		rel, err := filepath.Rel(m.cfg.Dir, match)
		if err != nil {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)
	return out, nil
}

func (m *Mirror) resolve(rel string) (string, error) {
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("path %q: %w: outside the repository", rel, perrors.ErrInvalidInput)
	}
	return filepath.Join(m.cfg.Dir, local), nil
}

func (m *Mirror) cloned() bool {
	info, err := os.Stat(filepath.Join(m.cfg.Dir, ".git"))
	return err == nil && info.IsDir()
}

func (m *Mirror) remoteURL(ctx context.Context) (string, error) {
	if m.tokens == nil {
		return m.cfg.RemoteURL, nil
	}
	token, err := m.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving mirror credential: %w", err)
	}
	return AuthenticatedURL(m.cfg.RemoteURL, token)
}

// git runs the git binary, in dir when it is set, and returns trimmed stdout.
func (m *Mirror) git(ctx context.Context, dir string, args ...string) (string, error) {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, m.cfg.GitBinary, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", gitVerb(args), err, RedactText(strings.TrimSpace(stderr.String())))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func gitVerb(args []string) string {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-C", "-c":
			i++
		default:
			return args[i]
		}
	}
	return ""
}

// AuthenticatedURL embeds token in the userinfo of an HTTP(S) remote. Other
// remotes, and an empty token, pass through unchanged.
func AuthenticatedURL(remote, token string) (string, error) {
	if token == "" {
		return remote, nil
	}
	u, err := url.Parse(remote)
	if err != nil {
		return "", fmt.Errorf("parsing remote URL: %w", perrors.ErrInvalidInput)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return remote, nil
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String(), nil
}

// Redact hides the password of a URL for logging.
func Redact(remote string) string {
	u, err := url.Parse(remote)
	if err != nil || u.User == nil {
		return remote
	}
	return u.Redacted()
}

// RedactText hides credentials in free text such as git's stderr.
func RedactText(s string) string {
	fields := strings.Fields(s)
	for _, f := range fields {
		trimmed := strings.Trim(f, `'"`)
		if strings.Contains(trimmed, "@") && strings.Contains(trimmed, "://") {
			s = strings.ReplaceAll(s, trimmed, Redact(trimmed))
		}
	}
	return s
}
