package docstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	gh "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/liftlog/internal/errors"
	"github.com/p-blackswan/liftlog/internal/metrics"
)

// GitHubConfig identifies the data repository.
type GitHubConfig struct {
	Owner      string
	Repo       string
	BaseBranch string
	// BaseURL overrides the API root, e.g. for GitHub Enterprise or tests.
	BaseURL string
}

// GitHubStore implements Store over the GitHub contents, refs and merges API.
type GitHubStore struct {
	client  *gh.Client
	config  GitHubConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// GitHubOption customizes a GitHubStore.
type GitHubOption func(*githubOptions)

type githubOptions struct {
	metrics   *metrics.Metrics
	transport http.RoundTripper
}

// WithMetrics records every call in m.
func WithMetrics(m *metrics.Metrics) GitHubOption {
	return func(o *githubOptions) { o.metrics = m }
}

// WithTransport sets the underlying transport below the bearer credential.
func WithTransport(rt http.RoundTripper) GitHubOption {
	return func(o *githubOptions) { o.transport = rt }
}

// NewGitHubStore creates a store authenticated by tokens.
func NewGitHubStore(cfg GitHubConfig, tokens TokenSource, logger zerolog.Logger, opts ...GitHubOption) (*GitHubStore, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github store: %w: owner and repo are required", perrors.ErrInvalidInput)
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	var o githubOptions
	for _, fn := range opts {
		fn(&o)
	}

	client := gh.NewClient(NewHTTPClient(tokens, o.transport))
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		client.BaseURL = u
	}

	return &GitHubStore{
		client:  client,
		config:  cfg,
		metrics: o.metrics,
		logger:  logger.With().Str("component", "docstore").Str("repo", cfg.Owner+"/"+cfg.Repo).Logger(),
	}, nil
}

// BaseBranch returns the branch documents are read from by default.
func (s *GitHubStore) BaseBranch() string { return s.config.BaseBranch }

func (s *GitHubStore) ref(opts []Option) string {
	if b := applyOptions(opts).branch; b != "" {
		return b
	}
	return s.config.BaseBranch
}

func (s *GitHubStore) Read(ctx context.Context, p string, opts ...Option) (doc *Document, err error) {
	defer s.observe("read", time.Now(), &err)
	p = cleanPath(p)
	file, _, resp, err := s.client.Repositories.GetContents(ctx, s.config.Owner, s.config.Repo, p,
		&gh.RepositoryContentGetOptions{Ref: s.ref(opts)})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, classify(resp, err, false))
	}
	if file == nil {
		return nil, fmt.Errorf("reading %s: %w: path is a directory", p, perrors.ErrInvalidInput)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", p, err)
	}
	return &Document{Path: p, Content: content, SHA: file.GetSHA()}, nil
}

func (s *GitHubStore) Write(ctx context.Context, p, content, expectedSHA, message string, opts ...Option) (sha string, err error) {
	defer s.observe("write", time.Now(), &err)
	p = cleanPath(p)
	branch := s.ref(opts)

	sha = expectedSHA
	conditional := expectedSHA != ""
	if !conditional {
		file, _, resp, err := s.client.Repositories.GetContents(ctx, s.config.Owner, s.config.Repo, p,
			&gh.RepositoryContentGetOptions{Ref: branch})
		switch {
		case err == nil && file != nil:
			sha = file.GetSHA()
		case err != nil && !errors.Is(classify(resp, err, false), perrors.ErrNotFound):
			return "", fmt.Errorf("writing %s: looking up current version: %w", p, classify(resp, err, false))
		}
	}

	fileOpts := &gh.RepositoryContentFileOptions{
		Message: gh.String(message),
		Content: []byte(content),
		Branch:  gh.String(branch),
	}
	var (
		out  *gh.RepositoryContentResponse
		resp *gh.Response
	)
	if sha == "" {
		// A 422 here means someone created the file after our lookup.
		out, resp, err = s.client.Repositories.CreateFile(ctx, s.config.Owner, s.config.Repo, p, fileOpts)
		conditional = true
	} else {
		fileOpts.SHA = gh.String(sha)
		out, resp, err = s.client.Repositories.UpdateFile(ctx, s.config.Owner, s.config.Repo, p, fileOpts)
	}
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", p, classify(resp, err, conditional))
	}

	newSHA := out.GetContent().GetSHA()
	s.logger.Debug().Str("path", p).Str("branch", branch).Str("sha", shortSHA(newSHA)).Msg("document written")
	return newSHA, nil
}

func (s *GitHubStore) Delete(ctx context.Context, p, expectedSHA, message string, opts ...Option) (err error) {
	defer s.observe("delete", time.Now(), &err)
	p = cleanPath(p)
	branch := s.ref(opts)
	_, resp, err := s.client.Repositories.DeleteFile(ctx, s.config.Owner, s.config.Repo, p, &gh.RepositoryContentFileOptions{
		Message: gh.String(message),
		SHA:     gh.String(expectedSHA),
		Branch:  gh.String(branch),
	})
	if err != nil {
		err = classify(resp, err, false)
		if isStatus(resp, http.StatusUnprocessableEntity) {
			err = fmt.Errorf("%w: %w", perrors.ErrConflict, err)
		}
		return fmt.Errorf("deleting %s: %w", p, err)
	}
	s.logger.Debug().Str("path", p).Str("branch", branch).Msg("document deleted")
	return nil
}

func (s *GitHubStore) List(ctx context.Context, dir string, opts ...Option) (names []string, err error) {
	defer s.observe("list", time.Now(), &err)
	dir = cleanPath(dir)
	file, entries, resp, err := s.client.Repositories.GetContents(ctx, s.config.Owner, s.config.Repo, dir,
		&gh.RepositoryContentGetOptions{Ref: s.ref(opts)})
	if err != nil {
		err = classify(resp, err, false)
		if errors.Is(err, perrors.ErrNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	if file != nil {
		return []string{}, nil
	}
	names = make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, path.Base(e.GetPath()))
	}
	sort.Strings(names)
	return names, nil
}

func (s *GitHubStore) CreateBranch(ctx context.Context, name string) (b *Branch, err error) {
	defer s.observe("create_branch", time.Now(), &err)
	base, resp, err := s.client.Git.GetRef(ctx, s.config.Owner, s.config.Repo, "refs/heads/"+s.config.BaseBranch)
	if err != nil {
		return nil, fmt.Errorf("getting base ref: %w", classify(resp, err, false))
	}

	ref, resp, err := s.client.Git.CreateRef(ctx, s.config.Owner, s.config.Repo, &gh.Reference{
		Ref:    gh.String("refs/heads/" + name),
		Object: &gh.GitObject{SHA: base.Object.SHA},
	})
	if err != nil {
		err = classify(resp, err, false)
		if isStatus(resp, http.StatusUnprocessableEntity) {
			// "Reference already exists"
			err = fmt.Errorf("%w: %w", perrors.ErrConflict, err)
		}
		return nil, fmt.Errorf("creating branch %s: %w", name, err)
	}
	s.logger.Info().Str("branch", name).Msg("branch created")
	return &Branch{Name: name, SHA: ref.GetObject().GetSHA()}, nil
}

func (s *GitHubStore) DeleteBranch(ctx context.Context, name string) (err error) {
	defer s.observe("delete_branch", time.Now(), &err)
	if name == s.config.BaseBranch {
		return fmt.Errorf("deleting branch %s: %w: base branch", name, perrors.ErrInvalidInput)
	}
	resp, err := s.client.Git.DeleteRef(ctx, s.config.Owner, s.config.Repo, "refs/heads/"+name)
	if err != nil {
		err = classify(resp, err, false)
		if isStatus(resp, http.StatusUnprocessableEntity) {
			// "Reference does not exist"
			err = fmt.Errorf("%w: %w", perrors.ErrNotFound, err)
		}
		return fmt.Errorf("deleting branch %s: %w", name, err)
	}
	s.logger.Info().Str("branch", name).Msg("branch deleted")
	return nil
}

func (s *GitHubStore) MergeBranch(ctx context.Context, name string, deleteAfter bool) (sha string, err error) {
	defer s.observe("merge", time.Now(), &err)
	commit, resp, err := s.client.Repositories.Merge(ctx, s.config.Owner, s.config.Repo, &gh.RepositoryMergeRequest{
		Base:          gh.String(s.config.BaseBranch),
		Head:          gh.String(name),
		CommitMessage: gh.String("Merge branch " + name),
	})
	if err != nil {
		return "", fmt.Errorf("merging %s: %w", name, classify(resp, err, false))
	}

	if isStatus(resp, http.StatusNoContent) {
		// Nothing to merge: the base already contains the branch.
		base, resp, err := s.client.Git.GetRef(ctx, s.config.Owner, s.config.Repo, "refs/heads/"+s.config.BaseBranch)
		if err != nil {
			return "", fmt.Errorf("getting base ref: %w", classify(resp, err, false))
		}
		sha = base.GetObject().GetSHA()
	} else {
		sha = commit.GetSHA()
	}
	s.logger.Info().Str("branch", name).Str("sha", shortSHA(sha)).Msg("branch merged")

	if deleteAfter {
		if err := s.DeleteBranch(ctx, name); err != nil {
			return sha, err
		}
	}
	return sha, nil
}

func (s *GitHubStore) ListBranches(ctx context.Context, prefix string) (out []Branch, err error) {
	defer s.observe("list_branches", time.Now(), &err)
	opts := &gh.BranchListOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		branches, resp, err := s.client.Repositories.ListBranches(ctx, s.config.Owner, s.config.Repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing branches: %w", classify(resp, err, false))
		}
		for _, b := range branches {
			if strings.HasPrefix(b.GetName(), prefix) {
				out = append(out, Branch{Name: b.GetName(), SHA: b.GetCommit().GetSHA()})
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Changes compares the branch against the base from their merge base, so
// commits that landed on the base after the fork are not reported.
func (s *GitHubStore) Changes(ctx context.Context, branch string) (out []Change, err error) {
	defer s.observe("changes", time.Now(), &err)
	cmp, resp, err := s.client.Repositories.CompareCommits(ctx, s.config.Owner, s.config.Repo, s.config.BaseBranch, branch, nil)
	if err != nil {
		return nil, fmt.Errorf("comparing %s: %w", branch, classify(resp, err, false))
	}
	for _, f := range cmp.Files {
		switch f.GetStatus() {
		case "added", "copied":
			out = append(out, Change{Path: f.GetFilename(), Status: Added})
		case "removed":
			out = append(out, Change{Path: f.GetFilename(), Status: Removed})
		case "renamed":
			out = append(out,
				Change{Path: f.GetPreviousFilename(), Status: Removed},
				Change{Path: f.GetFilename(), Status: Added})
		default:
			out = append(out, Change{Path: f.GetFilename(), Status: Modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *GitHubStore) observe(op string, started time.Time, errp *error) {
	s.metrics.ObserveStore(op, started, *errp)
	if *errp != nil && !errors.Is(*errp, perrors.ErrNotFound) {
		s.logger.Warn().Err(*errp).Str("op", op).Msg("store call failed")
	}
}

// classify turns a go-github error into an APIError carrying the HTTP status.
// On conditional writes a 404 or 422 means the version we hold is gone, which
// is reported as a conflict.
func classify(resp *gh.Response, err error, conditional bool) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	var rle *gh.RateLimitError
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &rle) || errors.As(err, &abuse) {
		status = http.StatusTooManyRequests
	}
	if conditional && (status == http.StatusNotFound || status == http.StatusUnprocessableEntity) {
		status = http.StatusConflict
	}
	return &perrors.APIError{Service: "github", StatusCode: status, Message: http.StatusText(status), Err: err}
}

func isStatus(resp *gh.Response, code int) bool {
	return resp != nil && resp.Response != nil && resp.StatusCode == code
}
