package catalog

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/logfields"
	"git.home.luguber.info/inful/linkscan/internal/retry"
)

// GitSource keeps a content directory in sync with a remote repository.
type GitSource struct {
	URL    string
	Branch string
	Token  string
	Dir    string
	Retry  retry.Policy
}

// Sync clones the repository into Dir, or pulls when a clone exists.
func (g GitSource) Sync(ctx context.Context) error {
	if g.URL == "" || g.Dir == "" {
		return errors.ConfigError("git source needs url and dir").Build()
	}
	if err := g.checkDir(); err != nil {
		return err
	}
	policy := g.Retry
	if policy.Initial == 0 {
		policy = retry.DefaultPolicy()
	}
	err := policy.Do(ctx, func() error { return g.syncOnce(ctx) }, isTransient)
	if err != nil {
		return errors.WrapError(err, errors.CategoryCatalog, "failed to sync content repository").
			WithContext("url", g.URL).Build()
	}
	return nil
}

func (g GitSource) syncOnce(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(g.Dir, ".git")); err == nil {
		return g.pull(ctx)
	}
	opts := &git.CloneOptions{URL: g.URL, Auth: g.auth()}
	if g.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
		opts.SingleBranch = true
	}
	repo, err := git.PlainCloneContext(ctx, g.Dir, false, opts)
	if err != nil {
		return err
	}
	if ref, herr := repo.Head(); herr == nil {
		slog.Info("Content repository cloned", logfields.URL(g.URL), slog.String("commit", ref.Hash().String()[:8]))
	}
	return nil
}

// checkDir refuses to clone over a directory that holds content but is not
// a git checkout.
func (g GitSource) checkDir() error {
	if _, err := os.Stat(filepath.Join(g.Dir, ".git")); err == nil {
		return nil
	}
	entries, err := os.ReadDir(g.Dir)
	if err != nil || len(entries) == 0 {
		return nil
	}
	return errors.ConfigError("content directory is not empty and is not a git checkout").
		WithContext("dir", g.Dir).
		WithContext("url", g.URL).
		Build()
}

func (g GitSource) pull(ctx context.Context) error {
	repo, err := git.PlainOpen(g.Dir)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	opts := &git.PullOptions{RemoteName: "origin", Auth: g.auth()}
	if g.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
		opts.SingleBranch = true
	}
	err = wt.PullContext(ctx, opts)
	if stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		slog.Debug("Content repository already up to date", logfields.URL(g.URL))
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("Content repository updated", logfields.URL(g.URL))
	return nil
}

func (g GitSource) auth() transport.AuthMethod {
	if g.Token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "token", Password: g.Token}
}

// isTransient treats everything except auth and missing-repo failures as retryable.
func isTransient(err error) bool {
	switch {
	case stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed),
		stderrors.Is(err, transport.ErrRepositoryNotFound),
		stderrors.Is(err, context.Canceled):
		return false
	}
	return true
}
