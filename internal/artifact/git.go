package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// commit records the plugin files in a repository rooted at dir. The
// repository is created on first use and gets an origin remote when the
// metadata names one.
func (w *Writer) commit(ctx context.Context, dir string, a Artifact) error {
	repo, err := git.PlainInit(dir, false)
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		repo, err = git.PlainOpen(dir)
	}
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}

	if url := a.Metadata.Metadata.RepoURL; url != "" {
		_, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{url}})
		if err != nil && !errors.Is(err, git.ErrRemoteExists) {
			return fmt.Errorf("adding origin remote: %w", err)
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("staging files: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	hash, err := wt.Commit(fmt.Sprintf("Generate %s %s", a.Name, a.Metadata.VersionOrDefault()), &git.CommitOptions{
		Author: &object.Signature{
			Name:  orDefault(w.opts.GitAuthor, defaultAuthor),
			Email: w.opts.GitEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.logger.Debug(ctx, "committed plugin", zap.String("commit", hash.String()))
	return nil
}
