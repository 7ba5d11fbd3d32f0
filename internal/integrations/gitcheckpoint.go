// File: internal/integrations/gitcheckpoint.go
// Description: Commits the mission workspace after each completed stage so
// every stage boundary has a recoverable snapshot in version history.

package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/xkilldash9x/missionctl/api/schemas"
)

// GitCheckpointer commits the workspace on STAGE_COMPLETED and
// MISSION_COMPLETED. The repository is initialized on first use if the
// workspace is not one already.
type GitCheckpointer struct {
	log           *zap.Logger
	workspacePath string
	authorName    string
	authorEmail   string
}

// NewGitCheckpointer creates the git subscriber for the given workspace.
func NewGitCheckpointer(logger *zap.Logger, workspacePath, authorName, authorEmail string) *GitCheckpointer {
	return &GitCheckpointer{
		log:           logger.Named("git_checkpointer"),
		workspacePath: workspacePath,
		authorName:    authorName,
		authorEmail:   authorEmail,
	}
}

func (g *GitCheckpointer) Name() string { return "git_checkpointer" }

func (g *GitCheckpointer) Subscriptions() []schemas.EventType {
	return []schemas.EventType{schemas.EventStageCompleted, schemas.EventMissionCompleted}
}

// HandleEvent stages everything in the workspace and commits it. A clean
// worktree is not an error; the commit is simply skipped.
func (g *GitCheckpointer) HandleEvent(ctx context.Context, ev schemas.Event) error {
	repo, err := git.PlainOpen(g.workspacePath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(g.workspacePath, false)
	}
	if err != nil {
		return fmt.Errorf("opening workspace repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("resolving worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("staging workspace: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("reading worktree status: %w", err)
	}
	if status.IsClean() {
		g.log.Debug("Workspace clean; skipping checkpoint commit",
			zap.String("mission_id", ev.MissionID),
			zap.String("stage", string(ev.Stage)))
		return nil
	}

	msg := fmt.Sprintf("mission %s: %s (%s)", ev.MissionID, ev.Stage, ev.Type)
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.authorName,
			Email: g.authorEmail,
			When:  time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("committing checkpoint: %w", err)
	}

	g.log.Info("Workspace checkpoint committed",
		zap.String("mission_id", ev.MissionID),
		zap.String("stage", string(ev.Stage)),
		zap.String("commit", hash.String()))
	return nil
}
