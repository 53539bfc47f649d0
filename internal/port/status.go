package port

import (
	"context"
	"fmt"

	"github.com/leeroybrun/happy-stacks/internal/gitx"
)

// StatusInfo is the inspectable state of a target repository with respect
// to porting.
type StatusInfo struct {
	Target          string   `json:"target"`
	Branch          string   `json:"branch"`
	AmInProgress    bool     `json:"amInProgress"`
	ConflictedFiles []string `json:"conflictedFiles,omitempty"`
	CurrentPatch    string   `json:"currentPatch,omitempty"`
	HasPlan         bool     `json:"hasPlan"`
	PlanSources     int      `json:"planSources,omitempty"`
	NextCommand     string   `json:"nextCommand,omitempty"`
}

// Status inspects the target for an in-progress port.
func (e *Engine) Status(ctx context.Context, target string) (*StatusInfo, error) {
	repo := gitx.NewRepo(e.git, target)
	if !repo.IsRepo(ctx) {
		return nil, fmt.Errorf("target %s is not a git repository", target)
	}
	gitDir, err := repo.GitDir(ctx)
	if err != nil {
		return nil, err
	}

	info := &StatusInfo{Target: target}
	if branch, err := repo.CurrentBranch(ctx); err == nil {
		info.Branch = branch
	}

	st, err := e.readAmState(ctx, target)
	if err != nil {
		return nil, err
	}
	info.AmInProgress = st.InProgress
	info.ConflictedFiles = st.ConflictedFiles
	info.CurrentPatch = st.CurrentPatch

	plan, err := LoadPlan(gitDir)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		info.HasPlan = true
		info.PlanSources = len(plan.Sources)
	}

	switch {
	case st.InProgress && len(st.ConflictedFiles) > 0:
		info.NextCommand = "happys monorepo port continue --stage"
	case st.InProgress:
		info.NextCommand = "happys monorepo port continue"
	case info.HasPlan:
		info.NextCommand = "happys monorepo port guide"
	}
	return info, nil
}
