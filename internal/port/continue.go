package port

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leeroybrun/happy-stacks/internal/gitx"
)

// ContinueOpts configures the conflict-continue operation.
type ContinueOpts struct {
	Target string
	Stage  bool // stage resolved files before continuing
}

// ContinueResult reports what a continue achieved.
type ContinueResult struct {
	Advanced        bool     `json:"advanced"`
	Drained         bool     `json:"drained"` // am session fully consumed
	Resumed         *Result  `json:"resumed,omitempty"`
	PlanDeleted     bool     `json:"planDeleted,omitempty"`
	ConflictedFiles []string `json:"conflictedFiles,omitempty"`
	Message         string   `json:"message,omitempty"`
}

// Continue advances an in-progress am session in the target repository.
// When the session drains and a persisted plan exists, the remaining
// sources are transparently resumed and the plan is deleted on success.
func (e *Engine) Continue(ctx context.Context, opts ContinueOpts) (*ContinueResult, error) {
	repo := gitx.NewRepo(e.git, opts.Target)
	if !repo.IsRepo(ctx) {
		return nil, fmt.Errorf("target %s is not a git repository", opts.Target)
	}
	gitDir, err := repo.GitDir(ctx)
	if err != nil {
		return nil, err
	}

	st, err := e.readAmState(ctx, opts.Target)
	if err != nil {
		return nil, err
	}
	if !st.InProgress {
		// Nothing mid-flight. A leftover plan means a previous guide was
		// quit between patches: resume it.
		plan, err := LoadPlan(gitDir)
		if err != nil {
			return nil, err
		}
		if plan == nil {
			return &ContinueResult{Drained: true, Message: "no git am session in progress and no port plan found"}, nil
		}
		return e.resumePlan(ctx, gitDir, opts.Target, plan)
	}

	candidates := st.ConflictedFiles
	if len(candidates) > 0 && !opts.Stage {
		return nil, fmt.Errorf(
			"unmerged files remain:\n  %s\nresolve them, then run `git add %s` (or re-run with --stage)",
			strings.Join(candidates, "\n  "), strings.Join(candidates, " "))
	}

	if opts.Stage {
		var dirty []string
		for _, f := range candidates {
			if hasConflictMarkers(repoPath(opts.Target, f)) {
				dirty = append(dirty, f)
			}
		}
		if len(dirty) > 0 {
			return nil, fmt.Errorf(
				"conflict markers still present in:\n  %s\nfinish resolving before continuing",
				strings.Join(dirty, "\n  "))
		}
		if len(candidates) > 0 {
			args := append([]string{"add", "-A", "--"}, candidates...)
			if _, err := e.git.Run(ctx, opts.Target, args...); err != nil {
				return nil, fmt.Errorf("stage resolved files: %w", err)
			}
		}
	}

	if err := e.amContinue(ctx, opts.Target); err != nil {
		after, stErr := e.readAmState(ctx, opts.Target)
		if stErr == nil && len(after.ConflictedFiles) > 0 {
			return nil, fmt.Errorf(
				"git am --continue failed; still conflicted:\n  %s\nresolve and re-run `happys monorepo port continue --stage`",
				strings.Join(after.ConflictedFiles, "\n  "))
		}
		return nil, fmt.Errorf("git am --continue: %s", gitx.OutputOf(err))
	}

	res := &ContinueResult{Advanced: true}
	after, err := e.readAmState(ctx, opts.Target)
	if err != nil {
		return res, nil
	}
	if after.InProgress {
		res.ConflictedFiles = after.ConflictedFiles
		res.Message = "am session still in progress"
		return res, nil
	}
	res.Drained = true

	plan, err := LoadPlan(gitDir)
	if err != nil || plan == nil {
		return res, nil
	}
	resumed, rerr := e.resumePlan(ctx, gitDir, opts.Target, plan)
	if rerr != nil {
		return res, rerr
	}
	res.Resumed = resumed.Resumed
	res.PlanDeleted = resumed.PlanDeleted
	return res, nil
}

// resumePlan re-runs the plan's sources onto the current HEAD. Already
// transplanted commits classify as skippedAlreadyApplied, so replaying the
// whole plan is the resume mechanism. The plan is deleted only on clean
// completion.
func (e *Engine) resumePlan(ctx context.Context, gitDir, target string, plan *Plan) (*ContinueResult, error) {
	e.logf("resuming port plan (%d source(s))", len(plan.Sources))
	var specs []SourceSpec
	for _, s := range plan.Sources {
		specs = append(specs, SourceSpec{
			Label:     s.Label,
			PathOrURL: s.PathOrURL,
			BaseRef:   s.BaseRef,
			HeadRef:   s.HeadRef,
		})
	}
	result, err := e.Run(ctx, Options{
		Target:      target,
		OntoCurrent: true,
		Use3Way:     plan.Use3Way,
		Sources:     specs,
		allowDirty:  true,
	})
	if err != nil {
		return nil, err
	}
	res := &ContinueResult{Advanced: true, Drained: !result.Stopped, Resumed: result}
	if result.OK {
		if err := DeletePlan(gitDir); err != nil {
			return res, fmt.Errorf("delete port plan: %w", err)
		}
		res.PlanDeleted = true
	}
	return res, nil
}

func repoPath(root, rel string) string {
	return filepath.Join(root, rel)
}
