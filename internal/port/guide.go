package port

import (
	"context"
	"fmt"
	"strings"

	"github.com/leeroybrun/happy-stacks/internal/component"
	"github.com/leeroybrun/happy-stacks/internal/gitx"
	"github.com/leeroybrun/happy-stacks/internal/llmtool"
	"github.com/leeroybrun/happy-stacks/internal/termio"
)

// GuideOpts configures the interactive guide.
type GuideOpts struct {
	Target             string
	DisableLLMAutoExec bool
}

// GuideResult reports how the guide ended.
type GuideResult struct {
	OK         bool `json:"ok"`
	InProgress bool `json:"inProgress"` // quit with a resumable plan left behind
	Aborted    bool `json:"aborted"`
}

// Guide runs the interactive port flow: prompt for target/base/branch/3-way
// and sources, preflight, persist a plan, apply, and drive the conflict
// loop. Re-entering with a persisted plan resumes without re-prompting and
// without requiring a clean worktree.
func (e *Engine) Guide(ctx context.Context, tio *termio.IO, opts GuideOpts) (*GuideResult, error) {
	repo := gitx.NewRepo(e.git, opts.Target)
	if !repo.IsRepo(ctx) {
		return nil, fmt.Errorf("target %s is not a git repository", opts.Target)
	}
	gitDir, err := repo.GitDir(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := LoadPlan(gitDir)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		return e.resumeGuide(ctx, tio, opts, gitDir, plan)
	}

	plan, runOpts, err := e.promptPlan(ctx, tio, opts, repo, gitDir)
	if err != nil {
		return nil, err
	}

	e.logf("running preflight")
	pf, err := e.Preflight(ctx, *runOpts)
	if err != nil {
		return nil, err
	}
	if pf.OK {
		fmt.Fprintln(tio.Out(), "preflight: all patches apply cleanly")
	} else if pf.FirstConflict != nil {
		fmt.Fprintf(tio.Out(), "preflight: conflicts expected in:\n  %s\n",
			strings.Join(pf.FirstConflict.ConflictedFiles, "\n  "))
		cont, err := tio.Confirm("continue anyway", true)
		if err != nil {
			return nil, err
		}
		if !cont {
			return &GuideResult{Aborted: true}, nil
		}
	}

	if err := SavePlan(gitDir, plan); err != nil {
		return nil, err
	}

	result, err := e.Run(ctx, *runOpts)
	if err != nil {
		return nil, err
	}
	if result.OK {
		if err := DeletePlan(gitDir); err != nil {
			return nil, err
		}
		return &GuideResult{OK: true}, nil
	}
	return e.conflictLoop(ctx, tio, opts, gitDir)
}

// resumeGuide continues a previously persisted plan: no clean-worktree
// requirement, no re-prompting, and an in-progress am drops straight into
// the conflict loop.
func (e *Engine) resumeGuide(ctx context.Context, tio *termio.IO, opts GuideOpts, gitDir string, plan *Plan) (*GuideResult, error) {
	fmt.Fprintf(tio.Out(), "found a port plan from %s — resuming\n", plan.CreatedAt)

	if amInProgressDir(gitDir) {
		return e.conflictLoop(ctx, tio, opts, gitDir)
	}

	res, err := e.resumePlan(ctx, gitDir, opts.Target, plan)
	if err != nil {
		return nil, err
	}
	if res.Resumed != nil && res.Resumed.OK {
		return &GuideResult{OK: true}, nil
	}
	return e.conflictLoop(ctx, tio, opts, gitDir)
}

// promptPlan interviews the operator and builds the plan plus run options.
func (e *Engine) promptPlan(ctx context.Context, tio *termio.IO, opts GuideOpts, repo *gitx.Repo, gitDir string) (*Plan, *Options, error) {
	if !tio.IsTTY() {
		return nil, nil, fmt.Errorf("the guide needs a terminal; use `happys monorepo port run` with flags for non-interactive ports")
	}

	defaultBase, err := e.resolveDefaultBase(ctx, repo)
	if err != nil {
		defaultBase = ""
	}
	base, err := tio.Prompt("base ref", defaultBase)
	if err != nil {
		return nil, nil, err
	}
	branch, err := tio.Prompt("new branch name", "monorepo-port")
	if err != nil {
		return nil, nil, err
	}
	use3way, err := tio.Confirm("use 3-way merge", true)
	if err != nil {
		return nil, nil, err
	}

	var specs []SourceSpec
	var planSources []PlanSource
	for _, label := range component.Known() {
		pathOrURL, err := tio.Prompt(fmt.Sprintf("source for %s (path, URL, or PR; empty to skip)", label), "")
		if err != nil {
			return nil, nil, err
		}
		if pathOrURL == "" {
			continue
		}
		baseRef, err := tio.Prompt(fmt.Sprintf("%s base ref", label), "")
		if err != nil {
			return nil, nil, err
		}
		headRef, err := tio.Prompt(fmt.Sprintf("%s head ref (empty for HEAD)", label), "")
		if err != nil {
			return nil, nil, err
		}
		specs = append(specs, SourceSpec{Label: label, PathOrURL: pathOrURL, BaseRef: baseRef, HeadRef: headRef})
		planSources = append(planSources, PlanSource{Label: label, PathOrURL: pathOrURL, BaseRef: baseRef, HeadRef: headRef})
	}
	if len(specs) == 0 {
		return nil, nil, fmt.Errorf("no sources selected")
	}

	mode := "guided"
	if tool := llmtool.FirstAutoExec(); tool != nil && !opts.DisableLLMAutoExec {
		choice, err := tio.PromptSelect("conflict resolution mode", []termio.Option{
			{Key: "llm", Label: fmt.Sprintf("LLM-assisted (%s)", tool.ID)},
			{Key: "guided", Label: "guided (resolve conflicts yourself)"},
		})
		if err != nil {
			return nil, nil, err
		}
		mode = choice
	}

	plan := NewPlan(opts.Target)
	plan.Base = base
	plan.Branch = branch
	plan.Use3Way = use3way
	plan.PreferredConflictMode = mode
	plan.Sources = planSources
	plan.InitialArgv = buildArgv(opts.Target, base, branch, false, use3way, planSources)
	plan.ResumeArgv = buildArgv(opts.Target, "", "", true, use3way, planSources)

	runOpts := &Options{
		Target:  opts.Target,
		Branch:  branch,
		Base:    base,
		Use3Way: use3way,
		Sources: specs,
	}
	return plan, runOpts, nil
}

// buildArgv renders the flag list equivalent to a plan, persisted for
// humans inspecting the plan file and for resume.
func buildArgv(target, base, branch string, ontoCurrent, use3way bool, sources []PlanSource) []string {
	argv := []string{"--target=" + target}
	if ontoCurrent {
		argv = append(argv, "--onto-current")
	} else {
		if branch != "" {
			argv = append(argv, "--branch="+branch)
		}
		if base != "" {
			argv = append(argv, "--base="+base)
		}
	}
	if use3way {
		argv = append(argv, "--3way")
	}
	for _, s := range sources {
		argv = append(argv, "--from-"+s.Label+"="+s.PathOrURL)
		argv = append(argv, "--from-"+s.Label+"-base="+s.BaseRef)
		if s.HeadRef != "" {
			argv = append(argv, "--from-"+s.Label+"-ref="+s.HeadRef)
		}
	}
	return argv
}

// conflictLoop is the interactive am-conflict state machine: paused on a
// conflict until the operator continues, stages, skips, aborts, or quits.
func (e *Engine) conflictLoop(ctx context.Context, tio *termio.IO, opts GuideOpts, gitDir string) (*GuideResult, error) {
	for {
		st, err := e.readAmState(ctx, opts.Target)
		if err != nil {
			return nil, err
		}
		if !st.InProgress {
			// Session drained outside the loop (or by skip): resume the plan.
			plan, err := LoadPlan(gitDir)
			if err != nil || plan == nil {
				return &GuideResult{OK: true}, nil
			}
			res, err := e.resumePlan(ctx, gitDir, opts.Target, plan)
			if err != nil {
				return nil, err
			}
			if res.Resumed != nil && res.Resumed.OK {
				return &GuideResult{OK: true}, nil
			}
			continue // stopped on a new conflict; loop shows it
		}

		fmt.Fprintf(tio.Out(), "\nam session paused; conflicted files:\n  %s\n",
			strings.Join(st.ConflictedFiles, "\n  "))

		choice, err := tio.PromptSelect("next action", []termio.Option{
			{Key: "continue", Label: "continue (files already staged)"},
			{Key: "stage", Label: "stage resolved files and continue"},
			{Key: "status", Label: "show status"},
			{Key: "llm", Label: "launch LLM in a new terminal"},
			{Key: "copy", Label: "copy LLM prompt to clipboard"},
			{Key: "skip", Label: "skip this patch"},
			{Key: "abort", Label: "abort the port (deletes the plan)"},
			{Key: "quit", Label: "quit (keep the plan; resume later)"},
		})
		if err != nil {
			return nil, err
		}

		switch choice {
		case "continue", "stage":
			res, err := e.Continue(ctx, ContinueOpts{Target: opts.Target, Stage: choice == "stage"})
			if err != nil {
				fmt.Fprintln(tio.Out(), err.Error())
				continue
			}
			if res.Drained && (res.Resumed == nil || res.Resumed.OK) {
				return &GuideResult{OK: true}, nil
			}
		case "status":
			info, err := e.Status(ctx, opts.Target)
			if err != nil {
				fmt.Fprintln(tio.Out(), err.Error())
				continue
			}
			fmt.Fprintf(tio.Out(), "branch %s; am in progress: %v; conflicted: %s\n",
				info.Branch, info.AmInProgress, strings.Join(info.ConflictedFiles, ", "))
		case "llm":
			prompt := BuildConflictPrompt(opts.Target, st.CurrentPatch, st.ConflictedFiles)
			if opts.DisableLLMAutoExec {
				fmt.Fprintln(tio.Out(), "LLM auto-exec is disabled; copy the prompt instead:")
				fmt.Fprintln(tio.Out(), prompt)
				continue
			}
			tool := llmtool.FirstAutoExec()
			if tool == nil {
				fmt.Fprintln(tio.Out(), "no auto-exec capable LLM CLI detected")
				continue
			}
			launch := llmtool.LaunchInTerminal(opts.Target, tool.Cmd)
			if !launch.OK {
				fmt.Fprintf(tio.Out(), "could not launch terminal: %s\n", launch.Reason)
				continue
			}
			clip := llmtool.DetectClipboard()
			if clip.Available {
				_ = clip.Copy(prompt)
				fmt.Fprintln(tio.Out(), "prompt copied to clipboard; paste it into the LLM session")
			}
		case "copy":
			prompt := BuildConflictPrompt(opts.Target, st.CurrentPatch, st.ConflictedFiles)
			clip := llmtool.DetectClipboard()
			if !clip.Available {
				fmt.Fprintln(tio.Out(), "no clipboard tool available; prompt follows:")
				fmt.Fprintln(tio.Out(), prompt)
				continue
			}
			if err := clip.Copy(prompt); err != nil {
				fmt.Fprintf(tio.Out(), "clipboard copy failed: %v\n", err)
				continue
			}
			fmt.Fprintln(tio.Out(), "prompt copied to clipboard")
		case "skip":
			if err := e.amSkip(ctx, opts.Target); err != nil {
				fmt.Fprintln(tio.Out(), gitx.OutputOf(err))
			}
		case "abort":
			e.amAbort(ctx, opts.Target)
			if err := DeletePlan(gitDir); err != nil {
				return nil, err
			}
			return &GuideResult{Aborted: true}, nil
		case "quit":
			fmt.Fprintln(tio.Out(), "plan kept; resume with `happys monorepo port guide` or `happys monorepo port continue`")
			return &GuideResult{InProgress: true}, nil
		}
	}
}
