package port

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/leeroybrun/happy-stacks/internal/component"
	"github.com/leeroybrun/happy-stacks/internal/fsutil"
	"github.com/leeroybrun/happy-stacks/internal/gitx"
)

// Options configures a port run. The field set mirrors the port command's
// flag contract.
type Options struct {
	Target            string
	TargetRepoURL     string // clone source for --clone-target
	CloneTarget       bool
	Branch            string
	Base              string
	OntoCurrent       bool
	DryRun            bool
	Use3Way           bool
	SkipApplied       bool // compat shim; skip detection is always on
	ContinueOnFailure bool
	Sources           []SourceSpec

	// allowDirty is set on continue/resume paths: the worktree is expected
	// to be mid-am and precondition checks must not reject it.
	allowDirty bool
}

// Engine transplants commits from split repositories into a monorepo.
type Engine struct {
	git gitx.Runner
	log *zap.SugaredLogger
	out io.Writer // progress; nil = silent
}

// NewEngine creates an Engine.
func NewEngine(git gitx.Runner, log *zap.SugaredLogger, out io.Writer) *Engine {
	return &Engine{git: git, log: log, out: out}
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.out != nil {
		fmt.Fprintf(e.out, "  → "+format+"\n", args...)
	}
}

// ErrAmInProgress is returned when the target has an open am session and
// the operation is not a continue/resume.
var ErrAmInProgress = fmt.Errorf("a git am session is in progress")

// prepareTarget validates the target repository and returns its repo
// wrapper and git-dir. Clones when --clone-target was requested and the
// target is empty or missing.
func (e *Engine) prepareTarget(ctx context.Context, opts *Options) (*gitx.Repo, string, error) {
	if opts.Target == "" {
		return nil, "", fmt.Errorf("target repository path is required")
	}

	if opts.CloneTarget {
		if opts.TargetRepoURL == "" {
			return nil, "", fmt.Errorf("--clone-target requires --target-repo=<url>")
		}
		if err := e.cloneTargetIfNeeded(ctx, opts); err != nil {
			return nil, "", err
		}
	}

	repo := gitx.NewRepo(e.git, opts.Target)
	if !repo.IsRepo(ctx) {
		return nil, "", fmt.Errorf("target %s is not a git repository", opts.Target)
	}
	root, err := repo.TopLevel(ctx)
	if err != nil {
		return nil, "", err
	}
	if !component.IsMonorepoRoot(root) {
		return nil, "", fmt.Errorf("target %s does not look like the Happy monorepo (expected packages/happy-app|happy-cli|happy-server or expo-app|cli|server)", root)
	}
	gitDir, err := repo.GitDir(ctx)
	if err != nil {
		return nil, "", err
	}

	if !opts.allowDirty {
		if amInProgressDir(gitDir) {
			return nil, "", fmt.Errorf("%w in %s: resolve it with `git am --continue` or `git am --abort` (or run `happys monorepo port continue`)", ErrAmInProgress, root)
		}
		clean, err := repo.IsClean(ctx)
		if err != nil {
			return nil, "", err
		}
		if !clean {
			return nil, "", fmt.Errorf("target worktree %s is not clean: commit or stash your changes first", root)
		}
	}

	repo.EnsureIdentity(ctx)
	return repo, gitDir, nil
}

func (e *Engine) cloneTargetIfNeeded(ctx context.Context, opts *Options) error {
	entries, err := os.ReadDir(opts.Target)
	if err == nil && len(entries) > 0 {
		if fsutil.IsDir(opts.Target + "/.git") {
			return nil // already cloned
		}
		return fmt.Errorf("--clone-target: %s exists and is not empty", opts.Target)
	}
	e.logf("cloning target %s", opts.TargetRepoURL)
	return gitx.Clone(ctx, e.git, opts.TargetRepoURL, opts.Target)
}

// resolveDefaultBase determines the target base ref: origin/HEAD's symref
// when set, otherwise the first resolvable of upstream/main, origin/main,
// main, master.
func (e *Engine) resolveDefaultBase(ctx context.Context, repo *gitx.Repo) (string, error) {
	if ref := repo.OriginHeadRef(ctx); ref != "" {
		return strings.TrimPrefix(ref, "refs/remotes/"), nil
	}
	for _, candidate := range []string{"upstream/main", "origin/main", "main", "master"} {
		if repo.HasRef(ctx, candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("cannot determine a base ref (tried origin/HEAD, upstream/main, origin/main, main, master); pass --base=<ref>")
}

// Run executes a port per the options. The returned Result is populated
// even when the run stops at a failure; callers decide exit codes from
// Result.OK / Result.Stopped.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.OntoCurrent && (opts.Branch != "" || opts.Base != "") {
		return nil, fmt.Errorf("--onto-current cannot be combined with --branch or --base")
	}
	if len(opts.Sources) == 0 {
		return nil, fmt.Errorf("no sources given: pass at least one --from-happy[-cli|-server]=<path|url|pr>")
	}

	if opts.DryRun {
		pf, err := e.Preflight(ctx, opts)
		if err != nil {
			return nil, err
		}
		return pf.Result, nil
	}

	repo, gitDir, err := e.prepareTarget(ctx, &opts)
	if err != nil {
		return nil, err
	}
	root, err := repo.TopLevel(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	if !opts.OntoCurrent && !opts.allowDirty {
		base := opts.Base
		if base == "" {
			base, err = e.resolveDefaultBase(ctx, repo)
			if err != nil {
				return nil, err
			}
		}
		branch := opts.Branch
		if branch == "" {
			return nil, fmt.Errorf("pass --branch=<name> or --onto-current")
		}
		e.logf("creating branch %s from %s", branch, base)
		if err := repo.Checkout(ctx, base); err != nil {
			return nil, fmt.Errorf("checkout base %s: %w", base, err)
		}
		if err := repo.CheckoutNewBranch(ctx, branch, base); err != nil {
			return nil, fmt.Errorf("create branch %s: %w", branch, err)
		}
		result.Branch = branch
		result.Base = base
	}

	stopped, err := e.applySources(ctx, root, gitDir, &opts, result)
	if err != nil {
		return result, err
	}
	result.Stopped = stopped
	result.OK = result.FailedPatches == 0 && !stopped
	return result, nil
}

// applySources runs the apply protocol for every source against targetDir.
// Returns stopped=true when a failure halted the run with the am session
// left open.
func (e *Engine) applySources(ctx context.Context, targetDir, targetGitDir string, opts *Options, result *Result) (bool, error) {
	for _, spec := range opts.Sources {
		src, err := e.resolveSource(ctx, targetGitDir, spec)
		if err != nil {
			return false, err
		}

		sr := SourceResult{
			Label: spec.Label,
			Repo:  src.RepoDir,
			Base:  src.Base,
			Head:  src.Head,
		}
		if src.NoCommits {
			e.logf("%s: no commits to port (%s)", spec.Label, short(src.Base))
			sr.NoCommits = true
			result.add(sr)
			continue
		}

		sr.DirPrefix = dirPrefixFor(targetDir, src)

		patchDir, patches, err := e.producePatches(ctx, src)
		if err != nil {
			return false, err
		}
		defer os.RemoveAll(patchDir)

		e.logf("%s: applying %d patch(es) from %s..%s", spec.Label, len(patches), short(src.Base), short(src.Head))
		aOpts := applyOpts{RepoDir: targetDir, DirPrefix: sr.DirPrefix, Use3Way: opts.Use3Way}

		for _, patchFile := range patches {
			finding := e.applyPatch(ctx, aOpts, patchFile)
			sr.record(finding)

			switch finding.Status {
			case StatusApplied:
				e.logf("applied %s", finding.Subject)
			case StatusSkippedAlreadyApplied:
				e.logf("skipped (already applied): %s", finding.Subject)
			case StatusSkippedAlreadyExistsIdentical:
				e.logf("skipped (identical files exist): %s", finding.Subject)
			case StatusFailed:
				if e.log != nil {
					e.log.Debugw("patch failed", "patch", finding.Patch, "kind", finding.FailKind, "paths", finding.Paths)
				}
				if opts.ContinueOnFailure {
					e.logf("failed (%s), continuing: %s", finding.FailKind, finding.Subject)
					e.amAbort(ctx, targetDir)
					continue
				}
				e.logf("failed (%s): %s", finding.FailKind, finding.Subject)
				result.add(sr)
				return true, nil
			}
		}
		result.add(sr)
	}
	return false, nil
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
