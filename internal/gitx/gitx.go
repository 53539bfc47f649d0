package gitx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Runner provides git commands. Interface for testing.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
	// RunEnv is Run with extra environment variables appended to the
	// inherited process environment.
	RunEnv(ctx context.Context, dir string, env []string, args ...string) (string, error)
}

// CmdError is returned when a git command exits non-zero. It carries the
// combined output verbatim so callers can classify failures.
type CmdError struct {
	Args       []string
	Output     string
	Timeout    bool
	Underlying error
}

func (e *CmdError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("git %s: timed out: %s", strings.Join(e.Args, " "), e.Output)
	}
	return fmt.Sprintf("git %s: %s: %v", strings.Join(e.Args, " "), e.Output, e.Underlying)
}

func (e *CmdError) Unwrap() error { return e.Underlying }

// OutputOf extracts the captured command output from err if it wraps a
// CmdError, otherwise returns err.Error().
func OutputOf(err error) string {
	var ce *CmdError
	if errors.As(err, &ce) {
		return ce.Output
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsTimeout reports whether err is a subprocess timeout.
func IsTimeout(err error) bool {
	var ce *CmdError
	return errors.As(err, &ce) && ce.Timeout
}

// ExecGit implements Runner using exec.CommandContext.
type ExecGit struct {
	// Timeout bounds each command when the caller's context has no
	// deadline. Zero means no bound.
	Timeout time.Duration
}

func (g *ExecGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	return g.RunEnv(ctx, dir, nil, args...)
}

func (g *ExecGit) RunEnv(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok && g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	out, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		return trimmed, &CmdError{
			Args:       args,
			Output:     trimmed,
			Timeout:    ctx.Err() == context.DeadlineExceeded,
			Underlying: err,
		}
	}
	return trimmed, nil
}

// Repo wraps git operations for one repository directory.
type Repo struct {
	git Runner
	Dir string
}

// NewRepo creates a Repo for the given directory.
func NewRepo(git Runner, dir string) *Repo {
	return &Repo{git: git, Dir: dir}
}

// Git returns the underlying runner, for callers that need raw commands.
func (r *Repo) Git() Runner { return r.git }

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	return r.git.Run(ctx, r.Dir, args...)
}

// IsRepo reports whether Dir is inside a git repository.
func (r *Repo) IsRepo(ctx context.Context) bool {
	_, err := r.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// GitDir returns the absolute path of the repository's git directory.
func (r *Repo) GitDir(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--git-dir")
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(r.Dir, out)
	}
	return filepath.Clean(out), nil
}

// TopLevel returns the repository's working tree root.
func (r *Repo) TopLevel(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--show-toplevel")
}

// Head returns the commit sha at HEAD.
func (r *Repo) Head(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "HEAD")
}

// RevParse resolves a ref to a sha.
func (r *Repo) RevParse(ctx context.Context, ref string) (string, error) {
	return r.run(ctx, "rev-parse", ref)
}

// HasRef reports whether ref resolves.
func (r *Repo) HasRef(ctx context.Context, ref string) bool {
	_, err := r.run(ctx, "rev-parse", "--verify", "--quiet", ref)
	return err == nil
}

// MergeBase returns the merge base of two refs.
func (r *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	return r.run(ctx, "merge-base", a, b)
}

// StatusPorcelain returns `git status --porcelain=v1` output.
func (r *Repo) StatusPorcelain(ctx context.Context) (string, error) {
	return r.run(ctx, "status", "--porcelain=v1")
}

// IsClean reports whether the worktree has no staged or unstaged changes.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	out, err := r.StatusPorcelain(ctx)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

// CurrentBranch returns the short name of the checked-out branch, or "HEAD"
// when detached.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// OriginHeadRef returns the symref target of refs/remotes/origin/HEAD,
// e.g. "refs/remotes/origin/main". Empty when the symref is unset.
func (r *Repo) OriginHeadRef(ctx context.Context) string {
	out, err := r.run(ctx, "symbolic-ref", "--quiet", "refs/remotes/origin/HEAD")
	if err != nil {
		return ""
	}
	return out
}

// Checkout checks out a ref.
func (r *Repo) Checkout(ctx context.Context, ref string) error {
	_, err := r.run(ctx, "checkout", ref)
	return err
}

// CheckoutNewBranch creates branch name at from and checks it out.
func (r *Repo) CheckoutNewBranch(ctx context.Context, name, from string) error {
	_, err := r.run(ctx, "checkout", "-b", name, from)
	return err
}

// Fetch runs git fetch with the given arguments.
func (r *Repo) Fetch(ctx context.Context, args ...string) error {
	_, err := r.run(ctx, append([]string{"fetch"}, args...)...)
	return err
}

// WorktreeAddDetached creates a detached worktree at path checked out at ref.
func (r *Repo) WorktreeAddDetached(ctx context.Context, path, ref string) error {
	_, err := r.run(ctx, "worktree", "add", "--detach", path, ref)
	return err
}

// WorktreeAddBranch creates a worktree at path on a new branch from ref.
func (r *Repo) WorktreeAddBranch(ctx context.Context, path, branch, ref string) error {
	_, err := r.run(ctx, "worktree", "add", path, "-b", branch, ref)
	return err
}

// WorktreeRemove removes a worktree, forcing when requested.
func (r *Repo) WorktreeRemove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := r.run(ctx, args...)
	return err
}

// UnmergedFiles lists paths with unresolved merge conflicts.
func (r *Repo) UnmergedFiles(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// EnsureIdentity sets user.name and user.email in the repo's local config
// when they are not already resolvable. `git am` refuses to commit without
// an identity.
func (r *Repo) EnsureIdentity(ctx context.Context) {
	if _, err := r.run(ctx, "config", "user.name"); err != nil {
		_, _ = r.run(ctx, "config", "user.name", "happy-stacks")
	}
	if _, err := r.run(ctx, "config", "user.email"); err != nil {
		_, _ = r.run(ctx, "config", "user.email", "happy-stacks@localhost")
	}
}

// Clone clones url into dir.
func Clone(ctx context.Context, git Runner, url, dir string) error {
	_, err := git.Run(ctx, "", "clone", url, dir)
	return err
}

func splitLines(out string) []string {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}
