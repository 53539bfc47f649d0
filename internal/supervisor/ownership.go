package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

// ErrNotOwned is returned when a process cannot be proven to belong to the
// current stack. Such processes are never signaled.
var ErrNotOwned = fmt.Errorf("process is not provably owned by this stack")

// PsRunner inspects a process's argv+env. Interface for testing.
type PsRunner interface {
	Eww(ctx context.Context, pid int) (string, error)
}

// ExecPs implements PsRunner via `ps eww -p <pid>`.
type ExecPs struct{}

func (ExecPs) Eww(ctx context.Context, pid int) (string, error) {
	out, err := exec.CommandContext(ctx, "ps", "eww", "-p", strconv.Itoa(pid)).CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("ps eww -p %d: %w", pid, err)
	}
	return string(out), nil
}

// proveOwnership checks that the ps output carries the stack's identity:
// at least one stack-name binding AND at least one of the env-file path or
// a recognized home-dir binding. Stack bindings are matched as whole
// tokens so stack "dev" never claims a "dev2" process.
func proveOwnership(psOut string, env *stackenv.StackEnv) bool {
	hasStack := false
	for _, tok := range strings.Fields(psOut) {
		if tok == stackenv.KeyStack+"="+env.Name || tok == stackenv.LegacyKey(stackenv.KeyStack)+"="+env.Name {
			hasStack = true
			break
		}
	}
	if !hasStack {
		return false
	}
	if strings.Contains(psOut, env.EnvFile) {
		return true
	}
	for _, binding := range []string{
		"HOME=" + env.IsolatedHomeDir(),
		"USERPROFILE=" + env.IsolatedHomeDir(),
		"XDG_CACHE_HOME=" + env.XDGCacheDir(),
	} {
		if strings.Contains(psOut, binding) {
			return true
		}
	}
	return false
}
