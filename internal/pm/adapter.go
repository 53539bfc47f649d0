package pm

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/leeroybrun/happy-stacks/internal/proc"
	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

// Adapter runs package-manager operations with the stack's cache/home
// isolation applied on every call.
type Adapter struct {
	run CommandRunner
	env *stackenv.StackEnv
	log *zap.SugaredLogger

	readyMu sync.Mutex
	ready   map[string]bool // yarn readiness memo
}

// NewAdapter creates an Adapter for one stack.
func NewAdapter(run CommandRunner, env *stackenv.StackEnv, log *zap.SugaredLogger) *Adapter {
	return &Adapter{run: run, env: env, log: log, ready: map[string]bool{}}
}

// callEnv merges the stack's subprocess env with per-call extras.
func (a *Adapter) callEnv(extra []string) []string {
	env := a.env.ProcessEnv()
	return append(env, extra...)
}

// envValue finds key in an env slice, last assignment wins.
func envValue(env []string, key string) string {
	val := ""
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			val = strings.TrimPrefix(kv, prefix)
		}
	}
	return val
}

// ensureYarnReady performs the one-time `yarn --version` call in dir that
// unblocks corepack's interactive download prompt, memoized per
// (resolved dir, HOME, XDG_CACHE_HOME).
func (a *Adapter) ensureYarnReady(ctx context.Context, dir string) error {
	resolved, err := filepath.Abs(dir)
	if err != nil {
		resolved = dir
	}
	callEnv := a.callEnv(nil)
	key := resolved + "|" + envValue(callEnv, "HOME") + "|" + envValue(callEnv, "XDG_CACHE_HOME")

	a.readyMu.Lock()
	done := a.ready[key]
	a.readyMu.Unlock()
	if done {
		return nil
	}

	a.log.Debugw("priming yarn", "dir", dir)
	_, stderr, code, err := a.run.Run(ctx, dir, callEnv, "yarn", "--version")
	if err != nil {
		return fmt.Errorf("yarn readiness in %s: %w", dir, err)
	}
	if code != 0 {
		return fmt.Errorf("yarn readiness in %s: exit %d: %s", dir, code, strings.TrimSpace(stderr))
	}

	a.readyMu.Lock()
	a.ready[key] = true
	a.readyMu.Unlock()
	return nil
}

// Install runs the component's package manager install in dir.
func (a *Adapter) Install(ctx context.Context, dir string) error {
	kind := Detect(dir)
	if kind == Yarn {
		if err := a.ensureYarnReady(ctx, dir); err != nil {
			return err
		}
	}
	a.log.Infow("installing dependencies", "dir", dir, "pm", string(kind))
	_, stderr, code, err := a.run.Run(ctx, dir, a.callEnv(nil), string(kind), "install")
	if err != nil {
		return fmt.Errorf("%s install in %s: %w", kind, dir, err)
	}
	if code != 0 {
		return fmt.Errorf("%s install in %s: exit %d: %s", kind, dir, code, strings.TrimSpace(stderr))
	}
	return nil
}

// ExecBin runs a locally-installed binary via the component's package
// manager and returns its stdout.
func (a *Adapter) ExecBin(ctx context.Context, dir, bin string, args []string, extraEnv []string) (string, error) {
	kind := Detect(dir)
	if kind == Yarn {
		if err := a.ensureYarnReady(ctx, dir); err != nil {
			return "", err
		}
	}
	callArgs := append([]string{"exec", bin}, args...)
	stdout, stderr, code, err := a.run.Run(ctx, dir, a.callEnv(extraEnv), string(kind), callArgs...)
	if err != nil {
		return stdout, fmt.Errorf("%s exec %s in %s: %w", kind, bin, dir, err)
	}
	if code != 0 {
		return stdout, fmt.Errorf("%s exec %s in %s: exit %d: %s", kind, bin, dir, code, strings.TrimSpace(stderr))
	}
	return stdout, nil
}

// RunScript runs a package.json script synchronously.
func (a *Adapter) RunScript(ctx context.Context, dir, script string, args []string, extraEnv []string) error {
	kind := Detect(dir)
	if kind == Yarn {
		if err := a.ensureYarnReady(ctx, dir); err != nil {
			return err
		}
	}
	callArgs := append([]string{"run", script}, args...)
	_, stderr, code, err := a.run.Run(ctx, dir, a.callEnv(extraEnv), string(kind), callArgs...)
	if err != nil {
		return fmt.Errorf("%s run %s in %s: %w", kind, script, dir, err)
	}
	if code != 0 {
		return fmt.Errorf("%s run %s in %s: exit %d: %s", kind, script, dir, code, strings.TrimSpace(stderr))
	}
	return nil
}

// Pack produces a distributable tarball of the component via its package
// manager and returns the command output (which names the tarball).
func (a *Adapter) Pack(ctx context.Context, dir string) (string, error) {
	kind := Detect(dir)
	if kind == Yarn {
		if err := a.ensureYarnReady(ctx, dir); err != nil {
			return "", err
		}
	}
	stdout, stderr, code, err := a.run.Run(ctx, dir, a.callEnv(nil), string(kind), "pack")
	if err != nil {
		return stdout, fmt.Errorf("%s pack in %s: %w", kind, dir, err)
	}
	if code != 0 {
		return stdout, fmt.Errorf("%s pack in %s: exit %d: %s", kind, dir, code, strings.TrimSpace(stderr))
	}
	return stdout, nil
}

// SpawnBin starts a locally-installed binary as a supervised long-running
// process and returns its handle.
func (a *Adapter) SpawnBin(ctx context.Context, dir, label, bin string, args []string, extraEnv []string, opts proc.SpawnOpts) (*proc.Proc, error) {
	return a.spawn(ctx, dir, label, append([]string{"exec", bin}, args...), extraEnv, opts)
}

// SpawnScript starts a package.json script as a supervised long-running
// process and returns its handle.
func (a *Adapter) SpawnScript(ctx context.Context, dir, label, script string, args []string, extraEnv []string, opts proc.SpawnOpts) (*proc.Proc, error) {
	return a.spawn(ctx, dir, label, append([]string{"run", script}, args...), extraEnv, opts)
}

func (a *Adapter) spawn(ctx context.Context, dir, label string, args []string, extraEnv []string, opts proc.SpawnOpts) (*proc.Proc, error) {
	kind := Detect(dir)
	if kind == Yarn {
		if err := a.ensureYarnReady(ctx, dir); err != nil {
			return nil, err
		}
	}
	cmd := exec.Command(string(kind), args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), a.callEnv(extraEnv)...)
	if opts.Label == "" {
		opts.Label = label
	}
	a.log.Infow("spawning", "label", label, "dir", dir, "pm", string(kind), "args", strings.Join(args, " "))
	return proc.Spawn(cmd, opts)
}
