package component

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leeroybrun/happy-stacks/internal/fsutil"
	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

// The product's logical units.
const (
	Happy       = "happy"
	HappyCLI    = "happy-cli"
	HappyServer = "happy-server"
)

// Known returns the component names in canonical order.
func Known() []string {
	return []string{Happy, HappyCLI, HappyServer}
}

// IsKnown reports whether name is a recognized component.
func IsKnown(name string) bool {
	for _, k := range Known() {
		if k == name {
			return true
		}
	}
	return false
}

// packageSubdirs maps a component to its monorepo package directory and its
// legacy top-level directory.
var packageSubdirs = map[string][2]string{
	Happy:       {"packages/happy-app", "expo-app"},
	HappyCLI:    {"packages/happy-cli", "cli"},
	HappyServer: {"packages/happy-server", "server"},
}

// IsMonorepoRoot reports whether dir holds the Happy monorepo layout: at
// least one of packages/happy-app|happy-cli|happy-server, or the legacy
// expo-app|cli|server triplet.
func IsMonorepoRoot(dir string) bool {
	for _, sub := range packageSubdirs {
		if fsutil.IsDir(filepath.Join(dir, sub[0])) || fsutil.IsDir(filepath.Join(dir, sub[1])) {
			return true
		}
	}
	return false
}

// FindMonorepoRoot walks up from dir looking for a Happy monorepo root that
// contains it. Returns "" when dir is not inside one.
func FindMonorepoRoot(dir string) string {
	cur := filepath.Clean(dir)
	for {
		if IsMonorepoRoot(cur) {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return ""
		}
		cur = parent
	}
}

// Component is a resolved logical unit: where its repository lives and
// which directory operations run in.
type Component struct {
	Name    string
	Dir     string // configured component directory
	OpDir   string // operational directory (monorepo package subdir or Dir)
	RepoDir string // git repository root
	RepoKey string // directory name under .worktrees; "happy" inside the monorepo
}

// overrideKey returns the env key overriding a component's directory,
// e.g. HAPPY_STACKS_HAPPY_CLI_DIR.
func overrideKey(name string) string {
	return "HAPPY_STACKS_" + strings.ReplaceAll(strings.ToUpper(name), "-", "_") + "_DIR"
}

// Resolve locates a component for the given stack. The directory comes from
// the stack's override key when set, otherwise <components>/<name>. When the
// directory is (or lives inside) a Happy monorepo root, the operational
// directory is the known package subdir and the repo key collapses to
// "happy" so all sub-packages share worktrees.
func Resolve(env *stackenv.StackEnv, name string) (*Component, error) {
	if !IsKnown(name) {
		return nil, fmt.Errorf("unknown component %q (known: %s)", name, strings.Join(Known(), ", "))
	}

	dir := env.Get(overrideKey(name))
	if dir == "" {
		dir = filepath.Join(env.ComponentsDir(), name)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve component dir: %w", err)
	}

	c := &Component{Name: name, Dir: abs, OpDir: abs, RepoDir: abs, RepoKey: name}

	root := ""
	if IsMonorepoRoot(abs) {
		root = abs
	} else {
		root = FindMonorepoRoot(abs)
	}
	if root == "" {
		return c, nil
	}

	c.RepoDir = root
	c.RepoKey = Happy
	if root == abs {
		// Component points at the monorepo root: descend into its package.
		subs := packageSubdirs[name]
		if fsutil.IsDir(filepath.Join(root, subs[0])) {
			c.OpDir = filepath.Join(root, subs[0])
		} else if fsutil.IsDir(filepath.Join(root, subs[1])) {
			c.OpDir = filepath.Join(root, subs[1])
		}
	}
	return c, nil
}

// ResolveAll resolves every known component.
func ResolveAll(env *stackenv.StackEnv) ([]*Component, error) {
	var out []*Component
	for _, name := range Known() {
		c, err := Resolve(env, name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
