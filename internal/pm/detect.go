package pm

import (
	"path/filepath"

	"github.com/leeroybrun/happy-stacks/internal/component"
	"github.com/leeroybrun/happy-stacks/internal/fsutil"
)

// Kind identifies a package manager.
type Kind string

const (
	Yarn Kind = "yarn"
	Pnpm Kind = "pnpm"
)

// Detect picks the package manager for a component directory: yarn when the
// directory has a yarn.lock, or when it lives inside a Happy monorepo whose
// root has one; pnpm otherwise.
func Detect(dir string) Kind {
	if fsutil.Exists(filepath.Join(dir, "yarn.lock")) {
		return Yarn
	}
	if root := component.FindMonorepoRoot(dir); root != "" {
		if fsutil.Exists(filepath.Join(root, "yarn.lock")) {
			return Yarn
		}
	}
	return Pnpm
}
