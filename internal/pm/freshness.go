package pm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// mtime returns a file's modification time, zero when it does not exist.
func mtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// newestPatchMtime finds the newest .patch file under dir/patches.
func newestPatchMtime(dir string) time.Time {
	var newest time.Time
	entries, err := os.ReadDir(filepath.Join(dir, "patches"))
	if err != nil {
		return newest
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".patch") {
			continue
		}
		if t := mtime(filepath.Join(dir, "patches", e.Name())); t.After(newest) {
			newest = t
		}
	}
	return newest
}

// needsInstall applies the freshness rules for a component directory.
// Returns (install, wipeFirst).
func needsInstall(dir string, kind Kind) (bool, bool) {
	modulesYaml := filepath.Join(dir, "node_modules", ".modules.yaml")

	switch kind {
	case Yarn:
		// A pnpm-created node_modules under a yarn component is poison:
		// wipe and reinstall with yarn.
		if mtime(modulesYaml) != (time.Time{}) {
			return true, true
		}
		integrity := mtime(filepath.Join(dir, "node_modules", ".yarn-integrity"))
		if integrity.IsZero() {
			return true, false
		}
		for _, input := range []time.Time{
			mtime(filepath.Join(dir, "yarn.lock")),
			mtime(filepath.Join(dir, "package.json")),
			newestPatchMtime(dir),
		} {
			if input.After(integrity) {
				return true, false
			}
		}
		return false, false

	default: // pnpm
		marker := mtime(modulesYaml)
		if marker.IsZero() {
			return true, false
		}
		if mtime(filepath.Join(dir, "pnpm-lock.yaml")).After(marker) {
			return true, false
		}
		return false, false
	}
}

// EnsureFresh installs dependencies when the component's install markers
// are missing or stale.
func (a *Adapter) EnsureFresh(ctx context.Context, dir string) error {
	kind := Detect(dir)
	install, wipe := needsInstall(dir, kind)
	if !install {
		a.log.Debugw("dependencies fresh", "dir", dir)
		return nil
	}
	if wipe {
		a.log.Infow("removing foreign node_modules", "dir", dir)
		if err := os.RemoveAll(filepath.Join(dir, "node_modules")); err != nil {
			return fmt.Errorf("remove node_modules in %s: %w", dir, err)
		}
	}
	return a.Install(ctx, dir)
}
