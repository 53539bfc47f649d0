// Package worktrees manages per-owner git worktrees for component
// repositories under <components>/.worktrees/<repoKey>/<owner>/<branch...>.
package worktrees

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/leeroybrun/happy-stacks/internal/component"
	"github.com/leeroybrun/happy-stacks/internal/fsutil"
	"github.com/leeroybrun/happy-stacks/internal/gitx"
	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

// Spec identifies a worktree as <owner>/<branch...>.
type Spec struct {
	Owner  string
	Branch string // may contain slashes
}

func (s Spec) String() string { return s.Owner + "/" + s.Branch }

// ParseSpec splits "<owner>/<branch...>".
func ParseSpec(raw string) (Spec, error) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Spec{}, fmt.Errorf("worktree spec %q must be <owner>/<branch>", raw)
	}
	return Spec{Owner: parts[0], Branch: parts[1]}, nil
}

// Entry is one registered worktree.
type Entry struct {
	Spec Spec   `json:"spec"`
	Path string `json:"path"`
}

// Registry lists and creates worktrees for component repositories.
type Registry struct {
	env *stackenv.StackEnv
	git gitx.Runner
}

// NewRegistry creates a Registry.
func NewRegistry(env *stackenv.StackEnv, git gitx.Runner) *Registry {
	return &Registry{env: env, git: git}
}

// Root is the worktree root for a repo key. The key collapses to "happy"
// for components inside the Happy monorepo, so sub-packages share
// worktrees.
func (r *Registry) Root(repoKey string) string {
	return filepath.Join(r.env.ComponentsDir(), ".worktrees", repoKey)
}

// Dir returns the concrete directory for a spec.
func (r *Registry) Dir(repoKey string, spec Spec) string {
	return filepath.Join(r.Root(repoKey), spec.Owner, filepath.FromSlash(spec.Branch))
}

// List walks the repo key's worktree root and returns every checkout
// (directories holding a .git entry).
func (r *Registry) List(repoKey string) ([]Entry, error) {
	root := r.Root(repoKey)
	if !fsutil.IsDir(root) {
		return nil, nil
	}

	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == root {
			return nil
		}
		if !fsutil.Exists(filepath.Join(path, ".git")) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		spec, specErr := ParseSpec(filepath.ToSlash(rel))
		if specErr == nil {
			entries = append(entries, Entry{Spec: spec, Path: path})
		}
		return filepath.SkipDir // don't descend into checkouts
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Resolve maps a component + spec to the operational directory inside the
// worktree: for monorepo components that is the package subdir of the
// checkout, otherwise the checkout itself.
func (r *Registry) Resolve(comp *component.Component, raw string) (string, error) {
	spec, err := ParseSpec(raw)
	if err != nil {
		return "", err
	}
	dir := r.Dir(comp.RepoKey, spec)
	if !fsutil.IsDir(dir) {
		return "", fmt.Errorf("worktree %s does not exist for %s (create it with `happys worktree create %s %s`)",
			raw, comp.Name, comp.Name, raw)
	}
	if comp.RepoDir != comp.OpDir {
		rel, relErr := filepath.Rel(comp.RepoDir, comp.OpDir)
		if relErr == nil {
			return filepath.Join(dir, rel), nil
		}
	}
	return dir, nil
}

// CreateOpts configures worktree creation.
type CreateOpts struct {
	BaseRef  string            // defaults to HEAD
	EnvLocal map[string]string // optional env.local entries written into the checkout
}

// Create adds a worktree for the spec on a new branch <owner>/<branch>,
// and optionally seeds an env.local in the operational directory.
func (r *Registry) Create(ctx context.Context, comp *component.Component, raw string, opts CreateOpts) (*Entry, error) {
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, err
	}
	dir := r.Dir(comp.RepoKey, spec)
	if fsutil.IsDir(dir) {
		return nil, fmt.Errorf("worktree %s already exists at %s", raw, dir)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir worktree parent: %w", err)
	}

	base := opts.BaseRef
	if base == "" {
		base = "HEAD"
	}
	repo := gitx.NewRepo(r.git, comp.RepoDir)
	if err := repo.WorktreeAddBranch(ctx, dir, spec.String(), base); err != nil {
		return nil, fmt.Errorf("create worktree %s: %w", raw, err)
	}

	if len(opts.EnvLocal) > 0 {
		target := dir
		if comp.RepoDir != comp.OpDir {
			if rel, relErr := filepath.Rel(comp.RepoDir, comp.OpDir); relErr == nil {
				target = filepath.Join(dir, rel)
			}
		}
		if err := stackenv.UpdateEnvFile(filepath.Join(target, "env.local"), opts.EnvLocal); err != nil {
			return nil, fmt.Errorf("write env.local: %w", err)
		}
	}

	return &Entry{Spec: spec, Path: dir}, nil
}

// Remove deletes a worktree checkout.
func (r *Registry) Remove(ctx context.Context, comp *component.Component, raw string, force bool) error {
	spec, err := ParseSpec(raw)
	if err != nil {
		return err
	}
	dir := r.Dir(comp.RepoKey, spec)
	repo := gitx.NewRepo(r.git, comp.RepoDir)
	if err := repo.WorktreeRemove(ctx, dir, force); err != nil {
		return fmt.Errorf("remove worktree %s: %w", raw, err)
	}
	return nil
}
