package port

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/leeroybrun/happy-stacks/internal/component"
	"github.com/leeroybrun/happy-stacks/internal/fsutil"
	"github.com/leeroybrun/happy-stacks/internal/gitx"
)

// SourceSpec describes one split repository to transplant from.
type SourceSpec struct {
	Label     string // component name: happy, happy-cli, happy-server
	PathOrURL string
	BaseRef   string
	HeadRef   string // empty means HEAD / fetched ref
}

// resolvedSource is a SourceSpec bound to a concrete local checkout.
type resolvedSource struct {
	Spec      SourceSpec
	RepoDir   string
	Base      string // merge-base sha
	Head      string // head sha
	IsMonorepo bool  // source carries packages/* prefixes itself
	NoCommits bool
}

var prURLRe = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)`)

// IsURLSpec reports whether spec names a remote repository rather than a
// local path: a scheme, an scp-style git@host: remote, or a GitHub PR URL.
func IsURLSpec(spec string) bool {
	if strings.Contains(spec, "://") {
		return true
	}
	if strings.HasPrefix(spec, "git@") && strings.Contains(spec, ":") {
		return true
	}
	return prURLRe.MatchString(spec)
}

// parsePRURL extracts (owner, repo, number) from a GitHub pull-request URL.
func parsePRURL(spec string) (owner, repo, number string, ok bool) {
	m := prURLRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

// slug builds a filesystem-safe fragment from a source spec.
var slugRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func slug(s string) string {
	s = slugRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = s[len(s)-60:]
	}
	return s
}

// scratchSourcesDir is where remote sources are cloned, under the target's
// git directory so `git clean` in the worktree never eats them.
func scratchSourcesDir(targetGitDir string) string {
	return filepath.Join(targetGitDir, "happy-stacks", "monorepo-port-sources")
}

// resolveSource binds a spec to a local repo directory, cloning when the
// spec is a URL, and resolves the base..head range. base is the merge-base
// of BaseRef and head so ports work from branch names and shas alike.
func (e *Engine) resolveSource(ctx context.Context, targetGitDir string, spec SourceSpec) (*resolvedSource, error) {
	repoDir := spec.PathOrURL
	headRef := spec.HeadRef

	if IsURLSpec(spec.PathOrURL) {
		dir := filepath.Join(scratchSourcesDir(targetGitDir), spec.Label+"-"+slug(spec.PathOrURL))
		if owner, repo, number, ok := parsePRURL(spec.PathOrURL); ok {
			cloneURL := fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
			if err := e.ensureClone(ctx, cloneURL, dir); err != nil {
				return nil, err
			}
			prRef := fmt.Sprintf("refs/pull/%s/head", number)
			if err := gitx.NewRepo(e.git, dir).Fetch(ctx, "origin", prRef); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", prRef, err)
			}
			if headRef == "" {
				headRef = "FETCH_HEAD"
			}
		} else {
			if err := e.ensureClone(ctx, spec.PathOrURL, dir); err != nil {
				return nil, err
			}
		}
		repoDir = dir
	} else {
		abs, err := filepath.Abs(spec.PathOrURL)
		if err != nil {
			return nil, fmt.Errorf("resolve source path: %w", err)
		}
		repoDir = abs
		if !fsutil.IsDir(repoDir) {
			return nil, fmt.Errorf("source %s: directory %s does not exist", spec.Label, repoDir)
		}
	}

	repo := gitx.NewRepo(e.git, repoDir)
	if !repo.IsRepo(ctx) {
		return nil, fmt.Errorf("source %s: %s is not a git repository", spec.Label, repoDir)
	}

	if headRef == "" {
		headRef = "HEAD"
	}
	head, err := repo.RevParse(ctx, headRef)
	if err != nil {
		return nil, fmt.Errorf("source %s: resolve head ref %q: %w", spec.Label, headRef, err)
	}

	baseRef := spec.BaseRef
	if baseRef == "" {
		return nil, fmt.Errorf("source %s: base ref is required", spec.Label)
	}
	base, err := repo.MergeBase(ctx, baseRef, head)
	if err != nil {
		return nil, fmt.Errorf("source %s: merge-base %s %s: %w", spec.Label, baseRef, headRef, err)
	}

	return &resolvedSource{
		Spec:       spec,
		RepoDir:    repoDir,
		Base:       base,
		Head:       head,
		IsMonorepo: component.IsMonorepoRoot(repoDir),
		NoCommits:  base == head,
	}, nil
}

// ensureClone clones url into dir unless a previous run already did.
func (e *Engine) ensureClone(ctx context.Context, url, dir string) error {
	if fsutil.IsDir(filepath.Join(dir, ".git")) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("mkdir scratch dir: %w", err)
	}
	e.logf("cloning %s", url)
	if err := gitx.Clone(ctx, e.git, url, dir); err != nil {
		return fmt.Errorf("clone %s: %w", url, err)
	}
	return nil
}

// dirPrefixFor computes the apply --directory prefix for a source: the
// component's package directory in the target's layout, suppressed when the
// source repo is itself a monorepo (its patches already carry packages/*
// prefixes).
func dirPrefixFor(targetRoot string, src *resolvedSource) string {
	if src.IsMonorepo {
		return ""
	}
	switch src.Spec.Label {
	case component.Happy:
		return pickSubdir(targetRoot, "packages/happy-app", "expo-app")
	case component.HappyCLI:
		return pickSubdir(targetRoot, "packages/happy-cli", "cli")
	case component.HappyServer:
		return pickSubdir(targetRoot, "packages/happy-server", "server")
	}
	return ""
}

func pickSubdir(root, modern, legacy string) string {
	if fsutil.IsDir(filepath.Join(root, modern)) {
		return modern
	}
	if fsutil.IsDir(filepath.Join(root, legacy)) {
		return legacy
	}
	return modern
}
