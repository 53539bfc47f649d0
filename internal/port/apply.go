package port

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/leeroybrun/happy-stacks/internal/gitx"
	"github.com/leeroybrun/happy-stacks/internal/patch"
)

// applyOpts carries the per-source parameters of the apply protocol.
type applyOpts struct {
	RepoDir   string // target checkout (real worktree or preflight worktree)
	DirPrefix string // apply --directory prefix, "" for monorepo sources
	Use3Way   bool
}

// applyPatch runs the per-patch protocol:
//  1. apply --check; capture errors verbatim
//  2. on check failure, apply -R --check: clean reverse == already applied
//  3. pure new-file patches whose files already exist byte-identical: skip
//  4. am --quiet (--3way when requested, falling back when 3way cannot
//     reconstruct ancestors)
//  5. anything else: structured failure, kind parsed from output
func (e *Engine) applyPatch(ctx context.Context, opts applyOpts, patchFile string) Finding {
	text, readErr := os.ReadFile(patchFile)
	md := patch.Metadata{}
	if readErr == nil {
		md = patch.ParseMetadata(string(text))
	}
	finding := Finding{
		Patch:   filepath.Base(patchFile),
		FromSha: md.FromSha,
		Subject: md.Subject,
	}

	checkErr := e.applyCheck(ctx, opts, patchFile, false)
	if checkErr != nil {
		finding.ApplyCheckErr = gitx.OutputOf(checkErr)

		// Reverse-applies cleanly: the commit is already in the target.
		if e.applyCheck(ctx, opts, patchFile, true) == nil {
			finding.Status = StatusSkippedAlreadyApplied
			return finding
		}

		if readErr == nil && e.identicalNewFiles(string(text), opts) {
			finding.Status = StatusSkippedAlreadyExistsIdentical
			return finding
		}
	}

	amErr := e.amApply(ctx, opts, patchFile, opts.Use3Way)
	if amErr != nil && opts.Use3Way && is3WayFallbackError(amErr) {
		// 3-way needs blob ancestry the target does not have. Abort the
		// failed session and retry flat.
		e.amAbort(ctx, opts.RepoDir)
		amErr = e.amApply(ctx, opts, patchFile, false)
	}
	if amErr == nil {
		finding.Status = StatusApplied
		return finding
	}

	out := gitx.OutputOf(amErr)
	finding.Status = StatusFailed
	finding.FailKind = classifyFailure(out)
	finding.Paths = failurePaths(out)
	finding.Err = out
	return finding
}

// applyCheck runs `git apply --check` (reverse when rev is set) against the
// target with the configured directory prefix.
func (e *Engine) applyCheck(ctx context.Context, opts applyOpts, patchFile string, rev bool) error {
	args := []string{"apply"}
	if rev {
		args = append(args, "-R")
	}
	args = append(args, "--check")
	if opts.DirPrefix != "" {
		args = append(args, "--directory="+opts.DirPrefix)
	}
	args = append(args, patchFile)
	_, err := e.git.Run(ctx, opts.RepoDir, args...)
	return err
}

// identicalNewFiles reports whether the patch only creates files and every
// created file already exists in the target with byte-identical content.
func (e *Engine) identicalNewFiles(patchText string, opts applyOpts) bool {
	diffs := patch.Parse(patchText)
	if !patch.PureNewFiles(diffs) {
		return false
	}
	for _, d := range diffs {
		rel := d.PlusPath
		if rel == "" {
			rel = d.BPath
		}
		if rel == "" {
			return false
		}
		target := filepath.Join(opts.RepoDir, opts.DirPrefix, rel)
		data, err := os.ReadFile(target)
		if err != nil {
			return false
		}
		if string(data) != d.NewFileContent() {
			return false
		}
	}
	return true
}

// amApply runs `git am --quiet` with the directory prefix.
func (e *Engine) amApply(ctx context.Context, opts applyOpts, patchFile string, use3way bool) error {
	args := []string{"am", "--quiet"}
	if use3way {
		args = append(args, "--3way")
	}
	if opts.DirPrefix != "" {
		args = append(args, "--directory="+opts.DirPrefix)
	}
	args = append(args, patchFile)
	_, err := e.git.Run(ctx, opts.RepoDir, args...)
	return err
}

// amAbort aborts any in-progress am session, ignoring errors.
func (e *Engine) amAbort(ctx context.Context, repoDir string) {
	_, _ = e.git.Run(ctx, repoDir, "am", "--abort")
}

// amContinue advances an in-progress am session.
func (e *Engine) amContinue(ctx context.Context, repoDir string) error {
	_, err := e.git.Run(ctx, repoDir, "am", "--continue")
	return err
}

// amSkip skips the current patch of an in-progress am session.
func (e *Engine) amSkip(ctx context.Context, repoDir string) error {
	_, err := e.git.Run(ctx, repoDir, "am", "--skip")
	return err
}

// The two messages git am emits when --3way cannot reconstruct the
// pre-image blobs.
func is3WayFallbackError(err error) bool {
	out := gitx.OutputOf(err)
	return strings.Contains(out, "could not build fake ancestor") ||
		strings.Contains(out, "sha1 information is lacking")
}

// classifyFailure maps git output onto the failure taxonomy.
func classifyFailure(out string) string {
	switch {
	case strings.Contains(out, "already exists in working directory") ||
		strings.Contains(out, "already exists in index"):
		return FailAlreadyExists
	case strings.Contains(out, "does not exist in index") ||
		strings.Contains(out, "No such file or directory"):
		return FailMissingPath
	case strings.Contains(out, "patch does not apply") ||
		strings.Contains(out, "patch failed") ||
		strings.Contains(out, "Patch failed at"):
		return FailPatchFailed
	default:
		return FailUnknown
	}
}

var failurePathRes = []*regexp.Regexp{
	regexp.MustCompile(`error: patch failed: (.+?):\d+`),
	regexp.MustCompile(`error: (.+?): already exists in (?:working directory|index)`),
	regexp.MustCompile(`error: (.+?): does not exist in index`),
	regexp.MustCompile(`error: (.+?): No such file or directory`),
}

// failurePaths extracts the paths git names in apply/am errors.
func failurePaths(out string) []string {
	seen := map[string]bool{}
	var paths []string
	for _, re := range failurePathRes {
		for _, m := range re.FindAllStringSubmatch(out, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				paths = append(paths, m[1])
			}
		}
	}
	return paths
}
