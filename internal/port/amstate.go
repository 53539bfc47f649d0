package port

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/leeroybrun/happy-stacks/internal/fsutil"
	"github.com/leeroybrun/happy-stacks/internal/gitx"
)

// amState is the structured view of an in-progress `git am` session, read
// from the rebase-apply directory under the git-dir first and porcelain
// commands second.
type amState struct {
	InProgress      bool
	CurrentPatch    string   // output of am --show-current-patch=raw
	ConflictedFiles []string // unmerged paths in the worktree
}

// amInProgressDir reports whether gitDir holds an am session. git keeps the
// mailbox under rebase-apply/ while a session is open.
func amInProgressDir(gitDir string) bool {
	return fsutil.IsDir(filepath.Join(gitDir, "rebase-apply"))
}

// readAmState inspects the target repository's am session.
func (e *Engine) readAmState(ctx context.Context, repoDir string) (*amState, error) {
	repo := gitx.NewRepo(e.git, repoDir)
	gitDir, err := repo.GitDir(ctx)
	if err != nil {
		return nil, err
	}

	st := &amState{InProgress: amInProgressDir(gitDir)}
	if !st.InProgress {
		return st, nil
	}

	if out, err := e.git.Run(ctx, repoDir, "am", "--show-current-patch=raw"); err == nil {
		st.CurrentPatch = out
	}
	if files, err := repo.UnmergedFiles(ctx); err == nil {
		st.ConflictedFiles = files
	}
	return st, nil
}

// conflictMarkers are the textual markers an unresolved merge leaves behind.
var conflictMarkers = []string{"<<<<<<< ", ">>>>>>> ", "||||||| "}

// hasConflictMarkers scans a file for unresolved merge markers.
func hasConflictMarkers(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		for _, marker := range conflictMarkers {
			if strings.HasPrefix(line, marker) {
				return true
			}
		}
	}
	return false
}
