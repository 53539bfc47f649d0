package port

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// FirstConflict describes the patch a preflight stopped on.
type FirstConflict struct {
	CurrentPatch    string   `json:"currentPatch"`
	ConflictedFiles []string `json:"conflictedFiles"`
}

// PreflightResult reports a dry conflict detection run.
type PreflightResult struct {
	OK            bool           `json:"ok"`
	FirstConflict *FirstConflict `json:"firstConflict,omitempty"`
	Result        *Result        `json:"result"`
}

// Preflight replays the apply protocol in a disposable detached worktree at
// the resolved base. The real checkout is never touched; the worktree is
// removed unconditionally.
func (e *Engine) Preflight(ctx context.Context, opts Options) (*PreflightResult, error) {
	repo, gitDir, err := e.prepareTarget(ctx, &opts)
	if err != nil {
		return nil, err
	}

	baseRef := opts.Base
	if opts.OntoCurrent {
		baseRef = "HEAD"
	}
	if baseRef == "" {
		baseRef, err = e.resolveDefaultBase(ctx, repo)
		if err != nil {
			return nil, err
		}
	}
	baseSha, err := repo.RevParse(ctx, baseRef)
	if err != nil {
		return nil, fmt.Errorf("resolve base %s: %w", baseRef, err)
	}

	wtPath, err := preflightWorktreePath(gitDir, baseSha)
	if err != nil {
		return nil, err
	}
	if err := repo.WorktreeAddDetached(ctx, wtPath, baseSha); err != nil {
		// Collisions across concurrent preflights: one retry with a fresh
		// nonce, then give up.
		wtPath, err = preflightWorktreePath(gitDir, baseSha)
		if err != nil {
			return nil, err
		}
		if err := repo.WorktreeAddDetached(ctx, wtPath, baseSha); err != nil {
			return nil, fmt.Errorf("create preflight worktree: %w", err)
		}
	}
	defer func() {
		_ = repo.WorktreeRemove(context.WithoutCancel(ctx), wtPath, true)
		_ = os.RemoveAll(wtPath)
	}()

	// Silent run: progress stays off, findings carry the story.
	saved := e.out
	e.out = nil
	defer func() { e.out = saved }()

	result := &Result{Base: baseRef}
	stopped, err := e.applySources(ctx, wtPath, gitDir, &opts, result)
	if err != nil {
		return nil, err
	}
	result.Stopped = stopped
	result.OK = result.FailedPatches == 0 && !stopped

	pf := &PreflightResult{OK: result.OK, Result: result}
	if !result.OK {
		st, stErr := e.readAmState(ctx, wtPath)
		if stErr == nil && st.InProgress {
			pf.FirstConflict = &FirstConflict{
				CurrentPatch:    st.CurrentPatch,
				ConflictedFiles: st.ConflictedFiles,
			}
			e.amAbort(ctx, wtPath)
		}
	}
	return pf, nil
}

// preflightWorktreePath builds <gitdir>/happy-stacks/preflight-<headShort>-<nonce>.
func preflightWorktreePath(gitDir, baseSha string) (string, error) {
	nonce := make([]byte, 4)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	name := fmt.Sprintf("preflight-%s-%s", short(baseSha), hex.EncodeToString(nonce))
	return filepath.Join(gitDir, "happy-stacks", name), nil
}
