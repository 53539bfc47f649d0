package supervisor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/leeroybrun/happy-stacks/internal/fsutil"
	"github.com/leeroybrun/happy-stacks/internal/gitx"
	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

// BuildSignature captures a component worktree's state: a build can be
// skipped when the signature is unchanged and the build artifact exists.
type BuildSignature struct {
	Head       string `json:"head"`
	StatusHash string `json:"statusHash"`
	Signature  string `json:"signature"`
}

// computeSignature derives the signature from git HEAD and porcelain
// status: sha256(head + "\n" + status).
func computeSignature(ctx context.Context, git gitx.Runner, dir string) (*BuildSignature, error) {
	repo := gitx.NewRepo(git, dir)
	head, err := repo.Head(ctx)
	if err != nil {
		return nil, err
	}
	status, err := repo.StatusPorcelain(ctx)
	if err != nil {
		return nil, err
	}
	return &BuildSignature{
		Head:       head,
		StatusHash: fsutil.Sha256Hex(status),
		Signature:  fsutil.Sha256Hex(head + "\n" + status),
	}, nil
}

// signaturePath is <home>/cache/build/<label>/<sha256(dir)>.json.
func signaturePath(env *stackenv.StackEnv, label, dir string) string {
	return filepath.Join(env.BuildCacheDir(), label, fsutil.Sha256Hex(dir)+".json")
}

func loadSignature(env *stackenv.StackEnv, label, dir string) *BuildSignature {
	var sig BuildSignature
	if err := fsutil.ReadJSON(signaturePath(env, label, dir), &sig); err != nil {
		return nil
	}
	return &sig
}

func saveSignature(env *stackenv.StackEnv, label, dir string, sig *BuildSignature) error {
	return fsutil.WriteJSON(signaturePath(env, label, dir), sig)
}

// shouldBuild decides per build mode. "never" still forces one build when
// the artifact is missing; "auto" skips only on unchanged signature AND a
// present artifact.
func shouldBuild(mode string, unchanged, artifactExists bool) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return !artifactExists
	default: // auto
		return !unchanged || !artifactExists
	}
}

// artifactExists checks a component's expected build output.
func artifactExists(opDir, artifactRel string) bool {
	if artifactRel == "" {
		return true
	}
	_, err := os.Stat(filepath.Join(opDir, artifactRel))
	return err == nil
}
