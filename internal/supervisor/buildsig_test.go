package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leeroybrun/happy-stacks/internal/fsutil"
)

type fakeGit struct {
	head   string
	status string
}

func (f *fakeGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	joined := strings.Join(args, " ")
	switch {
	case joined == "rev-parse HEAD":
		return f.head, nil
	case strings.HasPrefix(joined, "status --porcelain"):
		return f.status, nil
	}
	return "", nil
}

func (f *fakeGit) RunEnv(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	return f.Run(ctx, dir, args...)
}

func TestComputeSignature(t *testing.T) {
	git := &fakeGit{head: "abc123", status: " M cli/src/index.ts"}
	sig, err := computeSignature(context.Background(), git, "/dir")
	if err != nil {
		t.Fatal(err)
	}
	if sig.Head != "abc123" {
		t.Errorf("head = %q", sig.Head)
	}
	if sig.StatusHash != fsutil.Sha256Hex(" M cli/src/index.ts") {
		t.Errorf("status hash = %q", sig.StatusHash)
	}
	if sig.Signature != fsutil.Sha256Hex("abc123\n M cli/src/index.ts") {
		t.Errorf("signature = %q", sig.Signature)
	}
}

func TestSignature_ChangesWithStatus(t *testing.T) {
	clean := &fakeGit{head: "abc123", status: ""}
	dirty := &fakeGit{head: "abc123", status: " M x.ts"}

	s1, _ := computeSignature(context.Background(), clean, "/dir")
	s2, _ := computeSignature(context.Background(), dirty, "/dir")
	if s1.Signature == s2.Signature {
		t.Error("dirty worktree must change the signature")
	}
}

func TestSignaturePersistence(t *testing.T) {
	env := testStackEnv(t)
	sig := &BuildSignature{Head: "abc", StatusHash: "h", Signature: "s"}

	if loadSignature(env, "happy-cli", "/dir") != nil {
		t.Error("expected no persisted signature yet")
	}
	if err := saveSignature(env, "happy-cli", "/dir", sig); err != nil {
		t.Fatal(err)
	}
	loaded := loadSignature(env, "happy-cli", "/dir")
	if loaded == nil || loaded.Signature != "s" {
		t.Errorf("loaded = %+v", loaded)
	}

	// Path layout: <home>/cache/build/<label>/<sha256(dir)>.json
	want := filepath.Join(env.BuildCacheDir(), "happy-cli", fsutil.Sha256Hex("/dir")+".json")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("signature file not at %s: %v", want, err)
	}
}

func TestShouldBuild(t *testing.T) {
	cases := []struct {
		mode      string
		unchanged bool
		artifact  bool
		want      bool
	}{
		{"auto", true, true, false},
		{"auto", true, false, true},
		{"auto", false, true, true},
		{"auto", false, false, true},
		{"always", true, true, true},
		{"never", true, false, true}, // never still builds a missing artifact
		{"never", false, true, false},
		{"never", false, false, true},
	}
	for _, tc := range cases {
		got := shouldBuild(tc.mode, tc.unchanged, tc.artifact)
		if got != tc.want {
			t.Errorf("shouldBuild(%s, unchanged=%v, artifact=%v) = %v, want %v",
				tc.mode, tc.unchanged, tc.artifact, got, tc.want)
		}
	}
}

func TestArtifactExists(t *testing.T) {
	dir := t.TempDir()
	if artifactExists(dir, "dist/index.mjs") {
		t.Error("missing artifact should report false")
	}
	if err := os.MkdirAll(filepath.Join(dir, "dist"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "dist", "index.mjs"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !artifactExists(dir, "dist/index.mjs") {
		t.Error("artifact present should report true")
	}
	if !artifactExists(dir, "") {
		t.Error("empty artifact path means nothing to check")
	}
}
