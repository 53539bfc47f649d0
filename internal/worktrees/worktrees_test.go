package worktrees

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leeroybrun/happy-stacks/internal/component"
	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

type fakeGit struct {
	calls [][]string
	fail  bool
}

func (f *fakeGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	if f.fail {
		return "", os.ErrInvalid
	}
	// Mimic `git worktree add` creating the checkout with a .git file.
	if len(args) > 1 && args[0] == "worktree" && args[1] == "add" {
		path := args[2]
		_ = os.MkdirAll(path, 0o755)
		_ = os.WriteFile(filepath.Join(path, ".git"), []byte("gitdir: elsewhere\n"), 0o644)
	}
	return "", nil
}

func (f *fakeGit) RunEnv(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	return f.Run(ctx, dir, args...)
}

func testRegistry(t *testing.T) (*Registry, *stackenv.StackEnv, *fakeGit) {
	t.Helper()
	home := t.TempDir()
	env, err := stackenv.Resolve(map[string]string{
		stackenv.KeyHomeDir: home,
		stackenv.KeyEnvFile: filepath.Join(home, "stacks", "dev", "env"),
	}, "dev")
	if err != nil {
		t.Fatal(err)
	}
	git := &fakeGit{}
	return NewRegistry(env, git), env, git
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec("alice/feature/login")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Owner != "alice" || spec.Branch != "feature/login" {
		t.Errorf("spec = %+v", spec)
	}
	for _, bad := range []string{"", "alice", "alice/", "/branch"} {
		if _, err := ParseSpec(bad); err == nil {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

func TestDirLayout(t *testing.T) {
	reg, env, _ := testRegistry(t)
	spec := Spec{Owner: "alice", Branch: "feature/login"}
	want := filepath.Join(env.ComponentsDir(), ".worktrees", "happy", "alice", "feature", "login")
	if got := reg.Dir("happy", spec); got != want {
		t.Errorf("dir = %q, want %q", got, want)
	}
}

func TestCreateAndList(t *testing.T) {
	reg, env, git := testRegistry(t)

	repoDir := filepath.Join(env.ComponentsDir(), "happy-cli")
	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		t.Fatal(err)
	}
	comp := &component.Component{Name: "happy-cli", Dir: repoDir, OpDir: repoDir, RepoDir: repoDir, RepoKey: "happy-cli"}

	entry, err := reg.Create(context.Background(), comp, "alice/wip", CreateOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Spec.Owner != "alice" || entry.Spec.Branch != "wip" {
		t.Errorf("entry = %+v", entry)
	}

	// The worktree add call carries the branch name <owner>/<branch>.
	found := false
	for _, call := range git.calls {
		if len(call) >= 5 && call[0] == "worktree" && call[1] == "add" && call[4] == "alice/wip" {
			found = true
		}
	}
	if !found {
		t.Errorf("worktree add with branch not seen: %v", git.calls)
	}

	entries, err := reg.List("happy-cli")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Spec.String() != "alice/wip" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestCreate_EnvLocal(t *testing.T) {
	reg, env, _ := testRegistry(t)
	repoDir := filepath.Join(env.ComponentsDir(), "happy-cli")
	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		t.Fatal(err)
	}
	comp := &component.Component{Name: "happy-cli", Dir: repoDir, OpDir: repoDir, RepoDir: repoDir, RepoKey: "happy-cli"}

	entry, err := reg.Create(context.Background(), comp, "bob/try", CreateOpts{
		EnvLocal: map[string]string{"HAPPY_SERVER_URL": "http://localhost:3005"},
	})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(entry.Path, "env.local"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "HAPPY_SERVER_URL=http://localhost:3005") {
		t.Errorf("env.local = %q", data)
	}
}

func TestResolve_MonorepoSubdir(t *testing.T) {
	reg, env, _ := testRegistry(t)

	root := filepath.Join(env.ComponentsDir(), "happy")
	pkg := filepath.Join(root, "packages", "happy-cli")
	if err := os.MkdirAll(pkg, 0o755); err != nil {
		t.Fatal(err)
	}
	comp := &component.Component{Name: "happy-cli", Dir: root, OpDir: pkg, RepoDir: root, RepoKey: "happy"}

	wt := reg.Dir("happy", Spec{Owner: "alice", Branch: "wip"})
	if err := os.MkdirAll(wt, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := reg.Resolve(comp, "alice/wip")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wt, "packages", "happy-cli")
	if got != want {
		t.Errorf("resolved = %q, want %q", got, want)
	}
}

func TestResolve_MissingWorktree(t *testing.T) {
	reg, env, _ := testRegistry(t)
	repoDir := filepath.Join(env.ComponentsDir(), "happy-cli")
	comp := &component.Component{Name: "happy-cli", Dir: repoDir, OpDir: repoDir, RepoDir: repoDir, RepoKey: "happy-cli"}

	_, err := reg.Resolve(comp, "ghost/none")
	if err == nil || !strings.Contains(err.Error(), "worktree create") {
		t.Errorf("expected actionable error, got %v", err)
	}
}
