package component

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func envWith(t *testing.T, overrides map[string]string) *stackenv.StackEnv {
	t.Helper()
	home := t.TempDir()
	environ := map[string]string{
		stackenv.KeyHomeDir: home,
		stackenv.KeyEnvFile: filepath.Join(home, "stacks", "dev", "env"),
	}
	for k, v := range overrides {
		environ[k] = v
	}
	env, err := stackenv.Resolve(environ, "dev")
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestIsMonorepoRoot(t *testing.T) {
	modern := t.TempDir()
	mkdirs(t, modern, "packages/happy-cli")
	if !IsMonorepoRoot(modern) {
		t.Error("packages/happy-cli should mark a monorepo root")
	}

	legacy := t.TempDir()
	mkdirs(t, legacy, "cli", "server", "expo-app")
	if !IsMonorepoRoot(legacy) {
		t.Error("legacy triplet should mark a monorepo root")
	}

	plain := t.TempDir()
	mkdirs(t, plain, "src")
	if IsMonorepoRoot(plain) {
		t.Error("plain repo is not a monorepo root")
	}
}

func TestFindMonorepoRoot(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "packages/happy-server/src")
	got := FindMonorepoRoot(filepath.Join(root, "packages", "happy-server", "src"))
	if got != root {
		t.Errorf("found %q, want %q", got, root)
	}
	if FindMonorepoRoot(t.TempDir()) != "" {
		t.Error("unrelated dir should find no root")
	}
}

func TestResolve_PlainRepo(t *testing.T) {
	repo := t.TempDir()
	mkdirs(t, repo, "src")
	env := envWith(t, map[string]string{"HAPPY_STACKS_HAPPY_CLI_DIR": repo})

	c, err := Resolve(env, HappyCLI)
	if err != nil {
		t.Fatal(err)
	}
	if c.Dir != repo || c.OpDir != repo || c.RepoDir != repo {
		t.Errorf("dirs = %+v", c)
	}
	if c.RepoKey != HappyCLI {
		t.Errorf("repo key = %q, want %q", c.RepoKey, HappyCLI)
	}
}

func TestResolve_MonorepoRootCollapsesKey(t *testing.T) {
	mono := t.TempDir()
	mkdirs(t, mono, "packages/happy-cli", "packages/happy-server")
	env := envWith(t, map[string]string{"HAPPY_STACKS_HAPPY_CLI_DIR": mono})

	c, err := Resolve(env, HappyCLI)
	if err != nil {
		t.Fatal(err)
	}
	if c.RepoKey != Happy {
		t.Errorf("repo key = %q, want happy", c.RepoKey)
	}
	if c.OpDir != filepath.Join(mono, "packages", "happy-cli") {
		t.Errorf("op dir = %q", c.OpDir)
	}
	if c.RepoDir != mono {
		t.Errorf("repo dir = %q", c.RepoDir)
	}
}

func TestResolve_LegacyLayout(t *testing.T) {
	mono := t.TempDir()
	mkdirs(t, mono, "cli", "server", "expo-app")
	env := envWith(t, map[string]string{"HAPPY_STACKS_HAPPY_SERVER_DIR": mono})

	c, err := Resolve(env, HappyServer)
	if err != nil {
		t.Fatal(err)
	}
	if c.OpDir != filepath.Join(mono, "server") {
		t.Errorf("op dir = %q", c.OpDir)
	}
	if c.RepoKey != Happy {
		t.Errorf("repo key = %q", c.RepoKey)
	}
}

func TestResolve_DefaultsUnderComponents(t *testing.T) {
	env := envWith(t, nil)
	c, err := Resolve(env, Happy)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(env.ComponentsDir(), Happy)
	if c.Dir != want {
		t.Errorf("dir = %q, want %q", c.Dir, want)
	}
}

func TestResolve_Unknown(t *testing.T) {
	env := envWith(t, nil)
	if _, err := Resolve(env, "nope"); err == nil {
		t.Error("unknown component should error")
	}
}
