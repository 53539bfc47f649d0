package pm

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leeroybrun/happy-stacks/internal/logging"
	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

type fakeRunner struct {
	calls []fakeCall
}

type fakeCall struct {
	Dir  string
	Env  []string
	Name string
	Args []string
}

func (f *fakeRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	f.calls = append(f.calls, fakeCall{Dir: dir, Env: env, Name: name, Args: args})
	return "ok", "", 0, nil
}

func testAdapter(t *testing.T) (*Adapter, *fakeRunner) {
	t.Helper()
	home := t.TempDir()
	env, err := stackenv.Resolve(map[string]string{
		stackenv.KeyHomeDir: home,
		stackenv.KeyEnvFile: filepath.Join(home, "stacks", "dev", "env"),
	}, "dev")
	if err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{}
	return NewAdapter(runner, env, logging.Nop()), runner
}

func countCalls(runner *fakeRunner, name string, firstArg string) int {
	n := 0
	for _, c := range runner.calls {
		if c.Name == name && len(c.Args) > 0 && c.Args[0] == firstArg {
			n++
		}
	}
	return n
}

func TestInstall_Pnpm(t *testing.T) {
	a, runner := testAdapter(t)
	dir := t.TempDir() // no yarn.lock → pnpm

	if err := a.Install(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if countCalls(runner, "pnpm", "install") != 1 {
		t.Errorf("calls = %+v", runner.calls)
	}
	// pnpm components never get the yarn readiness call.
	if countCalls(runner, "yarn", "--version") != 0 {
		t.Error("yarn readiness should not run for pnpm")
	}
}

func TestInstall_YarnReadinessMemoized(t *testing.T) {
	a, runner := testAdapter(t)
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "yarn.lock"))

	if err := a.Install(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if err := a.Install(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if got := countCalls(runner, "yarn", "--version"); got != 1 {
		t.Errorf("yarn readiness ran %d times, want 1 (memoized)", got)
	}
	if got := countCalls(runner, "yarn", "install"); got != 2 {
		t.Errorf("installs = %d", got)
	}
}

func TestCallEnv_AppliesStackIsolation(t *testing.T) {
	a, runner := testAdapter(t)
	dir := t.TempDir()

	if err := a.Install(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	env := strings.Join(runner.calls[0].Env, "\n")
	for _, want := range []string{"HAPPY_STACKS_STACK=dev", "COREPACK_ENABLE_AUTO_PIN=0", "YARN_CACHE_FOLDER="} {
		if !strings.Contains(env, want) {
			t.Errorf("call env missing %q", want)
		}
	}
}

func TestExecBin(t *testing.T) {
	a, runner := testAdapter(t)
	dir := t.TempDir()

	out, err := a.ExecBin(context.Background(), dir, "prisma", []string{"migrate", "dev"}, []string{"EXTRA=1"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "ok" {
		t.Errorf("out = %q", out)
	}
	last := runner.calls[len(runner.calls)-1]
	joined := strings.Join(last.Args, " ")
	if joined != "exec prisma migrate dev" {
		t.Errorf("args = %q", joined)
	}
	if !strings.Contains(strings.Join(last.Env, "\n"), "EXTRA=1") {
		t.Error("extra env not applied")
	}
}

func TestEnsureFresh_InstallsOnFirstRun(t *testing.T) {
	a, runner := testAdapter(t)
	dir := t.TempDir()

	if err := a.EnsureFresh(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if countCalls(runner, "pnpm", "install") != 1 {
		t.Errorf("calls = %+v", runner.calls)
	}

	// Marker now fresh: second call must be a no-op.
	touch(t, filepath.Join(dir, "node_modules", ".modules.yaml"))
	runner.calls = nil
	if err := a.EnsureFresh(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("fresh component should not reinstall: %+v", runner.calls)
	}
}
