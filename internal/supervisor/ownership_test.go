package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

func testStackEnv(t *testing.T) *stackenv.StackEnv {
	t.Helper()
	home := t.TempDir()
	env, err := stackenv.Resolve(map[string]string{
		stackenv.KeyHomeDir: home,
		stackenv.KeyEnvFile: filepath.Join(home, "stacks", "dev", "env"),
	}, "dev")
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestProveOwnership(t *testing.T) {
	env := testStackEnv(t)

	cases := []struct {
		name string
		out  string
		want bool
	}{
		{
			"stack name and env file",
			"PID TT\n123 ?? node server HAPPY_STACKS_STACK=dev HAPPY_STACKS_ENV_FILE=" + env.EnvFile,
			true,
		},
		{
			"legacy stack name and home binding",
			"123 node HAPPY_LOCAL_STACK=dev HOME=" + env.IsolatedHomeDir(),
			true,
		},
		{
			"stack name and xdg cache binding",
			"123 node HAPPY_STACKS_STACK=dev XDG_CACHE_HOME=" + env.XDGCacheDir(),
			true,
		},
		{
			"stack name alone is not enough",
			"123 node HAPPY_STACKS_STACK=dev",
			false,
		},
		{
			"env file without stack name is not enough",
			"123 node " + env.EnvFile,
			false,
		},
		{
			"wrong stack name",
			"123 node HAPPY_STACKS_STACK=other HAPPY_STACKS_ENV_FILE=" + env.EnvFile,
			false,
		},
		{
			"unrelated process",
			"123 node /usr/bin/something",
			false,
		},
	}
	for _, tc := range cases {
		if got := proveOwnership(tc.out, env); got != tc.want {
			t.Errorf("%s: proveOwnership = %v, want %v", tc.name, got, tc.want)
		}
	}
}
