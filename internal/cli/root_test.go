package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

func setTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(stackenv.KeyHomeDir, home)
	t.Setenv(stackenv.KeyEnvFile, filepath.Join(home, "stacks", "default", "env"))
	return home
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	return rootCmd.Execute()
}

func TestUnknownCommand(t *testing.T) {
	setTestHome(t)
	err := run(t, "frobnicate")
	if err == nil {
		t.Fatal("unknown command must error")
	}
	if !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("error should name the command: %v", err)
	}
}

func TestPortRun_RequiresTarget(t *testing.T) {
	setTestHome(t)
	err := run(t, "monorepo", "port", "run")
	if err == nil || !strings.Contains(err.Error(), "--target") {
		t.Errorf("expected target error, got %v", err)
	}
	if !strings.Contains(err.Error(), "[port] failed") {
		t.Errorf("boundary prefix missing: %v", err)
	}
}

func TestPortRun_OntoCurrentExclusions(t *testing.T) {
	setTestHome(t)
	err := run(t, "monorepo", "port", "run",
		"--target=/tmp/nowhere", "--onto-current", "--branch=x",
		"--from-happy-cli=/src", "--from-happy-cli-base=main")
	if err == nil || !strings.Contains(err.Error(), "--onto-current") {
		t.Errorf("expected mutual-exclusion error, got %v", err)
	}
}

func TestStackCreate_RejectsBadName(t *testing.T) {
	setTestHome(t)
	err := run(t, "stack", "create", "Bad_Name")
	if err == nil || !strings.Contains(err.Error(), "DNS-safe") {
		t.Errorf("expected name validation error, got %v", err)
	}
}

func TestStackCreateAndEnvSet(t *testing.T) {
	home := setTestHome(t)

	if err := run(t, "stack", "create", "dev"); err != nil {
		t.Fatal(err)
	}
	if err := run(t, "--stack=dev", "stack", "env", "set", "FOO=bar"); err != nil {
		t.Fatal(err)
	}

	vars, err := stackenv.ParseEnvFile(filepath.Join(home, "stacks", "default", "env"))
	if err != nil {
		t.Fatal(err)
	}
	if vars["FOO"] != "bar" {
		t.Errorf("env file vars = %v", vars)
	}
}

func TestSplitKV(t *testing.T) {
	key, val, ok := splitKV("FOO=bar=baz")
	if !ok || key != "FOO" || val != "bar=baz" {
		t.Errorf("got %q %q %v", key, val, ok)
	}
	if _, _, ok := splitKV("novalue"); ok {
		t.Error("missing = should fail")
	}
	if _, _, ok := splitKV("=bad"); ok {
		t.Error("empty key should fail")
	}
}
