package port

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leeroybrun/happy-stacks/internal/gitx"
)

func TestRun_OntoCurrentExcludesBranchAndBase(t *testing.T) {
	e := testEngine(&fakeGit{})
	_, err := e.Run(context.Background(), Options{
		Target:      "/repo",
		OntoCurrent: true,
		Branch:      "port/x",
		Sources:     []SourceSpec{{Label: "happy-cli", PathOrURL: "/src", BaseRef: "main"}},
	})
	if err == nil || !strings.Contains(err.Error(), "--onto-current") {
		t.Errorf("expected mutual-exclusion error, got %v", err)
	}
}

func TestRun_RequiresSources(t *testing.T) {
	e := testEngine(&fakeGit{})
	_, err := e.Run(context.Background(), Options{Target: "/repo"})
	if err == nil || !strings.Contains(err.Error(), "--from-happy") {
		t.Errorf("expected sources error, got %v", err)
	}
}

func TestRun_RejectsNonMonorepoTarget(t *testing.T) {
	target := t.TempDir() // empty: no monorepo layout
	git := &fakeGit{respond: func(dir string, args []string) (string, error) {
		switch argsJoined(args) {
		case "rev-parse --git-dir":
			return filepath.Join(target, ".git"), nil
		case "rev-parse --show-toplevel":
			return target, nil
		}
		return "", nil
	}}
	e := testEngine(git)

	_, err := e.Run(context.Background(), Options{
		Target:  target,
		Branch:  "port/x",
		Sources: []SourceSpec{{Label: "happy-cli", PathOrURL: "/src", BaseRef: "main"}},
	})
	if err == nil || !strings.Contains(err.Error(), "monorepo") {
		t.Errorf("expected layout error, got %v", err)
	}
}

func TestRun_RejectsAmInProgress(t *testing.T) {
	target := t.TempDir()
	gitDir := filepath.Join(target, ".git")
	if err := os.MkdirAll(filepath.Join(gitDir, "rebase-apply"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(target, "packages", "happy-cli"), 0o755); err != nil {
		t.Fatal(err)
	}
	git := &fakeGit{respond: func(dir string, args []string) (string, error) {
		switch argsJoined(args) {
		case "rev-parse --git-dir":
			return gitDir, nil
		case "rev-parse --show-toplevel":
			return target, nil
		}
		return "", nil
	}}
	e := testEngine(git)

	_, err := e.Run(context.Background(), Options{
		Target:  target,
		Branch:  "port/x",
		Sources: []SourceSpec{{Label: "happy-cli", PathOrURL: "/src", BaseRef: "main"}},
	})
	if err == nil || !strings.Contains(err.Error(), "git am") {
		t.Errorf("expected am-in-progress error, got %v", err)
	}
}

func TestResolveDefaultBase_OriginHead(t *testing.T) {
	git := &fakeGit{respond: func(dir string, args []string) (string, error) {
		if argsJoined(args) == "symbolic-ref --quiet refs/remotes/origin/HEAD" {
			return "refs/remotes/origin/main", nil
		}
		return "", gitErr("no ref")
	}}
	e := testEngine(git)

	base, err := e.resolveDefaultBase(context.Background(), gitx.NewRepo(git, "/repo"))
	if err != nil {
		t.Fatal(err)
	}
	if base != "origin/main" {
		t.Errorf("base = %q", base)
	}
}

func TestResolveDefaultBase_FallbackChain(t *testing.T) {
	git := &fakeGit{respond: func(dir string, args []string) (string, error) {
		joined := argsJoined(args)
		if joined == "rev-parse --verify --quiet master" {
			return "sha", nil
		}
		return "", gitErr("no ref")
	}}
	e := testEngine(git)

	base, err := e.resolveDefaultBase(context.Background(), gitx.NewRepo(git, "/repo"))
	if err != nil {
		t.Fatal(err)
	}
	if base != "master" {
		t.Errorf("base = %q, want last fallback", base)
	}
}

func TestResolveDefaultBase_NoneFound(t *testing.T) {
	git := &fakeGit{respond: func(dir string, args []string) (string, error) {
		return "", gitErr("no ref")
	}}
	e := testEngine(git)

	_, err := e.resolveDefaultBase(context.Background(), gitx.NewRepo(git, "/repo"))
	if err == nil || !strings.Contains(err.Error(), "--base") {
		t.Errorf("expected actionable error, got %v", err)
	}
}

func TestStatus_WithPlanAndConflict(t *testing.T) {
	fx := newAmFixture(t)
	fx.startAm(t)
	if err := SavePlan(fx.gitDir, NewPlan(fx.target)); err != nil {
		t.Fatal(err)
	}
	fx.git.respond = func(dir string, args []string) (string, error) {
		joined := argsJoined(args)
		switch {
		case strings.HasPrefix(joined, "rev-parse --git-dir"):
			return fx.gitDir, nil
		case strings.HasPrefix(joined, "rev-parse --abbrev-ref HEAD"):
			return "port/test", nil
		case strings.HasPrefix(joined, "diff --name-only --diff-filter=U"):
			return "a.txt\nb.txt", nil
		case strings.HasPrefix(joined, "am --show-current-patch"):
			return "the patch", nil
		}
		return "", nil
	}
	e := testEngine(fx.git)

	info, err := e.Status(context.Background(), fx.target)
	if err != nil {
		t.Fatal(err)
	}
	if !info.AmInProgress || !info.HasPlan {
		t.Errorf("info = %+v", info)
	}
	if len(info.ConflictedFiles) != 2 {
		t.Errorf("conflicts = %v", info.ConflictedFiles)
	}
	if !strings.Contains(info.NextCommand, "continue --stage") {
		t.Errorf("next = %q", info.NextCommand)
	}
}

func TestBuildArgv(t *testing.T) {
	sources := []PlanSource{{Label: "happy-cli", PathOrURL: "/src", BaseRef: "main", HeadRef: "feat"}}

	initial := buildArgv("/repo", "origin/main", "port/x", false, true, sources)
	joined := strings.Join(initial, " ")
	for _, want := range []string{"--target=/repo", "--branch=port/x", "--base=origin/main", "--3way",
		"--from-happy-cli=/src", "--from-happy-cli-base=main", "--from-happy-cli-ref=feat"} {
		if !strings.Contains(joined, want) {
			t.Errorf("initial argv missing %q: %v", want, initial)
		}
	}

	resume := buildArgv("/repo", "", "", true, true, sources)
	joinedResume := strings.Join(resume, " ")
	if !strings.Contains(joinedResume, "--onto-current") {
		t.Errorf("resume argv must be onto-current: %v", resume)
	}
	if strings.Contains(joinedResume, "--branch") || strings.Contains(joinedResume, "--base=") {
		t.Errorf("resume argv must not pick a branch: %v", resume)
	}
}
