package proc

import (
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestPrefixCopy_LinesAndPartialFlush(t *testing.T) {
	var out strings.Builder
	prefixCopy(&out, nil, "happy-cli", strings.NewReader("one\ntwo\npartial"))

	got := out.String()
	want := "[happy-cli] one\n[happy-cli] two\n[happy-cli] partial\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPrefixCopy_Tee(t *testing.T) {
	var out, tee strings.Builder
	prefixCopy(&out, &tee, "x", strings.NewReader("line\n"))
	if out.String() != tee.String() {
		t.Errorf("tee mismatch: %q vs %q", out.String(), tee.String())
	}
}

func TestSpawn_PrefixesAndExitLine(t *testing.T) {
	var stdout, stderr strings.Builder

	cmd := exec.Command("sh", "-c", "echo hello; echo oops >&2; exit 3")
	p, err := Spawn(cmd, SpawnOpts{Label: "happy-server", Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		t.Fatal(err)
	}
	if p.Pid <= 0 {
		t.Errorf("pid = %d", p.Pid)
	}
	_ = p.Wait()

	if !strings.Contains(stdout.String(), "[happy-server] hello") {
		t.Errorf("stdout = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "[happy-server] oops") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "exited (code=3, sig=)") {
		t.Errorf("missing exit line: %q", stderr.String())
	}
}

func TestSpawn_CleanExitHasNoExitLine(t *testing.T) {
	var stdout, stderr strings.Builder
	cmd := exec.Command("sh", "-c", "echo fine")
	p, err := Spawn(cmd, SpawnOpts{Label: "ok", Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(); err != nil {
		t.Errorf("wait: %v", err)
	}
	if strings.Contains(stderr.String(), "exited") {
		t.Errorf("clean exit should not log: %q", stderr.String())
	}
}

func TestAlive(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Error("own process should be alive")
	}
	if Alive(0) || Alive(-1) {
		t.Error("non-positive pids are never alive")
	}
}

func TestTerminateGroup(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	p, err := Spawn(cmd, SpawnOpts{Label: "sleeper", Stdout: new(strings.Builder), Stderr: new(strings.Builder)})
	if err != nil {
		t.Fatal(err)
	}

	if err := TerminateGroup(p.Pid, 2*time.Second); err != nil {
		t.Fatalf("terminate: %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after group terminate")
	}
}
