package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/leeroybrun/happy-stacks/internal/component"
	"github.com/leeroybrun/happy-stacks/internal/fsutil"
	"github.com/leeroybrun/happy-stacks/internal/gitx"
	"github.com/leeroybrun/happy-stacks/internal/pm"
	"github.com/leeroybrun/happy-stacks/internal/proc"
	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

// Supervisor prepares and runs the stack's long-lived component processes.
type Supervisor struct {
	env *stackenv.StackEnv
	pm  *pm.Adapter
	git gitx.Runner
	ps  PsRunner
	log *zap.SugaredLogger
	out io.Writer // progress; nil = silent
}

// New creates a Supervisor.
func New(env *stackenv.StackEnv, adapter *pm.Adapter, git gitx.Runner, ps PsRunner, log *zap.SugaredLogger, out io.Writer) *Supervisor {
	return &Supervisor{env: env, pm: adapter, git: git, ps: ps, log: log, out: out}
}

func (s *Supervisor) logf(format string, args ...interface{}) {
	if s.out != nil {
		fmt.Fprintf(s.out, "  → "+format+"\n", args...)
	}
}

// StartOpts configures a start.
type StartOpts struct {
	Components  []string // empty = all services
	Restart     bool
	StablePorts bool
	TeeDir      string // when set, prefixed output also lands in <TeeDir>/<label>.log
}

// StartResult reports one component's start outcome.
type StartResult struct {
	Label          string `json:"label"`
	Pid            int    `json:"pid,omitempty"`
	Port           int    `json:"port,omitempty"`
	AlreadyRunning bool   `json:"alreadyRunning,omitempty"`
	BuildSkipped   bool   `json:"buildSkipped,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Start installs, builds, and spawns the selected components in service
// order. Each child runs in its own process group with the stack's
// isolation env applied.
func (s *Supervisor) Start(ctx context.Context, opts StartOpts) ([]StartResult, error) {
	s.env.EnsureDirs()

	selected := map[string]bool{}
	for _, c := range opts.Components {
		if serviceFor(c) == nil {
			return nil, fmt.Errorf("unknown component %q", c)
		}
		selected[c] = true
	}

	var results []StartResult
	reg := readRegistry(s.env)

	for _, svc := range services {
		if len(selected) > 0 && !selected[svc.Component] {
			continue
		}
		res, err := s.startOne(ctx, svc, opts, reg)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}

	if err := reg.save(s.env); err != nil {
		return results, fmt.Errorf("save process registry: %w", err)
	}
	s.writeRuntimeState(results)
	return results, nil
}

func (s *Supervisor) startOne(ctx context.Context, svc Service, opts StartOpts, reg *registry) (*StartResult, error) {
	label := svc.Component
	comp, err := component.Resolve(s.env, svc.Component)
	if err != nil {
		return nil, err
	}
	if !fsutil.IsDir(comp.OpDir) {
		return nil, fmt.Errorf("component %s: directory %s does not exist (clone it or set its directory override)", label, comp.OpDir)
	}

	// Previous instance still alive?
	if st, _ := readPidState(s.env, label); st != nil && proc.Alive(st.Pid) {
		if !opts.Restart {
			s.logf("%s already running (pid %d)", label, st.Pid)
			return &StartResult{Label: label, Pid: st.Pid, Port: st.Port, AlreadyRunning: true}, nil
		}
		if _, err := s.stopOne(ctx, label, reg); err != nil {
			return nil, fmt.Errorf("restart %s: %w", label, err)
		}
	}

	s.logf("%s: checking dependencies", label)
	if err := s.pm.EnsureFresh(ctx, comp.OpDir); err != nil {
		return nil, err
	}

	buildSkipped := false
	if svc.Buildable {
		buildSkipped, err = s.buildIfNeeded(ctx, comp, svc)
		if err != nil {
			return nil, err
		}
	}

	port := 0
	var extraEnv []string
	if svc.BasePort > 0 {
		start := svc.BasePort
		if opts.StablePorts {
			start = StableStartPort(s.env.Name, svc.BasePort)
		}
		port, err = PickPort(start)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", label, err)
		}
		extraEnv = append(extraEnv, fmt.Sprintf("PORT=%d", port))
	}

	spawnOpts := proc.SpawnOpts{Label: label}
	if opts.TeeDir != "" {
		if err := os.MkdirAll(opts.TeeDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(opts.TeeDir, label+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open tee log: %w", err)
		}
		spawnOpts.Tee = f
	}

	p, err := s.pm.SpawnScript(ctx, comp.OpDir, label, svc.Script, nil, extraEnv, spawnOpts)
	if err != nil {
		return nil, err
	}

	st := &PidState{
		Pid:        p.Pid,
		Port:       port,
		ProjectDir: comp.OpDir,
		StartedAt:  p.StartedAt.UTC().Format(time.RFC3339),
	}
	if err := writePidState(s.env, label, st); err != nil {
		return nil, fmt.Errorf("write pid state for %s: %w", label, err)
	}
	reg.Procs[label] = *st

	s.logf("%s started (pid %d, port %d)", label, p.Pid, port)
	return &StartResult{Label: label, Pid: p.Pid, Port: port, BuildSkipped: buildSkipped}, nil
}

// buildIfNeeded builds a buildable component per the stack's build mode
// and the worktree signature. Returns true when the build was skipped.
func (s *Supervisor) buildIfNeeded(ctx context.Context, comp *component.Component, svc Service) (bool, error) {
	mode := s.env.BuildMode()
	sig, err := computeSignature(ctx, s.git, comp.OpDir)
	if err != nil {
		return false, fmt.Errorf("compute build signature for %s: %w", comp.Name, err)
	}
	persisted := loadSignature(s.env, comp.Name, comp.OpDir)
	unchanged := persisted != nil && persisted.Signature == sig.Signature
	haveArtifact := artifactExists(comp.OpDir, svc.ArtifactRel)

	if !shouldBuild(mode, unchanged, haveArtifact) {
		s.logf("%s: build up to date", comp.Name)
		return true, nil
	}

	s.logf("%s: building", comp.Name)
	if err := s.pm.RunScript(ctx, comp.OpDir, svc.BuildScript, nil, nil); err != nil {
		return false, err
	}
	if !artifactExists(comp.OpDir, svc.ArtifactRel) {
		return false, fmt.Errorf(
			"component %s built but %s is missing in %s; run `%s run %s` there and inspect the output",
			comp.Name, svc.ArtifactRel, comp.OpDir, string(pm.Detect(comp.OpDir)), svc.BuildScript)
	}
	if err := saveSignature(s.env, comp.Name, comp.OpDir, sig); err != nil {
		return false, fmt.Errorf("save build signature: %w", err)
	}
	return false, nil
}

// StopResult reports one component's stop outcome.
type StopResult struct {
	Label    string `json:"label"`
	Stopped  bool   `json:"stopped"`
	NotOwned bool   `json:"notOwned,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Stop tears down the selected components (all when empty), killing only
// processes that prove stack ownership.
func (s *Supervisor) Stop(ctx context.Context, components []string) ([]StopResult, error) {
	if len(components) == 0 {
		for _, svc := range services {
			components = append(components, svc.Component)
		}
	}

	reg := readRegistry(s.env)
	var results []StopResult
	for _, label := range components {
		res, err := s.stopOne(ctx, label, reg)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	if err := reg.save(s.env); err != nil {
		return results, fmt.Errorf("save process registry: %w", err)
	}
	return results, nil
}

// stopOne kills one component's process group after proving ownership via
// ps eww. The pid comes from the component's pid-state file; the registry
// entry is removed on stop but is not consulted for the proof. Refusal is a
// warning, never a kill.
func (s *Supervisor) stopOne(ctx context.Context, label string, reg *registry) (*StopResult, error) {
	st, err := readPidState(s.env, label)
	if err != nil {
		return nil, err
	}
	if st == nil || !proc.Alive(st.Pid) {
		deletePidState(s.env, label)
		delete(reg.Procs, label)
		return &StopResult{Label: label, Message: "not running"}, nil
	}

	psOut, err := s.ps.Eww(ctx, st.Pid)
	if err != nil {
		s.log.Warnw("cannot inspect process; refusing to kill", "label", label, "pid", st.Pid, "err", err)
		return &StopResult{Label: label, NotOwned: true, Message: "cannot inspect process; refusing to kill"}, nil
	}
	if !proveOwnership(psOut, s.env) {
		s.log.Warnw("ownership proof failed; refusing to kill", "label", label, "pid", st.Pid, "stack", s.env.Name)
		return &StopResult{Label: label, NotOwned: true,
			Message: fmt.Sprintf("pid %d does not carry stack %q identifiers; kill it manually if it is yours", st.Pid, s.env.Name)}, nil
	}

	s.logf("stopping %s (pid %d)", label, st.Pid)
	if err := proc.TerminateGroup(st.Pid, 5*time.Second); err != nil {
		return nil, fmt.Errorf("terminate %s (pid %d): %w", label, st.Pid, err)
	}
	deletePidState(s.env, label)
	delete(reg.Procs, label)
	return &StopResult{Label: label, Stopped: true}, nil
}

// ProcStatus is one entry of the stack's process table.
type ProcStatus struct {
	Label     string `json:"label"`
	Pid       int    `json:"pid,omitempty"`
	Port      int    `json:"port,omitempty"`
	Running   bool   `json:"running"`
	StartedAt string `json:"startedAt,omitempty"`
}

// Status reports liveness for every service.
func (s *Supervisor) Status(ctx context.Context) []ProcStatus {
	var out []ProcStatus
	for _, svc := range services {
		st, _ := readPidState(s.env, svc.Component)
		ps := ProcStatus{Label: svc.Component}
		if st != nil {
			ps.Pid = st.Pid
			ps.Port = st.Port
			ps.StartedAt = st.StartedAt
			ps.Running = proc.Alive(st.Pid)
		}
		out = append(out, ps)
	}
	return out
}

// runtimeState is the stack's persisted runtime summary.
type runtimeState struct {
	Stack     string        `json:"stack"`
	UpdatedAt string        `json:"updatedAt"`
	Started   []StartResult `json:"started"`
}

func (s *Supervisor) writeRuntimeState(results []StartResult) {
	state := runtimeState{
		Stack:     s.env.Name,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Started:   results,
	}
	if err := fsutil.WriteJSON(s.env.RuntimeStateFile(), &state); err != nil {
		s.log.Warnw("write runtime state", "err", err)
	}
}
