package supervisor

import (
	"os"
	"path/filepath"
	"time"

	"github.com/leeroybrun/happy-stacks/internal/fsutil"
	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

// PidState is the persisted record of one supervised process. Created
// after a successful spawn, deleted on clean shutdown.
type PidState struct {
	Pid        int    `json:"pid"`
	Port       int    `json:"port,omitempty"`
	ProjectDir string `json:"projectDir"`
	StartedAt  string `json:"startedAt"`
}

func pidStatePath(env *stackenv.StackEnv, label string) string {
	return filepath.Join(env.PidsDir(), label+".json")
}

// writePidState persists the record for label.
func writePidState(env *stackenv.StackEnv, label string, st *PidState) error {
	return fsutil.WriteJSON(pidStatePath(env, label), st)
}

// readPidState loads the record for label. Returns nil when absent.
func readPidState(env *stackenv.StackEnv, label string) (*PidState, error) {
	var st PidState
	if err := fsutil.ReadJSON(pidStatePath(env, label), &st); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// deletePidState removes the record for label.
func deletePidState(env *stackenv.StackEnv, label string) {
	_ = os.Remove(pidStatePath(env, label))
}

// registry is the supervisor-owned pids.json: every process the supervisor
// has started for this stack. The supervisor is the sole writer; teardown
// removes entries but decides ownership from the ps-eww proof alone.
type registry struct {
	UpdatedAt string              `json:"updatedAt"`
	Procs     map[string]PidState `json:"procs"`
}

func readRegistry(env *stackenv.StackEnv) *registry {
	var r registry
	if err := fsutil.ReadJSON(env.PidsFile(), &r); err != nil || r.Procs == nil {
		return &registry{Procs: map[string]PidState{}}
	}
	return &r
}

func (r *registry) save(env *stackenv.StackEnv) error {
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return fsutil.WriteJSON(env.PidsFile(), r)
}
