package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leeroybrun/happy-stacks/internal/pm"
	"github.com/leeroybrun/happy-stacks/internal/supervisor"
)

var (
	startRestart bool
	startStable  bool
	startLogs    bool
	startWait    bool
)

var startCmd = &cobra.Command{
	Use:   "start [component...]",
	Short: "Install, build, and start the stack's processes",
	Long: `Starts the stack's long-running processes (happy-server, happy-cli,
happy) with per-stack cache/home isolation. Dependencies are installed when
stale, the CLI is rebuilt when its worktree signature changed, and each
child runs in its own process group with "[label] " prefixed output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("start", err)
		}

		sup := newSupervisor(a)
		opts := supervisor.StartOpts{
			Components:  args,
			Restart:     startRestart,
			StablePorts: startStable,
		}
		if startLogs {
			opts.TeeDir = filepath.Join(a.env.BaseDir, "logs")
		}

		results, err := sup.Start(cmd.Context(), opts)
		if err != nil {
			return fail("start", err)
		}
		if jsonOut {
			if err := emitJSON(results); err != nil {
				return err
			}
		} else {
			for _, r := range results {
				switch {
				case r.AlreadyRunning:
					fmt.Printf("%s: already running (pid %d); use --restart to replace it\n", r.Label, r.Pid)
				case r.Port > 0:
					fmt.Printf("%s: started (pid %d, port %d)\n", r.Label, r.Pid, r.Port)
				default:
					fmt.Printf("%s: started (pid %d)\n", r.Label, r.Pid)
				}
			}
		}

		if startWait {
			fmt.Fprintln(os.Stderr, "processes running; press Ctrl-C to stop the supervisor (children keep running)")
			<-cmd.Context().Done()
		}
		return nil
	},
}

// newSupervisor wires the stack supervisor from the invocation's app.
func newSupervisor(a *app) *supervisor.Supervisor {
	adapter := pm.NewAdapter(&pm.ExecRunner{}, a.env, a.log)
	return supervisor.New(a.env, adapter, a.git, supervisor.ExecPs{}, a.log, os.Stderr)
}

func init() {
	startCmd.Flags().BoolVar(&startRestart, "restart", false, "replace already-running processes")
	startCmd.Flags().BoolVar(&startStable, "stable-ports", false, "derive ports deterministically from the stack name")
	startCmd.Flags().BoolVar(&startLogs, "logs", false, "tee prefixed output to <stack>/logs/<label>.log")
	startCmd.Flags().BoolVar(&startWait, "wait", false, "stay attached until interrupted")
}
