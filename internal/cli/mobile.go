package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leeroybrun/happy-stacks/internal/component"
	"github.com/leeroybrun/happy-stacks/internal/supervisor"
)

var mobileCmd = &cobra.Command{
	Use:   "mobile",
	Short: "Start the mobile/web app dev server for this stack",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("mobile", err)
		}

		sup := newSupervisor(a)
		results, err := sup.Start(cmd.Context(), supervisor.StartOpts{
			Components: []string{component.Happy},
			Restart:    startRestart,
		})
		if err != nil {
			return fail("mobile", err)
		}
		if jsonOut {
			return emitJSON(results)
		}
		for _, r := range results {
			if r.AlreadyRunning {
				fmt.Printf("%s: already running (pid %d)\n", r.Label, r.Pid)
			} else {
				fmt.Printf("%s: started (pid %d, port %d)\n", r.Label, r.Pid, r.Port)
			}
		}
		return nil
	},
}

func init() {
	mobileCmd.Flags().BoolVar(&startRestart, "restart", false, "replace an already-running app server")
}
