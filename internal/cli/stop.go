package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop [component...]",
	Short: "Stop the stack's processes (ownership-checked)",
	Long: `Stops supervised processes. A process is only signaled after its
environment (via ps eww) proves it belongs to this stack; anything else is
left alone with a warning.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("stop", err)
		}

		sup := newSupervisor(a)
		results, err := sup.Stop(cmd.Context(), args)
		if err != nil {
			return fail("stop", err)
		}
		if jsonOut {
			return emitJSON(results)
		}
		for _, r := range results {
			switch {
			case r.Stopped:
				fmt.Printf("%s: stopped\n", r.Label)
			case r.NotOwned:
				fmt.Printf("%s: refused — %s\n", r.Label, r.Message)
			default:
				fmt.Printf("%s: %s\n", r.Label, r.Message)
			}
		}
		return nil
	},
}
