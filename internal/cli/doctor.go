package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leeroybrun/happy-stacks/internal/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the host toolchain for stack requirements",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		results := doctor.Run(cmd.Context())
		if jsonOut {
			if err := emitJSON(results); err != nil {
				return err
			}
		} else {
			for _, r := range results {
				if r.OK {
					fmt.Printf("ok   %-5s %s\n", r.Tool, r.Version)
				} else {
					fmt.Printf("FAIL %-5s %s\n", r.Tool, r.Message)
				}
			}
		}
		for _, r := range results {
			if !r.OK {
				exitCode = 1
			}
		}
		return nil
	},
}
