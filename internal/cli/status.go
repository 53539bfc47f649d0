package cli

import (
	"fmt"
	"strconv"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stack's process table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("status", err)
		}

		sup := newSupervisor(a)
		procs := sup.Status(cmd.Context())
		if jsonOut {
			return emitJSON(map[string]any{"stack": a.env.Name, "processes": procs})
		}

		fmt.Printf("stack: %s (%s)\n", a.env.Name, a.env.EnvFile)
		tbl := table.New("COMPONENT", "STATE", "PID", "PORT", "STARTED")
		for _, p := range procs {
			state := "stopped"
			pid, port := "", ""
			if p.Running {
				state = "running"
				pid = strconv.Itoa(p.Pid)
				if p.Port > 0 {
					port = strconv.Itoa(p.Port)
				}
			}
			tbl.AddRow(p.Label, state, pid, port, p.StartedAt)
		}
		tbl.Print()
		return nil
	},
}
