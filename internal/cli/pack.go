package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leeroybrun/happy-stacks/internal/component"
	"github.com/leeroybrun/happy-stacks/internal/pm"
)

var packCmd = &cobra.Command{
	Use:   "pack <component>",
	Short: "Produce a distributable tarball of a component",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("pack", err)
		}
		comp, err := component.Resolve(a.env, args[0])
		if err != nil {
			return fail("pack", err)
		}

		adapter := pm.NewAdapter(&pm.ExecRunner{}, a.env, a.log)
		if err := adapter.EnsureFresh(cmd.Context(), comp.OpDir); err != nil {
			return fail("pack", err)
		}
		out, err := adapter.Pack(cmd.Context(), comp.OpDir)
		if err != nil {
			return fail("pack", err)
		}
		if jsonOut {
			return emitJSON(map[string]string{"component": comp.Name, "output": strings.TrimSpace(out)})
		}
		fmt.Println(strings.TrimSpace(out))
		return nil
	},
}
