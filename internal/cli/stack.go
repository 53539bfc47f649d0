package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/leeroybrun/happy-stacks/internal/config"
	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "Manage stacks (isolated runtime profiles)",
}

var stackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stacks on this machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("stack", err)
		}

		stacksDir := filepath.Join(a.env.HomeDir, "stacks")
		entries, _ := os.ReadDir(stacksDir)
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		if jsonOut {
			return emitJSON(map[string]any{"active": a.env.Name, "stacks": names})
		}
		tbl := table.New("STACK", "ACTIVE", "ENV FILE")
		for _, n := range names {
			active := ""
			if n == a.env.Name {
				active = "*"
			}
			tbl.AddRow(n, active, filepath.Join(stacksDir, n, "env"))
		}
		tbl.Print()
		return nil
	},
}

var stackCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := stackenv.ValidateStackName(name); err != nil {
			return fail("stack", err)
		}
		a, err := getApp()
		if err != nil {
			return fail("stack", err)
		}

		envFile := filepath.Join(a.env.HomeDir, "stacks", name, "env")
		if _, err := os.Stat(envFile); err == nil {
			return fail("stack", fmt.Errorf("stack %q already exists (%s)", name, envFile))
		}
		seed := map[string]string{
			stackenv.KeyStack: name,
		}
		if err := stackenv.UpdateEnvFile(envFile, seed); err != nil {
			return fail("stack", err)
		}

		if jsonOut {
			return emitJSON(map[string]any{"stack": name, "envFile": envFile})
		}
		fmt.Printf("stack %q created (%s)\n", name, envFile)
		fmt.Printf("activate it with: happys stack use %s\n", name)
		return nil
	},
}

var stackUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a stack the default for this machine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := stackenv.ValidateStackName(name); err != nil {
			return fail("stack", err)
		}
		a, err := getApp()
		if err != nil {
			return fail("stack", err)
		}
		envFile := filepath.Join(a.env.HomeDir, "stacks", name, "env")
		if _, err := os.Stat(envFile); err != nil {
			return fail("stack", fmt.Errorf("stack %q does not exist; create it with `happys stack create %s`", name, name))
		}

		a.cfg.DefaultStack = name
		if err := config.Save(a.env.HomeDir, a.cfg); err != nil {
			return fail("stack", err)
		}
		if jsonOut {
			return emitJSON(map[string]any{"stack": name})
		}
		fmt.Printf("default stack is now %q\n", name)
		fmt.Printf("for the current shell: export %s=%s\n", stackenv.KeyStack, name)
		return nil
	},
}

var stackEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "Read and write the active stack's env file",
}

var stackEnvGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one resolved key (or every key in the env file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("stack", err)
		}
		if len(args) == 1 {
			val := a.env.Get(args[0])
			if jsonOut {
				return emitJSON(map[string]string{args[0]: val})
			}
			fmt.Println(val)
			return nil
		}

		vars := a.env.FileVars()
		if jsonOut {
			return emitJSON(map[string]any{"envFile": a.env.EnvFile, "vars": vars})
		}
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s=%s\n", k, vars[k])
		}
		return nil
	},
}

var stackEnvSetCmd = &cobra.Command{
	Use:   "set <key=value>...",
	Short: "Set keys in the stack env file (atomic rewrite)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("stack", err)
		}
		set := map[string]string{}
		for _, arg := range args {
			key, val, ok := splitKV(arg)
			if !ok {
				return fail("stack", fmt.Errorf("argument %q must be KEY=VALUE", arg))
			}
			set[key] = val
		}
		if err := a.env.Update(set); err != nil {
			return fail("stack", err)
		}
		if jsonOut {
			return emitJSON(map[string]any{"envFile": a.env.EnvFile, "set": set})
		}
		fmt.Printf("updated %s (%d key(s))\n", a.env.EnvFile, len(set))
		return nil
	},
}

func splitKV(arg string) (string, string, bool) {
	for i := 0; i < len(arg); i++ {
		if arg[i] == '=' {
			if i == 0 {
				return "", "", false
			}
			return arg[:i], arg[i+1:], true
		}
	}
	return "", "", false
}

func init() {
	stackEnvCmd.AddCommand(stackEnvGetCmd)
	stackEnvCmd.AddCommand(stackEnvSetCmd)
	stackCmd.AddCommand(stackListCmd)
	stackCmd.AddCommand(stackCreateCmd)
	stackCmd.AddCommand(stackUseCmd)
	stackCmd.AddCommand(stackEnvCmd)
}
