package cli

import (
	"fmt"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/leeroybrun/happy-stacks/internal/component"
	"github.com/leeroybrun/happy-stacks/internal/worktrees"
)

var worktreeCmd = &cobra.Command{
	Use:   "worktree",
	Short: "Manage per-owner worktrees of the component repositories",
}

var worktreeListCmd = &cobra.Command{
	Use:   "list <component>",
	Short: "List worktrees for a component's repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("worktree", err)
		}
		comp, err := component.Resolve(a.env, args[0])
		if err != nil {
			return fail("worktree", err)
		}

		reg := worktrees.NewRegistry(a.env, a.git)
		entries, err := reg.List(comp.RepoKey)
		if err != nil {
			return fail("worktree", err)
		}
		if jsonOut {
			return emitJSON(map[string]any{"repoKey": comp.RepoKey, "worktrees": entries})
		}
		tbl := table.New("SPEC", "PATH")
		for _, e := range entries {
			tbl.AddRow(e.Spec.String(), e.Path)
		}
		tbl.Print()
		return nil
	},
}

var (
	worktreeCreateBase     string
	worktreeCreateEnvLocal []string
)

var worktreeCreateCmd = &cobra.Command{
	Use:   "create <component> <owner>/<branch>",
	Short: "Create a worktree for a component",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("worktree", err)
		}
		comp, err := component.Resolve(a.env, args[0])
		if err != nil {
			return fail("worktree", err)
		}

		envLocal := map[string]string{}
		for _, kv := range worktreeCreateEnvLocal {
			key, val, ok := splitKV(kv)
			if !ok {
				return fail("worktree", fmt.Errorf("--env %q must be KEY=VALUE", kv))
			}
			envLocal[key] = val
		}

		reg := worktrees.NewRegistry(a.env, a.git)
		entry, err := reg.Create(cmd.Context(), comp, args[1], worktrees.CreateOpts{
			BaseRef:  worktreeCreateBase,
			EnvLocal: envLocal,
		})
		if err != nil {
			return fail("worktree", err)
		}
		if jsonOut {
			return emitJSON(entry)
		}
		fmt.Printf("worktree created: %s (%s)\n", entry.Spec.String(), entry.Path)
		return nil
	},
}

var worktreeRemoveForce bool

var worktreeRemoveCmd = &cobra.Command{
	Use:   "remove <component> <owner>/<branch>",
	Short: "Remove a worktree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("worktree", err)
		}
		comp, err := component.Resolve(a.env, args[0])
		if err != nil {
			return fail("worktree", err)
		}
		reg := worktrees.NewRegistry(a.env, a.git)
		if err := reg.Remove(cmd.Context(), comp, args[1], worktreeRemoveForce); err != nil {
			return fail("worktree", err)
		}
		fmt.Printf("worktree removed: %s\n", args[1])
		return nil
	},
}

var worktreePathCmd = &cobra.Command{
	Use:   "path <component> <owner>/<branch>",
	Short: "Print the operational directory for a worktree spec",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("worktree", err)
		}
		comp, err := component.Resolve(a.env, args[0])
		if err != nil {
			return fail("worktree", err)
		}
		reg := worktrees.NewRegistry(a.env, a.git)
		path, err := reg.Resolve(comp, args[1])
		if err != nil {
			return fail("worktree", err)
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	worktreeCreateCmd.Flags().StringVar(&worktreeCreateBase, "base", "", "base ref for the new branch (default HEAD)")
	worktreeCreateCmd.Flags().StringArrayVar(&worktreeCreateEnvLocal, "env", nil, "KEY=VALUE entries for the checkout's env.local")

	worktreeCmd.AddCommand(worktreeListCmd)
	worktreeCmd.AddCommand(worktreeCreateCmd)
	worktreeCmd.AddCommand(worktreeRemoveCmd)
	worktreeCmd.AddCommand(worktreePathCmd)
}
