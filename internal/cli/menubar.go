package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/leeroybrun/happy-stacks/internal/config"
	"github.com/leeroybrun/happy-stacks/internal/fsutil"
)

var menubarCmd = &cobra.Command{
	Use:   "menubar",
	Short: "SwiftBar menubar integration",
}

// menubarPluginPath returns where the SwiftBar plugin script lives,
// honoring the sandbox root when set.
func menubarPluginPath(a *app) (string, error) {
	if dir := a.env.SandboxDir(); dir != "" {
		return filepath.Join(dir, "swiftbar", "happy-stacks.5s.sh"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "Application Support", "SwiftBar", "Plugins", "happy-stacks.5s.sh"), nil
}

// requireGlobal refuses global side effects in sandboxed runs.
func requireGlobal(a *app, op string) error {
	if !a.env.AllowGlobal() {
		return fmt.Errorf("%s is a global side effect and the sandbox forbids it; set HAPPY_STACKS_SANDBOX_ALLOW_GLOBAL=1 to allow", op)
	}
	return nil
}

const menubarPlugin = `#!/bin/sh
# happy-stacks SwiftBar plugin
happys status --json 2>/dev/null || echo "happy-stacks: not available"
`

var menubarInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the SwiftBar plugin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("menubar", err)
		}
		if err := requireGlobal(a, "menubar install"); err != nil {
			return fail("menubar", err)
		}
		path, err := menubarPluginPath(a)
		if err != nil {
			return fail("menubar", err)
		}
		if err := fsutil.WriteAtomic(path, []byte(menubarPlugin)); err != nil {
			return fail("menubar", err)
		}
		if err := os.Chmod(path, 0o755); err != nil {
			return fail("menubar", err)
		}
		fmt.Printf("menubar plugin installed: %s\n", path)
		return nil
	},
}

var menubarUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the SwiftBar plugin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("menubar", err)
		}
		if err := requireGlobal(a, "menubar uninstall"); err != nil {
			return fail("menubar", err)
		}
		path, err := menubarPluginPath(a)
		if err != nil {
			return fail("menubar", err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fail("menubar", err)
		}
		fmt.Println("menubar plugin removed")
		return nil
	},
}

var menubarOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the plugin location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("menubar", err)
		}
		path, err := menubarPluginPath(a)
		if err != nil {
			return fail("menubar", err)
		}
		if runtime.GOOS == "darwin" {
			return exec.Command("open", "-R", path).Start()
		}
		fmt.Println(path)
		return nil
	},
}

var menubarModeCmd = &cobra.Command{
	Use:   "mode <swiftbar|off>",
	Short: "Set the menubar mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("menubar", err)
		}
		if args[0] != "swiftbar" && args[0] != "off" {
			return fail("menubar", fmt.Errorf("mode %q must be swiftbar or off", args[0]))
		}
		a.cfg.Menubar.Mode = args[0]
		if err := config.Save(a.env.HomeDir, a.cfg); err != nil {
			return fail("menubar", err)
		}
		fmt.Printf("menubar mode: %s\n", args[0])
		return nil
	},
}

var menubarStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show menubar integration status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("menubar", err)
		}
		path, err := menubarPluginPath(a)
		if err != nil {
			return fail("menubar", err)
		}
		installed := fsutil.Exists(path)
		if jsonOut {
			return emitJSON(map[string]any{"mode": a.cfg.Menubar.Mode, "installed": installed, "path": path})
		}
		fmt.Printf("mode: %s\ninstalled: %v\npath: %s\n", a.cfg.Menubar.Mode, installed, path)
		return nil
	},
}

func init() {
	menubarCmd.AddCommand(menubarInstallCmd)
	menubarCmd.AddCommand(menubarUninstallCmd)
	menubarCmd.AddCommand(menubarOpenCmd)
	menubarCmd.AddCommand(menubarModeCmd)
	menubarCmd.AddCommand(menubarStatusCmd)
}
