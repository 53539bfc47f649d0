package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leeroybrun/happy-stacks/internal/config"
	"github.com/leeroybrun/happy-stacks/internal/gitx"
	"github.com/leeroybrun/happy-stacks/internal/logging"
	"github.com/leeroybrun/happy-stacks/internal/stackenv"
	"github.com/leeroybrun/happy-stacks/internal/termio"
)

var version = "dev"

// SetVersion is called from main with the build-time version.
func SetVersion(v string) {
	version = v
}

var (
	jsonOut  bool
	verbose  bool
	stackArg string
)

var rootCmd = &cobra.Command{
	Use:   "happys",
	Short: "happy-stacks — run isolated Happy stacks on your machine",
	Long: `happy-stacks runs and manages isolated "stacks" of the Happy app
(mobile/web UI, CLI daemon, backend server) on a developer machine, and
ports commits from the split repositories into the monorepo.

Per-stack state lives under ~/.happy-stacks/stacks/<name>/ (env file,
caches, pids); port plans live under the target repo's git directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitCode lets commands report "resumable work remains" (exit 1) without
// an error message.
var exitCode int

// Execute runs the CLI. Errors print as "[subsystem] failed: ..." on
// stderr (plus structured JSON on stdout in --json mode) and exit 1.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if jsonOut {
			_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"ok": false, "error": err.Error()})
		}
		return 1
	}
	return exitCode
}

// fail wraps an error with its subsystem for the command boundary.
func fail(subsystem string, err error) error {
	return fmt.Errorf("[%s] failed: %w", subsystem, err)
}

// app bundles the per-invocation dependencies commands share.
type app struct {
	env *stackenv.StackEnv
	cfg *config.Config
	log *zap.SugaredLogger
	git gitx.Runner
}

// getApp resolves the active stack and loads the tool config.
func getApp() (*app, error) {
	environ := stackenv.Environ(os.Environ())

	env, err := stackenv.Resolve(environ, stackArg)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadDefault(env.HomeDir)
	if err != nil {
		return nil, err
	}
	named := stackArg != "" || environ[stackenv.KeyStack] != "" || environ[stackenv.LegacyKey(stackenv.KeyStack)] != ""
	if !named && cfg.DefaultStack != env.Name {
		// The config file names a default stack; re-resolve with it.
		env, err = stackenv.Resolve(environ, cfg.DefaultStack)
		if err != nil {
			return nil, err
		}
	}

	return &app{
		env: env,
		cfg: cfg,
		log: logging.New(verbose),
		git: &gitx.ExecGit{},
	}, nil
}

// tio builds the interactive prompt facility for the invocation.
func (a *app) tio() *termio.IO {
	return termio.Std(a.env.TestTTY())
}

// emitJSON writes v as JSON to stdout.
func emitJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "structured JSON output on stdout")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose diagnostics on stderr")
	rootCmd.PersistentFlags().StringVar(&stackArg, "stack", "", "stack to operate on (default: active stack)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(monorepoCmd)
	rootCmd.AddCommand(stackCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(worktreeCmd)
	rootCmd.AddCommand(mobileCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(menubarCmd)
	rootCmd.AddCommand(doctorCmd)
}
