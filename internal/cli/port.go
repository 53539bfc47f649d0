package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leeroybrun/happy-stacks/internal/component"
	"github.com/leeroybrun/happy-stacks/internal/llmtool"
	"github.com/leeroybrun/happy-stacks/internal/port"
)

var monorepoCmd = &cobra.Command{
	Use:   "monorepo",
	Short: "Monorepo maintenance operations",
}

var portCmd = &cobra.Command{
	Use:   "port",
	Short: "Port commits from the split repositories into the monorepo",
	Long: `Transplants commits from the split happy / happy-cli / happy-server
repositories into the monorepo via format-patch + am, preserving authors
and messages and placing source paths under the right package directory.

Run "happys monorepo port guide" for the interactive flow, or "run" with
flags for scripted ports.`,
}

// portFlags mirrors the port command's flag contract.
type portFlags struct {
	target            string
	targetRepo        string
	cloneTarget       bool
	branch            string
	base              string
	ontoCurrent       bool
	dryRun            bool
	threeWay          bool
	skipApplied       bool
	continueOnFailure bool

	from     map[string]*string
	fromBase map[string]*string
	fromRef  map[string]*string
}

func addPortFlags(cmd *cobra.Command, f *portFlags, sourcesToo bool) {
	cmd.Flags().StringVar(&f.target, "target", "", "target monorepo path")
	cmd.Flags().StringVar(&f.targetRepo, "target-repo", "", "URL to clone the target from (with --clone-target)")
	cmd.Flags().BoolVar(&f.cloneTarget, "clone-target", false, "clone --target-repo into an empty/non-existent target")
	cmd.Flags().StringVar(&f.branch, "branch", "", "new branch to create for the port")
	cmd.Flags().StringVar(&f.base, "base", "", "target base ref (default: origin/HEAD, then upstream/main, origin/main, main, master)")
	cmd.Flags().BoolVar(&f.ontoCurrent, "onto-current", false, "apply onto the current HEAD (excludes --branch/--base)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "detect conflicts in a disposable worktree; change nothing")
	cmd.Flags().BoolVar(&f.threeWay, "3way", false, "use 3-way merge when applying")
	cmd.Flags().BoolVar(&f.skipApplied, "skip-applied", false, "compat shim; already-applied detection is always on")
	cmd.Flags().BoolVar(&f.continueOnFailure, "continue-on-failure", false, "record failures and keep going")

	if sourcesToo {
		f.from = map[string]*string{}
		f.fromBase = map[string]*string{}
		f.fromRef = map[string]*string{}
		for _, label := range component.Known() {
			f.from[label] = cmd.Flags().String("from-"+label, "", fmt.Sprintf("source for %s: path, URL, or GitHub PR URL", label))
			f.fromBase[label] = cmd.Flags().String("from-"+label+"-base", "", fmt.Sprintf("base ref for the %s source", label))
			f.fromRef[label] = cmd.Flags().String("from-"+label+"-ref", "", fmt.Sprintf("head ref for the %s source (default HEAD)", label))
		}
	}
}

func (f *portFlags) sources() []port.SourceSpec {
	var specs []port.SourceSpec
	for _, label := range component.Known() {
		if f.from[label] == nil || *f.from[label] == "" {
			continue
		}
		specs = append(specs, port.SourceSpec{
			Label:     label,
			PathOrURL: *f.from[label],
			BaseRef:   *f.fromBase[label],
			HeadRef:   *f.fromRef[label],
		})
	}
	return specs
}

func (f *portFlags) options() (port.Options, error) {
	if f.target == "" {
		return port.Options{}, fmt.Errorf("--target=<path> is required")
	}
	if f.ontoCurrent && (f.branch != "" || f.base != "") {
		return port.Options{}, fmt.Errorf("--onto-current cannot be combined with --branch or --base")
	}
	return port.Options{
		Target:            f.target,
		TargetRepoURL:     f.targetRepo,
		CloneTarget:       f.cloneTarget,
		Branch:            f.branch,
		Base:              f.base,
		OntoCurrent:       f.ontoCurrent,
		DryRun:            f.dryRun,
		Use3Way:           f.threeWay,
		SkipApplied:       f.skipApplied,
		ContinueOnFailure: f.continueOnFailure,
		Sources:           f.sources(),
	}, nil
}

var portRunFlags portFlags

var portRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a port non-interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("port", err)
		}
		opts, err := portRunFlags.options()
		if err != nil {
			return fail("port", err)
		}

		engine := port.NewEngine(a.git, a.log, os.Stderr)
		result, err := engine.Run(cmd.Context(), opts)
		if err != nil {
			return fail("port", err)
		}

		if jsonOut {
			if err := emitJSON(result); err != nil {
				return err
			}
		} else {
			printPortSummary(result)
		}
		if !result.OK {
			if result.Stopped {
				fmt.Fprintln(os.Stderr, "port stopped on a conflict; resolve it and run `happys monorepo port continue --stage`")
			}
			exitCode = 1
		}
		return nil
	},
}

var portGuideTarget string

var portGuideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Interactive port with preflight, plan persistence, and a conflict loop",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("port", err)
		}
		if portGuideTarget == "" {
			return fail("port", fmt.Errorf("--target=<path> is required"))
		}

		engine := port.NewEngine(a.git, a.log, os.Stderr)
		result, err := engine.Guide(cmd.Context(), a.tio(), port.GuideOpts{
			Target:             portGuideTarget,
			DisableLLMAutoExec: a.env.DisableLLMAutoExec(),
		})
		if err != nil {
			return fail("port", err)
		}
		if jsonOut {
			if err := emitJSON(result); err != nil {
				return err
			}
		}
		if result.InProgress {
			exitCode = 1
		}
		return nil
	},
}

var portStatusTarget string

var portStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the target's port state (am session, plan, conflicts)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("port", err)
		}
		target := portStatusTarget
		if target == "" {
			target, _ = os.Getwd()
		}

		engine := port.NewEngine(a.git, a.log, nil)
		info, err := engine.Status(cmd.Context(), target)
		if err != nil {
			return fail("port", err)
		}
		if jsonOut {
			return emitJSON(info)
		}
		fmt.Printf("target:   %s\n", info.Target)
		fmt.Printf("branch:   %s\n", info.Branch)
		fmt.Printf("am open:  %v\n", info.AmInProgress)
		if len(info.ConflictedFiles) > 0 {
			fmt.Printf("conflicts:\n  %s\n", strings.Join(info.ConflictedFiles, "\n  "))
		}
		fmt.Printf("plan:     %v\n", info.HasPlan)
		if info.NextCommand != "" {
			fmt.Printf("next:     %s\n", info.NextCommand)
		}
		return nil
	},
}

var (
	portContinueTarget string
	portContinueStage  bool
)

var portContinueCmd = &cobra.Command{
	Use:   "continue",
	Short: "Advance an in-progress am session (and resume the plan when it drains)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("port", err)
		}
		target := portContinueTarget
		if target == "" {
			target, _ = os.Getwd()
		}

		engine := port.NewEngine(a.git, a.log, os.Stderr)
		res, err := engine.Continue(cmd.Context(), port.ContinueOpts{Target: target, Stage: portContinueStage})
		if err != nil {
			return fail("port", err)
		}
		if jsonOut {
			if err := emitJSON(res); err != nil {
				return err
			}
		} else if res.Message != "" {
			fmt.Println(res.Message)
		}
		if !res.Drained {
			exitCode = 1
		}
		return nil
	},
}

var portPreflightFlags portFlags

var portPreflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Detect conflicts in a disposable worktree without touching the checkout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("port", err)
		}
		opts, err := portPreflightFlags.options()
		if err != nil {
			return fail("port", err)
		}

		engine := port.NewEngine(a.git, a.log, nil)
		pf, err := engine.Preflight(cmd.Context(), opts)
		if err != nil {
			return fail("port", err)
		}
		if jsonOut {
			if err := emitJSON(pf); err != nil {
				return err
			}
		} else if pf.OK {
			fmt.Println("ok: all patches apply cleanly")
		} else if pf.FirstConflict != nil {
			fmt.Printf("conflicts expected:\n  %s\n", strings.Join(pf.FirstConflict.ConflictedFiles, "\n  "))
		}
		if !pf.OK {
			exitCode = 1
		}
		return nil
	},
}

var portLLMTarget string

var portLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Launch (or print) the LLM conflict-resolution prompt",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("port", err)
		}
		target := portLLMTarget
		if target == "" {
			target, _ = os.Getwd()
		}

		engine := port.NewEngine(a.git, a.log, nil)
		info, err := engine.Status(cmd.Context(), target)
		if err != nil {
			return fail("port", err)
		}
		if !info.AmInProgress {
			return fail("port", fmt.Errorf("no am session in progress in %s; nothing to resolve", target))
		}

		prompt := port.BuildConflictPrompt(target, info.CurrentPatch, info.ConflictedFiles)
		if !a.env.DisableLLMAutoExec() {
			if tool := llmtool.FirstAutoExec(); tool != nil {
				if launch := llmtool.LaunchInTerminal(target, tool.Cmd); launch.OK {
					fmt.Fprintf(os.Stderr, "launched %s in a new terminal\n", tool.ID)
					if clip := llmtool.DetectClipboard(); clip.Available {
						_ = clip.Copy(prompt)
						fmt.Fprintln(os.Stderr, "prompt copied to clipboard")
					}
					return nil
				}
			}
		}
		if clip := llmtool.DetectClipboard(); clip.Available {
			if err := clip.Copy(prompt); err == nil {
				fmt.Fprintln(os.Stderr, "prompt copied to clipboard")
				return nil
			}
		}
		fmt.Println(prompt)
		return nil
	},
}

// printPortSummary renders a prose run summary.
func printPortSummary(result *port.Result) {
	for _, sr := range result.Sources {
		if sr.NoCommits {
			fmt.Printf("%s: no commits to port\n", sr.Label)
			continue
		}
		fmt.Printf("%s: %d applied, %d already applied, %d identical, %d failed\n",
			sr.Label, sr.AppliedPatches, sr.SkippedApplied, sr.SkippedExists, sr.FailedPatches)
		for _, f := range sr.Findings {
			if f.Status == port.StatusFailed {
				fmt.Printf("  failed [%s] %s (%s)\n", f.FailKind, f.Subject, strings.Join(f.Paths, ", "))
			}
		}
	}
	if result.Branch != "" {
		fmt.Printf("branch: %s (from %s)\n", result.Branch, result.Base)
	}
	fmt.Printf("ok: %v\n", result.OK)
}

func init() {
	addPortFlags(portRunCmd, &portRunFlags, true)
	addPortFlags(portPreflightCmd, &portPreflightFlags, true)

	portGuideCmd.Flags().StringVar(&portGuideTarget, "target", "", "target monorepo path")
	portStatusCmd.Flags().StringVar(&portStatusTarget, "target", "", "target monorepo path (default: cwd)")
	portContinueCmd.Flags().StringVar(&portContinueTarget, "target", "", "target monorepo path (default: cwd)")
	portContinueCmd.Flags().BoolVar(&portContinueStage, "stage", false, "stage resolved files before continuing")
	portLLMCmd.Flags().StringVar(&portLLMTarget, "target", "", "target monorepo path (default: cwd)")

	portCmd.AddCommand(portRunCmd)
	portCmd.AddCommand(portGuideCmd)
	portCmd.AddCommand(portStatusCmd)
	portCmd.AddCommand(portContinueCmd)
	portCmd.AddCommand(portPreflightCmd)
	portCmd.AddCommand(portLLMCmd)
	monorepoCmd.AddCommand(portCmd)
}
