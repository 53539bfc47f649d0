// Package doctor checks the host toolchain against the minimum versions
// the stack needs.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Check is one tool requirement.
type Check struct {
	Tool       string
	Constraint string // semver range, empty = presence only
	Fix        string // actionable next step when the check fails
}

// defaultChecks are the tools every stack operation leans on.
var defaultChecks = []Check{
	{Tool: "git", Constraint: ">= 2.30.0", Fix: "upgrade git (https://git-scm.com/downloads)"},
	{Tool: "node", Constraint: ">= 18.0.0", Fix: "install Node 18+ (https://nodejs.org)"},
	{Tool: "yarn", Constraint: ">= 1.22.0", Fix: "corepack enable && corepack prepare yarn@stable --activate"},
	{Tool: "pnpm", Constraint: "", Fix: "corepack enable && corepack prepare pnpm@latest --activate"},
}

// Result is one check's outcome.
type Result struct {
	Tool    string `json:"tool"`
	Version string `json:"version,omitempty"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// versionRunner is swapped in tests.
var versionRunner = func(ctx context.Context, tool string) (string, error) {
	out, err := exec.CommandContext(ctx, tool, "--version").CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

var versionRe = regexp.MustCompile(`\d+\.\d+\.\d+`)

// Run executes the default checks.
func Run(ctx context.Context) []Result {
	var results []Result
	for _, c := range defaultChecks {
		results = append(results, runOne(ctx, c))
	}
	return results
}

func runOne(ctx context.Context, c Check) Result {
	out, err := versionRunner(ctx, c.Tool)
	if err != nil {
		return Result{Tool: c.Tool, Message: fmt.Sprintf("not found: %s", c.Fix)}
	}
	raw := versionRe.FindString(out)
	if raw == "" {
		return Result{Tool: c.Tool, Message: fmt.Sprintf("cannot parse version from %q", out)}
	}
	if c.Constraint == "" {
		return Result{Tool: c.Tool, Version: raw, OK: true}
	}

	constraint, err := semver.NewConstraint(c.Constraint)
	if err != nil {
		return Result{Tool: c.Tool, Version: raw, Message: fmt.Sprintf("bad constraint %q", c.Constraint)}
	}
	version, err := semver.NewVersion(raw)
	if err != nil {
		return Result{Tool: c.Tool, Version: raw, Message: fmt.Sprintf("bad version %q", raw)}
	}
	if !constraint.Check(version) {
		return Result{Tool: c.Tool, Version: raw,
			Message: fmt.Sprintf("version %s does not satisfy %s: %s", raw, c.Constraint, c.Fix)}
	}
	return Result{Tool: c.Tool, Version: raw, OK: true}
}
