package port

import (
	"fmt"
	"strings"
)

// BuildConflictPrompt renders the prompt handed to an LLM CLI (or copied to
// the clipboard) when an am session stops on a conflict.
func BuildConflictPrompt(target, currentPatch string, conflictedFiles []string) string {
	var b strings.Builder
	b.WriteString("A `git am` session in this repository stopped on a merge conflict while\n")
	b.WriteString("porting commits from a split repository into the monorepo.\n\n")
	fmt.Fprintf(&b, "Repository: %s\n\n", target)
	if len(conflictedFiles) > 0 {
		b.WriteString("Conflicted files:\n")
		for _, f := range conflictedFiles {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
		b.WriteString("\n")
	}
	if currentPatch != "" {
		b.WriteString("The patch being applied:\n\n```\n")
		b.WriteString(currentPatch)
		b.WriteString("\n```\n\n")
	}
	b.WriteString("Resolve the conflict markers in the files above so the patch's intent is\n")
	b.WriteString("preserved on top of the current code. When every file is resolved, run:\n\n")
	b.WriteString("  happys monorepo port continue --stage\n")
	return b.String()
}
