// Package patch parses mail-format patch files produced by git format-patch.
// It is pure data extraction: nothing here touches the filesystem beyond the
// patch text handed in.
package patch

import (
	"strings"
)

// FileDiff is one file's diff within a patch.
type FileDiff struct {
	BPath             string   // path after "b/" in the diff header
	PlusPath          string   // path from the "+++ b/..." line, "" for deletions
	IsNewFile         bool
	IsDeletedFile     bool
	IsBinary          bool
	NoTrailingNewline bool     // "\ No newline at end of file" seen in this diff
	AddedLines        []string // content of "+" lines, prefix stripped
	HasHunks          bool
}

// Metadata is the mail-format header data of one patch.
type Metadata struct {
	FromSha string
	Subject string
}

// ParseMetadata extracts the commit sha and subject from a mail-format
// patch. The sha comes from the leading "From <sha> ..." line; the subject
// from the "Subject:" header with any "[PATCH n/m]" prefix stripped.
func ParseMetadata(text string) Metadata {
	var md Metadata
	for _, line := range strings.Split(text, "\n") {
		if md.FromSha == "" && strings.HasPrefix(line, "From ") {
			fields := strings.Fields(line)
			if len(fields) >= 2 && len(fields[1]) == 40 {
				md.FromSha = fields[1]
			}
			continue
		}
		if md.Subject == "" && strings.HasPrefix(line, "Subject: ") {
			subj := strings.TrimPrefix(line, "Subject: ")
			if idx := strings.Index(subj, "] "); strings.HasPrefix(subj, "[PATCH") && idx >= 0 {
				subj = subj[idx+2:]
			}
			md.Subject = subj
		}
		if md.FromSha != "" && md.Subject != "" {
			break
		}
		// Headers end at the first blank line.
		if line == "" && md.FromSha != "" {
			break
		}
	}
	return md
}

// Parse scans patch text and yields one FileDiff per "diff --git" section.
func Parse(text string) []FileDiff {
	var diffs []FileDiff
	var cur *FileDiff
	inHunk := false

	flush := func() {
		if cur != nil {
			diffs = append(diffs, *cur)
			cur = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			cur = &FileDiff{BPath: bPathFromHeader(line)}
			inHunk = false
			continue
		}
		if cur == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "new file mode"):
			cur.IsNewFile = true
		case strings.HasPrefix(line, "deleted file mode"):
			cur.IsDeletedFile = true
		case strings.HasPrefix(line, "GIT binary patch"):
			cur.IsBinary = true
		case strings.HasPrefix(line, "Binary files "):
			cur.IsBinary = true
		case strings.HasPrefix(line, "--- "):
			// "--- /dev/null" marks a creation; recorded via IsNewFile too.
			inHunk = false
		case strings.HasPrefix(line, "+++ "):
			target := strings.TrimPrefix(line, "+++ ")
			if target == "/dev/null" {
				cur.IsDeletedFile = true
			} else {
				cur.PlusPath = strings.TrimPrefix(target, "b/")
			}
		case strings.HasPrefix(line, "@@ "):
			cur.HasHunks = true
			inHunk = true
		case inHunk && strings.HasPrefix(line, "+"):
			cur.AddedLines = append(cur.AddedLines, line[1:])
		case inHunk && strings.HasPrefix(line, `\ No newline at end of file`):
			cur.NoTrailingNewline = true
		}
	}
	flush()
	return diffs
}

// NewFileContent reconstructs the byte content a pure new-file diff creates:
// the "+" lines joined by newlines, plus a final newline unless the patch
// declares the file has none.
func (d *FileDiff) NewFileContent() string {
	content := strings.Join(d.AddedLines, "\n")
	if !d.NoTrailingNewline {
		content += "\n"
	}
	return content
}

// PureNewFiles reports whether every diff in the patch only creates files:
// no deletions, no binary diffs, no modifications of existing files.
func PureNewFiles(diffs []FileDiff) bool {
	if len(diffs) == 0 {
		return false
	}
	for _, d := range diffs {
		if !d.IsNewFile || d.IsDeletedFile || d.IsBinary {
			return false
		}
	}
	return true
}

// bPathFromHeader extracts the b-side path from a "diff --git a/X b/Y"
// line. Paths with spaces are handled by splitting on " b/".
func bPathFromHeader(line string) string {
	rest := strings.TrimPrefix(line, "diff --git ")
	if idx := strings.LastIndex(rest, " b/"); idx >= 0 {
		return rest[idx+3:]
	}
	return ""
}
