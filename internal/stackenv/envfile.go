package stackenv

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/leeroybrun/happy-stacks/internal/fsutil"
)

// ParseEnvFile reads a KEY=VALUE env file. A missing file yields an empty
// map. Supports blank lines, # comments, and an optional "export " prefix.
func ParseEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}

	vars := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		if key != "" {
			vars[key] = val
		}
	}
	return vars, nil
}

// UpdateEnvFile merges set into the env file at path via an atomic rewrite.
// Existing keys keep their position (comments and unrelated lines are
// preserved); new keys are appended in sorted order. Applying the same set
// twice leaves the file contents unchanged.
func UpdateEnvFile(path string, set map[string]string) error {
	var lines []string
	if data, err := os.ReadFile(path); err == nil {
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if len(lines) == 1 && lines[0] == "" {
			lines = nil
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read env file %s: %w", path, err)
	}

	written := map[string]bool{}
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		keyPart := strings.TrimPrefix(trimmed, "export ")
		parts := strings.SplitN(keyPart, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if val, ok := set[key]; ok {
			lines[i] = key + "=" + val
			written[key] = true
		}
	}

	var added []string
	for key := range set {
		if !written[key] {
			added = append(added, key)
		}
	}
	sort.Strings(added)
	for _, key := range added {
		lines = append(lines, key+"="+set[key])
	}

	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	return fsutil.WriteAtomic(path, []byte(content))
}
