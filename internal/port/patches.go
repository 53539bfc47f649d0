package port

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// producePatches runs format-patch for the source's base..head range into a
// fresh temp directory and returns the .patch files in lexicographic order
// (format-patch numbering preserves commit order).
func (e *Engine) producePatches(ctx context.Context, src *resolvedSource) (dir string, files []string, err error) {
	dir, err = os.MkdirTemp("", "happy-port-"+src.Spec.Label+"-*")
	if err != nil {
		return "", nil, fmt.Errorf("create patch dir: %w", err)
	}

	rangeSpec := src.Base + ".." + src.Head
	_, err = e.git.Run(ctx, src.RepoDir, "format-patch", "--output-directory", dir, rangeSpec)
	if err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("format-patch %s: %w", rangeSpec, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("read patch dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".patch") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return dir, files, nil
}
