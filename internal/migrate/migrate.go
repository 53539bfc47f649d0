// Package migrate moves a developer from happy-cli's local "light" mode to
// the stack-managed server: it copies the local secret file into the stack
// and verifies the server database is reachable before any data handover.
package migrate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/leeroybrun/happy-stacks/internal/serverdb"
	"github.com/leeroybrun/happy-stacks/internal/stackenv"
)

// Opts configures a light-to-server migration.
type Opts struct {
	SourceDir string // defaults to ~/.happy
	DBTimeout time.Duration
}

// Result reports what the migration did.
type Result struct {
	SecretCopied  bool   `json:"secretCopied"`
	SecretPath    string `json:"secretPath,omitempty"`
	DBReady       bool   `json:"dbReady"`
	SchemaPresent bool   `json:"schemaPresent"`
}

// LightToServer runs the migration steps this tool owns: secret copy and
// database readiness. Schema and object-storage contents are the server's
// own migration tooling's business.
func LightToServer(ctx context.Context, env *stackenv.StackEnv, opts Opts) (*Result, error) {
	src := opts.SourceDir
	if src == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		src = filepath.Join(home, ".happy")
	}
	timeout := opts.DBTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	res := &Result{}

	secretSrc := filepath.Join(src, "secret")
	secretDst := filepath.Join(env.BaseDir, "secret")
	if _, err := os.Stat(secretSrc); err == nil {
		copied, err := copyIfAbsent(secretSrc, secretDst)
		if err != nil {
			return nil, fmt.Errorf("copy secret: %w", err)
		}
		res.SecretCopied = copied
		res.SecretPath = secretDst
	}

	url := serverdb.URLFor(env)
	if err := serverdb.WaitReady(ctx, url, timeout); err != nil {
		return res, fmt.Errorf("server database: %w (start the stack's infrastructure with `happys start happy-server`)", err)
	}
	res.DBReady = true

	present, err := serverdb.HasServerSchema(ctx, url)
	if err != nil {
		return res, err
	}
	res.SchemaPresent = present
	return res, nil
}

// copyIfAbsent copies src to dst unless dst already exists, so re-running
// the migration is a no-op.
func copyIfAbsent(src, dst string) (bool, error) {
	if _, err := os.Stat(dst); err == nil {
		return false, nil
	}
	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return false, err
	}
	return true, out.Close()
}
