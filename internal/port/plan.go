package port

import (
	"os"
	"path/filepath"
	"time"

	"github.com/leeroybrun/happy-stacks/internal/fsutil"
)

const planVersion = 1

// PlanSource is one source entry persisted in the plan.
type PlanSource struct {
	Label     string `json:"label"`
	PathOrURL string `json:"pathOrUrl"`
	BaseRef   string `json:"baseRef"`
	HeadRef   string `json:"headRef,omitempty"`
}

// Plan is the persisted description of a port-in-progress. It lives under
// the target's git-dir so quitting at a conflict and coming back later can
// resume without re-prompting.
type Plan struct {
	Version               int          `json:"version"`
	CreatedAt             string       `json:"createdAt"`
	TargetRepoRoot        string       `json:"targetRepoRoot"`
	Base                  string       `json:"base,omitempty"`
	Branch                string       `json:"branch,omitempty"`
	Use3Way               bool         `json:"use3way"`
	PreferredConflictMode string       `json:"preferredConflictMode,omitempty"` // "llm" or "guided"
	Sources               []PlanSource `json:"sources"`
	InitialArgv           []string     `json:"initialArgv"`
	ResumeArgv            []string     `json:"resumeArgv"`
}

// PlanPath returns the plan file location under the target's git-dir.
func PlanPath(gitDir string) string {
	return filepath.Join(gitDir, "happy-stacks", "monorepo-port-plan.json")
}

// NewPlan stamps a plan with version and creation time.
func NewPlan(targetRepoRoot string) *Plan {
	return &Plan{
		Version:        planVersion,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		TargetRepoRoot: targetRepoRoot,
	}
}

// SavePlan writes the plan atomically (write-temp, rename).
func SavePlan(gitDir string, p *Plan) error {
	return fsutil.WriteJSON(PlanPath(gitDir), p)
}

// LoadPlan reads the persisted plan. Returns (nil, nil) when none exists.
func LoadPlan(gitDir string) (*Plan, error) {
	path := PlanPath(gitDir)
	var p Plan
	if err := fsutil.ReadJSON(path, &p); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// DeletePlan removes the plan file. Missing files are fine: completion and
// abort both call this.
func DeletePlan(gitDir string) error {
	err := os.Remove(PlanPath(gitDir))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
