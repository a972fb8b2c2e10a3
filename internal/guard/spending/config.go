// Package spending gates effectful actions on rolling spend. Checks run
// before an action's effect executes; records are appended after actual (not
// estimated) execution, so the windows always reflect real spend.
package spending

import (
	"os"

	"gopkg.in/yaml.v3"

	pkgerrors "govern/pkg/errors"
)

// Caps configures the gate. All amounts are integer cents; zero means the
// cap is not enforced.
type Caps struct {
	DailyCapCents   int64 `yaml:"daily_cap_cents"`
	WeeklyCapCents  int64 `yaml:"weekly_cap_cents"`
	MonthlyCapCents int64 `yaml:"monthly_cap_cents"`

	// ApprovalThresholdCents flags single spends at or above this estimate
	// for human approval, without denying them.
	ApprovalThresholdCents int64 `yaml:"approval_threshold_cents"`

	// PerToolDailyCapCents overrides the daily cap for specific tools.
	PerToolDailyCapCents map[string]int64 `yaml:"per_tool_daily_cap_cents"`
}

// LoadCaps reads a YAML caps file.
func LoadCaps(path string) (Caps, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Caps{}, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "read spending caps file")
	}
	var caps Caps
	if err := yaml.Unmarshal(raw, &caps); err != nil {
		return Caps{}, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "parse spending caps file")
	}
	return caps, nil
}
