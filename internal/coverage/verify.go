package coverage

import (
	"fmt"
	"strings"

	"govern/internal/policy"
)

// MissingHit pairs an unobserved required hit with the registry rules that
// made it required, so the failure message names the unsatisfied rule.
type MissingHit struct {
	Hit     Hit
	Sources []policy.Entry
}

// Result is the structured outcome of a coverage verification pass.
type Result struct {
	RequiredCount int
	ObservedCount int
	Missing       []MissingHit
}

func (r Result) OK() bool { return len(r.Missing) == 0 }

// Report renders a human-readable failure report. Empty when the pass is ok.
func (r Result) Report() string {
	if r.OK() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "coverage verification failed: %d of %d required hits unobserved\n", len(r.Missing), r.RequiredCount)
	for _, missing := range r.Missing {
		fmt.Fprintf(&b, "  missing %s\n", missing.Hit.Key())
		for _, src := range missing.Sources {
			fmt.Fprintf(&b, "    required by %s (capability=%s tier=%s)\n", src.Ref(), src.Capability, src.Tier)
		}
	}
	b.WriteString("exercise each missing (action, decision, code) path in a policy test and re-run\n")
	return b.String()
}

// VerifyCoverage diffs required against observed. Missing hits are reported
// with provenance; extra observed hits are ignored. A hit observed twice is
// identical to a hit observed once.
func VerifyCoverage(required *Required, observed *Observed) Result {
	result := Result{
		RequiredCount: required.Len(),
		ObservedCount: observed.Len(),
	}
	for _, hit := range required.Hits() {
		if observed.Contains(hit) {
			continue
		}
		result.Missing = append(result.Missing, MissingHit{
			Hit:     hit,
			Sources: required.Sources(hit),
		})
	}
	return result
}
