package coverage

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"govern/internal/decision"
)

// The anti-gaming lint guards against tests that log coverage lines without
// really asserting the outcome. It is a textual heuristic, deliberately
// advisory: for each changed action, at least one changed policy-test source
// must contain the action id, every one of its codes, and a recognizable
// assertion for each outcome the registry declares. It cannot prove the
// assertion is meaningful, only that one is present.

var outcomeAssertPatterns = map[decision.Outcome]*regexp.Regexp{
	decision.Allow:            regexp.MustCompile(`(?i)allowed\s*[=:]\s*true|\.Allowed\(\)|decision\.Allow\b|"ALLOW"`),
	decision.Deny:             regexp.MustCompile(`(?i)denied|decision\.Deny\b|"DENY"`),
	decision.ApprovalRequired: regexp.MustCompile(`(?i)require_?approval\s*[=:]\s*true|ApprovalRequired|"APPROVAL_REQUIRED"`),
}

// LintFinding describes one action whose changed tests do not visibly
// exercise its declared policy paths.
type LintFinding struct {
	Action  string
	Problem string
}

// LintResult is the outcome of the anti-gaming pass.
type LintResult struct {
	Findings []LintFinding
}

func (r LintResult) OK() bool { return len(r.Findings) == 0 }

func (r LintResult) Report() string {
	if r.OK() {
		return ""
	}
	var b strings.Builder
	b.WriteString("policy-test lint failed:\n")
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "  %s: %s\n", f.Action, f.Problem)
	}
	b.WriteString("each changed action needs a changed test that names the action, all of its codes, and asserts each declared outcome\n")
	return b.String()
}

// LintPolicyTests checks changed actions against changed policy-test sources.
// required supplies the codes and outcomes each action declares.
func LintPolicyTests(required *Required, changedActions []string, testPaths []string) (LintResult, error) {
	sources := make([]string, 0, len(testPaths))
	for _, path := range testPaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return LintResult{}, err
		}
		sources = append(sources, string(raw))
	}

	var result LintResult
	for _, action := range changedActions {
		hits := hitsForAction(required, action)
		if len(hits) == 0 {
			continue
		}
		problem := lintAction(action, hits, sources)
		if problem != "" {
			result.Findings = append(result.Findings, LintFinding{Action: action, Problem: problem})
		}
	}
	return result, nil
}

func hitsForAction(required *Required, action string) []Hit {
	var hits []Hit
	for _, hit := range required.Hits() {
		if hit.Action == action {
			hits = append(hits, hit)
		}
	}
	return hits
}

// lintAction returns an empty string when some single source covers the
// action id, all codes, and an assertion per declared outcome.
func lintAction(action string, hits []Hit, sources []string) string {
	outcomes := make(map[decision.Outcome]struct{})
	codes := make(map[string]struct{})
	for _, hit := range hits {
		outcomes[hit.Decision] = struct{}{}
		codes[hit.Code] = struct{}{}
	}

	var firstProblem string
	for _, src := range sources {
		if !strings.Contains(src, action) {
			continue
		}
		problem := ""
		for code := range codes {
			if !strings.Contains(src, code) {
				problem = fmt.Sprintf("test mentions action but not code %q", code)
				break
			}
		}
		if problem == "" {
			for outcome := range outcomes {
				if !outcomeAssertPatterns[outcome].MatchString(src) {
					problem = fmt.Sprintf("test mentions action but has no %s assertion", outcome)
					break
				}
			}
		}
		if problem == "" {
			return ""
		}
		if firstProblem == "" {
			firstProblem = problem
		}
	}

	if firstProblem != "" {
		return firstProblem
	}
	return "no changed policy-test source mentions the action"
}
