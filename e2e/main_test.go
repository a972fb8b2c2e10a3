package e2e

import (
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// The suite runs against a live server. Start one with the e2e policy
// registry and a 1000-cent daily cap, then point GOVERN_E2E_BASE_URL at it.
func TestFeatures(t *testing.T) {
	if os.Getenv("GOVERN_E2E_BASE_URL") == "" {
		t.Skip("GOVERN_E2E_BASE_URL not set, skipping e2e suite")
	}

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			RegisterSteps(ctx, NewTestContext())
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
