package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cucumber/godog"
)

// TestContext carries HTTP state across steps within one scenario.
type TestContext struct {
	baseURL       string
	approverToken string
	client        *http.Client

	actor        string
	capabilities []string

	lastStatus int
	lastBody   []byte
}

func NewTestContext() *TestContext {
	return &TestContext{
		baseURL:       os.Getenv("GOVERN_E2E_BASE_URL"),
		approverToken: os.Getenv("GOVERN_E2E_APPROVER_TOKEN"),
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (tc *TestContext) post(path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := tc.client.Post(tc.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) field(name string) (any, error) {
	var doc map[string]any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	value, ok := doc[name]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", name, tc.lastBody)
	}
	return value, nil
}

// RegisterSteps binds the governance step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^an actor "([^"]*)" holding capability "([^"]*)"$`, tc.actorWithCapability)
	ctx.Step(`^the actor requests action "([^"]*)"$`, tc.requestAction)
	ctx.Step(`^the actor requests action "([^"]*)" for call "([^"]*)" with attribute "([^"]*)" (\d+)$`, tc.requestActionWithAttribute)
	ctx.Step(`^the decision outcome is "([^"]*)" with code "([^"]*)"$`, tc.decisionOutcomeIs)
	ctx.Step(`^a receipt exists for the decision$`, tc.receiptExists)
	ctx.Step(`^an approver grants "([^"]*)" for action "([^"]*)" call "([^"]*)"$`, tc.approverGrants)
	ctx.Step(`^actor "([^"]*)" has recorded a spend of (\d+) cents on tool "([^"]*)"$`, tc.recordSpend)
	ctx.Step(`^actor "([^"]*)" checks an estimated spend of (\d+) cents on tool "([^"]*)"$`, tc.checkSpend)
	ctx.Step(`^the spend is allowed$`, tc.spendAllowed)
	ctx.Step(`^the spend is not allowed$`, tc.spendNotAllowed)
}

func (tc *TestContext) actorWithCapability(actor, capability string) error {
	tc.actor = actor
	tc.capabilities = []string{capability}
	return nil
}

func (tc *TestContext) requestAction(action string) error {
	return tc.post("/v1/decisions/evaluate", map[string]any{
		"action":       action,
		"actor":        tc.actor,
		"capabilities": tc.capabilities,
	})
}

func (tc *TestContext) requestActionWithAttribute(action, callID, attribute string, value int) error {
	return tc.post("/v1/decisions/evaluate", map[string]any{
		"action":       action,
		"actor":        tc.actor,
		"callId":       callID,
		"capabilities": tc.capabilities,
		"attributes":   map[string]any{attribute: value},
	})
}

func (tc *TestContext) decisionOutcomeIs(outcome, code string) error {
	if tc.lastStatus != http.StatusOK {
		return fmt.Errorf("expected 200, got %d: %s", tc.lastStatus, tc.lastBody)
	}
	got, err := tc.field("outcome")
	if err != nil {
		return err
	}
	if got != outcome {
		return fmt.Errorf("expected outcome %q, got %v", outcome, got)
	}
	gotCode, err := tc.field("code")
	if err != nil {
		return err
	}
	if gotCode != code {
		return fmt.Errorf("expected code %q, got %v", code, gotCode)
	}
	return nil
}

func (tc *TestContext) receiptExists() error {
	id, err := tc.field("receiptId")
	if err != nil {
		return err
	}
	resp, err := tc.client.Get(fmt.Sprintf("%s/v1/receipts/%v", tc.baseURL, id))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expected receipt %v to exist, got %d", id, resp.StatusCode)
	}
	return nil
}

func (tc *TestContext) approverGrants(code, action, callID string) error {
	if err := tc.post("/v1/approvals", map[string]any{
		"action":        action,
		"callId":        callID,
		"approver":      "e2e-approver",
		"code":          code,
		"approverToken": tc.approverToken,
	}); err != nil {
		return err
	}
	if tc.lastStatus != http.StatusCreated {
		return fmt.Errorf("expected 201 granting approval, got %d: %s", tc.lastStatus, tc.lastBody)
	}
	return nil
}

func (tc *TestContext) recordSpend(actor string, cents int, tool string) error {
	if err := tc.post("/v1/guards/spending/record", map[string]any{
		"actor":     actor,
		"tool":      tool,
		"costCents": cents,
	}); err != nil {
		return err
	}
	if tc.lastStatus != http.StatusCreated {
		return fmt.Errorf("expected 201 recording spend, got %d: %s", tc.lastStatus, tc.lastBody)
	}
	return nil
}

func (tc *TestContext) checkSpend(actor string, cents int, tool string) error {
	return tc.post("/v1/guards/spending/check", map[string]any{
		"actor":              actor,
		"tool":               tool,
		"estimatedCostCents": cents,
	})
}

func (tc *TestContext) spendAllowed() error {
	allowed, err := tc.field("allowed")
	if err != nil {
		return err
	}
	if allowed != true {
		return fmt.Errorf("expected spend to be allowed: %s", tc.lastBody)
	}
	return nil
}

func (tc *TestContext) spendNotAllowed() error {
	allowed, err := tc.field("allowed")
	if err != nil {
		return err
	}
	if allowed != false {
		return fmt.Errorf("expected spend to be denied: %s", tc.lastBody)
	}
	return nil
}
