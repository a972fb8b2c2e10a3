// Package decision classifies governed actions as allow, deny, or
// approval-required against the policy registry. Evaluation is a pure
// function of its inputs: no side effects, no clock, no I/O. The goal is to
// keep the rules centralized and testable; callers record receipts and
// coverage separately.
package decision

import (
	"encoding/json"

	"govern/internal/policy"
)

// Outcome is the classification of one evaluation.
type Outcome string

const (
	Allow            Outcome = "ALLOW"
	Deny             Outcome = "DENY"
	ApprovalRequired Outcome = "APPROVAL_REQUIRED"
)

// Reserved decision codes produced by the engine itself. Deny and approval
// codes declared in the registry pass through unchanged.
const (
	CodeAllow             = "ALLOW"
	CodePolicyNotFound    = "POLICY_NOT_FOUND"
	CodeCapabilityMissing = "CAPABILITY_MISSING"
	CodePolicyDefaultDeny = "POLICY_DEFAULT_DENY"
)

// Decision is the result of evaluating one action. Code equals "ALLOW"
// exactly when Outcome is Allow.
type Decision struct {
	Outcome Outcome
	Code    string
	Reason  string

	// MatchedEntries records the registry rules that contributed, for
	// provenance in receipts and coverage reports.
	MatchedEntries []policy.Entry
}

func (d Decision) Allowed() bool { return d.Outcome == Allow }

// Input carries the caller-supplied evaluation context.
type Input struct {
	// Capabilities held by the caller.
	Capabilities []string

	// Attributes are action-specific values consulted by validators
	// (for example amount_cents for payment actions).
	Attributes map[string]any

	// ApprovalGranted reports whether an approval record already exists for
	// this action instance. Wired by the service from the approval guard.
	ApprovalGranted bool
}

func (in Input) hasCapability(capability string) bool {
	for _, c := range in.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Validator is a business or schema check registered against the engine.
// It returns a deny code and reason when the check fails, or ok=true.
type Validator interface {
	// Applies reports whether the validator participates for this action
	// given the matched entries.
	Applies(action string, entries []policy.Entry) bool

	// Check runs the validation. A non-empty code means deny.
	Check(action string, in Input) (code, reason string, ok bool)
}

// ApprovalPolicy decides whether declared approval codes bind for a given
// input. With no policy registered, declared codes always bind.
type ApprovalPolicy interface {
	Requires(action string, in Input) bool
}

// AmountThresholdPolicy binds approval codes only when the named integer
// attribute meets the threshold. Entries without approval codes are
// unaffected.
type AmountThresholdPolicy struct {
	Attribute      string
	ThresholdCents int64
}

func (p AmountThresholdPolicy) Requires(_ string, in Input) bool {
	amount, ok := intAttribute(in.Attributes, p.Attribute)
	if !ok {
		// No amount supplied: bind the approval codes rather than let the
		// caller skip approval by omission.
		return true
	}
	return amount >= p.ThresholdCents
}

func intAttribute(attrs map[string]any, key string) (int64, bool) {
	switch v := attrs[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		// encoding/json decodes numbers as float64.
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// Engine evaluates actions against the registry plus registered validators.
type Engine struct {
	registry   *policy.Registry
	validators []Validator
	approval   ApprovalPolicy
}

func NewEngine(registry *policy.Registry, validators ...Validator) *Engine {
	return &Engine{registry: registry, validators: validators}
}

// WithApprovalPolicy registers the approval-binding policy. Set once at
// wiring time, before the engine is shared.
func (e *Engine) WithApprovalPolicy(p ApprovalPolicy) *Engine {
	e.approval = p
	return e
}

// Evaluate classifies an action. The order is fixed: capability check first,
// then validators in registration order, then approval, then allow/deny.
// An action with no registry entries is always denied (fail-closed); CI
// guarantees catalog-backed actions have entries, but actions invoked outside
// the catalog must not slip through.
func (e *Engine) Evaluate(action string, in Input) Decision {
	entries := e.registry.Lookup(action)
	if len(entries) == 0 {
		return Decision{
			Outcome: Deny,
			Code:    CodePolicyNotFound,
			Reason:  "no policy registry entry covers action " + action,
		}
	}

	allowEligible := false
	var approvalCodes []string
	seenApproval := make(map[string]struct{})
	for _, entry := range entries {
		if entry.Allow {
			allowEligible = true
		}
		for _, code := range entry.ApprovalCodes {
			if _, dup := seenApproval[code]; dup {
				continue
			}
			seenApproval[code] = struct{}{}
			approvalCodes = append(approvalCodes, code)
		}
	}

	for _, entry := range entries {
		if entry.Capability != "" && !in.hasCapability(entry.Capability) {
			return Decision{
				Outcome:        Deny,
				Code:           CodeCapabilityMissing,
				Reason:         "caller lacks capability " + entry.Capability,
				MatchedEntries: entries,
			}
		}
	}

	for _, v := range e.validators {
		if !v.Applies(action, entries) {
			continue
		}
		if code, reason, ok := v.Check(action, in); !ok {
			return Decision{
				Outcome:        Deny,
				Code:           code,
				Reason:         reason,
				MatchedEntries: entries,
			}
		}
	}

	// First declared approval code wins; declaration order makes the
	// tie-break deterministic.
	if len(approvalCodes) > 0 && !in.ApprovalGranted &&
		(e.approval == nil || e.approval.Requires(action, in)) {
		return Decision{
			Outcome:        ApprovalRequired,
			Code:           approvalCodes[0],
			Reason:         "action requires approval",
			MatchedEntries: entries,
		}
	}

	if allowEligible {
		return Decision{
			Outcome:        Allow,
			Code:           CodeAllow,
			MatchedEntries: entries,
		}
	}

	return Decision{
		Outcome:        Deny,
		Code:           CodePolicyDefaultDeny,
		Reason:         "no matching entry allows action " + action,
		MatchedEntries: entries,
	}
}
