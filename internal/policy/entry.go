package policy

import (
	"encoding/json"
	"strings"

	pkgerrors "govern/pkg/errors"
)

// MatchKind discriminates how a registry entry matches governed actions.
type MatchKind string

const (
	MatchAction MatchKind = "action"
	MatchPrefix MatchKind = "prefix"
)

// Entry is one rule in the policy registry. Exactly one of Action or Prefix
// is set, according to Kind. Entries are immutable after load.
type Entry struct {
	Kind          MatchKind
	Action        string
	Prefix        string
	Capability    string
	Tier          string
	Allow         bool
	DenyCodes     []string
	ApprovalCodes []string
}

// Matches reports whether the entry covers the given action id.
func (e Entry) Matches(action string) bool {
	switch e.Kind {
	case MatchAction:
		return e.Action == action
	case MatchPrefix:
		return strings.HasPrefix(action, e.Prefix)
	default:
		return false
	}
}

// Ref is a short human-readable identifier for provenance reporting.
func (e Entry) Ref() string {
	if e.Kind == MatchPrefix {
		return "prefix:" + e.Prefix
	}
	return "action:" + e.Action
}

// entryDoc is the wire form of an Entry in the registry snapshot.
type entryDoc struct {
	Kind          string   `json:"kind"`
	Action        string   `json:"action,omitempty"`
	Prefix        string   `json:"prefix,omitempty"`
	Capability    string   `json:"capability"`
	Tier          string   `json:"tier"`
	Allow         bool     `json:"allow,omitempty"`
	DenyCodes     []string `json:"denyCodes,omitempty"`
	ApprovalCodes []string `json:"approvalCodes,omitempty"`
}

func (d entryDoc) toEntry() (Entry, error) {
	entry := Entry{
		Capability:    d.Capability,
		Tier:          d.Tier,
		Allow:         d.Allow,
		DenyCodes:     d.DenyCodes,
		ApprovalCodes: d.ApprovalCodes,
	}

	switch MatchKind(d.Kind) {
	case MatchAction:
		if d.Action == "" || d.Prefix != "" {
			return Entry{}, pkgerrors.New(pkgerrors.CodeConfiguration, `kind "action" requires action and forbids prefix`)
		}
		entry.Kind = MatchAction
		entry.Action = d.Action
	case MatchPrefix:
		if d.Prefix == "" || d.Action != "" {
			return Entry{}, pkgerrors.New(pkgerrors.CodeConfiguration, `kind "prefix" requires prefix and forbids action`)
		}
		entry.Kind = MatchPrefix
		entry.Prefix = d.Prefix
	default:
		return Entry{}, pkgerrors.Newf(pkgerrors.CodeConfiguration, "unknown registry entry kind %q", d.Kind)
	}

	return entry, nil
}

// MarshalJSON keeps the wire form stable for the required-hits manifest.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryDoc{
		Kind:          string(e.Kind),
		Action:        e.Action,
		Prefix:        e.Prefix,
		Capability:    e.Capability,
		Tier:          e.Tier,
		Allow:         e.Allow,
		DenyCodes:     e.DenyCodes,
		ApprovalCodes: e.ApprovalCodes,
	})
}
