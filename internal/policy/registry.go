// Package policy holds the immutable policy registry: the table of rules that
// map governed action ids (exact or by prefix) to capability, tier, and
// allow/deny/approval codes. The registry is loaded once from a versioned
// snapshot at process start; a malformed or missing snapshot is a fatal
// configuration error, never defaulted.
package policy

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"

	pkgerrors "govern/pkg/errors"
)

// Registry is the loaded rule table. Read-only after load, so it is safe to
// share across any number of goroutines.
type Registry struct {
	entries []Entry
}

// snapshotDoc accepts both wire forms of the snapshot: a bare entry array or
// an object wrapping it under "policy_registry".
type snapshotDoc struct {
	PolicyRegistry []entryDoc `json:"policy_registry"`
}

// Load reads and parses a registry snapshot file.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "read policy registry snapshot")
	}
	return Parse(raw)
}

// Parse builds a Registry from snapshot bytes.
func Parse(raw []byte) (*Registry, error) {
	var docs []entryDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		var wrapped snapshotDoc
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil || wrapped.PolicyRegistry == nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "policy registry snapshot is neither an entry array nor a policy_registry object")
		}
		docs = wrapped.PolicyRegistry
	}

	entries := make([]Entry, 0, len(docs))
	for i, doc := range docs {
		entry, err := doc.toEntry()
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "policy registry entry "+strconv.Itoa(i))
		}
		if overlap := codeOverlap(entry.DenyCodes, entry.ApprovalCodes); len(overlap) > 0 {
			slog.Warn("registry entry declares a code as both deny and approval",
				"entry", entry.Ref(),
				"codes", overlap,
			)
		}
		entries = append(entries, entry)
	}

	return &Registry{entries: entries}, nil
}

// Lookup returns every entry covering the action: the union of exact-action
// matches and prefix matches. Both kinds may co-contribute.
func (r *Registry) Lookup(action string) []Entry {
	var matched []Entry
	for _, entry := range r.entries {
		if entry.Matches(action) {
			matched = append(matched, entry)
		}
	}
	return matched
}

// CoversAction reports whether at least one entry matches the action.
func (r *Registry) CoversAction(action string) bool {
	for _, entry := range r.entries {
		if entry.Matches(action) {
			return true
		}
	}
	return false
}

// Entries returns the loaded rules in declaration order.
func (r *Registry) Entries() []Entry {
	return r.entries
}

func codeOverlap(deny, approval []string) []string {
	if len(deny) == 0 || len(approval) == 0 {
		return nil
	}
	denySet := make(map[string]struct{}, len(deny))
	for _, code := range deny {
		denySet[code] = struct{}{}
	}
	var overlap []string
	for _, code := range approval {
		if _, ok := denySet[code]; ok {
			overlap = append(overlap, code)
		}
	}
	return overlap
}
