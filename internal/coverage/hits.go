// Package coverage proves that every declared policy path is actually
// exercised by tests. At CI time it derives the set of required
// (action, decision, code) hits from the policy registry and the governed
// action catalog, then diffs that set against observed coverage logs emitted
// while the tests drove the decision engine. Any gap fails the build.
package coverage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"govern/internal/decision"
	"govern/internal/policy"
	pkgerrors "govern/pkg/errors"
)

// Hit is one (action, decision, code) triple that must be observed.
type Hit struct {
	Action   string
	Decision decision.Outcome
	Code     string
}

// Key renders the hit in coverage-log form: three tab-separated fields.
func (h Hit) Key() string {
	return h.Action + "\t" + string(h.Decision) + "\t" + h.Code
}

// ParseHit parses a coverage-log line. Blank lines are rejected by callers.
func ParseHit(line string) (Hit, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 3 {
		return Hit{}, pkgerrors.Newf(pkgerrors.CodeInvalidInput, "coverage line needs 3 tab-separated fields, got %d: %q", len(fields), line)
	}
	return Hit{Action: fields[0], Decision: decision.Outcome(fields[1]), Code: fields[2]}, nil
}

// Required is a set of required hits with provenance: for each hit, the
// registry entries that made it required.
type Required struct {
	hits    map[Hit]struct{}
	sources map[Hit][]policy.Entry
}

func NewRequired() *Required {
	return &Required{
		hits:    make(map[Hit]struct{}),
		sources: make(map[Hit][]policy.Entry),
	}
}

func (r *Required) add(hit Hit, source policy.Entry) {
	r.hits[hit] = struct{}{}
	r.sources[hit] = append(r.sources[hit], source)
}

// Hits returns the required hits in deterministic (sorted) order.
func (r *Required) Hits() []Hit {
	out := make([]Hit, 0, len(r.hits))
	for hit := range r.hits {
		out = append(out, hit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Sources returns the registry entries that contributed a hit.
func (r *Required) Sources(hit Hit) []policy.Entry {
	return r.sources[hit]
}

func (r *Required) Len() int { return len(r.hits) }

// DeriveRequiredHits computes the required hits for the given actions. An
// action with zero registry entries is a hard failure: the catalog is not
// allowed to carry actions the registry does not govern.
func DeriveRequiredHits(registry *policy.Registry, actions []string) (*Required, error) {
	required := NewRequired()
	for _, action := range actions {
		entries := registry.Lookup(action)
		if len(entries) == 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeCoverageGap, "no registry coverage for action %q", action)
		}

		for _, entry := range entries {
			if entry.Allow {
				required.add(Hit{Action: action, Decision: decision.Allow, Code: decision.CodeAllow}, entry)
			}
			for _, code := range entry.DenyCodes {
				required.add(Hit{Action: action, Decision: decision.Deny, Code: code}, entry)
			}
			for _, code := range entry.ApprovalCodes {
				required.add(Hit{Action: action, Decision: decision.ApprovalRequired, Code: code}, entry)
			}
		}
	}
	return required, nil
}

// MergeRequired unions required-hit sets, merging provenance. Staged
// pipelines derive per-stage sets and merge them before verification.
func MergeRequired(sets ...*Required) *Required {
	merged := NewRequired()
	for _, set := range sets {
		if set == nil {
			continue
		}
		for hit := range set.hits {
			merged.hits[hit] = struct{}{}
			merged.sources[hit] = append(merged.sources[hit], set.sources[hit]...)
		}
	}
	return merged
}

// manifestDoc is the JSON wire form of a required-hits set.
type manifestDoc struct {
	RequiredHits []string                  `json:"required_hits"`
	Sources      map[string][]policy.Entry `json:"sources"`
}

// MarshalManifest encodes a required set as a manifest document.
func MarshalManifest(r *Required) ([]byte, error) {
	doc := manifestDoc{
		RequiredHits: make([]string, 0, r.Len()),
		Sources:      make(map[string][]policy.Entry, r.Len()),
	}
	for _, hit := range r.Hits() {
		doc.RequiredHits = append(doc.RequiredHits, hit.Key())
		doc.Sources[hit.Key()] = r.sources[hit]
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalManifest decodes a manifest document. Sources are optional per
// hit; hits are mandatory and validated.
func UnmarshalManifest(raw []byte) (*Required, error) {
	var doc struct {
		RequiredHits []string                     `json:"required_hits"`
		Sources      map[string][]json.RawMessage `json:"sources"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInvalidInput, "parse required-hits manifest")
	}

	required := NewRequired()
	for _, key := range doc.RequiredHits {
		hit, err := ParseHit(key)
		if err != nil {
			return nil, fmt.Errorf("manifest hit %q: %w", key, err)
		}
		required.hits[hit] = struct{}{}
		for _, raw := range doc.Sources[key] {
			var entryDoc struct {
				Kind       string `json:"kind"`
				Action     string `json:"action"`
				Prefix     string `json:"prefix"`
				Capability string `json:"capability"`
				Tier       string `json:"tier"`
			}
			if err := json.Unmarshal(raw, &entryDoc); err != nil {
				return nil, pkgerrors.Wrap(err, pkgerrors.CodeInvalidInput, "parse manifest source for "+key)
			}
			required.sources[hit] = append(required.sources[hit], policy.Entry{
				Kind:       policy.MatchKind(entryDoc.Kind),
				Action:     entryDoc.Action,
				Prefix:     entryDoc.Prefix,
				Capability: entryDoc.Capability,
				Tier:       entryDoc.Tier,
			})
		}
	}
	return required, nil
}
