package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govern/internal/decision"
	"govern/internal/policy"
	pkgerrors "govern/pkg/errors"
)

func testRegistry(t *testing.T) *policy.Registry {
	t.Helper()
	registry, err := policy.Parse([]byte(`[
		{"kind":"action","action":"payments.charge.v1","capability":"billing","tier":"restricted","allow":true,"approvalCodes":["HIGH_VALUE_CHARGE"]},
		{"kind":"prefix","prefix":"payments.","capability":"billing","tier":"restricted","denyCodes":["SANCTIONED_PARTY"]},
		{"kind":"action","action":"reports.read.v1","capability":"analytics","tier":"standard","allow":true}
	]`))
	require.NoError(t, err)
	return registry
}

func TestParseHit(t *testing.T) {
	t.Run("parses well-formed line", func(t *testing.T) {
		hit, err := ParseHit("payments.charge.v1\tALLOW\tALLOW")
		require.NoError(t, err)
		assert.Equal(t, Hit{Action: "payments.charge.v1", Decision: decision.Allow, Code: "ALLOW"}, hit)
	})

	t.Run("rejects wrong field count", func(t *testing.T) {
		_, err := ParseHit("payments.charge.v1\tALLOW")
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeInvalidInput, pkgerrors.CodeOf(err))
	})

	t.Run("round-trips through Key", func(t *testing.T) {
		hit := Hit{Action: "a.v1", Decision: decision.Deny, Code: "NOPE"}
		parsed, err := ParseHit(hit.Key())
		require.NoError(t, err)
		assert.Equal(t, hit, parsed)
	})
}

func TestDeriveRequiredHits(t *testing.T) {
	t.Run("emits allow, deny, and approval hits", func(t *testing.T) {
		required, err := DeriveRequiredHits(testRegistry(t), []string{"payments.charge.v1"})
		require.NoError(t, err)

		hits := required.Hits()
		assert.ElementsMatch(t, []Hit{
			{Action: "payments.charge.v1", Decision: decision.Allow, Code: "ALLOW"},
			{Action: "payments.charge.v1", Decision: decision.ApprovalRequired, Code: "HIGH_VALUE_CHARGE"},
			{Action: "payments.charge.v1", Decision: decision.Deny, Code: "SANCTIONED_PARTY"},
		}, hits)
	})

	t.Run("records provenance per hit", func(t *testing.T) {
		required, err := DeriveRequiredHits(testRegistry(t), []string{"payments.charge.v1"})
		require.NoError(t, err)

		denyHit := Hit{Action: "payments.charge.v1", Decision: decision.Deny, Code: "SANCTIONED_PARTY"}
		sources := required.Sources(denyHit)
		require.Len(t, sources, 1)
		assert.Equal(t, "prefix:payments.", sources[0].Ref())
	})

	t.Run("ungoverned action is a coverage gap", func(t *testing.T) {
		_, err := DeriveRequiredHits(testRegistry(t), []string{"unknown.action.v1"})
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeCoverageGap, pkgerrors.CodeOf(err))
	})
}

func TestMergeRequired(t *testing.T) {
	registry := testRegistry(t)

	first, err := DeriveRequiredHits(registry, []string{"payments.charge.v1"})
	require.NoError(t, err)
	second, err := DeriveRequiredHits(registry, []string{"reports.read.v1"})
	require.NoError(t, err)

	merged := MergeRequired(first, second, nil)
	assert.Equal(t, first.Len()+second.Len(), merged.Len())
	assert.NotEmpty(t, merged.Sources(Hit{Action: "reports.read.v1", Decision: decision.Allow, Code: "ALLOW"}))
}

func TestManifestRoundTrip(t *testing.T) {
	required, err := DeriveRequiredHits(testRegistry(t), []string{"payments.charge.v1", "reports.read.v1"})
	require.NoError(t, err)

	raw, err := MarshalManifest(required)
	require.NoError(t, err)

	restored, err := UnmarshalManifest(raw)
	require.NoError(t, err)

	assert.Equal(t, required.Len(), restored.Len())
	for _, hit := range required.Hits() {
		assert.Len(t, restored.Sources(hit), len(required.Sources(hit)), "sources for %s", hit.Key())
	}
}

func TestUnmarshalManifestRejectsBadHits(t *testing.T) {
	_, err := UnmarshalManifest([]byte(`{"required_hits":["only-one-field"]}`))
	require.Error(t, err)
}
