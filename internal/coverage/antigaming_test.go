package coverage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLintPolicyTests(t *testing.T) {
	required, err := DeriveRequiredHits(testRegistry(t), []string{"payments.charge.v1"})
	require.NoError(t, err)

	goodTest := `
func TestChargePolicy(t *testing.T) {
	d := evaluate("payments.charge.v1", billingCtx(50000))
	assert.Equal(t, "APPROVAL_REQUIRED", string(d.Outcome))
	assert.Equal(t, "HIGH_VALUE_CHARGE", d.Code)

	d = evaluate("payments.charge.v1", sanctionedCtx())
	assert.Equal(t, "DENY", string(d.Outcome))
	assert.Equal(t, "SANCTIONED_PARTY", d.Code)

	d = evaluate("payments.charge.v1", billingCtx(100))
	assert.True(t, d.Allowed())
	assert.Equal(t, "ALLOW", d.Code)
}
`

	t.Run("complete test passes", func(t *testing.T) {
		dir := t.TempDir()
		path := writeTestSource(t, dir, "charge_test.txt", goodTest)

		result, err := LintPolicyTests(required, []string{"payments.charge.v1"}, []string{path})
		require.NoError(t, err)
		assert.True(t, result.OK())
	})

	t.Run("test missing a declared code is flagged", func(t *testing.T) {
		dir := t.TempDir()
		path := writeTestSource(t, dir, "charge_test.txt", `
func TestCharge(t *testing.T) {
	d := evaluate("payments.charge.v1", billingCtx(50000))
	assert.Equal(t, "APPROVAL_REQUIRED", string(d.Outcome))
	assert.Equal(t, "HIGH_VALUE_CHARGE", d.Code)
	d = evaluate("payments.charge.v1", billingCtx(100))
	assert.True(t, d.Allowed())
	assert.Equal(t, "ALLOW", d.Code)
}
`)
		result, err := LintPolicyTests(required, []string{"payments.charge.v1"}, []string{path})
		require.NoError(t, err)
		require.False(t, result.OK())
		assert.Contains(t, result.Findings[0].Problem, "SANCTIONED_PARTY")
	})

	t.Run("no test mentioning the action is flagged", func(t *testing.T) {
		dir := t.TempDir()
		path := writeTestSource(t, dir, "other_test.txt", `func TestSomethingElse(t *testing.T) {}`)

		result, err := LintPolicyTests(required, []string{"payments.charge.v1"}, []string{path})
		require.NoError(t, err)
		require.False(t, result.OK())
		assert.Contains(t, result.Findings[0].Problem, "no changed policy-test source")
	})

	t.Run("unchanged actions are not linted", func(t *testing.T) {
		result, err := LintPolicyTests(required, nil, nil)
		require.NoError(t, err)
		assert.True(t, result.OK())
	})
}
