package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalDeterminism(t *testing.T) {
	t.Run("map keys are sorted", func(t *testing.T) {
		got, err := Marshal(map[string]any{"b": 2, "a": 1, "c": 3})
		require.NoError(t, err)
		assert.Equal(t, `{"a":1,"b":2,"c":3}`, string(got))
	})

	t.Run("nested maps sort at every level", func(t *testing.T) {
		got, err := Marshal(map[string]any{
			"outer": map[string]any{"z": "last", "a": "first"},
		})
		require.NoError(t, err)
		assert.Equal(t, `{"outer":{"a":"first","z":"last"}}`, string(got))
	})

	t.Run("identical input produces identical bytes", func(t *testing.T) {
		value := map[string]any{"id": "r-1", "seq": 7, "tags": []string{"x", "y"}}
		first, err := Marshal(value)
		require.NoError(t, err)
		second, err := Marshal(value)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestMarshalNormalization(t *testing.T) {
	t.Run("strings are NFC normalized", func(t *testing.T) {
		// "é" as separate e + combining acute vs precomposed.
		decomposed := "é"
		precomposed := "é"

		a, err := Marshal(decomposed)
		require.NoError(t, err)
		b, err := Marshal(precomposed)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("keys colliding after normalization are rejected", func(t *testing.T) {
		_, err := Marshal(map[string]any{
			"é": 1,
			"é":  2,
		})
		assert.ErrorIs(t, err, ErrKeyCollision)
	})
}

func TestMarshalRejections(t *testing.T) {
	t.Run("floats are rejected", func(t *testing.T) {
		_, err := Marshal(map[string]any{"amount": 1.5})
		assert.ErrorIs(t, err, ErrFloatNotAllowed)
	})

	t.Run("fractional json.Number is rejected", func(t *testing.T) {
		_, err := Marshal(json.Number("3.14"))
		assert.ErrorIs(t, err, ErrFloatNotAllowed)
	})

	t.Run("integral json.Number is accepted", func(t *testing.T) {
		got, err := Marshal(json.Number("42"))
		require.NoError(t, err)
		assert.Equal(t, "42", string(got))
	})

	t.Run("non-string map keys are rejected", func(t *testing.T) {
		_, err := Marshal(map[int]string{1: "x"})
		assert.ErrorIs(t, err, ErrNonStringMapKey)
	})
}

func TestMarshalNilHandling(t *testing.T) {
	t.Run("nil map values are stripped", func(t *testing.T) {
		got, err := Marshal(map[string]any{"keep": 1, "drop": nil})
		require.NoError(t, err)
		assert.Equal(t, `{"keep":1}`, string(got))
	})

	t.Run("nil value encodes as null", func(t *testing.T) {
		got, err := Marshal(nil)
		require.NoError(t, err)
		assert.Equal(t, "null", string(got))
	})

	t.Run("empty slice differs from nil slice", func(t *testing.T) {
		empty, err := Marshal([]string{})
		require.NoError(t, err)
		assert.Equal(t, "[]", string(empty))

		var null []string
		got, err := Marshal(null)
		require.NoError(t, err)
		assert.Equal(t, "null", string(got))
	})
}
