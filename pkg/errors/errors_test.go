package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Run("extracts code from coded error", func(t *testing.T) {
		err := New(CodeCoverageGap, "missing hit")
		assert.Equal(t, CodeCoverageGap, CodeOf(err))
	})

	t.Run("extracts code through wrapping", func(t *testing.T) {
		inner := New(CodeIntegrity, "hash mismatch")
		outer := fmt.Errorf("verify pass: %w", inner)
		assert.Equal(t, CodeIntegrity, CodeOf(outer))
	})

	t.Run("uncoded error maps to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("plain failure")))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil error wraps to nil", func(t *testing.T) {
		require.NoError(t, Wrap(nil, CodePersistence, "persist receipt"))
	})

	t.Run("wrapped error keeps cause", func(t *testing.T) {
		cause := fmt.Errorf("disk full")
		err := Wrap(cause, CodePersistence, "persist receipt")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, CodePersistence, CodeOf(err))
		assert.Contains(t, err.Error(), "persist receipt")
	})
}

func TestHasCode(t *testing.T) {
	err := Newf(CodeConfiguration, "bad registry entry %d", 3)
	assert.True(t, HasCode(err, CodeConfiguration))
	assert.False(t, HasCode(err, CodeIntegrity))
	assert.False(t, HasCode(nil, CodeConfiguration))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:    http.StatusBadRequest,
		CodeInvalidInput:  http.StatusBadRequest,
		CodeNotFound:      http.StatusNotFound,
		CodeUnauthorized:  http.StatusUnauthorized,
		CodeConflict:      http.StatusConflict,
		CodeConfiguration: http.StatusUnprocessableEntity,
		CodeCoverageGap:   http.StatusUnprocessableEntity,
		CodeIntegrity:     http.StatusUnprocessableEntity,
		CodePersistence:   http.StatusInternalServerError,
		CodeInternal:      http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), "code %s", code)
	}
}
