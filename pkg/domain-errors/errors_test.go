package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeWrongAmount, "deposit must equal price")
		assert.True(t, HasCode(err, CodeWrongAmount))
		assert.False(t, HasCode(err, CodeInvalidState))
	})

	t.Run("matches wrapped domain code", func(t *testing.T) {
		inner := New(CodeNotFound, "property not found")
		err := Wrap(inner, CodeInternal, "load failed")
		assert.True(t, HasCode(err, CodeInternal))
		assert.True(t, HasCode(err, CodeNotFound))
	})

	t.Run("sees through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("context: %w", New(CodeAlreadyFrozen, "frozen"))
		assert.True(t, Is(err, CodeAlreadyFrozen))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestCodeOfAndReason(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, CodeInternal, "failed to save property")

	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, "failed to save property", ReasonOf(err))
	assert.Equal(t, "failed to save property: disk full", err.Error())
	require.ErrorIs(t, err, cause)

	assert.Equal(t, CodeInternal, CodeOf(errors.New("x")))
	assert.Equal(t, "internal error", ReasonOf(errors.New("x")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeUnauthorized:       http.StatusForbidden,
		CodeUnauthenticated:    http.StatusUnauthorized,
		CodeInvalidState:       http.StatusConflict,
		CodeAlreadyFrozen:      http.StatusConflict,
		CodeNotFrozen:          http.StatusConflict,
		CodeWrongAmount:        http.StatusUnprocessableEntity,
		CodeNotFound:           http.StatusNotFound,
		CodeValidation:         http.StatusBadRequest,
		CodeInsufficientEscrow: http.StatusConflict,
		CodeInternal:           http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), "code %s", code)
	}
}
