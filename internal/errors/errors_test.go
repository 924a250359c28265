package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := ValidationError("no target")

	assert.Equal(t, TypeValidation, err.Type)
	assert.Equal(t, "no target", err.Message)
	assert.Nil(t, err.Cause)
	assert.NotNil(t, err.Context)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Contains(t, err.Error(), "validation")
	assert.Contains(t, err.Error(), "no target")
}

func TestStateError(t *testing.T) {
	err := StateError("no active playback")

	assert.Equal(t, TypeState, err.Type)
	assert.Equal(t, http.StatusConflict, err.HTTPStatus())
	assert.Contains(t, err.Error(), "state")
	assert.Contains(t, err.Error(), "no active playback")
}

func TestAuthError(t *testing.T) {
	err := AuthError("invalid token")

	assert.Equal(t, TypeAuth, err.Type)
	assert.Equal(t, http.StatusUnauthorized, err.HTTPStatus())
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("session not found")

	assert.Equal(t, TypeNotFound, err.Type)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus())
}

func TestTransportError(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := TransportError("frame delivery failed", cause)

	assert.Equal(t, TypeTransport, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	assert.Contains(t, err.Error(), "connection reset")
}

func TestLivenessError(t *testing.T) {
	err := LivenessError("heartbeat timeout")

	assert.Equal(t, TypeLiveness, err.Type)
	assert.Equal(t, http.StatusRequestTimeout, err.HTTPStatus())
}

func TestInternalError(t *testing.T) {
	cause := fmt.Errorf("dataset load failed")
	err := InternalError("failed to prepare playback", cause)

	assert.Equal(t, TypeInternal, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.Contains(t, err.Error(), "dataset load failed")
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := TransportError("wrapped", cause)

	require.ErrorIs(t, err, cause)
}

func TestWithContext(t *testing.T) {
	err := ValidationError("bad fps").WithContext("fps", -1)

	assert.Equal(t, -1, err.Context["fps"])
}

func TestToResponse(t *testing.T) {
	err := StateError("already paused").WithContext("current_frame", 3)
	resp := err.ToResponse()

	assert.Equal(t, "already paused", resp.Error)
	assert.Equal(t, TypeState, resp.Type)
	assert.Equal(t, 3, resp.Context["current_frame"])
}

func TestAsStructuredError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, AsStructuredError(nil))
	})

	t.Run("structured error passes through", func(t *testing.T) {
		original := ValidationError("bad input")
		assert.Same(t, original, AsStructuredError(original))
	})

	t.Run("wrapped structured error is unwrapped", func(t *testing.T) {
		original := StateError("nothing playing")
		wrapped := fmt.Errorf("apply failed: %w", original)
		assert.Same(t, original, AsStructuredError(wrapped))
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		err := AsStructuredError(errors.New("boom"))
		assert.Equal(t, TypeInternal, err.Type)
	})
}
