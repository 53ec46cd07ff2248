package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Run("should format kind and message", func(t *testing.T) {
		err := New(KindValidation, "width must be positive, got %v", -3)
		assert.Equal(t, "validation: width must be positive, got -3", err.Error())
	})

	t.Run("should include cause when wrapped", func(t *testing.T) {
		cause := errors.New("connection reset by peer")
		err := Wrap(KindTransport, cause, "request to %s failed", "/api/v10/documents")
		assert.Contains(t, err.Error(), "transport:")
		assert.Contains(t, err.Error(), "caused by: connection reset by peer")
	})
}

func TestKindOf(t *testing.T) {
	t.Run("should report kind through fmt.Errorf wrapping", func(t *testing.T) {
		inner := New(KindConfiguration, "access key is required")
		wrapped := fmt.Errorf("loading client: %w", inner)
		assert.Equal(t, KindConfiguration, KindOf(wrapped))
		assert.True(t, IsKind(wrapped, KindConfiguration))
	})

	t.Run("should return empty kind for plain errors", func(t *testing.T) {
		assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
		assert.Equal(t, Kind(""), KindOf(nil))
	})
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := Wrap(KindTransport, cause, "platform unreachable")
	assert.True(t, errors.Is(err, cause))

	var appErr *Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, KindTransport, appErr.Kind)
}

func TestPlatform(t *testing.T) {
	err := Platform(403, `{"message":"forbidden"}`, "feature call rejected")
	assert.Equal(t, KindPlatform, err.Kind)
	assert.Equal(t, 403, err.Status)
	assert.Contains(t, err.Body, "forbidden")
	assert.False(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	t.Run("should retry transport errors only", func(t *testing.T) {
		assert.True(t, IsRetryable(New(KindTransport, "timeout")))
		assert.False(t, IsRetryable(New(KindValidation, "bad field")))
		assert.False(t, IsRetryable(New(KindConfiguration, "no key")))
		assert.False(t, IsRetryable(New(KindModelProtocol, "empty response")))
		assert.False(t, IsRetryable(nil))
	})
}
