package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelClassification(t *testing.T) {
	assert.True(t, ErrProviderTransient.IsRetryable())
	assert.False(t, ErrProviderTransient.IsFatal())

	assert.True(t, ErrProviderPermanent.IsFatal())
	assert.False(t, ErrProviderPermanent.IsRetryable())

	assert.True(t, ErrValidation.IsFatal())
	assert.True(t, ErrServiceUnavailable.IsRetryable())
}

func TestRetryExhaustedWrapIsTerminal(t *testing.T) {
	cause := ErrProviderTransient.WithDetail("status_code", 502)
	wrapped := Wrap(cause, ErrRetryExhausted)

	// The exhausted wrap must not re-enter the retry path, whatever the
	// cause's own classification says.
	assert.True(t, wrapped.IsFatal())
	assert.False(t, wrapped.IsRetryable())
	assert.False(t, IsTransient(wrapped))

	assert.True(t, IsRetryExhausted(wrapped))
}

func TestWrapDelegatesToCauseForNonTerminalCodes(t *testing.T) {
	fromFatal := Wrap(ErrProviderPermanent.WithDetail("status_code", 422), ErrInternal)
	assert.True(t, fromFatal.IsFatal())
	assert.False(t, fromFatal.IsRetryable())

	fromTransient := Wrap(ErrServiceUnavailable.WithCause(fmt.Errorf("dial timeout")), ErrInternal)
	assert.False(t, fromTransient.IsFatal())
	assert.True(t, fromTransient.IsRetryable())
}

func TestExplicitOverrideWinsOverCode(t *testing.T) {
	forced := ErrRetryExhausted.AsRetryable()
	assert.True(t, forced.IsRetryable())
	assert.False(t, forced.IsFatal())

	pinned := ErrServiceUnavailable.AsFatal()
	assert.True(t, pinned.IsFatal())
	assert.False(t, pinned.IsRetryable())
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	derived := ErrValidation.WithDetail("message", "instanceId is required")

	assert.Contains(t, derived.Details, "message")
	assert.Empty(t, ErrValidation.Details)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrRetryExhausted))
}
