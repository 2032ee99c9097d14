package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	e1 := New("cause1")
	e2 := New("cause2").Wrap(e1)
	e := New("dummy").Wrap(e2)
	e3 := e.Unwrap()
	assert.True(t, Is(e, e1))
	assert.True(t, Is(e, e2))
	assert.True(t, e3 == e2)
	assert.Equal(t, "dummy: cause2: cause1", e.Error())
}

func TestErrorKind(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	e := New("fetching artifact").Of(ErrTransport).Wrap(cause)

	assert.True(t, Is(e, ErrTransport))
	assert.True(t, Is(e, cause))
	assert.False(t, Is(e, ErrIntegrity))
	assert.Equal(t, ErrTransport, e.Kind())

	// classification survives standard wrapping
	wrapped := fmt.Errorf("package vscode: %w", e)
	assert.True(t, Is(wrapped, ErrTransport))
	require.Equal(t, ErrTransport, KindOf(wrapped))

	// escalation keeps the original classification reachable
	escalated := New("retries exhausted").Of(ErrPackage).Wrap(e)
	assert.True(t, Is(escalated, ErrPackage))
	assert.True(t, Is(escalated, ErrTransport))
	assert.Equal(t, ErrTransport, KindOf(escalated), "innermost specific kind wins over package")

	assert.Nil(t, KindOf(cause))
}

func TestErrorAs(t *testing.T) {
	e := New("installing").Of(ErrPackage)
	var target *Error
	require.True(t, As(fmt.Errorf("wrap: %w", e), &target))
	assert.Equal(t, ErrPackage, target.Kind())
}
