package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"rate limited", ErrRateLimited, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"nil payload", ErrNilPayload, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err), "error: %v", test.err)
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"nil consumer", ErrNilConsumer, true},
		{"nil payload", ErrNilPayload, true},
		{"invalid config", ErrInvalidConfig, true},
		{"not cloneable", fmt.Errorf("dispatch: %w", ErrNotCloneable), true},
		{"unexpected payload", NewUnexpectedPayload("n", "string", 42), true},
		{"connection lost", ErrConnectionLost, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsInvalid(test.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(ErrNilPayload))
	assert.Equal(t, ErrorFatal, Classify(ErrResourceExhausted))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("something odd")))
}

func TestWrap(t *testing.T) {
	base := errors.New("boom")

	assert.Nil(t, Wrap(nil, "Poller", "Start", "spawn"))

	err := Wrap(base, "Poller", "Start", "spawn")
	require.Error(t, err)
	assert.Equal(t, "Poller.Start: spawn failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	invalid := WrapInvalid(base, "Broadcaster", "Subscribe", "validate consumer")
	transient := WrapTransient(base, "NATSOutput", "handle", "publish")
	fatal := WrapFatal(base, "MetricsRegistry", "RegisterCounter", "register")

	assert.True(t, IsInvalid(invalid))
	assert.True(t, IsTransient(transient))
	assert.True(t, IsFatal(fatal))
	assert.True(t, errors.Is(invalid, base))

	var ce *ClassifiedError
	require.True(t, errors.As(invalid, &ce))
	assert.Equal(t, "Broadcaster", ce.Component)
	assert.Equal(t, "Subscribe", ce.Operation)

	assert.Nil(t, WrapInvalid(nil, "a", "b", "c"))
	assert.Nil(t, WrapTransient(nil, "a", "b", "c"))
	assert.Nil(t, WrapFatal(nil, "a", "b", "c"))
}

func TestUnexpectedPayloadError(t *testing.T) {
	err := NewUnexpectedPayload("upper", "string", 42)

	assert.Equal(t, "upper: unexpected payload: expected string, got int", err.Error())
	assert.True(t, errors.Is(err, ErrUnexpectedPayload))

	wrapped := fmt.Errorf("transform: %w", err)
	var upe *UnexpectedPayloadError
	require.True(t, errors.As(wrapped, &upe))
	assert.Equal(t, "int", upe.Actual)
}
