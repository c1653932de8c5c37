package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapFormatsContext(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "ThresholdAnalytic", "Start", "subscribe to input")

	require.Error(t, err)
	assert.Equal(t, "ThresholdAnalytic.Start: subscribe to input failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "X", "Y", "Z"))
	assert.NoError(t, WrapInvalid(nil, "X", "Y", "Z"))
	assert.NoError(t, WrapTransient(nil, "X", "Y", "Z"))
	assert.NoError(t, WrapFatal(nil, "X", "Y", "Z"))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{"invalid config sentinel", ErrInvalidConfig, ErrorInvalid},
		{"bad expression sentinel", ErrBadExpression, ErrorInvalid},
		{"deleted sentinel", ErrDeleted, ErrorFatal},
		{"connection lost sentinel", ErrConnectionLost, ErrorTransient},
		{"wrapped invalid", WrapInvalid(stderrors.New("nope"), "C", "M", "A"), ErrorInvalid},
		{"wrapped fatal", WrapFatal(stderrors.New("nope"), "C", "M", "A"), ErrorFatal},
		{"unknown defaults to transient", stderrors.New("mystery"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.class, Classify(tt.err))
		})
	}
}

func TestClassifiedErrorUnwraps(t *testing.T) {
	err := WrapInvalid(ErrMissingConfig, "Config", "Validate", "check params")
	assert.True(t, stderrors.Is(err, ErrMissingConfig))
	assert.True(t, IsInvalid(err))
	assert.False(t, IsFatal(err))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}
