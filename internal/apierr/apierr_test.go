package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsSentinel(t *testing.T) {
	err := New(ClassPermanent, "upload_save", errors.New("server rejected"))

	assert.True(t, errors.Is(err, Permanent))
	assert.False(t, errors.Is(err, Temporary))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := New(ClassTemporary, "acquire", cause)

	assert.True(t, errors.Is(err, cause))
}

func TestNew_RetryableClassification(t *testing.T) {
	tests := []struct {
		class     Class
		retryable bool
	}{
		{ClassTemporary, true},
		{ClassLocalTemporary, true},
		{ClassPermanent, false},
		{ClassLocalPermanent, false},
		{ClassInvariantViolation, false},
		{ClassDiskFull, false},
		{ClassIgnorable, false},
	}

	for _, tt := range tests {
		err := New(tt.class, "op", nil)
		assert.Equal(t, tt.retryable, err.Retryable, tt.class.String())
		assert.Equal(t, tt.retryable, Retryable(err), tt.class.String())
	}
}

func TestClassOf(t *testing.T) {
	class, ok := ClassOf(New(ClassDiskFull, "upload_write", nil))
	require.True(t, ok)
	assert.Equal(t, ClassDiskFull, class)

	_, ok = ClassOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestWithCode(t *testing.T) {
	err := WithCode(ClassPermanent, "uploadfile", 2008, errors.New("quota exceeded"))
	assert.Equal(t, 2008, err.Code)
	assert.True(t, errors.Is(err, Permanent))
}
