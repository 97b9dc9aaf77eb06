package corecache

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredError(t *testing.T) {
	err := NewError("GET", ErrCodeKeyNotFound, "key not found")

	assert.Equal(t, "GET", err.Op)
	assert.Equal(t, ErrCodeKeyNotFound, err.Code)
	assert.Contains(t, err.Error(), "key not found")
	assert.Contains(t, err.Error(), "op=GET")
}

func TestErrorWithErrno(t *testing.T) {
	err := NewErrorWithErrno("READ", ErrCodeTransportError, syscall.ECONNRESET)

	assert.Equal(t, syscall.ECONNRESET, err.Errno)
	assert.True(t, IsErrno(err, syscall.ECONNRESET))
	assert.False(t, IsErrno(err, syscall.EPIPE))
	assert.False(t, IsErrno(nil, syscall.ECONNRESET))
}

func TestConnError(t *testing.T) {
	err := NewConnError("DISPATCH", 7, ErrCodeNotStored, "cas mismatch")

	assert.Equal(t, 7, err.ConnID)
	assert.Contains(t, err.Error(), "conn=7")
}

func TestWrapError(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError("SET", cause)

	assert.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, cause, err.Unwrap())
}

func TestWrapErrorMapsErrno(t *testing.T) {
	err := WrapError("WRITE", syscall.ECONNRESET)

	assert.Equal(t, ErrCodeTransportError, err.Code)
	assert.Equal(t, syscall.ECONNRESET, err.Errno)
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError("NOOP", nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("INCR", ErrCodeNonNumeric, "not a number")

	assert.True(t, IsCode(err, ErrCodeNonNumeric))
	assert.False(t, IsCode(err, ErrCodeExists))
	assert.False(t, IsCode(nil, ErrCodeNonNumeric))
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := NewError("GET", ErrCodeKeyNotFound, "miss")
	b := NewError("GET", ErrCodeKeyNotFound, "miss again, different message")

	assert.True(t, errors.Is(a, b))
}

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		errno    syscall.Errno
		expected ErrorCode
	}{
		{syscall.ECONNRESET, ErrCodeTransportError},
		{syscall.EPIPE, ErrCodeTransportError},
		{syscall.ENOMEM, ErrCodePoolExhausted},
		{syscall.EMFILE, ErrCodeConnectionLimit},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, mapErrnoToCode(tc.errno))
	}
}
