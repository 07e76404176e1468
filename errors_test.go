package evpoll

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestErrorUnwrapAndIs(t *testing.T) {
	cause := unix.EBADF
	err := newSyscallError("close", 7, cause)
	assert.True(t, errors.Is(err, unix.EBADF))
	assert.Equal(t, cause, errors.Unwrap(errors.Unwrap(err)))
}

func TestErrorMessageFormat(t *testing.T) {
	err := &Error{Kind: KindNotFound, Op: "deregister", Fd: 4, Err: errors.New("boom")}
	assert.Contains(t, err.Error(), "deregister")
	assert.Contains(t, err.Error(), "fd=4")

	noFd := &Error{Kind: KindInvalidArgument, Op: "validate", Fd: -1, Err: errors.New("bad opt")}
	assert.NotContains(t, noFd.Error(), "fd=")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindResource, classify(unix.EMFILE))
	assert.Equal(t, KindResource, classify(unix.ENFILE))
	assert.Equal(t, KindResource, classify(unix.ENOMEM))
	assert.Equal(t, KindIO, classify(unix.EBADF))
}

func TestIsEBADFAndEINTR(t *testing.T) {
	assert.True(t, isEBADF(unix.EBADF))
	assert.False(t, isEBADF(unix.EINVAL))
	assert.True(t, isEINTR(unix.EINTR))
	assert.False(t, isEINTR(unix.EBADF))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "resource", KindResource.String())
	assert.Equal(t, "invalid_argument", KindInvalidArgument.String())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "already_exists", KindAlreadyExists.String())
	assert.Equal(t, "io", KindIO.String())
}
