package netlink

import (
	"errors"
	"fmt"
	"syscall"
)

// Malformed input. These are returned by the decoding primitives; the
// Iterator never surfaces them and simply stops instead.
var (
	ErrTruncatedHeader    = errors.New("truncated attribute header")
	ErrInvalidLength      = errors.New("attribute length shorter than its header")
	ErrPayloadTooShort    = errors.New("declared payload exceeds the available bytes")
	ErrWidthMismatch      = errors.New("payload width mismatch")
	ErrUnterminatedString = errors.New("string payload is not NUL-terminated")
	ErrHeaderTooShort     = errors.New("buffer shorter than a netlink message header")
	ErrTruncatedMessage   = errors.New("truncated netlink message")
)

// Caller contract violations.
var (
	ErrFalseFlag       = errors.New("flag attributes cannot encode false: omit the attribute instead")
	ErrInvalidType     = errors.New("attribute type does not fit in NLA_TYPE_MASK")
	ErrPayloadTooLarge = errors.New("attribute does not fit in a 16-bit length")
	ErrEmbeddedNUL     = errors.New("string contains a NUL byte")
	ErrUnknownValue    = errors.New("unknown attribute value")
	ErrUnknownKind     = errors.New("unknown attribute kind")
	ErrBadNest         = errors.New("nest does not belong to this message")
)

// Resource and lifecycle errors.
var (
	ErrAllocationFailed      = errors.New("could not allocate a netlink socket")
	ErrConfigurationRejected = errors.New("socket configuration rejected")
	ErrConnectFailed         = errors.New("connect failed")
	ErrSendFailed            = errors.New("send failed")
	ErrReceiveFailed         = errors.New("receive failed")
	ErrHandleClosed          = errors.New("socket handle is closed")
	ErrNotConnected          = errors.New("socket is not connected")
	ErrAlreadyConnected      = errors.New("socket is already connected")
	ErrNotSupported          = errors.New("netlink sockets are not supported on this platform")
)

// OpError is returned whenever the operating system rejects an operation on
// a socket. It matches both its Kind (e.g. ErrConnectFailed) and the
// underlying error with errors.Is.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("netlink %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Code returns the errno reported by the kernel, if any.
func (e *OpError) Code() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

func opError(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}
