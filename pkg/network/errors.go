package network

import (
	"errors"
	"fmt"
)

// ErrConnectionClosed is returned when the peer closed the connection at a
// message boundary, or the connection was closed locally.
type ErrConnectionClosed struct{}

func (e *ErrConnectionClosed) Error() string {
	return "connection closed"
}

// IsConnectionClosed reports whether err is an *ErrConnectionClosed.
func IsConnectionClosed(err error) bool {
	var closed *ErrConnectionClosed
	return errors.As(err, &closed)
}

// ConnectError is returned by Connect once every attempt has failed.
type ConnectError struct {
	Address  string
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s after %d attempts: %v", e.Address, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ErrFrameTooLarge is returned when a peer announces a frame above the size limit.
type ErrFrameTooLarge struct {
	Size uint32
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds the size limit", e.Size)
}
