package iio

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrProtocol is generated when the remote sends something iiod would not
	ErrProtocol = errors.New("iiod protocol violation")

	// ErrDeviceNotFound is generated when a context has no device by the requested name or id
	ErrDeviceNotFound = errors.New("iio device not found")

	// ErrChannelNotFound is generated when a device has no channel by the requested id
	ErrChannelNotFound = errors.New("iio channel not found")
)

// Errno is a negative return code from iiod.  It unwraps to the
// corresponding syscall.Errno, so errors.Is(err, syscall.EIO) works.
type Errno struct {
	Op   string
	Code syscall.Errno
}

func (e *Errno) Error() string {
	return fmt.Sprintf("iiod %s: %s (errno %d)", e.Op, e.Code.Error(), int(e.Code))
}

func (e *Errno) Unwrap() error {
	return e.Code
}

func errnoFrom(op string, ret int) error {
	if ret >= 0 {
		return nil
	}
	return &Errno{Op: op, Code: syscall.Errno(-ret)}
}

// isRemote reports whether err came back from iiod, in which case the
// connection is still in sync and may be reused
func isRemote(err error) bool {
	var e *Errno
	return errors.As(err, &e)
}
