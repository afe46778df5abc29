package probe

import (
	"errors"
	"fmt"
)

var (
	ErrClosed            = errors.New("signaling connection closed")
	ErrTimeout           = errors.New("timeout")
	ErrRoomError         = errors.New("room error")
	ErrForceDisconnected = errors.New("force disconnected by server")
	ErrPeerDisconnected  = errors.New("peer disconnected")
	ErrICEFailed         = errors.New("ice connection failed")
	ErrUnexpectedSignal  = errors.New("unexpected signal")
)

// OpError records which probe step failed.
type OpError struct {
	Op      string
	Role    string
	Err     error
	Details string
}

func (e *OpError) Error() string {
	prefix := e.Op
	if e.Role != "" {
		prefix = e.Role + " " + e.Op
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", prefix, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}
