package transfer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBindFailed is returned by Receiver.Start when no port could be bound.
var ErrBindFailed = errors.New("transfer: failed to bind any port")

// ErrRunning is returned by Receiver.Start when the receiver is already listening.
var ErrRunning = errors.New("transfer: receiver already running")

// AddressError rejects a target that cannot be parsed or resolved.
type AddressError struct {
	Input  string
	Reason string
	Err    error
}

func (e *AddressError) Error() string {
	msg := fmt.Sprintf("invalid address %q: %s", e.Input, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AddressError) Unwrap() error { return e.Err }

// DialAttempt is one failed connection attempt.
type DialAttempt struct {
	Addr string
	Err  error
}

// DialError reports that every port of a target refused or timed out.
type DialError struct {
	Target   string
	Attempts []DialAttempt
}

func (e *DialError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Addr+": "+a.Err.Error())
	}
	return fmt.Sprintf("connect to %s failed (%s)", e.Target, strings.Join(parts, "; "))
}

func (e *DialError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, a.Err)
	}
	return out
}

// TargetError ties a fan-out failure to its target.
type TargetError struct {
	Target string
	Err    error
}

func (e *TargetError) Error() string { return e.Target + ": " + e.Err.Error() }
func (e *TargetError) Unwrap() error { return e.Err }
