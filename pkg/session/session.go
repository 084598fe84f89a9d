// Package session correlates individual transfers into longer-lived
// groups: continuous image streams and per-sender file collections.
package session

import (
	"errors"
	"time"
)

var (
	// ErrUnknownStream is returned when a stream id does not name the active stream.
	ErrUnknownStream = errors.New("session: unknown stream")
	// ErrUnknownSession is returned for a collection id that was never created.
	ErrUnknownSession = errors.New("session: unknown collection session")
)

// Role tells which side of a stream a session describes.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleReceiver {
		return "receiver"
	}
	return "sender"
}

// StreamingSession describes one continuous capture-and-send relationship.
type StreamingSession struct {
	ID        string        `cbor:"1,keyasint" json:"id"`
	Role      Role          `cbor:"2,keyasint" json:"role"`
	Target    string        `cbor:"3,keyasint,omitempty" json:"target,omitempty"`
	Sender    string        `cbor:"4,keyasint,omitempty" json:"sender,omitempty"`
	Interval  time.Duration `cbor:"5,keyasint,omitempty" json:"interval,omitempty"`
	StartedAt time.Time     `cbor:"6,keyasint" json:"startedAt"`
	// LastFrameAt is the time the last frame was sent or received.
	LastFrameAt  time.Time `cbor:"7,keyasint,omitempty" json:"lastFrameAt,omitempty"`
	Frames       int64     `cbor:"8,keyasint" json:"frames"`
	LastSequence int64     `cbor:"9,keyasint" json:"lastSequence"`
	Active       bool      `cbor:"10,keyasint" json:"active"`
}
