// Package roomerr collects the typed errors exchanged between the Upstream
// Link, Room, and Connection Acceptor, so callers can branch on error kind
// with errors.As/errors.Is instead of string matching.
package roomerr

import "errors"

// ErrInvalidHandshake is logged by the Connection Acceptor when a
// downstream upgrade request is missing or has malformed required query
// parameters; the client sees a 1008 close instead.
var ErrInvalidHandshake = errors.New("invalid handshake: missing required parameters")

// ErrNotOpen is returned when a send is attempted against an Upstream Link
// that isn't currently in the open state.
var ErrNotOpen = errors.New("upstream link not open")

// ErrShutdownInitiated marks a Room shutdown. Room.Shutdown attaches it to
// its shutdown log entry; no operation returns it.
var ErrShutdownInitiated = errors.New("room shutdown initiated")

// LeagueMismatchError is raised by Room.HandleClientReconnect when a
// reconnect request names a league other than the Room's own.
type LeagueMismatchError struct {
	Expected string
	Got      string
}

func (e *LeagueMismatchError) Error() string {
	return "league mismatch: room is " + e.Expected + ", reconnect requested " + e.Got
}

// UpstreamDialFailure wraps an error encountered while dialing the upstream
// draft service for leagueID.
type UpstreamDialFailure struct {
	LeagueID string
	Err      error
}

func (e *UpstreamDialFailure) Error() string {
	return "upstream dial failed for league " + e.LeagueID + ": " + e.Err.Error()
}

func (e *UpstreamDialFailure) Unwrap() error { return e.Err }

// UpstreamRuntimeError wraps an I/O error encountered on an already-open
// Upstream Link for leagueID.
type UpstreamRuntimeError struct {
	LeagueID string
	Err      error
}

func (e *UpstreamRuntimeError) Error() string {
	return "upstream runtime error for league " + e.LeagueID + ": " + e.Err.Error()
}

func (e *UpstreamRuntimeError) Unwrap() error { return e.Err }
