package core

import "errors"

// Routing errors
var (
	ErrStateNotFound     = errors.New("runtime state not found")
	ErrRemoteRouting     = errors.New("routing to remote node not supported")
	ErrNotInitialized    = errors.New("runtime manager not initialized")
	ErrChannelOutOfRange = errors.New("channel id out of range")
)

// Settings errors
var (
	ErrInvalidCompressionLevel = errors.New("invalid compression level")
	ErrInvalidReliability      = errors.New("invalid reliability")
)

// Status is the numeric return code exposed to collaborators that speak the
// NPL status convention.
type Status int

const (
	StatusOK            Status = 0
	StatusStateNotFound Status = -1
	StatusError         Status = 1
	StatusRemoteRouting Status = 2
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusStateNotFound:
		return "state_not_found"
	case StatusError:
		return "error"
	case StatusRemoteRouting:
		return "remote_routing"
	default:
		return "unknown"
	}
}

// StatusOf maps an error returned by this package to its status code.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrStateNotFound):
		return StatusStateNotFound
	case errors.Is(err, ErrRemoteRouting):
		return StatusRemoteRouting
	default:
		return StatusError
	}
}
