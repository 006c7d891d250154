package network

import "github.com/pkg/errors"

// Failure phases. Errors reported through State wrap one of these, so
// errors.Cause recovers the phase.
var (
	ErrResolve    = errors.New("resolve failed")
	ErrConnect    = errors.New("connect failed")
	ErrSend       = errors.New("send failed")
	ErrReceive    = errors.New("receive failed")
	ErrPeerClosed = errors.New("connection closed by peer")
)
