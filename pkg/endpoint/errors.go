package endpoint

import "errors"

var (
	// ErrNoReply indicates no reply received from peer.
	// This happens when a reply is received for a latter command, and all
	// previous commands fail with this error.
	ErrNoReply = errors.New("no reply")
	// ErrTimeout indicates the reply didn't arrive in time.
	ErrTimeout = errors.New("reply timeout")
	// ErrUnexpectedReply indicates the peer answered with a different command.
	ErrUnexpectedReply = errors.New("unexpected reply")
)
