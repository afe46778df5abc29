package signaling

import "errors"

var (
	ErrInvalidRole    = errors.New("Invalid role specified")
	ErrMissingMeeting = errors.New("meeting_id is required")
	ErrJoinFailed     = errors.New("Failed to join room")
	ErrQueueFull      = errors.New("send queue full")
	ErrClientClosed   = errors.New("client closed")
	ErrUnknownConn    = errors.New("unknown connection")
)
