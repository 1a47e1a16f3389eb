package rtsp

import "errors"

// Sentinel error kinds the client wraps with context via
// fmt.Errorf("...: %w", ErrX) and callers unwrap with errors.Is.
var (
	// ErrTransportUnreachable indicates the socket or RTP transport could not be established.
	ErrTransportUnreachable = errors.New("transport unreachable")
	// ErrAuthenticationFailed indicates credentials were rejected after a retry.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrProtocolViolation indicates a malformed message or unexpected status.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrUnsupportedMedia indicates no depayloader matched any SDP media section.
	ErrUnsupportedMedia = errors.New("unsupported media")
	// ErrSessionClosed indicates an operation was attempted on a stopped client.
	ErrSessionClosed = errors.New("session closed")
	// ErrTimeout indicates an I/O deadline elapsed.
	ErrTimeout = errors.New("timeout")
	// ErrNotConnected indicates play/pause/teardown was called before the handshake completed.
	ErrNotConnected = errors.New("not connected")
)
