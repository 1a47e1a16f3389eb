package rtsp

import (
	"context"
	"fmt"
	"strings"
)

// TransportKind identifies how a single track's RTP/RTCP are carried.
type TransportKind int

const (
	TransportKindTCP TransportKind = iota
	TransportKindUDPUnicast
	TransportKindUDPMulticast
)

// PacketSink receives decoded RTP or RTCP payloads for one track. Both
// callbacks run on the transport's own goroutine(s) and must not block.
type PacketSink struct {
	OnRTP  func(payload []byte)
	OnRTCP func(payload []byte)
}

// Transport is the uniform contract every delivery mode implements, so the
// session state machine never special-cases UDP vs
// TCP vs multicast once SETUP has negotiated one.
type Transport interface {
	// Start begins delivering packets to the configured PacketSink.
	Start(ctx context.Context) error
	// Stop releases sockets or channel registrations.
	Stop() error
	// WriteRTCP sends an RTCP packet toward the server (receiver reports).
	WriteRTCP(payload []byte) error
	// RequestHeader returns this transport's fragment of the Transport
	// request header sent with SETUP, e.g. "RTP/AVP/TCP;unicast".
	RequestHeader() string
	// ApplyServerParams folds the server's Transport response header
	// parameters (server_port, interleaved range already assigned, etc.)
	// into the transport before Start is called.
	ApplyServerParams(params map[string]string) error
}

// parseTransportParams splits a Transport header value's semicolon
// separated parameters into a key/value map; flag-only parameters (no
// "=") are recorded with an empty value.
func parseTransportParams(header string) map[string]string {
	params := make(map[string]string)
	for _, field := range strings.Split(header, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, found := strings.Cut(field, "=")
		if !found {
			params[key] = ""
			continue
		}
		params[key] = value
	}
	return params
}

// errTransportParamMissing builds the error returned when a required
// Transport response parameter (e.g. server_port for UDP) is absent.
func errTransportParamMissing(name string) error {
	return fmt.Errorf("%w: missing %s in Transport response", ErrProtocolViolation, name)
}
