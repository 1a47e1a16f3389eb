package rtsp

import (
	"time"

	"github.com/ethan/rtspcam-client/pkg/rtp"
)

// Status is the client's position in the handshake state machine
//.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusOptionsSent
	StatusDescribing
	StatusSettingUp
	StatusPlaying
	StatusPaused
	StatusTornDown
	StatusConnectFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusOptionsSent:
		return "options-sent"
	case StatusDescribing:
		return "describing"
	case StatusSettingUp:
		return "setting-up"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusTornDown:
		return "torn-down"
	case StatusConnectFailed:
		return "connect-failed"
	default:
		return "unknown"
	}
}

// MediaKind distinguishes the two track kinds the client negotiates.
type MediaKind int

const (
	MediaVideo MediaKind = iota
	MediaAudio
)

func (k MediaKind) String() string {
	if k == MediaAudio {
		return "audio"
	}
	return "video"
}

// track holds everything the session learned about one negotiated media
// section between DESCRIBE and the matching SETUP response.
type track struct {
	kind        MediaKind
	controlURL  string
	payloadType int
	encoding    string
	clockRate   int
	fmtp        map[string]string

	ssrc uint32
	dp   rtp.Depayloader

	transport Transport
	tcp       *tcpTransport // non-nil when transport is interleaved-over-TCP
}

// pendingSetup is one entry in the SETUP FIFO: built at DESCRIBE time,
// drained one at a time as each SETUP response arrives.
type pendingSetup struct {
	track *track
}

// sessionState is the client's mutable view of the negotiated session.
// It carries no lock of its own; every access is guarded by Client.mu.
type sessionState struct {
	status Status

	sessionID         string
	keepaliveInterval time.Duration
	supportsGetParam  bool
	playbackSession   bool

	baseURL string // Content-Base, falls back to the request URL

	tracks       []*track
	pendingSetup []*pendingSetup

	nextInterleavedChannel byte // next even channel to hand out for TCP transports
}

func newSessionState() *sessionState {
	return &sessionState{status: StatusIdle}
}

func (s *sessionState) videoTrack() *track {
	return s.trackOfKind(MediaVideo)
}

func (s *sessionState) audioTrack() *track {
	return s.trackOfKind(MediaAudio)
}

func (s *sessionState) trackOfKind(kind MediaKind) *track {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}
