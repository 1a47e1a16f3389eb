package rtp

import pionrtp "github.com/pion/rtp"

// g711Depayloader passes G.711 (PCMU/PCMA, RFC 3551 §4.5.14) payloads
// through unchanged: the RTP payload already is one companded sample per
// byte with no framing of its own.
type g711Depayloader struct {
	onFrame FrameHandler
	seq     SequenceTracker
}

// NewG711Depayloader builds a depayloader for the "PCMU"/"PCMA" RTP
// encodings (static payload types 0 and 8).
func NewG711Depayloader(onFrame FrameHandler) Depayloader {
	return &g711Depayloader{onFrame: onFrame}
}

func (d *g711Depayloader) Push(pkt *pionrtp.Packet) {
	d.seq.Observe(pkt.SequenceNumber)
	if len(pkt.Payload) == 0 || d.onFrame == nil {
		return
	}
	out := make([]byte, len(pkt.Payload))
	copy(out, pkt.Payload)
	d.onFrame(Frame{Payload: out, Keyframe: true, RTPTimestamp: pkt.Timestamp})
}

func (d *g711Depayloader) Discontinuity() {}
