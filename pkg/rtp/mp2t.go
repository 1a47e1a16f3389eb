package rtp

import pionrtp "github.com/pion/rtp"

const mp2tPacketSize = 188

// mp2tDepayloader passes MPEG2 Transport Stream payloads through mostly
// unchanged (RFC 2250 §2): each RTP payload is an integral number of
// 188-byte TS packets, so there is no fragmentation to reassemble, only
// validation that the stream stays aligned.
type mp2tDepayloader struct {
	onFrame FrameHandler
	seq     SequenceTracker
}

// NewMP2TDepayloader builds a depayloader for the "MP2T" RTP encoding
// (static payload type 33).
func NewMP2TDepayloader(onFrame FrameHandler) Depayloader {
	return &mp2tDepayloader{onFrame: onFrame}
}

func (d *mp2tDepayloader) Push(pkt *pionrtp.Packet) {
	d.seq.Observe(pkt.SequenceNumber)

	if len(pkt.Payload) == 0 || len(pkt.Payload)%mp2tPacketSize != 0 {
		return
	}
	if d.onFrame != nil {
		out := make([]byte, len(pkt.Payload))
		copy(out, pkt.Payload)
		d.onFrame(Frame{Payload: out, Keyframe: true, RTPTimestamp: pkt.Timestamp})
	}
}

func (d *mp2tDepayloader) Discontinuity() {
	// Transport stream demuxing downstream of this package is expected to
	// tolerate a dropped 188-byte packet via its own continuity counters.
}
