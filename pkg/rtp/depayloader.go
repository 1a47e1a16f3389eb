// Package rtp turns RTP packet streams into complete media frames, one
// depayloader per codec. Packet parsing itself is left to
// github.com/pion/rtp; this package owns only the payload reassembly rules
// RFC 3550's companion payload-format RFCs define per codec.
package rtp

import (
	"strings"

	pionrtp "github.com/pion/rtp"
)

// Frame is one reassembled access unit (a video frame, an audio frame, or
// a passthrough chunk for MP2T) ready for the embedder.
type Frame struct {
	// Payload is the frame in the embedder-facing container format: Annex B
	// for H.264/H.265, raw for G.711/AMR, ADTS-less raw AUs for AAC, MPEG-TS
	// packets for MP2T, and a JFIF image for M-JPEG.
	Payload []byte
	// Keyframe is true for H.264/H.265 IDR frames and every JPEG/MP2T unit;
	// audio codecs always report true since there is no GOP structure.
	Keyframe bool
	// RTPTimestamp is the payload's RTP clock-rate timestamp, for the
	// caller to translate to wall-clock time via an RTCP sender report.
	RTPTimestamp uint32
}

// Depayloader reassembles RTP packets for one media section into Frames.
// A single packet may yield zero frames (fragment buffered), one frame
// (an H.264/H.265 aggregate packet, or the final fragment of a run), or
// several (one per access unit for AAC and AMR packets that carry more
// than one); implementations never buffer across a sequence number gap
// without discarding the partial frame, since RFC 3550 deliver-order is
// not guaranteed.
type Depayloader interface {
	// Push feeds one ordered RTP packet. The FrameHandler given to the
	// constructor is invoked zero or more times synchronously within the call.
	Push(pkt *pionrtp.Packet)
	// Discontinuity resets any in-progress fragment reassembly, called
	// when the sequence tracker detects a gap.
	Discontinuity()
}

// FrameHandler receives completed frames from a Depayloader.
type FrameHandler func(Frame)

// NewForEncoding returns a Depayloader for the named RTP encoding (the
// rtpmap encoding-name, upper-cased) plus any fmtp parameters the SDP
// media section carried, or nil if no depayloader matches.
func NewForEncoding(encodingName string, clockRate int, fmtp map[string]string, onFrame FrameHandler) Depayloader {
	switch normalizeEncoding(encodingName) {
	case "H264":
		return NewH264Depayloader(fmtp, onFrame)
	case "H265":
		return NewH265Depayloader(fmtp, onFrame)
	case "JPEG":
		return NewJPEGDepayloader(onFrame)
	case "MP2T":
		return NewMP2TDepayloader(onFrame)
	case "PCMU", "PCMA":
		return NewG711Depayloader(onFrame)
	case "MPEG4-GENERIC":
		return NewAACDepayloader(fmtp, onFrame)
	case "AMR":
		return NewAMRDepayloader(fmtp, onFrame)
	case "AMR-WB":
		return NewAMRWBDepayloader(onFrame)
	default:
		return nil
	}
}

func normalizeEncoding(name string) string {
	return strings.ToUpper(name)
}
