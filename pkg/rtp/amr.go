package rtp

import pionrtp "github.com/pion/rtp"

// amrFrameSizeNB are the speech-frame sizes in bytes for each AMR-NB mode
// 0-7, plus SID and the reserved/no-data codes (RFC 4867 Table 1). The
// leading ToC byte is accounted for separately.
var amrFrameSizeNB = [16]int{12, 13, 15, 17, 19, 20, 26, 31, 5, 0, 0, 0, 0, 0, 0, 0}

// amrFrameSizeWB are the frame sizes for AMR-WB modes 0-8 plus SID (RFC
// 4867 Table 2).
var amrFrameSizeWB = [16]int{17, 23, 32, 36, 40, 46, 50, 58, 60, 5, 0, 0, 0, 0, 0, 0}

// amrDepayloader reassembles RFC 4867 "bandwidth-efficient is not
// supported; octet-aligned" AMR/AMR-WB payloads: a ToC entry per frame
// followed by the concatenated frame data.
type amrDepayloader struct {
	wideband bool
	onFrame  FrameHandler
	seq      SequenceTracker
}

// NewAMRDepayloader builds a depayloader for the "AMR"/"AMR-WB" RTP
// encodings. fmtp's octet-align parameter is assumed to be 1, matching
// every camera and the pack's own RTP payload conventions; bandwidth
// -efficient mode (octet-align=0) is not supported.
func NewAMRDepayloader(fmtp map[string]string, onFrame FrameHandler) Depayloader {
	return &amrDepayloader{onFrame: onFrame}
}

// NewAMRWBDepayloader is the AMR-WB variant, selected when the rtpmap
// encoding name is "AMR-WB" rather than "AMR".
func NewAMRWBDepayloader(onFrame FrameHandler) Depayloader {
	return &amrDepayloader{wideband: true, onFrame: onFrame}
}

func (d *amrDepayloader) Push(pkt *pionrtp.Packet) {
	if d.seq.Gap(pkt.SequenceNumber) {
		d.Discontinuity()
	}
	d.seq.Observe(pkt.SequenceNumber)

	payload := pkt.Payload
	if len(payload) < 1 {
		return
	}
	payload = payload[1:] // CMR byte

	var tocs []byte
	for len(payload) > 0 {
		toc := payload[0]
		payload = payload[1:]
		tocs = append(tocs, toc)
		if toc&0x80 == 0 { // F bit clear: last ToC entry
			break
		}
	}

	sizes := amrFrameSizeNB[:]
	if d.wideband {
		sizes = amrFrameSizeWB[:]
	}

	for _, toc := range tocs {
		mode := (toc >> 3) & 0x0F
		size := sizes[mode]
		if size == 0 || len(payload) < size {
			return
		}
		frame := payload[:size]
		payload = payload[size:]
		if d.onFrame != nil {
			out := make([]byte, size)
			copy(out, frame)
			d.onFrame(Frame{Payload: out, Keyframe: true, RTPTimestamp: pkt.Timestamp})
		}
	}
}

func (d *amrDepayloader) Discontinuity() {}
