package rtp

import (
	"encoding/base64"
	"encoding/binary"
	"strings"

	pionrtp "github.com/pion/rtp"
)

// H.264 NAL unit type values (ITU-T H.264 §7.4.1) relevant to RTP
// depacketization (RFC 6184).
const (
	naluTypePFrame = 1
	naluTypeIFrame = 5
	naluTypeSEI    = 6
	naluTypeSPS    = 7
	naluTypePPS    = 8
	naluTypeAUD    = 9
	naluTypeSTAPA  = 24
	naluTypeFUA    = 28
)

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// h264Depayloader reassembles RFC 6184 FU-A and STAP-A packets into Annex
// B access units, prepending SPS/PPS on every keyframe so each output
// frame decodes independently of earlier frames.
type h264Depayloader struct {
	fragment []byte
	sps      []byte
	pps      []byte
	onFrame  FrameHandler
	seq      SequenceTracker
}

// NewH264Depayloader builds a depayloader for the "H264" RTP encoding. If
// the SDP fmtp carried sprop-parameter-sets, SPS/PPS are seeded from it so
// the very first keyframe can already be prefixed correctly.
func NewH264Depayloader(fmtp map[string]string, onFrame FrameHandler) Depayloader {
	d := &h264Depayloader{onFrame: onFrame}
	if sprop, ok := fmtp["sprop-parameter-sets"]; ok {
		d.seedSpropParameterSets(sprop)
	}
	return d
}

func (d *h264Depayloader) seedSpropParameterSets(sprop string) {
	for i, part := range strings.Split(sprop, ",") {
		nalu, err := base64.StdEncoding.DecodeString(part)
		if err != nil || len(nalu) == 0 {
			continue
		}
		if i == 0 {
			d.sps = nalu
		} else if i == 1 {
			d.pps = nalu
		}
	}
}

func (d *h264Depayloader) Push(pkt *pionrtp.Packet) {
	if d.seq.Gap(pkt.SequenceNumber) {
		d.Discontinuity()
	}
	d.seq.Observe(pkt.SequenceNumber)

	if len(pkt.Payload) == 0 {
		return
	}
	naluType := pkt.Payload[0] & 0x1F
	switch naluType {
	case naluTypeFUA:
		d.pushFUA(pkt)
	case naluTypeSTAPA:
		d.pushSTAPA(pkt)
	default:
		d.emit(pkt.Payload, naluType, pkt.Timestamp, pkt.Marker)
	}
}

func (d *h264Depayloader) Discontinuity() {
	d.fragment = nil
}

func (d *h264Depayloader) pushFUA(pkt *pionrtp.Packet) {
	if len(pkt.Payload) < 2 {
		return
	}
	fuIndicator := pkt.Payload[0]
	fuHeader := pkt.Payload[1]
	payload := pkt.Payload[2:]

	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	naluType := fuHeader & 0x1F

	if start {
		d.fragment = d.fragment[:0]
		d.fragment = append(d.fragment, (fuIndicator&0xE0)|naluType)
	}
	if d.fragment == nil {
		// A FU-A continuation arrived with no preceding start fragment,
		// most likely after a dropped packet; discard the run.
		return
	}
	d.fragment = append(d.fragment, payload...)

	if end {
		d.emit(d.fragment, naluType, pkt.Timestamp, pkt.Marker)
		d.fragment = nil
	}
}

func (d *h264Depayloader) pushSTAPA(pkt *pionrtp.Packet) {
	payload := pkt.Payload[1:]
	var frame []byte
	sawKeyframe := false

	for len(payload) > 2 {
		size := binary.BigEndian.Uint16(payload[:2])
		payload = payload[2:]
		if len(payload) < int(size) {
			return
		}
		nalu := payload[:size]
		payload = payload[size:]

		naluType := nalu[0] & 0x1F
		d.rememberParameterSet(naluType, nalu)
		if naluType == naluTypeIFrame {
			sawKeyframe = true
		}
		frame = appendAnnexB(frame, nalu)
	}

	if len(frame) > 0 && d.onFrame != nil {
		d.onFrame(Frame{Payload: d.withParameterSets(frame, sawKeyframe), Keyframe: sawKeyframe, RTPTimestamp: pkt.Timestamp})
	}
}

func (d *h264Depayloader) rememberParameterSet(naluType byte, nalu []byte) {
	switch naluType {
	case naluTypeSPS:
		d.sps = append([]byte(nil), nalu...)
	case naluTypePPS:
		d.pps = append([]byte(nil), nalu...)
	}
}

// emit stores nalu as the current SPS/PPS if applicable, but only hands a
// Frame to onFrame when marker is set: the RTP marker bit, not the NALU
// type, is what signals the end of an access unit (RFC 6184 §5.1), so a
// non-last single NALU (e.g. an AUD or SPS/PPS sent as its own packet)
// is remembered without being emitted on its own.
func (d *h264Depayloader) emit(nalu []byte, naluType byte, timestamp uint32, marker bool) {
	d.rememberParameterSet(naluType, nalu)
	if !marker {
		return
	}
	keyframe := naluType == naluTypeIFrame
	frame := d.withParameterSets(appendAnnexB(nil, nalu), keyframe)
	if d.onFrame != nil {
		d.onFrame(Frame{Payload: frame, Keyframe: keyframe, RTPTimestamp: timestamp})
	}
}

// withParameterSets prepends the stored SPS/PPS to a keyframe so it can be
// decoded without an earlier frame's in-band parameter sets.
func (d *h264Depayloader) withParameterSets(frame []byte, keyframe bool) []byte {
	if !keyframe || len(d.sps) == 0 || len(d.pps) == 0 {
		return frame
	}
	out := appendAnnexB(nil, d.sps)
	out = appendAnnexB(out, d.pps)
	return append(out, frame...)
}

func appendAnnexB(dst, nalu []byte) []byte {
	dst = append(dst, annexBStartCode...)
	return append(dst, nalu...)
}
