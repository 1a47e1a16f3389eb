package rtp

import (
	"encoding/binary"
	"strconv"

	pionrtp "github.com/pion/rtp"
)

// H.265/HEVC NAL unit type values relevant to RTP depacketization
// (RFC 7798). The type occupies bits 1-6 of the first two-byte NAL header.
const (
	hevcNALUTypeIDRWRADL = 19
	hevcNALUTypeIDRNLP   = 20
	hevcNALUTypeVPS      = 32
	hevcNALUTypeSPS      = 33
	hevcNALUTypePPS      = 34
	hevcNALUTypeAP       = 48 // Aggregation Packet
	hevcNALUTypeFU       = 49 // Fragmentation Unit
)

type h265Depayloader struct {
	fragment []byte
	vps      []byte
	sps      []byte
	pps      []byte
	onFrame  FrameHandler
	seq      SequenceTracker

	// donlPresent mirrors sprop-max-don-diff > 0 (RFC 7798 §4.4, §7.4.2):
	// when set, single-NAL and the first-FU/first-AP-unit packets carry an
	// extra 2-byte DONL field, and later AP units carry a 1-byte DOND.
	// This client delivers NALUs in RTP arrival order rather than
	// reordering by decoding-order-number, so the fields are only parsed
	// to keep the reconstructed NALU bytes correct, not to resequence.
	donlPresent bool
}

// NewH265Depayloader builds a depayloader for the "H265" RTP encoding. When
// the SDP fmtp advertises sprop-max-don-diff > 0, DONL/DOND fields are
// expected on incoming packets and must be stripped before the NALU bytes
// are reassembled (RFC 7798 §4.4.2-§4.4.4).
func NewH265Depayloader(fmtp map[string]string, onFrame FrameHandler) Depayloader {
	d := &h265Depayloader{onFrame: onFrame}
	if raw, ok := fmtp["sprop-max-don-diff"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			d.donlPresent = true
		}
	}
	return d
}

func hevcNALUType(b0 byte) byte {
	return (b0 >> 1) & 0x3F
}

func (d *h265Depayloader) Push(pkt *pionrtp.Packet) {
	if d.seq.Gap(pkt.SequenceNumber) {
		d.Discontinuity()
	}
	d.seq.Observe(pkt.SequenceNumber)

	if len(pkt.Payload) < 2 {
		return
	}
	naluType := hevcNALUType(pkt.Payload[0])
	switch naluType {
	case hevcNALUTypeFU:
		d.pushFU(pkt)
	case hevcNALUTypeAP:
		d.pushAP(pkt)
	default:
		nalu := pkt.Payload
		if d.donlPresent {
			if len(nalu) < 4 {
				return
			}
			nalu = append(append([]byte(nil), nalu[:2]...), nalu[4:]...)
		}
		d.emit(nalu, naluType, pkt.Timestamp, pkt.Marker)
	}
}

func (d *h265Depayloader) Discontinuity() {
	d.fragment = nil
}

func (d *h265Depayloader) pushFU(pkt *pionrtp.Packet) {
	if len(pkt.Payload) < 3 {
		return
	}
	nalHeader := pkt.Payload[:2]
	fuHeader := pkt.Payload[2]
	payload := pkt.Payload[3:]

	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	fuType := fuHeader & 0x3F

	if start {
		d.fragment = d.fragment[:0]
		// Rebuild the two-byte NAL header with the real NAL unit type.
		b0 := (nalHeader[0] &^ (0x3F << 1)) | (fuType << 1)
		d.fragment = append(d.fragment, b0, nalHeader[1])
		if d.donlPresent {
			if len(payload) < 2 {
				return
			}
			payload = payload[2:] // strip the first-FU DONL field
		}
	}
	if d.fragment == nil {
		return
	}
	d.fragment = append(d.fragment, payload...)

	if end {
		d.emit(d.fragment, fuType, pkt.Timestamp, pkt.Marker)
		d.fragment = nil
	}
}

func (d *h265Depayloader) pushAP(pkt *pionrtp.Packet) {
	payload := pkt.Payload[2:] // skip the 2-byte aggregation NAL header
	var frame []byte
	sawKeyframe := false
	first := true

	for len(payload) > 2 {
		size := binary.BigEndian.Uint16(payload[:2])
		payload = payload[2:]
		if len(payload) < int(size) {
			return
		}
		nalu := payload[:size]
		payload = payload[size:]

		if d.donlPresent {
			donFieldLen := 1 // DOND on every unit after the first
			if first {
				donFieldLen = 2 // DONL on the first unit
			}
			if len(nalu) < donFieldLen {
				return
			}
			nalu = nalu[donFieldLen:]
		}
		first = false

		naluType := hevcNALUType(nalu[0])
		d.rememberParameterSet(naluType, nalu)
		if naluType == hevcNALUTypeIDRWRADL || naluType == hevcNALUTypeIDRNLP {
			sawKeyframe = true
		}
		frame = appendAnnexB(frame, nalu)
	}

	if len(frame) > 0 && d.onFrame != nil {
		d.onFrame(Frame{Payload: d.withParameterSets(frame, sawKeyframe), Keyframe: sawKeyframe, RTPTimestamp: pkt.Timestamp})
	}
}

func (d *h265Depayloader) rememberParameterSet(naluType byte, nalu []byte) {
	switch naluType {
	case hevcNALUTypeVPS:
		d.vps = append([]byte(nil), nalu...)
	case hevcNALUTypeSPS:
		d.sps = append([]byte(nil), nalu...)
	case hevcNALUTypePPS:
		d.pps = append([]byte(nil), nalu...)
	}
}

// emit remembers VPS/SPS/PPS unconditionally but only hands a Frame to
// onFrame when marker is set, since the RTP marker bit is what signals
// the end of an access unit (RFC 7798 §4.4.2), not the NALU type.
func (d *h265Depayloader) emit(nalu []byte, naluType byte, timestamp uint32, marker bool) {
	d.rememberParameterSet(naluType, nalu)
	if !marker {
		return
	}
	keyframe := naluType == hevcNALUTypeIDRWRADL || naluType == hevcNALUTypeIDRNLP
	frame := d.withParameterSets(appendAnnexB(nil, nalu), keyframe)
	if d.onFrame != nil {
		d.onFrame(Frame{Payload: frame, Keyframe: keyframe, RTPTimestamp: timestamp})
	}
}

func (d *h265Depayloader) withParameterSets(frame []byte, keyframe bool) []byte {
	if !keyframe || len(d.vps) == 0 || len(d.sps) == 0 || len(d.pps) == 0 {
		return frame
	}
	out := appendAnnexB(nil, d.vps)
	out = appendAnnexB(out, d.sps)
	out = appendAnnexB(out, d.pps)
	return append(out, frame...)
}
