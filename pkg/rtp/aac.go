package rtp

import (
	"encoding/binary"
	"strconv"

	pionrtp "github.com/pion/rtp"
)

// aacDepayloader reassembles RFC 3640 "AAC-hbr" packets (MPEG4-GENERIC
// encoding) into raw access units. Each RTP payload carries an
// AU-headers-length field, one or more fixed-width AU headers, and the
// concatenated AU data; multiple headers occur when several small AUs are
// aggregated into one packet (RFC 3640 §3.2.1).
type aacDepayloader struct {
	sizeLength int // bits per AU-header size field, from fmtp sizelength=
	onFrame    FrameHandler
	seq        SequenceTracker
}

// NewAACDepayloader builds a depayloader for the "MPEG4-GENERIC" RTP
// encoding. sizelength defaults to 13 (AAC-hbr, the mode every camera in
// the wild uses) when fmtp omits it.
func NewAACDepayloader(fmtp map[string]string, onFrame FrameHandler) Depayloader {
	sizeLength := 13
	if v, ok := fmtp["sizelength"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			sizeLength = n
		}
	}
	return &aacDepayloader{sizeLength: sizeLength, onFrame: onFrame}
}

func (d *aacDepayloader) Push(pkt *pionrtp.Packet) {
	if d.seq.Gap(pkt.SequenceNumber) {
		d.Discontinuity()
	}
	d.seq.Observe(pkt.SequenceNumber)

	payload := pkt.Payload
	if len(payload) < 2 {
		return
	}

	auHeadersLengthBits := binary.BigEndian.Uint16(payload[:2])
	auHeadersLengthBytes := int((auHeadersLengthBits + 7) / 8)
	if len(payload) < 2+auHeadersLengthBytes {
		return
	}

	auHeaders := payload[2 : 2+auHeadersLengthBytes]
	auData := payload[2+auHeadersLengthBytes:]

	headerBits := d.sizeLength + 3 // size field + 3-bit index/index-delta
	headerBytes := (headerBits + 7) / 8
	if headerBytes != 2 {
		// Only the common 16-bit AU-header (13-bit size + 3-bit index) is
		// supported; anything else falls through without emitting frames
		// rather than misparsing the bitstream.
		return
	}

	offset := 0
	for len(auHeaders) >= 2 {
		auSize := int(binary.BigEndian.Uint16(auHeaders[:2]) >> 3)
		auHeaders = auHeaders[2:]

		if offset+auSize > len(auData) || auSize <= 0 {
			break
		}
		frame := auData[offset : offset+auSize]
		offset += auSize

		if d.onFrame != nil {
			out := make([]byte, len(frame))
			copy(out, frame)
			d.onFrame(Frame{Payload: out, Keyframe: true, RTPTimestamp: pkt.Timestamp})
		}
	}
}

func (d *aacDepayloader) Discontinuity() {
	// AAC AU boundaries always align with RTP packet boundaries, so there
	// is no in-progress fragment to drop.
}
