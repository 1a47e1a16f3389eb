package rtp

import (
	"encoding/binary"

	pionrtp "github.com/pion/rtp"
)

// jpegDepayloader reassembles RFC 2435 JPEG/RTP fragments into a
// standalone JFIF image: the RTP payload strips quantization and Huffman
// tables from every scan, so this depayloader reinserts them before
// handing the frame to the embedder. Every JPEG frame is a keyframe.
type jpegDepayloader struct {
	frame       []byte
	haveHeader  bool
	width       int
	height      int
	qTables     []byte
	onFrame     FrameHandler
	seq         SequenceTracker
}

// NewJPEGDepayloader builds a depayloader for the "JPEG" RTP encoding
// (static payload type 26).
func NewJPEGDepayloader(onFrame FrameHandler) Depayloader {
	return &jpegDepayloader{onFrame: onFrame}
}

func (d *jpegDepayloader) Push(pkt *pionrtp.Packet) {
	if d.seq.Gap(pkt.SequenceNumber) {
		d.Discontinuity()
	}
	d.seq.Observe(pkt.SequenceNumber)

	if len(pkt.Payload) < 8 {
		return
	}
	p := pkt.Payload

	fragmentOffset := int(p[1])<<16 | int(p[2])<<8 | int(p[3])
	typ := p[4]
	q := p[5]
	width := int(p[6]) * 8
	height := int(p[7]) * 8
	rest := p[8:]

	if typ >= 64 {
		// Restart marker header present; not reconstructed here, but still
		// skipped so scan data offsets stay correct.
		if len(rest) < 4 {
			return
		}
		rest = rest[4:]
	}

	if fragmentOffset == 0 {
		d.frame = d.frame[:0]
		d.width = width
		d.height = height

		if q >= 128 {
			if len(rest) < 4 {
				return
			}
			tableLen := int(binary.BigEndian.Uint16(rest[2:4]))
			if len(rest) < 4+tableLen {
				return
			}
			d.qTables = append([]byte(nil), rest[4:4+tableLen]...)
			rest = rest[4+tableLen:]
		} else {
			d.qTables = defaultJPEGQuantTables(q)
		}

		d.frame = append(d.frame, jpegJFIFHeader(width, height, d.qTables)...)
		d.haveHeader = true
	}

	if !d.haveHeader {
		return
	}
	d.frame = append(d.frame, rest...)

	if pkt.Marker {
		d.frame = append(d.frame, 0xFF, 0xD9) // EOI
		if d.onFrame != nil {
			out := make([]byte, len(d.frame))
			copy(out, d.frame)
			d.onFrame(Frame{Payload: out, Keyframe: true, RTPTimestamp: pkt.Timestamp})
		}
		d.frame = d.frame[:0]
		d.haveHeader = false
	}
}

func (d *jpegDepayloader) Discontinuity() {
	d.frame = d.frame[:0]
	d.haveHeader = false
}

// jpegJFIFHeader builds the SOI/DHT/DQT/SOF0/SOS segments RFC 2435
// omits from the RTP payload (no APP0 segment is written), using the fixed baseline Huffman tables
// every RFC 2435 sender assumes (Annex K.3 of ITU-T T.81).
func jpegJFIFHeader(width, height int, qTables []byte) []byte {
	var b []byte
	b = append(b, 0xFF, 0xD8) // SOI
	b = append(b, jpegDefaultHuffmanTables()...)
	b = append(b, jpegQuantTableSegments(qTables)...)
	b = append(b, jpegSOF0(width, height)...)
	b = append(b, jpegSOS()...)
	return b
}

func jpegSOF0(width, height int) []byte {
	seg := []byte{
		0xFF, 0xC0, 0x00, 0x11, 0x08,
		byte(height >> 8), byte(height),
		byte(width >> 8), byte(width),
		0x03,
		0x01, 0x21, 0x00,
		0x02, 0x11, 0x01,
		0x03, 0x11, 0x01,
	}
	return seg
}

func jpegSOS() []byte {
	return []byte{
		0xFF, 0xDA, 0x00, 0x0C, 0x03,
		0x01, 0x00,
		0x02, 0x11,
		0x03, 0x11,
		0x00, 0x3F, 0x00,
	}
}

func jpegQuantTableSegments(tables []byte) []byte {
	if len(tables) < 128 {
		return nil
	}
	var b []byte
	b = append(b, 0xFF, 0xDB, 0x00, 0x43, 0x00)
	b = append(b, tables[:64]...)
	b = append(b, 0xFF, 0xDB, 0x00, 0x43, 0x01)
	b = append(b, tables[64:128]...)
	return b
}

// defaultJPEGQuantTables synthesizes the RFC 2435 §4.2 scaled quantization
// tables for a given quality factor when the sender didn't transmit its
// own (q < 128); quality is clamped and scaled per ITU-T T.81 Annex K.
func defaultJPEGQuantTables(q byte) []byte {
	scale := 100
	if q < 50 {
		if q < 1 {
			q = 1
		}
		scale = 5000 / int(q)
	} else {
		scale = 200 - int(q)*2
	}

	out := make([]byte, 128)
	for i := 0; i < 64; i++ {
		v := (int(jpegLumaQuantTable[i])*scale + 50) / 100
		out[i] = clampQuant(v)
	}
	for i := 0; i < 64; i++ {
		v := (int(jpegChromaQuantTable[i])*scale + 50) / 100
		out[64+i] = clampQuant(v)
	}
	return out
}

func clampQuant(v int) byte {
	if v < 1 {
		return 1
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

var jpegLumaQuantTable = [64]byte{
	16, 11, 10, 16, 24, 40, 51, 61,
	12, 12, 14, 19, 26, 58, 60, 55,
	14, 13, 16, 24, 40, 57, 69, 56,
	14, 17, 22, 29, 51, 87, 80, 62,
	18, 22, 37, 56, 68, 109, 103, 77,
	24, 35, 55, 64, 81, 104, 113, 92,
	49, 64, 78, 87, 103, 121, 120, 101,
	72, 92, 95, 98, 112, 100, 103, 99,
}

var jpegChromaQuantTable = [64]byte{
	17, 18, 24, 47, 99, 99, 99, 99,
	18, 21, 26, 66, 99, 99, 99, 99,
	24, 26, 56, 99, 99, 99, 99, 99,
	47, 66, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
}

// jpegDefaultHuffmanTables returns the four standard Huffman tables from
// ITU-T T.81 Annex K.3, which RFC 2435 senders never transmit since every
// decoder is expected to already have them.
func jpegDefaultHuffmanTables() []byte {
	return []byte{
		0xFF, 0xC4, 0x01, 0xA2,
		0x00, 0x00, 0x01, 0x05, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B,
		0x10, 0x00, 0x02, 0x01, 0x03, 0x03, 0x02, 0x04, 0x03, 0x05, 0x05, 0x04, 0x04, 0x00, 0x00, 0x01, 0x7D,
		0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12, 0x21, 0x31, 0x41, 0x06, 0x13, 0x51, 0x61, 0x07,
		0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xA1, 0x08, 0x23, 0x42, 0xB1, 0xC1, 0x15, 0x52, 0xD1, 0xF0,
		0x24, 0x33, 0x62, 0x72, 0x82, 0x09, 0x0A, 0x16, 0x17, 0x18, 0x19, 0x1A, 0x25, 0x26, 0x27, 0x28,
		0x29, 0x2A, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3A, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49,
		0x4A, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5A, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69,
		0x6A, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7A, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
		0x8A, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9A, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6, 0xA7,
		0xA8, 0xA9, 0xAA, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7, 0xB8, 0xB9, 0xBA, 0xC2, 0xC3, 0xC4, 0xC5,
		0xC6, 0xC7, 0xC8, 0xC9, 0xCA, 0xD2, 0xD3, 0xD4, 0xD5, 0xD6, 0xD7, 0xD8, 0xD9, 0xDA, 0xE1, 0xE2,
		0xE3, 0xE4, 0xE5, 0xE6, 0xE7, 0xE8, 0xE9, 0xEA, 0xF1, 0xF2, 0xF3, 0xF4, 0xF5, 0xF6, 0xF7, 0xF8,
		0xF9, 0xFA,
		0x01, 0x01, 0x00, 0x03, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B,
		0x11, 0x00, 0x02, 0x01, 0x02, 0x04, 0x04, 0x03, 0x04, 0x07, 0x05, 0x04, 0x04, 0x00, 0x01, 0x02, 0x77,
		0x00, 0x01, 0x02, 0x03, 0x11, 0x04, 0x05, 0x21, 0x31, 0x06, 0x12, 0x41, 0x51, 0x07, 0x61, 0x71,
		0x13, 0x22, 0x32, 0x81, 0x08, 0x14, 0x42, 0x91, 0xA1, 0xB1, 0xC1, 0x09, 0x23, 0x33, 0x52, 0xF0,
		0x15, 0x62, 0x72, 0xD1, 0x0A, 0x16, 0x24, 0x34, 0xE1, 0x25, 0xF1, 0x17, 0x18, 0x19, 0x1A, 0x26,
		0x27, 0x28, 0x29, 0x2A, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3A, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48,
		0x49, 0x4A, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5A, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68,
		0x69, 0x6A, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7A, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87,
		0x88, 0x89, 0x8A, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9A, 0xA2, 0xA3, 0xA4, 0xA5,
		0xA6, 0xA7, 0xA8, 0xA9, 0xAA, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7, 0xB8, 0xB9, 0xBA, 0xC2, 0xC3,
		0xC4, 0xC5, 0xC6, 0xC7, 0xC8, 0xC9, 0xCA, 0xD2, 0xD3, 0xD4, 0xD5, 0xD6, 0xD7, 0xD8, 0xD9, 0xDA,
		0xE2, 0xE3, 0xE4, 0xE5, 0xE6, 0xE7, 0xE8, 0xE9, 0xEA, 0xF2, 0xF3, 0xF4, 0xF5, 0xF6, 0xF7, 0xF8,
		0xF9, 0xFA,
	}
}
