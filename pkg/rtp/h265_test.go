package rtp

import (
	"bytes"
	"encoding/binary"
	"testing"

	pionrtp "github.com/pion/rtp"
)

func hevcNALHeader(naluType byte) []byte {
	return []byte{naluType << 1, 0x01}
}

func TestH265Depayloader_MarkerGatesSingleNALU(t *testing.T) {
	var frames []Frame
	d := NewH265Depayloader(nil, func(f Frame) { frames = append(frames, f) })

	vps := append(hevcNALHeader(hevcNALUTypeVPS), 0x01)
	d.Push(&pionrtp.Packet{Header: pionrtp.Header{SequenceNumber: 1, Timestamp: 1000}, Payload: vps})
	if len(frames) != 0 {
		t.Fatalf("got %d frames before marker, want 0", len(frames))
	}

	idr := append(hevcNALHeader(hevcNALUTypeIDRWRADL), 0x02)
	d.Push(&pionrtp.Packet{Header: pionrtp.Header{SequenceNumber: 2, Timestamp: 1000, Marker: true}, Payload: idr})
	if len(frames) != 1 {
		t.Fatalf("got %d frames after marker, want 1", len(frames))
	}
	if !frames[0].Keyframe {
		t.Fatal("expected keyframe")
	}
}

func TestH265Depayloader_FUReconstruction(t *testing.T) {
	var frames []Frame
	d := NewH265Depayloader(nil, func(f Frame) { frames = append(frames, f) })

	payload := make([]byte, 600)
	for i := range payload {
		payload[i] = byte(i)
	}
	nalHeader := hevcNALHeader(hevcNALUTypeIDRNLP)

	first := &pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 1, Timestamp: 500},
		Payload: append(append([]byte{}, nalHeader...), append([]byte{0x80 | hevcNALUTypeIDRNLP}, payload[:300]...)...),
	}
	last := &pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 2, Timestamp: 500, Marker: true},
		Payload: append(append([]byte{}, nalHeader...), append([]byte{0x40 | hevcNALUTypeIDRNLP}, payload[300:]...)...),
	}
	// Overwrite the NAL header's type field with the FU marker (49).
	first.Payload[0] = (first.Payload[0] &^ (0x3F << 1)) | (hevcNALUTypeFU << 1)
	last.Payload[0] = (last.Payload[0] &^ (0x3F << 1)) | (hevcNALUTypeFU << 1)

	d.Push(first)
	d.Push(last)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !frames[0].Keyframe {
		t.Fatal("expected keyframe")
	}
	wantNALU := append(append([]byte{}, nalHeader...), payload...)
	wantFrame := appendAnnexB(nil, wantNALU)
	if !bytes.Equal(frames[0].Payload, wantFrame) {
		t.Fatalf("reconstructed frame mismatch: got %d bytes, want %d bytes", len(frames[0].Payload), len(wantFrame))
	}
}

func TestH265Depayloader_DONLStrippedFromSingleNALU(t *testing.T) {
	var frames []Frame
	fmtp := map[string]string{"sprop-max-don-diff": "1"}
	d := NewH265Depayloader(fmtp, func(f Frame) { frames = append(frames, f) })

	nalHeader := hevcNALHeader(hevcNALUTypeIDRWRADL)
	donl := []byte{0x00, 0x07}
	body := []byte{0xAA, 0xBB}
	pkt := append(append(append([]byte{}, nalHeader...), donl...), body...)

	d.Push(&pionrtp.Packet{Header: pionrtp.Header{SequenceNumber: 1, Timestamp: 1, Marker: true}, Payload: pkt})

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	wantNALU := append(append([]byte{}, nalHeader...), body...)
	wantFrame := appendAnnexB(nil, wantNALU)
	if !bytes.Equal(frames[0].Payload, wantFrame) {
		t.Fatalf("DONL was not stripped: got %x, want %x", frames[0].Payload, wantFrame)
	}
}

func TestH265Depayloader_APWithDONLAndDOND(t *testing.T) {
	var frames []Frame
	fmtp := map[string]string{"sprop-max-don-diff": "1"}
	d := NewH265Depayloader(fmtp, func(f Frame) { frames = append(frames, f) })

	vps := append(append([]byte{}, hevcNALHeader(hevcNALUTypeVPS)...), 0x11)
	idr := append(append([]byte{}, hevcNALHeader(hevcNALUTypeIDRNLP)...), 0x22)

	var payload []byte
	payload = append(payload, hevcNALHeader(hevcNALUTypeAP)...)

	unit1 := append([]byte{0x00, 0x01}, vps...) // DONL (2 bytes)
	sizeBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(sizeBuf, uint16(len(unit1)))
	payload = append(payload, sizeBuf...)
	payload = append(payload, unit1...)

	unit2 := append([]byte{0x01}, idr...) // DOND (1 byte)
	binary.BigEndian.PutUint16(sizeBuf, uint16(len(unit2)))
	payload = append(payload, sizeBuf...)
	payload = append(payload, unit2...)

	d.Push(&pionrtp.Packet{Header: pionrtp.Header{SequenceNumber: 1, Timestamp: 1, Marker: true}, Payload: payload})

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !frames[0].Keyframe {
		t.Fatal("expected keyframe from the aggregated IDR")
	}
}

func TestH265Depayloader_EmptyPacketIsIgnored(t *testing.T) {
	called := false
	d := NewH265Depayloader(nil, func(f Frame) { called = true })
	d.Push(&pionrtp.Packet{Header: pionrtp.Header{SequenceNumber: 1}, Payload: nil})
	if called {
		t.Fatal("empty payload should not emit a frame")
	}
}
