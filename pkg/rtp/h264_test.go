package rtp

import (
	"bytes"
	"testing"

	pionrtp "github.com/pion/rtp"
)

func TestH264Depayloader_FUAReconstruction(t *testing.T) {
	var frames []Frame
	d := NewH264Depayloader(nil, func(f Frame) { frames = append(frames, f) })

	payload := make([]byte, 2000)
	for i := range payload {
		payload[i] = byte(i)
	}
	// naluType 5 (IDR), fuIndicator nal_ref_idc bits arbitrary (0x60 | type).
	const naluType = naluTypeIFrame
	const fuIndicator = 0x60 | naluType

	first := &pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 1, Timestamp: 1000},
		Payload: append([]byte{fuIndicator, 0x80 | naluType}, payload[:800]...),
	}
	mid := &pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 2, Timestamp: 1000},
		Payload: append([]byte{fuIndicator, naluType}, payload[800:1600]...),
	}
	last := &pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 3, Timestamp: 1000, Marker: true},
		Payload: append([]byte{fuIndicator, 0x40 | naluType}, payload[1600:]...),
	}

	d.Push(first)
	d.Push(mid)
	d.Push(last)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	f := frames[0]
	if !f.Keyframe {
		t.Fatal("expected keyframe")
	}

	// The rebuilt NAL header keeps F/NRI from the FU indicator and takes
	// the type from the FU header (RFC 6184 §5.8).
	wantNALU := append([]byte{(fuIndicator & 0xE0) | naluType}, payload...)
	wantFrame := appendAnnexB(nil, wantNALU)
	if !bytes.Equal(f.Payload, wantFrame) {
		t.Fatalf("reconstructed frame mismatch: got %d bytes, want %d bytes", len(f.Payload), len(wantFrame))
	}
}

func TestH264Depayloader_EmptyPacketIsIgnored(t *testing.T) {
	called := false
	d := NewH264Depayloader(nil, func(f Frame) { called = true })
	d.Push(&pionrtp.Packet{Header: pionrtp.Header{SequenceNumber: 1}, Payload: nil})
	if called {
		t.Fatal("empty payload should not emit a frame")
	}
}

func TestH264Depayloader_DiscontinuityDropsPartialFragment(t *testing.T) {
	var frames []Frame
	d := NewH264Depayloader(nil, func(f Frame) { frames = append(frames, f) })

	const naluType = naluTypePFrame
	const fuIndicator = 0x60 | naluType

	d.Push(&pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 1, Timestamp: 1},
		Payload: []byte{fuIndicator, 0x80 | naluType, 0x01, 0x02},
	})
	// Sequence jumps, simulating a dropped packet; the depayloader must
	// not stitch the old fragment to a FU-A continuation.
	d.Push(&pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 5, Timestamp: 2, Marker: true},
		Payload: []byte{fuIndicator, 0x40 | naluType, 0x03, 0x04},
	})

	if len(frames) != 0 {
		t.Fatalf("expected the stitched-but-discontinuous fragment to be dropped, got %d frames", len(frames))
	}
}

func TestH264Depayloader_MarkerGatesSingleNALU(t *testing.T) {
	var frames []Frame
	d := NewH264Depayloader(nil, func(f Frame) { frames = append(frames, f) })

	// An AUD sent as its own packet, marker unset: must not emit on its own.
	d.Push(&pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 1, Timestamp: 1000},
		Payload: []byte{naluTypeAUD, 0x10},
	})
	if len(frames) != 0 {
		t.Fatalf("got %d frames before marker, want 0", len(frames))
	}

	// The IDR that ends the access unit, marker set: now it emits once.
	d.Push(&pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 2, Timestamp: 1000, Marker: true},
		Payload: []byte{naluTypeIFrame, 0x20},
	})
	if len(frames) != 1 {
		t.Fatalf("got %d frames after marker, want 1", len(frames))
	}
	if !frames[0].Keyframe {
		t.Fatal("expected keyframe")
	}
}

func TestH264Depayloader_SpropParameterSetsSeeding(t *testing.T) {
	var frames []Frame
	// A single-byte SPS/PPS encoded as base64 for the purpose of this test;
	// real SPS/PPS are larger, but seeding only cares about byte transport.
	fmtp := map[string]string{
		"sprop-parameter-sets": "Jw==,KA==", // 0x27, 0x28
	}
	d := NewH264Depayloader(fmtp, func(f Frame) { frames = append(frames, f) })

	d.Push(&pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 1, Timestamp: 1, Marker: true},
		Payload: []byte{naluTypeIFrame},
	})

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !frames[0].Keyframe {
		t.Fatal("expected keyframe")
	}
	// SPS + PPS + the IDR nalu itself, each with its own Annex B start code.
	wantLen := len(annexBStartCode)*3 + 1 + 1 + 1
	if len(frames[0].Payload) != wantLen {
		t.Fatalf("frame length = %d, want %d", len(frames[0].Payload), wantLen)
	}
}
