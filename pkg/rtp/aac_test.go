package rtp

import (
	"bytes"
	"encoding/binary"
	"testing"

	pionrtp "github.com/pion/rtp"
)

func buildAACPacket(aus ...[]byte) []byte {
	headerBits := uint16(len(aus) * 16)
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, headerBits)

	for _, au := range aus {
		header := make([]byte, 2)
		binary.BigEndian.PutUint16(header, uint16(len(au))<<3)
		payload = append(payload, header...)
	}
	for _, au := range aus {
		payload = append(payload, au...)
	}
	return payload
}

func TestAACDepayloader_SingleAU(t *testing.T) {
	var frames []Frame
	d := NewAACDepayloader(nil, func(f Frame) { frames = append(frames, f) })

	au := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	d.Push(&pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 1, Timestamp: 1024},
		Payload: buildAACPacket(au),
	})

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0].Payload, au) {
		t.Fatalf("frame = %x, want %x", frames[0].Payload, au)
	}
	if frames[0].RTPTimestamp != 1024 {
		t.Fatalf("RTPTimestamp = %d, want 1024", frames[0].RTPTimestamp)
	}
}

func TestAACDepayloader_AggregatedAUs(t *testing.T) {
	var frames []Frame
	d := NewAACDepayloader(nil, func(f Frame) { frames = append(frames, f) })

	au1 := []byte{0x01, 0x02}
	au2 := []byte{0x03, 0x04, 0x05}
	d.Push(&pionrtp.Packet{
		Header:  pionrtp.Header{SequenceNumber: 1, Timestamp: 2048},
		Payload: buildAACPacket(au1, au2),
	})

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0].Payload, au1) || !bytes.Equal(frames[1].Payload, au2) {
		t.Fatalf("frames = %x, %x", frames[0].Payload, frames[1].Payload)
	}
}

func TestAACDepayloader_ShortPacketIgnored(t *testing.T) {
	called := false
	d := NewAACDepayloader(nil, func(f Frame) { called = true })
	d.Push(&pionrtp.Packet{Header: pionrtp.Header{SequenceNumber: 1}, Payload: []byte{0x00}})
	if called {
		t.Fatal("a packet shorter than the AU-headers-length field should not emit a frame")
	}
}
