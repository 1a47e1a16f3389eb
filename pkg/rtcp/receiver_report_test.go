package rtcp

import (
	"testing"
	"time"
)

func TestReceiverReportBuilder_RateLimited(t *testing.T) {
	b := NewReceiverReportBuilder(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.ObservePacket(7, 100, 90000, 90000, now)

	rr, ok := b.Build(0xAAAA, 7, now)
	if !ok || rr == nil {
		t.Fatal("expected the first Build call to be allowed")
	}
	if len(rr.Reports) != 1 || rr.Reports[0].SSRC != 7 {
		t.Fatalf("unexpected report blocks: %+v", rr.Reports)
	}

	if _, ok := b.Build(0xAAAA, 7, now.Add(time.Second)); ok {
		t.Fatal("expected the second Build call within the rate window to be denied")
	}
}

func TestReceiverReportBuilder_UnknownSSRC(t *testing.T) {
	b := NewReceiverReportBuilder(time.Second)
	if _, ok := b.Build(1, 999, time.Now()); ok {
		t.Fatal("expected Build to fail for an SSRC with no observed packets")
	}
}

func TestReceiverReportBuilder_SequenceWraparoundBumpsCycles(t *testing.T) {
	b := NewReceiverReportBuilder(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b.ObservePacket(1, 65534, 0, 8000, now)
	b.ObservePacket(1, 65535, 0, 8000, now)
	b.ObservePacket(1, 0, 0, 8000, now)

	rr, ok := b.Build(1, 1, now)
	if !ok {
		t.Fatal("expected Build to succeed")
	}
	ext := rr.Reports[0].LastSequenceNumber
	if ext>>16 != 1 {
		t.Fatalf("expected cycle count 1 after wraparound, got %d (ext=%#x)", ext>>16, ext)
	}
}
