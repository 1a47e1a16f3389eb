package rtcp

import (
	"testing"
	"time"

	pionrtcp "github.com/pion/rtcp"
)

func TestWallClockTracker_TranslateAfterObserve(t *testing.T) {
	tr := NewWallClockTracker()

	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ntp := timeToNTP(ref)

	tr.Observe(&pionrtcp.SenderReport{SSRC: 42, NTPTime: ntp, RTPTime: 90000})

	got, ok := tr.Translate(42, 90000+90000, 90000) // one second later
	if !ok {
		t.Fatal("expected Translate to succeed after Observe")
	}
	want := ref.Add(time.Second)
	if diff := got.Sub(want); diff > time.Millisecond || diff < -time.Millisecond {
		t.Fatalf("Translate() = %v, want ~%v", got, want)
	}
}

func TestWallClockTracker_UnknownSSRC(t *testing.T) {
	tr := NewWallClockTracker()
	if _, ok := tr.Translate(1, 0, 90000); ok {
		t.Fatal("expected Translate to fail for an SSRC with no sender report")
	}
}

func timeToNTP(t time.Time) uint64 {
	seconds := uint64(t.Unix() + ntpEpochOffset)
	fraction := uint64(float64(t.Nanosecond()) / 1e9 * (1 << 32))
	return seconds<<32 | fraction
}
