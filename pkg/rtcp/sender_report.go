// Package rtcp folds RTCP sender reports into wall-clock timestamps and
// builds outgoing receiver reports, leaving wire parsing itself to
// github.com/pion/rtcp.
package rtcp

import (
	"sync"
	"time"

	pionrtcp "github.com/pion/rtcp"
)

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01), per RFC 5905 §6.
const ntpEpochOffset = 2208988800

// reference pairs one SSRC's most recent sender report timestamp pair.
type reference struct {
	ntp  time.Time
	rtp  uint32
}

// WallClockTracker translates per-track RTP timestamps into wall-clock
// time using the NTP/RTP timestamp pairs carried by RTCP sender reports
// (RFC 3550 §6.4.1). One tracker is shared by every track
// that reports against the same clock domain; callers key lookups by SSRC.
type WallClockTracker struct {
	mu   sync.Mutex
	refs map[uint32]reference
}

// NewWallClockTracker returns an empty tracker.
func NewWallClockTracker() *WallClockTracker {
	return &WallClockTracker{refs: make(map[uint32]reference)}
}

// Observe records the NTP/RTP timestamp pair from a sender report.
func (t *WallClockTracker) Observe(sr *pionrtcp.SenderReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs[sr.SSRC] = reference{ntp: ntpToTime(sr.NTPTime), rtp: sr.RTPTime}
}

// Translate converts rtpTimestamp to wall-clock time for ssrc, given the
// track's clock rate. It reports false until at least one sender report
// has been observed for that SSRC.
func (t *WallClockTracker) Translate(ssrc uint32, rtpTimestamp uint32, clockRate int) (time.Time, bool) {
	t.mu.Lock()
	ref, ok := t.refs[ssrc]
	t.mu.Unlock()
	if !ok || clockRate <= 0 {
		return time.Time{}, false
	}

	// Signed delta in RTP ticks, so timestamps before the reference point
	// (possible right after a sender report with reordered packets) still
	// translate correctly.
	delta := int64(int32(rtpTimestamp - ref.rtp))
	offset := time.Duration(delta) * time.Second / time.Duration(clockRate)
	return ref.ntp.Add(offset), true
}

// ntpToTime converts a 64-bit NTP timestamp (32.32 fixed point seconds
// since 1900) to a time.Time.
func ntpToTime(ntp uint64) time.Time {
	seconds := ntp >> 32
	fraction := ntp & 0xFFFFFFFF
	unixSeconds := int64(seconds) - ntpEpochOffset
	nanos := int64(float64(fraction) / (1 << 32) * 1e9)
	return time.Unix(unixSeconds, nanos).UTC()
}
