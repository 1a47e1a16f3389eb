package rtcp

import (
	"sync"
	"time"

	pionrtcp "github.com/pion/rtcp"
	"golang.org/x/time/rate"
)

// streamStats accumulates the per-SSRC counters RFC 3550 §6.4.1 folds
// into a receiver report block: extended highest sequence number,
// cumulative loss, and interarrival jitter.
type streamStats struct {
	haveBase      bool
	baseSeq       uint16
	highestSeq    uint16
	cycles        uint32
	packetsSeen   uint64
	lastTransit   int64
	jitter        float64
	lastSRNTP     uint64
	lastSRRecvdAt time.Time
}

// ReceiverReportBuilder tracks reception statistics per SSRC and builds
// RTCP receiver reports at a bounded rate, so a session with many tracks
// never floods the server faster than RFC 3550's session-bandwidth
// guidance allows.
type ReceiverReportBuilder struct {
	mu      sync.Mutex
	stats   map[uint32]*streamStats
	limiter *rate.Limiter
}

// NewReceiverReportBuilder returns a builder that permits at most one
// receiver report every minInterval, bursting up to 1 so the very first
// report is never delayed. The limit is shared by every SSRC: a report
// built for one track uses up the allowance for all of them.
func NewReceiverReportBuilder(minInterval time.Duration) *ReceiverReportBuilder {
	return &ReceiverReportBuilder{
		stats:   make(map[uint32]*streamStats),
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// ObservePacket folds one received RTP packet into ssrc's running stats.
// arrival is the local receive time used for the jitter estimate.
func (b *ReceiverReportBuilder) ObservePacket(ssrc uint32, seq uint16, rtpTimestamp uint32, clockRate int, arrival time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.stats[ssrc]
	if !ok {
		s = &streamStats{}
		b.stats[ssrc] = s
	}

	if !s.haveBase {
		s.haveBase = true
		s.baseSeq = seq
		s.highestSeq = seq
	} else if int16(seq-s.highestSeq) > 0 {
		if seq < s.highestSeq {
			s.cycles++
		}
		s.highestSeq = seq
	}
	s.packetsSeen++

	if clockRate > 0 {
		arrivalRTP := int64(arrival.Unix())*int64(clockRate) + int64(arrival.Nanosecond())*int64(clockRate)/1e9
		transit := arrivalRTP - int64(rtpTimestamp)
		if s.lastTransit != 0 {
			d := float64(transit - s.lastTransit)
			if d < 0 {
				d = -d
			}
			s.jitter += (d - s.jitter) / 16
		}
		s.lastTransit = transit
	}
}

// ObserveSenderReport records the NTP timestamp of the most recent sender
// report, used to fill in LSR (last SR) on the next receiver report.
func (b *ReceiverReportBuilder) ObserveSenderReport(ssrc uint32, sr *pionrtcp.SenderReport, receivedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stats[ssrc]
	if !ok {
		s = &streamStats{}
		b.stats[ssrc] = s
	}
	s.lastSRNTP = sr.NTPTime
	s.lastSRRecvdAt = receivedAt
}

// Build returns a receiver report for ssrc if the rate limiter currently
// allows one, or (nil, false) if the caller should wait.
func (b *ReceiverReportBuilder) Build(reporterSSRC, ssrc uint32, now time.Time) (*pionrtcp.ReceiverReport, bool) {
	if !b.limiter.AllowN(now, 1) {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stats[ssrc]
	if !ok {
		return nil, false
	}

	var lsr, dlsr uint32
	if !s.lastSRRecvdAt.IsZero() {
		lsr = uint32(s.lastSRNTP >> 16)
		dlsr = uint32(now.Sub(s.lastSRRecvdAt).Seconds() * 65536)
	}

	block := pionrtcp.ReceptionReport{
		SSRC:               ssrc,
		LastSequenceNumber: uint32(s.cycles)<<16 | uint32(s.highestSeq),
		Jitter:             uint32(s.jitter),
		LastSenderReport:   lsr,
		Delay:              dlsr,
	}

	return &pionrtcp.ReceiverReport{
		SSRC:    reporterSSRC,
		Reports: []pionrtcp.ReceptionReport{block},
	}, true
}
