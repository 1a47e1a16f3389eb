package rtsp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/ethan/rtspcam-client/pkg/logger"
)

// udpPortAllocator hands out even/odd UDP port pairs from a configured
// range, retrying on bind failure. It is shared across all
// tracks in a session so two tracks never race for the same pair.
type udpPortAllocator struct {
	mu   sync.Mutex
	next int
	low  int
	high int
}

func newUDPPortAllocator(low, high int) *udpPortAllocator {
	if low%2 != 0 {
		low++ // keep the RTP port of every pair even
	}
	return &udpPortAllocator{next: low, low: low, high: high}
}

// allocate binds a fresh even/odd UDP socket pair, retrying subsequent
// pairs in the range until one succeeds or the range is exhausted.
func (a *udpPortAllocator) allocate() (rtpConn, rtcpConn *net.UDPConn, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.next; port+1 <= a.high; port += 2 {
		rtp, errRTP := net.ListenUDP("udp", &net.UDPAddr{Port: port})
		if errRTP != nil {
			continue
		}
		rtcp, errRTCP := net.ListenUDP("udp", &net.UDPAddr{Port: port + 1})
		if errRTCP != nil {
			rtp.Close()
			continue
		}
		a.next = port + 2
		return rtp, rtcp, nil
	}
	return nil, nil, fmt.Errorf("%w: no free UDP port pair in %d-%d", ErrTransportUnreachable, a.low, a.high)
}

// udpTransport delivers RTP/RTCP over a dedicated pair of UDP sockets,
// either unicast to the camera's server_port pair or bound to a multicast
// group address.
type udpTransport struct {
	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn

	remoteRTPPort  int
	remoteRTCPPort int
	remoteHost     string

	multicast bool
	ttl       int

	sink PacketSink
	log  *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newUDPUnicastTransport(rtpConn, rtcpConn *net.UDPConn, remoteHost string, sink PacketSink, log *logger.Logger) *udpTransport {
	return &udpTransport{rtpConn: rtpConn, rtcpConn: rtcpConn, remoteHost: remoteHost, sink: sink, log: log}
}

func newUDPMulticastTransport(rtpConn, rtcpConn *net.UDPConn, groupHost string, ttl int, sink PacketSink, log *logger.Logger) *udpTransport {
	return &udpTransport{
		rtpConn: rtpConn, rtcpConn: rtcpConn, remoteHost: groupHost,
		multicast: true, ttl: ttl, sink: sink, log: log,
	}
}

func (t *udpTransport) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(2)
	go t.readLoop(runCtx, t.rtpConn, t.sink.OnRTP, "rtp")
	go t.readLoop(runCtx, t.rtcpConn, t.sink.OnRTCP, "rtcp")
	return nil
}

func (t *udpTransport) readLoop(ctx context.Context, conn *net.UDPConn, onPacket func([]byte), kind string) {
	defer t.wg.Done()
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if t.log != nil {
				t.log.DebugTransport("udp read error", "kind", kind, "error", err)
			}
			return
		}
		if onPacket != nil {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			onPacket(payload)
		}
	}
}

func (t *udpTransport) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	t.rtpConn.Close()
	t.rtcpConn.Close()
	t.wg.Wait()
	return nil
}

func (t *udpTransport) WriteRTCP(payload []byte) error {
	addr := &net.UDPAddr{IP: net.ParseIP(t.remoteHost), Port: t.remoteRTCPPort}
	_, err := t.rtcpConn.WriteToUDP(payload, addr)
	return err
}

func (t *udpTransport) RequestHeader() string {
	localRTP := t.rtpConn.LocalAddr().(*net.UDPAddr).Port
	localRTCP := t.rtcpConn.LocalAddr().(*net.UDPAddr).Port
	if t.multicast {
		return fmt.Sprintf("RTP/AVP;multicast;port=%d-%d", localRTP, localRTCP)
	}
	return fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d", localRTP, localRTCP)
}

func (t *udpTransport) ApplyServerParams(params map[string]string) error {
	key := "server_port"
	if t.multicast {
		key = "port"
	}
	rng, ok := params[key]
	if !ok {
		// Some servers omit server_port on multicast SETUP responses since
		// the client and server already share the negotiated group port.
		if t.multicast {
			return nil
		}
		return errTransportParamMissing(key)
	}
	lo, _, found := strings.Cut(rng, "-")
	if !found {
		lo = rng
	}
	port, err := strconv.Atoi(lo)
	if err != nil {
		return fmt.Errorf("%w: non-numeric %s %q", ErrProtocolViolation, key, rng)
	}
	t.remoteRTPPort = port
	t.remoteRTCPPort = port + 1
	if src, ok := params["source"]; ok && src != "" {
		t.remoteHost = src
	}
	return nil
}
