package rtsp

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	pionrtcp "github.com/pion/rtcp"
	pionrtp "github.com/pion/rtp"

	"github.com/ethan/rtspcam-client/pkg/config"
	"github.com/ethan/rtspcam-client/pkg/logger"
	"github.com/ethan/rtspcam-client/pkg/rtcp"
	"github.com/ethan/rtspcam-client/pkg/rtp"
	"github.com/ethan/rtspcam-client/pkg/sdp"
)

// Client drives one RTSP session end-to-end: the OPTIONS/DESCRIBE/SETUP/
// PLAY handshake, keepalive, re-authentication, and per-track RTP/RTCP
// delivery. Construct with New, subscribe the On* callbacks,
// then call Connect.
type Client struct {
	cfg *config.ClientConfig
	log *logger.Logger

	requestURL *url.URL

	auth      *Authenticator
	conn      net.Conn
	listener  *Listener
	portAlloc *udpPortAllocator

	wallclock *rtcp.WallClockTracker
	rr        *rtcp.ReceiverReportBuilder

	mu      sync.Mutex
	session *sessionState

	keepaliveCancel context.CancelFunc
	readCancel      context.CancelFunc
	closeOnce       sync.Once

	retriedMu sync.Mutex
	retried   map[*Request]bool

	// OnNewVideoStream/OnNewAudioStream fire once per negotiated track,
	// right after its SETUP response is applied. config carries the
	// track's fmtp parameters (e.g. sprop-parameter-sets for H.264), since
	// this client hands depayloaded frames to the embedder rather than
	// decoding configuration strings itself.
	OnNewVideoStream func(codecName string, config map[string]string)
	OnNewAudioStream func(codecName string, config map[string]string)

	// OnVideoData/OnAudioData deliver one assembled access unit each.
	// wallclock is the zero Time until the first sender report for that
	// track's SSRC has been observed.
	OnVideoData func(frame []byte, wallclock time.Time)
	OnAudioData func(frame []byte, wallclock time.Time)

	// OnSetupComplete fires once every queued SETUP has a 2xx response.
	OnSetupComplete func()

	// OnStreamingFinished fires when the session reaches a terminal state,
	// whether by Stop or by unrecoverable connection/auth failure. err is
	// nil on a clean Stop.
	OnStreamingFinished func(err error)

	// TLSDial, if set, is used to establish the connection for an
	// rtsps:// URL. This module does not perform the TLS handshake
	// itself; an embedder that needs rtsps://
	// supplies a net.Conn factory, e.g. backed by crypto/tls.
	TLSDial func(network, address string) (net.Conn, error)
}

// New constructs a Client for cfg. Call Connect to begin the handshake.
func New(cfg *config.ClientConfig, log *logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	cl := &Client{
		cfg:        cfg,
		log:        log,
		requestURL: u,
		auth:       NewAuthenticator(cfg.Username, cfg.Password),
		portAlloc:  newUDPPortAllocator(cfg.UDPPortRangeStart, cfg.UDPPortRangeEnd),
		wallclock:  rtcp.NewWallClockTracker(),
		rr:         rtcp.NewReceiverReportBuilder(5 * time.Second),
		session:    newSessionState(),
		retried:    make(map[*Request]bool),
	}
	cl.session.playbackSession = cfg.PlaybackSession
	return cl, nil
}

// Status returns the client's current position in the handshake state
// machine.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.status
}

// Connect begins the handshake on a background goroutine and returns
// immediately. Failures surface through OnStreamingFinished rather than a
// return value.
func (c *Client) Connect() {
	go c.runHandshake()
}

func (c *Client) runHandshake() {
	c.setStatus(StatusConnecting)

	if err := c.dial(); err != nil {
		c.setStatus(StatusConnectFailed)
		c.finish(fmt.Errorf("%w: %v", ErrTransportUnreachable, err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.readCancel = cancel
	go c.listener.Run(ctx) //nolint:errcheck // surfaced to the embedder via OnStreamingFinished on the next request

	if err := c.handshake(); err != nil {
		c.finish(err)
		return
	}
}

func (c *Client) dial() error {
	host := c.requestURL.Host
	if c.requestURL.Port() == "" {
		host = net.JoinHostPort(c.requestURL.Hostname(), "554")
	}

	var conn net.Conn
	var err error
	switch c.requestURL.Scheme {
	case "rtsp", "rtspt":
		conn, err = net.DialTimeout("tcp", host, c.cfg.IOTimeout)
	case "rtsps":
		if c.TLSDial == nil {
			return fmt.Errorf("rtsps:// requires TLSDial to be set; this module does not perform the TLS handshake itself")
		}
		conn, err = c.TLSDial("tcp", host)
	case "http":
		conn, err = newHTTPTunnelConn(c.requestURL, c.cfg.IOTimeout)
	default:
		return fmt.Errorf("unsupported scheme %q", c.requestURL.Scheme)
	}
	if err != nil {
		return err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true) //nolint:errcheck
	}

	c.conn = conn
	c.listener = NewListener(conn, c.log, c.onData)
	return nil
}

// onData fans an interleaved frame out to whichever track claims its
// channel number. Only TCP-transported tracks register here.
func (c *Client) onData(d Data) {
	c.mu.Lock()
	tracks := append([]*track(nil), c.session.tracks...)
	c.mu.Unlock()

	for _, t := range tracks {
		if t.tcp != nil {
			t.tcp.dispatch(d)
		}
	}
}

// handshake runs OPTIONS, DESCRIBE, and the SETUP FIFO synchronously on
// the goroutine Connect spawned.
func (c *Client) handshake() error {
	c.setStatus(StatusOptionsSent)
	optResp, err := c.sendUserRequest(MethodOptions, AllURIs)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.session.supportsGetParam = strings.Contains(optResp.Header.Get("Public"), "GET_PARAMETER")
	c.mu.Unlock()
	c.startKeepalive()

	c.setStatus(StatusDescribing)
	descResp, err := c.describe()
	if err != nil {
		return err
	}

	if err := c.selectTracksAndBuildTransports(descResp); err != nil {
		return err
	}

	c.setStatus(StatusSettingUp)
	if err := c.runSetupFIFO(); err != nil {
		return err
	}

	if c.OnSetupComplete != nil {
		c.OnSetupComplete()
	}
	c.setStatus(StatusPaused)
	return nil
}

func (c *Client) describe() (*Response, error) {
	req := NewRequest(MethodDescribe, c.requestURL.String())
	req.Header.Set("Accept", "application/sdp")
	resp, err := c.sendUserRequestMsg(req)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: DESCRIBE returned %d", ErrProtocolViolation, resp.StatusCode)
	}

	base := c.requestURL.String()
	if cb := resp.Header.Get("Content-Base"); cb != "" {
		base = cb
	} else if loc := resp.Header.Get("Content-Location"); loc != "" {
		base = loc
	}
	c.mu.Lock()
	c.session.baseURL = base
	c.mu.Unlock()

	return resp, nil
}

// selectTracksAndBuildTransports parses the DESCRIBE body and picks the
// first video and first audio media section with a known depayloader,
// resolving control URIs and queuing a SETUP request for each.
func (c *Client) selectTracksAndBuildTransports(descResp *Response) error {
	desc, err := sdp.Parse(descResp.Body, sdp.ParseOptions{Strict: c.cfg.StrictSDP})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	c.mu.Lock()
	base := c.session.baseURL
	if desc.Control != "" && desc.Control != "*" {
		if resolved, err := sdp.ResolveControlURL(base, desc.Control); err == nil {
			base = resolved
			c.session.baseURL = base
		}
	}
	c.mu.Unlock()

	wantVideo := c.cfg.Media&config.MediaVideo != 0
	wantAudio := c.cfg.Media&config.MediaAudio != 0
	var videoPicked, audioPicked bool

	for _, m := range desc.Media {
		kind, ok := classifyMedia(m.Kind)
		if !ok {
			continue
		}
		if (kind == MediaVideo && (!wantVideo || videoPicked)) || (kind == MediaAudio && (!wantAudio || audioPicked)) {
			continue
		}

		pt, rm, fmtp, ok := pickPayloadType(m)
		if !ok {
			continue
		}
		if rtp.NewForEncoding(rm.EncodingName, rm.ClockRate, fmtp, func(rtp.Frame) {}) == nil {
			continue // no depayloader for this encoding; try the next section
		}

		controlURL, err := sdp.ResolveControlURL(base, m.Control)
		if err != nil {
			continue
		}

		t := &track{
			kind:        kind,
			controlURL:  controlURL,
			payloadType: pt,
			encoding:    rm.EncodingName,
			clockRate:   rm.ClockRate,
			fmtp:        fmtp,
		}
		if err := c.buildTransport(t, m); err != nil {
			return err
		}

		c.mu.Lock()
		c.session.tracks = append(c.session.tracks, t)
		c.session.pendingSetup = append(c.session.pendingSetup, &pendingSetup{track: t})
		c.mu.Unlock()

		if kind == MediaVideo {
			videoPicked = true
		} else {
			audioPicked = true
		}
	}

	c.mu.Lock()
	n := len(c.session.pendingSetup)
	c.mu.Unlock()
	if n == 0 {
		return fmt.Errorf("%w: no media section matched a supported depayloader", ErrUnsupportedMedia)
	}
	return nil
}

func classifyMedia(kind string) (MediaKind, bool) {
	switch kind {
	case "video":
		return MediaVideo, true
	case "audio":
		return MediaAudio, true
	default:
		return 0, false
	}
}

// pickPayloadType picks the first payload type in m with rtpmap info
// (static or SDP-declared).
func pickPayloadType(m sdp.Media) (int, sdp.RTPMap, map[string]string, bool) {
	for _, pt := range m.PayloadTypes {
		if rm, ok := m.RTPMaps[pt]; ok {
			return pt, rm, m.FMTP[pt], true
		}
	}
	return 0, sdp.RTPMap{}, nil, false
}

// nextInterleavedChannels hands out the next even/odd channel pair for
// this session, starting at 0-1. Scoped to sessionState (not a package
// global) so concurrent Clients, and repeated handshakes on the same
// process, never share or drift this counter.
func (s *sessionState) nextInterleavedChannels() (byte, byte) {
	rtpCh := s.nextInterleavedChannel
	s.nextInterleavedChannel += 2
	return rtpCh, rtpCh + 1
}

// buildTransport constructs the Transport for t according to the
// configured TransportMode, using m for the multicast group address and
// port the SDP c= line advertised.
func (c *Client) buildTransport(t *track, m sdp.Media) error {
	sink := PacketSink{
		OnRTP:  func(payload []byte) { c.handleRTP(t, payload) },
		OnRTCP: func(payload []byte) { c.handleRTCP(t, payload) },
	}

	switch c.cfg.Transport {
	case config.TransportTCP:
		c.mu.Lock()
		rtpChannel, rtcpChannel := c.session.nextInterleavedChannels()
		c.mu.Unlock()
		tcpT := newTCPTransport(c.listener, rtpChannel, rtcpChannel, sink)
		t.transport = tcpT
		t.tcp = tcpT
	case config.TransportUDP:
		rtpConn, rtcpConn, err := c.portAlloc.allocate()
		if err != nil {
			return err
		}
		t.transport = newUDPUnicastTransport(rtpConn, rtcpConn, c.requestURL.Hostname(), sink, c.log)
	case config.TransportMulticast:
		group := m.ConnectionAddress
		if group == "" {
			return fmt.Errorf("%w: media section has no multicast group address", ErrProtocolViolation)
		}
		port := m.Port
		if port == 0 {
			port = 5004 // RTP/AVP's registered default when the SDP omits one
		}
		rtpConn, rtcpConn, err := joinMulticastGroup(group, port)
		if err != nil {
			return err
		}
		t.transport = newUDPMulticastTransport(rtpConn, rtcpConn, group, m.TTL, sink, c.log)
	default:
		return fmt.Errorf("%w: unknown transport mode", ErrTransportUnreachable)
	}
	return nil
}

func (c *Client) handleRTP(t *track, payload []byte) {
	pkt := &pionrtp.Packet{}
	if err := pkt.Unmarshal(payload); err != nil {
		if c.log != nil {
			c.log.DebugRTP("malformed rtp packet dropped", "error", err)
		}
		return
	}
	t.ssrc = pkt.SSRC

	c.rr.ObservePacket(pkt.SSRC, pkt.SequenceNumber, pkt.Timestamp, t.clockRate, time.Now())

	dp := c.trackDepayloader(t)
	if dp == nil {
		return
	}
	dp.Push(pkt)
}

func (c *Client) handleRTCP(t *track, payload []byte) {
	packets, err := pionrtcp.Unmarshal(payload)
	if err != nil {
		if c.log != nil {
			c.log.DebugRTCP("malformed rtcp packet dropped", "error", err)
		}
		return
	}
	for _, p := range packets {
		sr, ok := p.(*pionrtcp.SenderReport)
		if !ok {
			continue
		}
		c.wallclock.Observe(sr)

		// Every sender report gets at least an empty receiver report in
		// reply; Build folds in the richer reception-quality fields RFC
		// 3550 §6.4.2 describes whenever enough packets have been observed
		// to populate them, and is itself rate-limited so a fast SR
		// cadence never floods the return path.
		now := time.Now()
		c.rr.ObserveSenderReport(sr.SSRC, sr, now)
		reporterSSRC := sr.SSRC ^ 0x5254_4350 // distinguish the client's own SSRC from the server's
		rr, ok := c.rr.Build(reporterSSRC, sr.SSRC, now)
		if !ok {
			rr = &pionrtcp.ReceiverReport{SSRC: reporterSSRC}
		}
		if raw, err := rr.Marshal(); err == nil {
			if err := t.transport.WriteRTCP(raw); err != nil && c.log != nil {
				c.log.DebugRTCP("write receiver report failed", "error", err)
			}
		}
	}
}

// runSetupFIFO sends each queued SETUP in order, applying the server's
// Transport response to the matching track before sending the next
//.
func (c *Client) runSetupFIFO() error {
	for {
		c.mu.Lock()
		if len(c.session.pendingSetup) == 0 {
			c.mu.Unlock()
			return nil
		}
		next := c.session.pendingSetup[0]
		c.session.pendingSetup = c.session.pendingSetup[1:]
		sessionID := c.session.sessionID
		c.mu.Unlock()

		if err := c.setupTrack(next.track, sessionID); err != nil {
			return err
		}
	}
}

func (c *Client) setupTrack(t *track, sessionID string) error {
	req := NewRequest(MethodSetup, t.controlURL)
	req.Header.Set("Transport", t.transport.RequestHeader())
	if sessionID != "" {
		req.Header.Set("Session", sessionID)
	}

	resp, err := c.sendUserRequestMsg(req)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: SETUP returned %d", ErrProtocolViolation, resp.StatusCode)
	}

	if err := c.applySessionHeader(resp); err != nil {
		return err
	}

	params := parseTransportParams(resp.Header.Get("Transport"))
	if err := t.transport.ApplyServerParams(params); err != nil {
		return err
	}
	if err := t.transport.Start(context.Background()); err != nil {
		return err
	}

	if t.kind == MediaVideo && c.OnNewVideoStream != nil {
		c.OnNewVideoStream(t.encoding, t.fmtp)
	} else if t.kind == MediaAudio && c.OnNewAudioStream != nil {
		c.OnNewAudioStream(t.encoding, t.fmtp)
	}
	return nil
}

// applySessionHeader captures or validates the Session header. A SETUP
// response echoing a different session id than an earlier SETUP in the
// same handshake fails the session outright rather than silently picking
// one: differing Session across SETUP responses is treated as a protocol
// violation, not a session split.
func (c *Client) applySessionHeader(resp *Response) error {
	header := resp.Header.Get("Session")
	if header == "" {
		return nil
	}
	id, timeoutStr, _ := strings.Cut(header, ";")
	id = strings.TrimSpace(id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.sessionID == "" {
		c.session.sessionID = id
	} else if c.session.sessionID != id {
		c.session.status = StatusTornDown
		return fmt.Errorf("%w: SETUP echoed session %q, expected %q", ErrProtocolViolation, id, c.session.sessionID)
	}

	if timeout, ok := strings.CutPrefix(strings.TrimSpace(timeoutStr), "timeout="); ok {
		if n, err := strconv.Atoi(timeout); err == nil && n > 0 {
			half := time.Duration(n) * time.Second / 2
			if half < c.keepaliveIntervalDefault() {
				c.session.keepaliveInterval = half
			}
		}
	}
	return nil
}

func (c *Client) keepaliveIntervalDefault() time.Duration {
	if c.cfg.KeepaliveInterval > 0 {
		return c.cfg.KeepaliveInterval
	}
	return 20 * time.Second
}

func (c *Client) effectiveKeepaliveInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.keepaliveInterval > 0 {
		return c.session.keepaliveInterval
	}
	return c.keepaliveIntervalDefault()
}

// Play sends PLAY with no range, starting or resuming playback from the
// current position.
func (c *Client) Play() error { return c.playWithScale("", 0) }

// PlayFrom sends PLAY with an NPT range start, e.g. "10.000".
func (c *Client) PlayFrom(from string) error {
	return c.playWithScale(fmt.Sprintf("npt=%s-", from), 0)
}

// PlayRange sends PLAY with a full NPT range and a Scale header for
// playback speed, per the ONVIF replay extension a playback-session
// client negotiates.
func (c *Client) PlayRange(from, to string, speed float64) error {
	return c.playWithScale(fmt.Sprintf("npt=%s-%s", from, to), speed)
}

func (c *Client) playWithScale(rangeHeader string, speed float64) error {
	switch c.Status() {
	case StatusIdle, StatusConnecting, StatusConnectFailed, StatusTornDown:
		return ErrNotConnected
	}

	req := NewRequest(MethodPlay, c.sessionBaseURL())
	if rangeHeader == "" {
		rangeHeader = "npt=0.000-"
	}
	req.Header.Set("Range", rangeHeader)
	if speed != 0 {
		req.Header.Set("Scale", strconv.FormatFloat(speed, 'f', -1, 64))
	}

	c.mu.Lock()
	if c.session.playbackSession {
		req.Header.Set("Require", "onvif-replay")
	}
	req.Header.Set("Session", c.session.sessionID)
	c.mu.Unlock()

	resp, err := c.sendUserRequestMsg(req)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: PLAY returned %d", ErrProtocolViolation, resp.StatusCode)
	}
	c.setStatus(StatusPlaying)
	return nil
}

// Pause sends PAUSE, suspending delivery without tearing down the session.
func (c *Client) Pause() error {
	if c.Status() != StatusPlaying {
		return ErrNotConnected
	}
	req := NewRequest(MethodPause, c.sessionBaseURL())
	c.mu.Lock()
	req.Header.Set("Session", c.session.sessionID)
	c.mu.Unlock()

	resp, err := c.sendUserRequestMsg(req)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: PAUSE returned %d", ErrProtocolViolation, resp.StatusCode)
	}
	c.setStatus(StatusPaused)
	return nil
}

func (c *Client) sessionBaseURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.baseURL != "" {
		return c.session.baseURL
	}
	return c.requestURL.String()
}

// Stop tears down the session: best-effort TEARDOWN, keepalive and reader
// shutdown, transport and socket close. Safe to call more
// than once.
func (c *Client) Stop() error {
	var stopErr error
	c.closeOnce.Do(func() {
		if c.keepaliveCancel != nil {
			c.keepaliveCancel()
		}

		switch c.Status() {
		case StatusPlaying, StatusPaused:
			req := NewRequest(MethodTeardown, c.sessionBaseURL())
			c.mu.Lock()
			req.Header.Set("Session", c.session.sessionID)
			c.mu.Unlock()
			c.sendUserRequestMsg(req) //nolint:errcheck // best-effort: Stop tears down regardless of the reply
		}

		c.mu.Lock()
		for _, t := range c.session.tracks {
			if t.transport != nil {
				t.transport.Stop() //nolint:errcheck
			}
		}
		c.session.status = StatusTornDown
		c.mu.Unlock()

		if c.readCancel != nil {
			c.readCancel()
		}
		if c.listener != nil {
			stopErr = c.listener.Close()
		}
		c.finish(nil)
	})
	return stopErr
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.session.status = s
	c.mu.Unlock()
}

func (c *Client) finish(err error) {
	if c.OnStreamingFinished != nil {
		c.OnStreamingFinished(err)
	}
}

// startKeepalive runs the keepalive ticker: GET_PARAMETER if the server
// advertised support, otherwise OPTIONS, both tagged PurposeKeepalive so a
// 401 never fails the session.
func (c *Client) startKeepalive() {
	ctx, cancel := context.WithCancel(context.Background())
	c.keepaliveCancel = cancel

	go func() {
		ticker := time.NewTicker(c.effectiveKeepaliveInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sendKeepalive()
			}
		}
	}()
}

func (c *Client) sendKeepalive() {
	c.mu.Lock()
	supportsGetParam := c.session.supportsGetParam
	sessionID := c.session.sessionID
	c.mu.Unlock()

	var req *Request
	if supportsGetParam {
		req = NewRequest(MethodGetParameter, c.sessionBaseURL())
	} else {
		req = NewRequest(MethodOptions, AllURIs)
	}
	req.Purpose = PurposeKeepalive
	if sessionID != "" {
		req.Header.Set("Session", sessionID)
	}
	if c.auth.HasCredentials() {
		c.auth.Apply(req)
	}

	resp, err := c.listener.Send(req, c.cfg.IOTimeout)
	if err != nil {
		if c.log != nil {
			c.log.DebugRTSP("keepalive failed", "error", err)
		}
		return
	}
	if resp.IsUnauthorized() {
		// A 401 on a keepalive is tolerated; the next user request
		// re-authenticates.
		if c.log != nil {
			c.log.DebugAuth("keepalive received 401, deferring re-auth to next user request")
		}
	}
}

// sendUserRequest builds and sends a tagged user request with no body.
func (c *Client) sendUserRequest(method Method, uri string) (*Response, error) {
	return c.sendUserRequestMsg(NewRequest(method, uri))
}

// sendUserRequestMsg sends req, transparently retrying once with fresh
// credentials on a 401. A second 401 for the same logical request fails
// the session hard instead of looping; the retry is a Clone with its own
// CSeq, never a resend of the triggering request.
func (c *Client) sendUserRequestMsg(req *Request) (*Response, error) {
	if c.auth.HasCredentials() {
		c.auth.Apply(req)
	}

	resp, err := c.listener.Send(req, c.cfg.IOTimeout)
	if err != nil {
		return nil, err
	}
	if !resp.IsUnauthorized() {
		return resp, nil
	}
	if c.wasRetried(req) {
		c.setStatus(StatusTornDown)
		return nil, fmt.Errorf("%w: second 401 for the same request", ErrAuthenticationFailed)
	}

	challenge := resp.Header.Get("WWW-Authenticate")
	if challenge == "" {
		return resp, nil
	}
	if err := c.auth.SetChallenge(challenge); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	retry := req.Clone()
	c.markRetried(retry)
	c.auth.Apply(retry)

	retryResp, err := c.listener.Send(retry, c.cfg.IOTimeout)
	if err != nil {
		return nil, err
	}
	if retryResp.IsUnauthorized() {
		c.setStatus(StatusTornDown)
		return nil, fmt.Errorf("%w: credentials rejected after retry", ErrAuthenticationFailed)
	}
	return retryResp, nil
}

// wasRetried/markRetried track whether a given *Request value has already
// been resent once after a 401, so a persistent challenge fails instead of
// looping forever.
func (c *Client) wasRetried(req *Request) bool {
	c.retriedMu.Lock()
	defer c.retriedMu.Unlock()
	return c.retried[req]
}

func (c *Client) markRetried(req *Request) {
	c.retriedMu.Lock()
	defer c.retriedMu.Unlock()
	c.retried[req] = true
}

// trackDepayloader lazily creates and caches t's Depayloader on first use.
func (c *Client) trackDepayloader(t *track) rtp.Depayloader {
	if t.dp != nil {
		return t.dp
	}
	kind := t.kind
	clockRate := t.clockRate
	t.dp = rtp.NewForEncoding(t.encoding, clockRate, t.fmtp, func(f rtp.Frame) {
		wc, _ := c.wallclock.Translate(t.ssrc, f.RTPTimestamp, clockRate)
		if kind == MediaVideo && c.OnVideoData != nil {
			c.OnVideoData(f.Payload, wc)
		} else if kind == MediaAudio && c.OnAudioData != nil {
			c.OnAudioData(f.Payload, wc)
		}
	})
	return t.dp
}
