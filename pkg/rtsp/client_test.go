package rtsp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethan/rtspcam-client/pkg/config"
)

const testSDP = `v=0
o=- 0 0 IN IP4 192.0.2.1
s=stream
c=IN IP4 192.0.2.1
t=0 0
m=video 0 RTP/AVP 96
a=rtpmap:96 H264/90000
a=fmtp:96 packetization-mode=1
a=control:trackID=0
`

// scriptedRequest is one request a fake server expects to see, in order,
// and the response to send back.
type scriptedRequest struct {
	method       Method
	statusLine   string
	headers      map[string]string
	body         string
	wantAuthHdr  bool // fail the test if this request carries no Authorization
}

// runFakeServer accepts exactly one connection on ln and answers each
// request against script in order, matching by method. It returns a
// channel that is closed once every scripted request has been answered.
func runFakeServer(t *testing.T, ln net.Listener, script []scriptedRequest) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)

		for _, step := range script {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Errorf("fake server: read request line: %v", err)
				return
			}
			parts := strings.Fields(line)
			if len(parts) < 1 || Method(parts[0]) != step.method {
				t.Errorf("fake server: expected %s, got %q", step.method, line)
				return
			}

			headers := make(map[string]string)
			var cseq string
			for {
				hline, err := reader.ReadString('\n')
				if err != nil {
					t.Errorf("fake server: read header: %v", err)
					return
				}
				hline = strings.TrimRight(hline, "\r\n")
				if hline == "" {
					break
				}
				key, value, ok := strings.Cut(hline, ":")
				if !ok {
					continue
				}
				key = strings.TrimSpace(key)
				value = strings.TrimSpace(value)
				headers[strings.ToLower(key)] = value
				if strings.EqualFold(key, "CSeq") {
					cseq = value
				}
				if strings.EqualFold(key, "Content-Length") {
					if n, err := strconv.Atoi(value); err == nil && n > 0 {
						body := make([]byte, n)
						reader.Read(body) //nolint:errcheck
					}
				}
			}

			if step.wantAuthHdr && headers["authorization"] == "" {
				t.Errorf("fake server: %s missing Authorization header", step.method)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "RTSP/1.0 %s\r\n", step.statusLine)
			fmt.Fprintf(&b, "CSeq: %s\r\n", cseq)
			for k, v := range step.headers {
				fmt.Fprintf(&b, "%s: %s\r\n", k, v)
			}
			if step.body != "" {
				fmt.Fprintf(&b, "Content-Length: %d\r\n", len(step.body))
			}
			b.WriteString("\r\n")
			b.WriteString(step.body)
			conn.Write([]byte(b.String())) //nolint:errcheck
		}

		// Keep the connection open briefly so any trailing reads (e.g. a
		// TEARDOWN the test doesn't script) don't see a reset.
		time.Sleep(50 * time.Millisecond)
	}()
	return done
}

func newTestClient(t *testing.T, addr string, username, password string) *Client {
	t.Helper()
	cfg := config.DefaultConfig(fmt.Sprintf("rtsp://%s/stream", addr))
	cfg.Username = username
	cfg.Password = password
	cfg.IOTimeout = 2 * time.Second
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// TestClient_HappyPathHandshake exercises OPTIONS->DESCRIBE->SETUP->PLAY
// against a scripted server.
func TestClient_HappyPathHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	script := []scriptedRequest{
		{method: MethodOptions, statusLine: "200 OK", headers: map[string]string{"Public": "OPTIONS, DESCRIBE, SETUP, PLAY, PAUSE, TEARDOWN, GET_PARAMETER"}},
		{method: MethodDescribe, statusLine: "200 OK", headers: map[string]string{"Content-Type": "application/sdp"}, body: testSDP},
		{method: MethodSetup, statusLine: "200 OK", headers: map[string]string{"Session": "abc123;timeout=60", "Transport": "RTP/AVP/TCP;unicast;interleaved=0-1"}},
		{method: MethodPlay, statusLine: "200 OK", headers: map[string]string{"RTP-Info": "url=trackID=0;seq=1"}},
	}
	done := runFakeServer(t, ln, script)

	c := newTestClient(t, ln.Addr().String(), "", "")
	var setupDone atomic.Bool
	var gotVideoStream atomic.Bool
	c.OnSetupComplete = func() { setupDone.Store(true) }
	c.OnNewVideoStream = func(codec string, _ map[string]string) {
		if codec == "H264" {
			gotVideoStream.Store(true)
		}
	}

	c.Connect()

	waitForStatus(t, c, StatusPaused, 2*time.Second)
	if !setupDone.Load() {
		t.Fatal("expected OnSetupComplete to have fired")
	}
	if !gotVideoStream.Load() {
		t.Fatal("expected OnNewVideoStream to have fired with codec H264")
	}

	if err := c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if c.Status() != StatusPlaying {
		t.Fatalf("Status() = %v, want Playing", c.Status())
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fake server never finished its script")
	}
}

// TestClient_DescribeRetriesAfter401 confirms a 401 on DESCRIBE is answered
// by a retried DESCRIBE carrying Authorization, that the following SETUP
// carries it too, and that the handshake then completes.
func TestClient_DescribeRetriesAfter401(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	script := []scriptedRequest{
		{method: MethodOptions, statusLine: "200 OK", headers: map[string]string{"Public": "OPTIONS, DESCRIBE, SETUP, PLAY"}},
		{method: MethodDescribe, statusLine: "401 Unauthorized", headers: map[string]string{
			"WWW-Authenticate": `Digest realm="IP Camera(21388)", nonce="534407f373af1bdff561b7b4da295354"`,
		}},
		{method: MethodDescribe, statusLine: "200 OK", wantAuthHdr: true, body: testSDP},
		{method: MethodSetup, statusLine: "200 OK", wantAuthHdr: true, headers: map[string]string{"Session": "s1", "Transport": "RTP/AVP/TCP;unicast;interleaved=0-1"}},
	}
	done := runFakeServer(t, ln, script)

	c := newTestClient(t, ln.Addr().String(), "admin", "1234")
	c.Connect()

	waitForStatus(t, c, StatusPaused, 2*time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fake server never finished its script")
	}
}

// TestClient_KeepaliveToleratesUnauthorized confirms a 401 on a keepalive
// request never tears down the session.
func TestClient_KeepaliveToleratesUnauthorized(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	cfg := config.DefaultConfig("rtsp://192.0.2.1/stream")
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.conn = clientConn
	c.listener = NewListener(clientConn, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.listener.Run(ctx)
	c.session.status = StatusPlaying
	c.session.sessionID = "s1"
	c.session.supportsGetParam = false

	go func() {
		reader := bufio.NewReader(serverConn)
		line, _ := reader.ReadString('\n')
		if !strings.HasPrefix(line, "OPTIONS") {
			return
		}
		for {
			hline, err := reader.ReadString('\n')
			if err != nil || strings.TrimSpace(hline) == "" {
				break
			}
		}
		serverConn.Write([]byte("RTSP/1.0 401 Unauthorized\r\nCSeq: 1\r\nWWW-Authenticate: Basic realm=\"x\"\r\n\r\n"))
	}()

	c.sendKeepalive()

	if c.Status() != StatusPlaying {
		t.Fatalf("Status() = %v after keepalive 401, want Playing (unaffected)", c.Status())
	}
}

func waitForStatus(t *testing.T, c *Client, want Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Status() never reached %v, stuck at %v", want, c.Status())
}
