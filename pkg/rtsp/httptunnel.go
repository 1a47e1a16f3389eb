package rtsp

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// httpTunnelConn implements net.Conn over the two-socket RTSP-over-HTTP
// tunnel (the GET/POST convention most consumer NVR web UIs use to reach
// cameras behind HTTP-only proxies): a GET connection carries the
// downstream byte stream (decoded from base64 by Read), a separate POST connection
// carries base64-encoded upstream bytes, and both share an
// x-sessioncookie header so the server can pair them.
type httpTunnelConn struct {
	get  net.Conn
	post net.Conn

	decodedReader io.Reader
	encodedWriter io.WriteCloser

	readDeadline  time.Time
	writeDeadline time.Time
}

// newHTTPTunnelConn opens the GET and POST halves of an HTTP-tunneled
// RTSP connection against u and returns a net.Conn the Listener can drive
// exactly like a plain TCP socket.
func newHTTPTunnelConn(u *url.URL, timeout time.Duration) (net.Conn, error) {
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "80")
	}

	cookie, err := sessionCookie()
	if err != nil {
		return nil, err
	}

	getConn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial GET tunnel: %w", err)
	}
	getReq, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		getConn.Close()
		return nil, err
	}
	getReq.Header.Set("x-sessioncookie", cookie)
	getReq.Header.Set("Accept", "application/x-rtsp-tunnelled")
	getReq.Header.Set("Cache-Control", "no-cache")
	getReq.Header.Set("Pragma", "no-cache")
	if err := getReq.Write(getConn); err != nil {
		getConn.Close()
		return nil, fmt.Errorf("write GET tunnel request: %w", err)
	}
	getResp, err := http.ReadResponse(bufio.NewReader(getConn), getReq)
	if err != nil {
		getConn.Close()
		return nil, fmt.Errorf("read GET tunnel response: %w", err)
	}
	if getResp.StatusCode != http.StatusOK {
		getConn.Close()
		return nil, fmt.Errorf("%w: GET tunnel returned %d", ErrTransportUnreachable, getResp.StatusCode)
	}

	postConn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		getConn.Close()
		return nil, fmt.Errorf("dial POST tunnel: %w", err)
	}
	postReq, err := http.NewRequest(http.MethodPost, u.String(), nil)
	if err != nil {
		getConn.Close()
		postConn.Close()
		return nil, err
	}
	postReq.Header.Set("x-sessioncookie", cookie)
	postReq.Header.Set("Content-Type", "application/x-rtsp-tunnelled")
	postReq.Header.Set("Cache-Control", "no-cache")
	postReq.Header.Set("Pragma", "no-cache")
	postReq.ContentLength = -1 // the body streams for the life of the session
	if err := postReq.Write(postConn); err != nil {
		getConn.Close()
		postConn.Close()
		return nil, fmt.Errorf("write POST tunnel request: %w", err)
	}

	return &httpTunnelConn{
		get:           getConn,
		post:          postConn,
		decodedReader: base64.NewDecoder(base64.StdEncoding, getResp.Body),
		encodedWriter: base64.NewEncoder(base64.StdEncoding, postConn),
	}, nil
}

func sessionCookie() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (c *httpTunnelConn) Read(b []byte) (int, error)  { return c.decodedReader.Read(b) }
func (c *httpTunnelConn) Write(b []byte) (int, error) { return c.encodedWriter.Write(b) }

func (c *httpTunnelConn) Close() error {
	err1 := c.encodedWriter.Close()
	err2 := c.post.Close()
	err3 := c.get.Close()
	if err1 != nil {
		return err1
	}
	if err2 != nil {
		return err2
	}
	return err3
}

func (c *httpTunnelConn) LocalAddr() net.Addr  { return c.post.LocalAddr() }
func (c *httpTunnelConn) RemoteAddr() net.Addr { return c.get.RemoteAddr() }

func (c *httpTunnelConn) SetDeadline(t time.Time) error {
	if err := c.get.SetReadDeadline(t); err != nil {
		return err
	}
	return c.post.SetWriteDeadline(t)
}

func (c *httpTunnelConn) SetReadDeadline(t time.Time) error  { return c.get.SetReadDeadline(t) }
func (c *httpTunnelConn) SetWriteDeadline(t time.Time) error { return c.post.SetWriteDeadline(t) }
