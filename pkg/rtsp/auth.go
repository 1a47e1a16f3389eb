package rtsp

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// AuthScheme identifies which WWW-Authenticate scheme a challenge uses.
type AuthScheme int

const (
	AuthNone AuthScheme = iota
	AuthBasic
	AuthDigest
)

// DigestChallenge holds the parameters a server's WWW-Authenticate: Digest
// header supplies (RFC 2617), as parsed in §4.3.
type DigestChallenge struct {
	Realm     string
	Nonce     string
	QOP       string // "auth", "auth-int", or "" if the server omitted qop
	Opaque    string
	Algorithm string
	Stale     bool
}

// Authenticator attaches an Authorization header to outgoing requests once
// a server has challenged the session. It is safe for
// concurrent use: a keepalive goroutine and a user-driven request may both
// need to sign requests against the same nonce state.
type Authenticator struct {
	mu sync.Mutex

	scheme    AuthScheme
	username  string
	password  string
	challenge *DigestChallenge
	nonceCount int
	clientNonce string
}

// NewAuthenticator returns an Authenticator with no scheme selected; it
// starts signing requests once SetChallenge is called from a 401 response.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{username: username, password: password}
}

// HasCredentials reports whether any username/password was supplied.
func (a *Authenticator) HasCredentials() bool {
	return a.username != "" || a.password != ""
}

// SetChallenge records the scheme a 401 response demanded, parsing a
// WWW-Authenticate header value of either "Basic ..." or "Digest ...".
func (a *Authenticator) SetChallenge(header string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	header = strings.TrimSpace(header)
	switch {
	case strings.HasPrefix(strings.ToLower(header), "digest "):
		challenge, err := parseDigestChallenge(header[len("Digest "):])
		if err != nil {
			return fmt.Errorf("parse digest challenge: %w", err)
		}
		cnonce, err := generateClientNonce()
		if err != nil {
			return fmt.Errorf("generate client nonce: %w", err)
		}
		a.scheme = AuthDigest
		a.challenge = challenge
		a.nonceCount = 0
		a.clientNonce = cnonce
		return nil
	case strings.HasPrefix(strings.ToLower(header), "basic "):
		a.scheme = AuthBasic
		a.challenge = nil
		return nil
	default:
		return fmt.Errorf("%w: unrecognized auth scheme in %q", ErrProtocolViolation, header)
	}
}

// Apply adds an Authorization header to req for the given method and URI,
// computing a fresh digest response (incrementing nonce count) each call.
func (a *Authenticator) Apply(req *Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.scheme {
	case AuthBasic:
		req.Header.Set("Authorization", basicAuthHeader(a.username, a.password))
	case AuthDigest:
		if a.challenge == nil {
			return
		}
		a.nonceCount++
		req.Header.Set("Authorization", a.digestAuthHeader(string(req.Method), req.URI))
	}
}

func basicAuthHeader(username, password string) string {
	raw := username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func (a *Authenticator) digestAuthHeader(method, uri string) string {
	c := a.challenge
	nc := fmt.Sprintf("%08x", a.nonceCount)
	qopUsed := firstQOPOption(c.QOP)
	response := digestResponse(a.username, c.Realm, a.password, method, uri, c.Nonce, nc, a.clientNonce, qopUsed)

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		a.username, c.Realm, c.Nonce, uri, response)
	if c.Opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, c.Opaque)
	}
	if qopUsed != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s"`, qopUsed, nc, a.clientNonce)
	}
	return b.String()
}

// digestResponse computes the RFC 2617 §3.2.2.1 "response" value. When qop
// is empty it falls back to the RFC 2069 two-component form.
func digestResponse(username, realm, password, method, uri, nonce, nc, cnonce, qop string) string {
	ha1 := md5Hex(username + ":" + realm + ":" + password)
	ha2 := md5Hex(method + ":" + uri)
	if qop == "auth-int" {
		// Requests that carry credentials have no body, so H(entity-body)
		// is the hash of the empty string.
		ha2 = md5Hex(method + ":" + uri + ":" + md5Hex(""))
	}
	if qop == "" {
		return md5Hex(ha1 + ":" + nonce + ":" + ha2)
	}
	return md5Hex(strings.Join([]string{ha1, nonce, nc, cnonce, qop, ha2}, ":"))
}

// firstQOPOption picks the first option from a comma-separated qop list,
// preferring "auth" over "auth-int" since the client never sends a body on
// the requests that carry credentials (OPTIONS/DESCRIBE/SETUP/PLAY).
func firstQOPOption(qop string) string {
	for _, opt := range strings.Split(qop, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "auth" {
			return "auth"
		}
	}
	opts := strings.Split(qop, ",")
	if len(opts) > 0 {
		return strings.TrimSpace(opts[0])
	}
	return ""
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// generateClientNonce returns an 8-hex-digit random cnonce, matching the
// same crypto/rand approach httptunnel.go uses for its session cookie.
func generateClientNonce() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// parseDigestChallenge parses the comma-separated key=value (or bare
// key=unquoted) pairs following "Digest " in a WWW-Authenticate header.
func parseDigestChallenge(s string) (*DigestChallenge, error) {
	c := &DigestChallenge{}
	for _, field := range splitDigestFields(s) {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		value := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		switch key {
		case "realm":
			c.Realm = value
		case "nonce":
			c.Nonce = value
		case "qop":
			c.QOP = value
		case "opaque":
			c.Opaque = value
		case "algorithm":
			c.Algorithm = value
		case "stale":
			c.Stale = strings.EqualFold(value, "true")
		}
	}
	if c.Realm == "" || c.Nonce == "" {
		return nil, fmt.Errorf("missing realm or nonce")
	}
	return c, nil
}

// splitDigestFields splits on commas that are not inside a quoted value.
func splitDigestFields(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}
