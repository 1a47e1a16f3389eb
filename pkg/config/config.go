// Package config holds the embedder-facing configuration surface for the
// RTSP client: transport preference, media mask, credentials, and the
// timeouts and port ranges that drive the handshake and RTP transports.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// TransportMode selects how RTP/RTCP are carried.
type TransportMode int

const (
	TransportUDP TransportMode = iota
	TransportTCP
	TransportMulticast
)

func (m TransportMode) String() string {
	switch m {
	case TransportUDP:
		return "udp"
	case TransportTCP:
		return "tcp"
	case TransportMulticast:
		return "multicast"
	default:
		return "unknown"
	}
}

// ParseTransportMode parses a transport mode name (case-insensitive).
func ParseTransportMode(s string) (TransportMode, error) {
	switch strings.ToLower(s) {
	case "udp":
		return TransportUDP, nil
	case "tcp":
		return TransportTCP, nil
	case "multicast":
		return TransportMulticast, nil
	default:
		return 0, fmt.Errorf("invalid transport mode: %s (must be udp, tcp, or multicast)", s)
	}
}

// MediaMask selects which media kinds the client negotiates.
type MediaMask int

const (
	MediaVideo MediaMask = 1 << iota
	MediaAudio
)

const MediaBoth = MediaVideo | MediaAudio

// ParseMediaMask parses a media mask name (case-insensitive).
func ParseMediaMask(s string) (MediaMask, error) {
	switch strings.ToLower(s) {
	case "video":
		return MediaVideo, nil
	case "audio":
		return MediaAudio, nil
	case "both", "":
		return MediaBoth, nil
	default:
		return 0, fmt.Errorf("invalid media mask: %s (must be video, audio, or both)", s)
	}
}

// ClientConfig is the full set of parameters the embedder supplies to
// Connect.
type ClientConfig struct {
	URL      string
	Username string
	Password string

	Transport       TransportMode
	Media           MediaMask
	PlaybackSession bool
	StrictSDP       bool

	IOTimeout         time.Duration
	KeepaliveInterval time.Duration

	// UDP port-pair allocator bounds.
	UDPPortRangeStart int
	UDPPortRangeEnd   int
}

// DefaultConfig returns a ClientConfig with the timeouts and transport
// preference a field client defaults to when nothing overrides them.
func DefaultConfig(rtspURL string) *ClientConfig {
	return &ClientConfig{
		URL:               rtspURL,
		Transport:         TransportTCP,
		Media:             MediaBoth,
		IOTimeout:         10 * time.Second,
		KeepaliveInterval: 20 * time.Second,
		UDPPortRangeStart: 50000,
		UDPPortRangeEnd:   51000,
	}
}

// Validate checks invariants the client depends on before connecting.
func (c *ClientConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("missing URL")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}
	switch u.Scheme {
	case "rtsp", "rtsps", "rtspt", "http":
	default:
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if c.IOTimeout <= 0 {
		return fmt.Errorf("IOTimeout must be positive")
	}
	if c.UDPPortRangeStart <= 0 || c.UDPPortRangeEnd <= c.UDPPortRangeStart {
		return fmt.Errorf("invalid UDP port range: %d-%d", c.UDPPortRangeStart, c.UDPPortRangeEnd)
	}
	return nil
}

// LoadEnv reads a ClientConfig from a .env-style file, mirroring the
// KEY=VALUE scanning convention used for credential files throughout the
// pack. Intended for the CLI harness; programmatic embedders should build
// a ClientConfig directly.
func LoadEnv(envPath string) (*ClientConfig, error) {
	file, err := os.Open(envPath)
	if err != nil {
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer file.Close()

	cfg := DefaultConfig("")
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		decoded, err := url.QueryUnescape(value)
		if err != nil {
			decoded = value
		}

		switch key {
		case "url":
			cfg.URL = decoded
		case "username":
			cfg.Username = decoded
		case "password":
			cfg.Password = decoded
		case "transport":
			mode, err := ParseTransportMode(decoded)
			if err != nil {
				return nil, err
			}
			cfg.Transport = mode
		case "media":
			mask, err := ParseMediaMask(decoded)
			if err != nil {
				return nil, err
			}
			cfg.Media = mask
		case "playback_session":
			cfg.PlaybackSession = decoded == "true" || decoded == "1"
		case "strict_sdp":
			cfg.StrictSDP = decoded == "true" || decoded == "1"
		case "io_timeout_seconds":
			if n, err := strconv.Atoi(decoded); err == nil {
				cfg.IOTimeout = time.Duration(n) * time.Second
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan env file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
