// Package sdp wraps pion/sdp/v3 with the session/media model the RTSP
// client needs: attribute sub-grammars (rtpmap/fmtp/control) resolved into
// typed fields, and a loose mode that tolerates the malformed descriptors
// common among consumer IP cameras.
package sdp

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"
)

// RTPMap is a parsed "a=rtpmap:<payload> <name>/<clock>[/<channels>]" line.
type RTPMap struct {
	PayloadType  int
	EncodingName string
	ClockRate    int
	Channels     int
}

// Media is one m= section with its resolved attributes.
type Media struct {
	Kind         string // "video", "audio", "application"
	Protocol     string // e.g. "RTP/AVP"
	PayloadTypes []int
	Port         int

	// Control is this media's a=control value, unresolved relative to the
	// session's base URL; callers use ResolveControlURL.
	Control string

	RTPMaps map[int]RTPMap
	FMTP    map[int]map[string]string

	ConnectionAddress string
	Multicast         bool
	TTL               int
}

// Origin is the session's "o=" line (RFC 4566 §5.2).
type Origin struct {
	Username       string
	SessionID      uint64
	SessionVersion uint64
	NetworkType    string
	AddressType    string
	UnicastAddress string
}

// Descriptor is a parsed SDP session description (RFC 4566).
type Descriptor struct {
	Version     int
	Origin      Origin
	SessionName string
	Control     string // session-level a=control, usually "*"
	Media       []Media
}

// ParseOptions controls tolerance for malformed descriptors emitted by
// consumer cameras.
type ParseOptions struct {
	// Strict rejects an empty session name and media sections whose
	// rtpmap/fmtp is missing or malformed. Loose (the default) falls back
	// to the RTP/AVP static payload type tables instead. In both modes a
	// media section without a control attribute gets a synthesized
	// trackID=<index> control from its position.
	Strict bool
}

// Parse decodes raw into a Descriptor using pion/sdp/v3 for the grammar
// and this package's own folding of rtpmap/fmtp/control attributes.
func Parse(raw []byte, opts ParseOptions) (*Descriptor, error) {
	var sd psdp.SessionDescription
	if err := sd.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("unmarshal sdp: %w", err)
	}

	desc := &Descriptor{
		Version:     int(sd.Version),
		SessionName: string(sd.SessionName),
		Origin: Origin{
			Username:       sd.Origin.Username,
			SessionID:      sd.Origin.SessionID,
			SessionVersion: sd.Origin.SessionVersion,
			NetworkType:    sd.Origin.NetworkType,
			AddressType:    sd.Origin.AddressType,
			UnicastAddress: sd.Origin.UnicastAddress,
		},
	}
	for _, attr := range sd.Attributes {
		if attr.Key == "control" {
			desc.Control = attr.Value
		}
	}

	if desc.Origin.UnicastAddress == "" || desc.Origin.NetworkType == "" {
		return nil, fmt.Errorf("sdp missing origin")
	}
	if opts.Strict && desc.SessionName == "" {
		return nil, fmt.Errorf("sdp missing session name")
	}

	for i, md := range sd.MediaDescriptions {
		media, err := parseMedia(md, opts)
		if err != nil {
			if opts.Strict {
				return nil, fmt.Errorf("media section %d: %w", i, err)
			}
			continue
		}
		if media.Control == "" {
			media.Control = fmt.Sprintf("trackID=%d", i)
		}
		if media.ConnectionAddress == "" && sd.ConnectionInformation != nil && sd.ConnectionInformation.Address != nil {
			media.ConnectionAddress = sd.ConnectionInformation.Address.Address
		}
		desc.Media = append(desc.Media, media)
	}

	if len(desc.Media) == 0 {
		return nil, fmt.Errorf("sdp has no usable media sections")
	}
	return desc, nil
}

func parseMedia(md *psdp.MediaDescription, opts ParseOptions) (Media, error) {
	m := Media{
		Kind:     md.MediaName.Media,
		Protocol: strings.Join(md.MediaName.Protos, "/"),
		Port:     md.MediaName.Port.Value,
		RTPMaps:  make(map[int]RTPMap),
		FMTP:     make(map[int]map[string]string),
	}

	for _, fmtStr := range md.MediaName.Formats {
		pt, err := strconv.Atoi(fmtStr)
		if err != nil {
			continue
		}
		m.PayloadTypes = append(m.PayloadTypes, pt)
	}

	if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
		m.ConnectionAddress = md.ConnectionInformation.Address.Address
		if md.ConnectionInformation.Address.TTL != nil {
			m.Multicast = true
			m.TTL = *md.ConnectionInformation.Address.TTL
		}
	}

	for _, attr := range md.Attributes {
		switch attr.Key {
		case "control":
			m.Control = attr.Value
		case "rtpmap":
			rm, err := parseRTPMap(attr.Value)
			if err != nil {
				if opts.Strict {
					return Media{}, err
				}
				continue
			}
			m.RTPMaps[rm.PayloadType] = rm
		case "fmtp":
			pt, params, err := parseFMTP(attr.Value)
			if err != nil {
				if opts.Strict {
					return Media{}, err
				}
				continue
			}
			m.FMTP[pt] = params
		}
	}

	if len(m.PayloadTypes) == 0 {
		return Media{}, fmt.Errorf("media section %q has no payload types", m.Kind)
	}
	if len(m.RTPMaps) == 0 {
		if opts.Strict {
			return Media{}, fmt.Errorf("media section %q missing rtpmap", m.Kind)
		}
		for _, pt := range m.PayloadTypes {
			if rm, ok := staticPayloadTypes[pt]; ok {
				m.RTPMaps[pt] = rm
			}
		}
	}
	return m, nil
}

// parseRTPMap parses "<payload> <name>/<clock>[/<channels>]".
func parseRTPMap(value string) (RTPMap, error) {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return RTPMap{}, fmt.Errorf("malformed rtpmap %q", value)
	}
	pt, err := strconv.Atoi(fields[0])
	if err != nil {
		return RTPMap{}, fmt.Errorf("malformed rtpmap payload type %q", fields[0])
	}
	parts := strings.Split(fields[1], "/")
	rm := RTPMap{PayloadType: pt, EncodingName: parts[0], ClockRate: 8000, Channels: 1}
	if len(parts) > 1 {
		if clock, err := strconv.Atoi(parts[1]); err == nil {
			rm.ClockRate = clock
		}
	}
	if len(parts) > 2 {
		if ch, err := strconv.Atoi(parts[2]); err == nil {
			rm.Channels = ch
		}
	}
	return rm, nil
}

// parseFMTP parses "<payload> key1=val1;key2=val2" into a parameter map.
func parseFMTP(value string) (int, map[string]string, error) {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return 0, nil, fmt.Errorf("malformed fmtp %q", value)
	}
	pt, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, nil, fmt.Errorf("malformed fmtp payload type %q", fields[0])
	}
	params := make(map[string]string)
	for _, pair := range strings.Split(fields[1], ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, found := strings.Cut(pair, "=")
		if !found {
			params[strings.ToLower(key)] = ""
			continue
		}
		params[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(val)
	}
	return pt, params, nil
}

// staticPayloadTypes are the RTP/AVP profile's statically assigned payload
// types (RFC 3551), used when a camera omits rtpmap for one of them.
var staticPayloadTypes = map[int]RTPMap{
	0:  {PayloadType: 0, EncodingName: "PCMU", ClockRate: 8000, Channels: 1},
	8:  {PayloadType: 8, EncodingName: "PCMA", ClockRate: 8000, Channels: 1},
	10: {PayloadType: 10, EncodingName: "L16", ClockRate: 44100, Channels: 2},
	11: {PayloadType: 11, EncodingName: "L16", ClockRate: 44100, Channels: 1},
	26: {PayloadType: 26, EncodingName: "JPEG", ClockRate: 90000, Channels: 1},
}

// ResolveControlURL resolves a media's control attribute against the
// session's Content-Base/request URL, handling the RFC 2326 §C.1.1 cases:
// "*" (aggregate control, use the base unchanged), an absolute URL, and a
// relative path appended to the base.
func ResolveControlURL(base, control string) (string, error) {
	if control == "" || control == "*" {
		return base, nil
	}
	if strings.Contains(control, "://") {
		return control, nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
	}
	rel, err := url.Parse(control)
	if err != nil {
		return "", fmt.Errorf("parse control attribute: %w", err)
	}
	return baseURL.ResolveReference(rel).String(), nil
}
