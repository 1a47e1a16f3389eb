package rtsp

import (
	"fmt"
	"net"
)

// joinMulticastGroup binds a UDP socket pair to a multicast group address
// and port pair advertised by the server's SDP c= line or SETUP response
//. Unlike unicast, both client and server send to the same
// group address, so no local port allocator is involved.
func joinMulticastGroup(group string, port int) (rtpConn, rtcpConn *net.UDPConn, err error) {
	ip := net.ParseIP(group)
	if ip == nil || !ip.IsMulticast() {
		return nil, nil, fmt.Errorf("%w: %q is not a multicast address", ErrProtocolViolation, group)
	}

	iface, err := defaultMulticastInterface()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransportUnreachable, err)
	}

	rtpConn, err = net.ListenMulticastUDP("udp", iface, &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: join rtp group: %v", ErrTransportUnreachable, err)
	}
	rtcpConn, err = net.ListenMulticastUDP("udp", iface, &net.UDPAddr{IP: ip, Port: port + 1})
	if err != nil {
		rtpConn.Close()
		return nil, nil, fmt.Errorf("%w: join rtcp group: %v", ErrTransportUnreachable, err)
	}
	return rtpConn, rtcpConn, nil
}

// defaultMulticastInterface picks the first interface that supports
// multicast, letting the kernel route group membership through it.
func defaultMulticastInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagMulticast != 0 && iface.Flags&net.FlagUp != 0 {
			return &iface, nil
		}
	}
	return nil, fmt.Errorf("no multicast-capable interface found")
}
