package rtsp

import "testing"

func TestParseTransportParams(t *testing.T) {
	got := parseTransportParams("RTP/AVP/TCP;unicast;interleaved=0-1")
	if got["interleaved"] != "0-1" {
		t.Fatalf("interleaved = %q, want 0-1", got["interleaved"])
	}
	if _, ok := got["unicast"]; !ok {
		t.Fatalf("expected flag-only param unicast to be present")
	}
}

func TestTCPTransport_RequestAndApply(t *testing.T) {
	tr := newTCPTransport(nil, 0, 1, PacketSink{})
	if got, want := tr.RequestHeader(), "RTP/AVP/TCP;unicast;interleaved=0-1"; got != want {
		t.Fatalf("RequestHeader() = %q, want %q", got, want)
	}

	if err := tr.ApplyServerParams(parseTransportParams("interleaved=0-1")); err != nil {
		t.Fatalf("ApplyServerParams: %v", err)
	}
	if tr.rtpChannel != 0 || tr.rtcpChannel != 1 {
		t.Fatalf("channels = %d-%d, want 0-1", tr.rtpChannel, tr.rtcpChannel)
	}

	if err := tr.ApplyServerParams(parseTransportParams("interleaved=2-3")); err != nil {
		t.Fatalf("ApplyServerParams: %v", err)
	}
	if tr.rtpChannel != 2 || tr.rtcpChannel != 3 {
		t.Fatalf("server-reassigned channels = %d-%d, want 2-3", tr.rtpChannel, tr.rtcpChannel)
	}
}

func TestTCPTransport_Dispatch(t *testing.T) {
	var rtp, rtcp []byte
	tr := newTCPTransport(nil, 4, 5, PacketSink{
		OnRTP:  func(p []byte) { rtp = p },
		OnRTCP: func(p []byte) { rtcp = p },
	})

	tr.dispatch(Data{Channel: 4, Payload: []byte("video")})
	tr.dispatch(Data{Channel: 5, Payload: []byte("report")})
	tr.dispatch(Data{Channel: 9, Payload: []byte("ignored")})

	if string(rtp) != "video" {
		t.Fatalf("rtp payload = %q", rtp)
	}
	if string(rtcp) != "report" {
		t.Fatalf("rtcp payload = %q", rtcp)
	}
}
