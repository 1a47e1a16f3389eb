package rtp

import "testing"

func TestNewForEncoding_KnownCodecs(t *testing.T) {
	cases := []string{"H264", "h264", "H265", "JPEG", "MP2T", "PCMU", "PCMA", "MPEG4-GENERIC", "AMR", "AMR-WB"}
	for _, name := range cases {
		if d := NewForEncoding(name, 90000, nil, nil); d == nil {
			t.Errorf("NewForEncoding(%q) = nil, want a depayloader", name)
		}
	}
}

func TestNewForEncoding_UnknownCodecReturnsNil(t *testing.T) {
	if d := NewForEncoding("OPUS", 48000, nil, nil); d != nil {
		t.Fatal("expected nil depayloader for an unsupported encoding")
	}
}
