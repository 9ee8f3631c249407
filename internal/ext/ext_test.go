package ext

import (
	"net"
	"testing"
)

type fakeAddr struct{ s string }

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return a.s }

type plainConn struct{ net.Conn }

func TestBuildOmitsTLSForPlainConnection(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	extensions := Build(server, false)
	if _, ok := extensions["tls"]; ok {
		t.Fatalf("plain connection must not advertise tls extension")
	}
	if _, ok := extensions["fullflush"]; ok {
		t.Fatalf("fullflush not requested, must not be advertised")
	}
}

func TestBuildAdvertisesFullFlushWhenRequested(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	extensions := Build(server, true)
	v, ok := extensions["fullflush"]
	if !ok || v != true {
		t.Fatalf("expected fullflush=true, got %v (present=%v)", v, ok)
	}
}

func TestVersionNameKnownValues(t *testing.T) {
	cases := map[uint16]string{
		0x0301: "TLSv1.0",
		0x0302: "TLSv1.1",
		0x0303: "TLSv1.2",
		0x0304: "TLSv1.3",
		0x9999: "unknown",
	}
	for v, want := range cases {
		if got := versionName(v); got != want {
			t.Fatalf("versionName(%x) = %q, want %q", v, got, want)
		}
	}
}
