package httpx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pagi-dev/pagi/internal/netx"
)

func TestParseRequestLine(t *testing.T) {
	line := "GET /a/b?x=1 HTTP/1.1"
	rl, err := parseRequestLine(line)
	if err != nil {
		t.Fatal(err)
	}
	if rl.Method != "GET" || rl.RequestURI != "/a/b?x=1" || rl.Proto != "HTTP/1.1" {
		t.Fatalf("parsed wrong: %+v", rl)
	}
	if rl.ProtoMajor != 1 || rl.ProtoMinor != 1 {
		t.Fatalf("version wrong: %d.%d", rl.ProtoMajor, rl.ProtoMinor)
	}
}

func TestParseRequestLineBad(t *testing.T) {
	cases := []string{
		"G ET / HTTP/1.1",                     // space in method
		"GET / WTF/1.1",                       // proto missing HTTP/
		"GET / HTTP/x.y",                      // invalid version numbers
		"",                                    // empty
		"GET / HTTP/1",                        // missing minor version
		"TOOLONGMETHODNAMEFORHTTP / HTTP/1.1", // >20 chars
	}
	for _, c := range cases {
		if _, err := parseRequestLine(c); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func TestParseRequest(t *testing.T) {
	raw := "GET /a/b?x=1 HTTP/1.1\r\nHost: ex.com\r\n\r\n"
	rd := netx.NewCRLFFastReader(bytes.NewBufferString(raw))
	req, err := ParseRequest(rd, DefaultParseLimits())
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != "GET" || req.Proto != "HTTP/1.1" {
		t.Fatalf("method/proto mismatch: %v %v", req.Method, req.Proto)
	}
	if req.Path != "/a/b" || req.QueryString != "x=1" {
		t.Fatalf("path/query mismatch: path=%q query=%q", req.Path, req.QueryString)
	}
	if req.Host != "ex.com" {
		t.Fatalf("expected Host from header, got %q", req.Host)
	}
	if req.ContentLength != -1 || req.Chunked {
		t.Fatalf("expected no body framing, got cl=%d chunked=%v", req.ContentLength, req.Chunked)
	}
}

func TestParseRequestAbsoluteForm(t *testing.T) {
	raw := "GET http://example.com/x?q=1 HTTP/1.1\r\n\r\n"
	rd := netx.NewCRLFFastReader(bytes.NewBufferString(raw))
	req, err := ParseRequest(rd, DefaultParseLimits())
	if err != nil {
		t.Fatal(err)
	}
	if req.Host != "example.com" {
		t.Fatalf("Host not propagated from absolute URI, got %q", req.Host)
	}
	if req.Path != "/x" {
		t.Fatalf("expected path /x, got %q", req.Path)
	}
}

func TestParseRequestPercentDecodedPath(t *testing.T) {
	raw := "GET /caf%C3%A9 HTTP/1.1\r\nHost: x\r\n\r\n"
	rd := netx.NewCRLFFastReader(bytes.NewBufferString(raw))
	req, err := ParseRequest(rd, DefaultParseLimits())
	if err != nil {
		t.Fatal(err)
	}
	if req.RawPath != "/caf%C3%A9" {
		t.Fatalf("raw path changed: %q", req.RawPath)
	}
	if req.Path != "/café" {
		t.Fatalf("decoded path mismatch: %q", req.Path)
	}
}

func TestParseRequestHeaderTooLarge(t *testing.T) {
	big := strings.Repeat("a", 100)
	raw := "GET / HTTP/1.1\r\nX-Big: " + big + "\r\n\r\n"
	rd := netx.NewCRLFFastReader(bytes.NewBufferString(raw))
	limits := ParseLimits{MaxLineBytes: 4096, MaxHeaderBytes: 16}
	_, err := ParseRequest(rd, limits)
	if err == nil {
		t.Fatal("expected header-too-large error")
	}
}

func TestContextCancelDuringParse(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
	rd := netx.NewCRLFFastReader(strings.NewReader(raw))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ParseRequestWithContext(ctx, rd, DefaultParseLimits())
	if err == nil {
		t.Fatal("expected ctx error")
	}
}
