package httpx

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pagi-dev/pagi/app"
)

// -----------------------------------------------------------------------------
// fixedReader tests
// -----------------------------------------------------------------------------

func TestFixedLengthBody(t *testing.T) {
	raw := "hello world"
	r := strings.NewReader(raw)

	// Use constructor with a valid context to avoid nil panic
	fr := newFixedReader(context.Background(), r, int64(len(raw)), 0)

	data, err := io.ReadAll(fr)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != raw {
		t.Fatalf("got %q, want %q", data, raw)
	}

	// reading again must return EOF
	n, err := fr.Read(make([]byte, 1))
	if n != 0 || err != io.EOF {
		t.Fatalf("expected EOF, got n=%d err=%v", n, err)
	}
}

func TestFixedLengthTooShort(t *testing.T) {
	r := strings.NewReader("abc")
	fr := newFixedReader(context.Background(), r, 5, 0)

	_, err := io.ReadAll(fr)
	if err == nil {
		t.Fatal("expected ErrLengthMismatch for short body")
	}
}

// -----------------------------------------------------------------------------
// chunkedReader tests
// -----------------------------------------------------------------------------

func TestChunkedBody(t *testing.T) {
	raw := "" +
		"4\r\nWiki\r\n" +
		"5\r\npedia\r\n" +
		"0\r\nX-T: v\r\n\r\n"

	r := bytes.NewBufferString(raw)
	ctx := context.Background()

	cr := newChunkedReader(ctx, r, 1<<20, Header{})
	data, err := io.ReadAll(cr)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Wikipedia" {
		t.Fatalf("got %q, want %q", data, "Wikipedia")
	}

	// Type assert to concrete type to inspect trailers
	hdr := cr.(*chunkedReader)
	if hdr.header.Get("X-T") != "v" {
		t.Fatalf("missing or invalid trailer, got %#v", hdr.header)
	}
}

func TestChunkedBadEncoding(t *testing.T) {
	raw := "ZZZ\r\nbad\r\n"
	r := bytes.NewBufferString(raw)
	cr := newChunkedReader(context.Background(), r, 1024, Header{})

	_, err := io.ReadAll(cr)
	if err == nil {
		t.Fatal("expected ErrBadChunk for invalid encoding")
	}
}

// -----------------------------------------------------------------------------
// closeReader tests
// -----------------------------------------------------------------------------

func TestCloseReaderEOF(t *testing.T) {
	r := strings.NewReader("abc")
	cr := newCloseReader(context.Background(), r, 0)

	data, err := io.ReadAll(cr)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abc" {
		t.Fatalf("got %q, want %q", data, "abc")
	}
}

// -----------------------------------------------------------------------------
// context cancellation test
// -----------------------------------------------------------------------------

func TestContextCancelDuringRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // immediately cancel

	r := strings.NewReader("abc")
	fr := newFixedReader(ctx, r, 3, 0)

	buf := make([]byte, 2)
	_, err := fr.Read(buf)

	if err == nil {
		t.Fatal("expected context cancellation error")
	}
	if ctx.Err() == nil {
		t.Fatal("expected ctx.Err() to be non-nil")
	}
}

// -----------------------------------------------------------------------------
// StreamHTTPRequestBody tests (scope-facing http.request event shaping)
// -----------------------------------------------------------------------------

func TestStreamHTTPRequestBodyBodyless(t *testing.T) {
	req := &Request{ContentLength: -1}
	events := make(chan app.Event, 1)

	StreamHTTPRequestBody(context.Background(), req, strings.NewReader(""), 0, 64, events)

	ev, ok := (<-events).(app.HTTPRequestEvent)
	if !ok {
		t.Fatal("expected an HTTPRequestEvent")
	}
	if ev.Body != nil || ev.More {
		t.Fatalf("expected a single empty, final event, got %+v", ev)
	}
}

func TestStreamHTTPRequestBodyFixedLength(t *testing.T) {
	req := &Request{ContentLength: 11}
	events := make(chan app.Event, 4)

	StreamHTTPRequestBody(context.Background(), req, strings.NewReader("hello world"), 0, 4, events)
	close(events)

	var got []byte
	var sawFinal bool
	for ev := range events {
		he := ev.(app.HTTPRequestEvent)
		got = append(got, he.Body...)
		if !he.More {
			sawFinal = true
		}
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
	if !sawFinal {
		t.Fatal("expected a final event with More=false")
	}
}

func TestStreamHTTPRequestBodyChunked(t *testing.T) {
	req := &Request{Chunked: true, Header: Header{}}
	raw := "4\r\nWiki\r\n0\r\n\r\n"
	events := make(chan app.Event, 4)

	StreamHTTPRequestBody(context.Background(), req, strings.NewReader(raw), 0, 64, events)
	close(events)

	var got []byte
	for ev := range events {
		got = append(got, ev.(app.HTTPRequestEvent).Body...)
	}
	if string(got) != "Wiki" {
		t.Fatalf("got %q, want %q", got, "Wiki")
	}
}
