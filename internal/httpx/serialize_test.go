package httpx

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestSerializeStartAddsChunkedAndDate(t *testing.T) {
	defer func(orig func() time.Time) { now = orig }(now)
	now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	var buf bytes.Buffer
	fields := []Field{{Name: []byte("content-type"), Value: []byte("text/plain")}}
	if err := SerializeStart(&buf, 200, fields, true); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	if !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("bad status line: %q", got)
	}
	if !strings.Contains(got, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("missing chunked header: %q", got)
	}
	if !strings.Contains(got, "Date: ") {
		t.Fatalf("missing Date header: %q", got)
	}
}

func TestSerializeStartRespectsContentLength(t *testing.T) {
	var buf bytes.Buffer
	fields := []Field{{Name: []byte("content-length"), Value: []byte("5")}}
	if err := SerializeStart(&buf, 200, fields, true); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "Transfer-Encoding") {
		t.Fatalf("chunked header should be suppressed when Content-Length present: %q", buf.String())
	}
}

func TestSerializeStartUnknownStatus(t *testing.T) {
	var buf bytes.Buffer
	if err := SerializeStart(&buf, 499, nil, false); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "HTTP/1.1 499 Unknown\r\n") {
		t.Fatalf("expected Unknown phrase, got %q", buf.String())
	}
}

func TestSerializeBodyChunkedSequence(t *testing.T) {
	var buf bytes.Buffer
	if err := SerializeBody(&buf, []byte("Hi"), false, true); err != nil {
		t.Fatal(err)
	}
	want := "2\r\nHi\r\n0\r\n\r\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}

func TestSerializeBodyFixedLength(t *testing.T) {
	var buf bytes.Buffer
	if err := SerializeBody(&buf, []byte("abc"), false, false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "abc" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestSerializeTrailers(t *testing.T) {
	var buf bytes.Buffer
	fields := []Field{{Name: []byte("x-checksum"), Value: []byte("abc123")}}
	if err := SerializeTrailers(&buf, fields); err != nil {
		t.Fatal(err)
	}
	want := "0\r\nx-checksum: abc123\r\n\r\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}
