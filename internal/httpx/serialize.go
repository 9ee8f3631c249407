package httpx

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"
)

// statusText maps a status code to its reason phrase. Unknown codes fall
// back to "Unknown" per the codec's serialization contract.
var statusText = map[int]string{
	200: "OK", 201: "Created", 202: "Accepted", 204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently", 302: "Found", 303: "See Other",
	304: "Not Modified", 307: "Temporary Redirect", 308: "Permanent Redirect",
	400: "Bad Request", 401: "Unauthorized", 403: "Forbidden", 404: "Not Found",
	405: "Method Not Allowed", 408: "Request Timeout", 409: "Conflict",
	410: "Gone", 411: "Length Required", 413: "Payload Too Large",
	414: "URI Too Long", 415: "Unsupported Media Type",
	426: "Upgrade Required", 428: "Precondition Required",
	429: "Too Many Requests", 431: "Request Header Fields Too Large",
	500: "Internal Server Error", 501: "Not Implemented",
	502: "Bad Gateway", 503: "Service Unavailable", 504: "Gateway Timeout",
}

// StatusText returns the reason phrase for code, or "Unknown" if code is
// not in the fixed table.
func StatusText(code int) string {
	if t, ok := statusText[code]; ok {
		return t
	}
	return "Unknown"
}

// now is overridable in tests so Date-header assertions are deterministic.
var now = time.Now

// SerializeStart writes a response status line and header block. fields
// already containing a Content-Length header disables chunked framing
// regardless of the chunked argument, matching the adapter rule that
// Content-Length takes precedence. When neither Content-Length nor
// Transfer-Encoding is present and chunked is requested, a
// "Transfer-Encoding: chunked" header is added. A Date header is appended
// unless the caller already supplied one.
func SerializeStart(w io.Writer, status int, fields []Field, chunked bool) error {
	bw := bufio.NewWriter(w)
	phrase := StatusText(status)
	if _, err := fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", status, phrase); err != nil {
		return err
	}

	hasContentLength, hasTransferEncoding, hasDate := false, false, false
	for _, f := range fields {
		switch string(f.Name) {
		case "content-length":
			hasContentLength = true
		case "transfer-encoding":
			hasTransferEncoding = true
		case "date":
			hasDate = true
		}
		if _, err := bw.Write(f.Name); err != nil {
			return err
		}
		if _, err := bw.WriteString(": "); err != nil {
			return err
		}
		if _, err := bw.Write(f.Value); err != nil {
			return err
		}
		if _, err := bw.WriteString("\r\n"); err != nil {
			return err
		}
	}

	if !hasContentLength && !hasTransferEncoding && chunked {
		if _, err := bw.WriteString("Transfer-Encoding: chunked\r\n"); err != nil {
			return err
		}
	}
	if !hasDate {
		if _, err := fmt.Fprintf(bw, "Date: %s\r\n", now().UTC().Format(time.RFC1123)); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// SerializeBody writes one http.response.body event's bytes. When chunked
// is true, the chunk is framed as "<hex>\r\n<bytes>\r\n"; when more is
// false the terminating zero-chunk is appended (unless trailers will
// follow — callers that declared trailers:true pass more=true here and
// call SerializeTrailers instead, which emits the zero chunk itself
// followed by trailer fields).
func SerializeBody(w io.Writer, chunk []byte, more bool, chunked bool) error {
	if !chunked {
		if len(chunk) == 0 {
			return nil
		}
		_, err := w.Write(chunk)
		return err
	}

	bw := bufio.NewWriter(w)
	if len(chunk) > 0 {
		if _, err := bw.WriteString(strconv.FormatInt(int64(len(chunk)), 16) + "\r\n"); err != nil {
			return err
		}
		if _, err := bw.Write(chunk); err != nil {
			return err
		}
		if _, err := bw.WriteString("\r\n"); err != nil {
			return err
		}
	}
	if !more {
		if _, err := bw.WriteString("0\r\n\r\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SerializeTrailers writes the terminating zero-chunk followed by trailer
// header fields and the closing blank line. Only valid on a chunked
// response whose http.response.start declared trailers:true.
func SerializeTrailers(w io.Writer, fields []Field) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("0\r\n"); err != nil {
		return err
	}
	for _, f := range fields {
		if _, err := bw.Write(f.Name); err != nil {
			return err
		}
		if _, err := bw.WriteString(": "); err != nil {
			return err
		}
		if _, err := bw.Write(f.Value); err != nil {
			return err
		}
		if _, err := bw.WriteString("\r\n"); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	return bw.Flush()
}
