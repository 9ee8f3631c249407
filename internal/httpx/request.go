package httpx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pagi-dev/pagi/internal/netx"
)

// requestLine models the first line of an HTTP/1.x request.
type requestLine struct {
	Method     string
	RequestURI string
	Proto      string
	ProtoMajor int
	ProtoMinor int
}

// String returns the serialized form of the request line.
func (r requestLine) String() string {
	return fmt.Sprintf("%s %s %s", r.Method, r.RequestURI, r.Proto)
}

// ErrBadRequest flags a malformed request line or header section; the
// connection state machine turns this into a synthetic 400 response.
var ErrBadRequest = errors.New("httpx: bad request")

// Request is a fully parsed HTTP/1.x request: request line, headers, and
// the framing information needed to build the scope and the http.request
// body stream.
type Request struct {
	requestLine

	// RawPath is the exact on-the-wire path bytes (percent-encoded).
	RawPath string
	// Path is RawPath, percent-decoded to UTF-8 text.
	Path string
	// QueryString is the raw query bytes, not decoded.
	QueryString string

	Host string

	// Fields is the ordered, lowercase-named header sequence, with
	// repeated Cookie lines coalesced (scope contract shape).
	Fields []Field
	// Header is the canonicalized lookup form, used internally by body
	// framing and response construction.
	Header Header

	ContentLength int64 // -1 if absent
	Chunked       bool

	ctx context.Context
}

// ParseLimits controls how many bytes can be read from a request line or
// headers before the codec gives up.
type ParseLimits struct {
	MaxLineBytes    int
	MaxHeaderBytes  int
	MaxHeaderLimits HeaderLimits
}

// DefaultParseLimits mirrors common production defaults (8KiB per line,
// 64KiB header section, 100 distinct fields).
func DefaultParseLimits() ParseLimits {
	return ParseLimits{
		MaxLineBytes:   8 * 1024,
		MaxHeaderBytes: 64 * 1024,
		MaxHeaderLimits: HeaderLimits{
			MaxFields:           100,
			MaxKeyBytes:         256,
			MaxValueBytes:       8 * 1024,
			MaxTotalValuesBytes: 64 * 1024,
		},
	}
}

// ParseRequest reads and parses a request line plus its header section
// from r. It returns an error wrapping ErrHeaderTooLarge (mapped to 431 by
// the caller) when the header section exceeds limits.MaxHeaderBytes, and
// an error wrapping ErrBadRequest (mapped to 400) for any other malformed
// input.
func ParseRequest(r *netx.CRLFFastReader, limits ParseLimits) (*Request, error) {
	line, _, err := r.ReadLine(limits.MaxLineBytes)
	if err != nil {
		if errors.Is(err, netx.ErrLineTooLong) {
			return nil, fmt.Errorf("%w: request line", ErrHeaderTooLarge)
		}
		return nil, err
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty request line", ErrBadRequest)
	}

	rl, err := parseRequestLine(string(line))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	u, err := ParseRequestURI(rl.RequestURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	decodedPath, err := DecodePercent(u.RawPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	req := &Request{
		requestLine:   rl,
		RawPath:       u.RawPath,
		Path:          decodedPath,
		QueryString:   u.QueryString,
		Header:        make(Header),
		ContentLength: -1,
		ctx:           context.Background(),
	}
	if u.Host != "" {
		req.Host = strings.ToLower(u.Host)
	}

	var appender FieldAppender
	headerBytes := 0
	for {
		hline, _, herr := r.ReadLine(limits.MaxLineBytes)
		if herr != nil {
			if errors.Is(herr, netx.ErrLineTooLong) {
				return nil, fmt.Errorf("%w: header line", ErrHeaderTooLarge)
			}
			return nil, herr
		}
		if len(hline) == 0 {
			break // blank line ends the header section
		}
		headerBytes += len(hline) + 2
		if limits.MaxHeaderBytes > 0 && headerBytes > limits.MaxHeaderBytes {
			return nil, fmt.Errorf("%w: header section", ErrHeaderTooLarge)
		}

		i := indexByte(hline, ':')
		if i <= 0 {
			return nil, fmt.Errorf("%w: malformed header line %q", ErrBadRequest, hline)
		}
		name := strings.TrimSpace(string(hline[:i]))
		value := strings.TrimSpace(string(hline[i+1:]))
		canon := CanonicalHeaderKey(name)
		req.Header.Add(canon, value)
		appender.Add(name, value)
	}
	req.Fields = appender.Fields()

	if err := ValidateHeader(req.Header, limits.MaxHeaderLimits); err != nil {
		if errors.Is(err, ErrHeaderTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	if req.Host == "" {
		req.Host = strings.ToLower(req.Header.Get("Host"))
	}

	if strings.EqualFold(req.Header.Get("Transfer-Encoding"), "chunked") {
		req.Chunked = true
	} else if cl := req.Header.Get("Content-Length"); cl != "" {
		n, perr := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if perr != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid Content-Length", ErrBadRequest)
		}
		req.ContentLength = n
	}

	return req, nil
}

// ParseRequestWithContext is ParseRequest with an early exit if ctx is
// already done before parsing begins. Once parsing has started, ctx is not
// consulted again: a read blocked on the connection is not interrupted.
func ParseRequestWithContext(ctx context.Context, r *netx.CRLFFastReader, limits ParseLimits) (*Request, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	req, err := ParseRequest(r, limits)
	if err != nil {
		return nil, err
	}
	req.ctx = ctx
	return req, nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// parseRequestLine parses "METHOD SP Request-URI SP HTTP/x.y".
func parseRequestLine(line string) (rl requestLine, err error) {
	// Be tolerant of multiple spaces or tabs.
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return rl, fmt.Errorf("malformed request line: %q", line)
	}

	method := parts[0]
	target := parts[1]
	proto := parts[2]

	if len(method) == 0 || len(method) > 20 {
		return rl, fmt.Errorf("invalid method: %q", method)
	}
	for _, c := range method {
		if c < 'A' || c > 'Z' {
			return rl, fmt.Errorf("method must be uppercase A-Z: %q", method)
		}
	}

	if !strings.HasPrefix(proto, "HTTP/") {
		return rl, fmt.Errorf("invalid protocol: %q", proto)
	}
	ver := strings.TrimPrefix(proto, "HTTP/")
	dot := strings.IndexByte(ver, '.')
	if dot < 0 {
		return rl, fmt.Errorf("invalid HTTP version: %q", proto)
	}
	major, err1 := strconv.Atoi(ver[:dot])
	minor, err2 := strconv.Atoi(ver[dot+1:])
	if err1 != nil || err2 != nil {
		return rl, fmt.Errorf("invalid HTTP version numbers: %q", proto)
	}

	rl = requestLine{
		Method:     method,
		RequestURI: target,
		Proto:      proto,
		ProtoMajor: major,
		ProtoMinor: minor,
	}
	return rl, nil
}

// Context returns the request's context.
func (r *Request) Context() context.Context {
	if r == nil || r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with its context replaced by ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	if r == nil {
		return nil
	}
	cp := *r
	cp.ctx = ctx
	return &cp
}

// KeepAlive reports whether the connection should remain open after this
// request's response completes, per HTTP/1.1 persistent-connection rules.
func (r *Request) KeepAlive() bool {
	conn := strings.ToLower(r.Header.Get("Connection"))
	if r.ProtoMajor == 1 && r.ProtoMinor == 0 {
		return conn == "keep-alive"
	}
	return conn != "close"
}

// String returns a human-readable representation of the request line.
func (r *Request) String() string {
	if r == nil {
		return "<nil request>"
	}
	return r.requestLine.String()
}
