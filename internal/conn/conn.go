// Package conn implements the per-connection protocol state machine
// (component C4): it owns one accepted transport, drives the HTTP/1.1
// codec across requests, switches to the WebSocket codec on a valid
// upgrade, and bridges decoded wire activity to the application through
// the scope/event adapter (internal/scope). Built as one goroutine per
// connection doing ordinary blocking reads/writes — Go's scheduler
// already gives each connection cooperative suspension at every receive
// and send point, so no explicit event-loop bookkeeping is needed here
// (see the concurrency notes in the design log).
package conn

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pagi-dev/pagi/app"
	"github.com/pagi-dev/pagi/internal/httpx"
	"github.com/pagi-dev/pagi/internal/netx"
	"github.com/pagi-dev/pagi/internal/scope"
	"github.com/pagi-dev/pagi/internal/sse"
	"github.com/pagi-dev/pagi/internal/ws"
)

const defaultFileChunkBytes = 64 * 1024

// Conn owns one accepted transport end to end: request parsing, the
// response/frame/event-stream sink, and the persistent-connection loop.
type Conn struct {
	id          string
	nc          net.Conn
	application app.Application
	state       *app.State
	loop        app.Loop
	limits      httpx.ParseLimits
	maxBody     int64
	extensions  map[string]any
	rootPath    string
	wsMaxBytes  int
	log         *logrus.Entry

	// per-request sink state
	httpChunked  bool
	httpTrailers bool
	wsHandshake  *ws.Handshake
	sseWriter    *bufio.Writer

	onRequest func()
}

// Option configures a Conn at construction time.
type Option func(*Conn)

func WithParseLimits(l httpx.ParseLimits) Option { return func(c *Conn) { c.limits = l } }
func WithMaxBodyBytes(n int64) Option            { return func(c *Conn) { c.maxBody = n } }
func WithExtensions(ext map[string]any) Option   { return func(c *Conn) { c.extensions = ext } }
func WithRootPath(p string) Option               { return func(c *Conn) { c.rootPath = p } }
func WithWebSocketMaxMessageBytes(n int) Option   { return func(c *Conn) { c.wsMaxBytes = n } }
func WithLogger(log *logrus.Entry) Option         { return func(c *Conn) { c.log = log } }

// WithOnRequest registers a callback invoked once per completed HTTP
// request (after the application's Serve call returns, win or lose). The
// acceptor uses this to count requests served toward a worker's
// max_requests drain threshold.
func WithOnRequest(fn func()) Option { return func(c *Conn) { c.onRequest = fn } }

// New builds a Conn ready to Serve over nc. state and loop are shared
// across every connection in the worker process (lifespan owns state;
// the acceptor owns loop).
func New(nc net.Conn, application app.Application, state *app.State, loop app.Loop, opts ...Option) *Conn {
	c := &Conn{
		id:          uuid.NewString(),
		nc:          nc,
		application: application,
		state:       state,
		loop:        loop,
		limits:      httpx.DefaultParseLimits(),
		maxBody:     10 << 20,
		wsMaxBytes:  1 << 20,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logrus.NewEntry(logrus.StandardLogger())
	}
	c.log = c.log.WithField("conn_id", c.id)
	return c
}

// ID returns the connection's correlation identifier, stable for the life
// of the connection and present on every log line it emits.
func (c *Conn) ID() string { return c.id }

// Serve drives the connection to completion: one HTTP request at a time
// over a persistent connection (§4.4), switching permanently to the
// WebSocket codec on a valid upgrade request, until the transport closes
// or a fatal protocol error ends it.
func (c *Conn) Serve(ctx context.Context) {
	defer c.nc.Close()

	r := netx.NewCRLFFastReader(c.nc)
	for {
		req, err := httpx.ParseRequestWithContext(ctx, r, c.limits)
		if err != nil {
			c.handleParseError(err)
			return
		}
		req = req.WithContext(ctx)

		if isWebSocketUpgrade(req) {
			c.serveWebSocket(ctx, req)
			return
		}

		keepAlive := c.serveOneRequest(ctx, req, r)
		if !keepAlive {
			return
		}
	}
}

// handleParseError writes a synthetic 400/431 response when the failure
// happened before any response could have started, and is silent
// otherwise — an ordinary connection close is not a protocol violation.
func (c *Conn) handleParseError(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	status := 400
	switch {
	case errors.Is(err, httpx.ErrHeaderTooLarge):
		status = 431
	case errors.Is(err, httpx.ErrBadRequest):
		status = 400
	default:
		return // transport-level error; nothing coherent to write back
	}

	body := []byte(httpx.StatusText(status))
	fields := []httpx.Field{
		{Name: []byte("content-length"), Value: []byte(strconv.Itoa(len(body)))},
		{Name: []byte("content-type"), Value: []byte("text/plain; charset=utf-8")},
		{Name: []byte("connection"), Value: []byte("close")},
	}
	_ = httpx.SerializeStart(c.nc, status, fields, false)
	_ = httpx.SerializeBody(c.nc, body, false, false)
}

// serveOneRequest builds a scope for req, runs the application against it,
// and reports whether the connection may serve another request.
func (c *Conn) serveOneRequest(ctx context.Context, req *httpx.Request, r *netx.CRLFFastReader) (keepAlive bool) {
	c.httpChunked = false
	c.httpTrailers = false

	kind := scopeKindFor(req)
	headers := toHeaderFields(req.Fields)
	client, server := endpoints(c.nc)

	events := make(chan app.Event, 4)
	go c.pumpHTTPBody(ctx, req, r, events)

	scheme := "http"
	if _, ok := c.nc.(*tls.Conn); ok {
		scheme = "https"
	}

	var sc app.Scope
	switch kind {
	case app.ScopeSSE:
		s := app.NewSSEScope(c.state, c.loop, c.extensions)
		s.Method, s.Scheme, s.HTTPVersion = req.Method, scheme, req.Proto
		s.Path, s.RawPath, s.QueryString = req.Path, req.RawPath, []byte(req.QueryString)
		s.RootPath, s.Headers, s.Client, s.Server = c.rootPath, headers, client, server
		sc = s
	default:
		s := app.NewHTTPScope(c.state, c.loop, c.extensions)
		s.Method, s.Scheme, s.HTTPVersion = req.Method, scheme, req.Proto
		s.Path, s.RawPath, s.QueryString = req.Path, req.RawPath, []byte(req.QueryString)
		s.RootPath, s.Headers, s.Client, s.Server = c.rootPath, headers, client, server
		sc = s
	}

	adapter := scope.New(kind, c, events)
	err := c.application.Serve(ctx, sc, adapter.Receive, adapter.Send)
	if err != nil {
		c.log.WithError(err).Warn("application returned an error")
	}
	if c.onRequest != nil {
		c.onRequest()
	}

	if !req.KeepAlive() {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// scopeKindFor decides whether an incoming request is handled as a plain
// HTTP exchange or an SSE stream. The wire spec names both as valid
// response-start phases for the same request; absent a routing layer, this
// server picks by content negotiation: a client asking for
// text/event-stream gets an SSE scope (see the design log's decision on
// this point).
func scopeKindFor(req *httpx.Request) app.ScopeType {
	if strings.Contains(strings.ToLower(req.Header.Get("Accept")), "text/event-stream") {
		return app.ScopeSSE
	}
	return app.ScopeHTTP
}

// pumpHTTPBody streams the request body into events as http.request
// events, closing events (which Adapter.Receive turns into the scope's
// disconnect event) once the body is exhausted or the connection ends.
//
// Unlike a response, a request body is only ever framed by
// Content-Length or chunked Transfer-Encoding; reading until connection
// close here would stall a persistent connection forever waiting for a
// close that never comes, so httpx.StreamHTTPRequestBody treats the
// absence of both as a bodyless request rather than falling back to
// read-until-close.
func (c *Conn) pumpHTTPBody(ctx context.Context, req *httpx.Request, r *netx.CRLFFastReader, events chan<- app.Event) {
	defer close(events)
	httpx.StreamHTTPRequestBody(ctx, req, r, c.maxBody, defaultFileChunkBytes, events)
}

func isWebSocketUpgrade(req *httpx.Request) bool {
	return strings.EqualFold(strings.TrimSpace(req.Header.Get("Upgrade")), "websocket")
}

func endpoints(nc net.Conn) (client, server app.Endpoint) {
	client = parseEndpoint(nc.RemoteAddr())
	server = parseEndpoint(nc.LocalAddr())
	return client, server
}

func parseEndpoint(addr net.Addr) app.Endpoint {
	if addr == nil {
		return app.Endpoint{}
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return app.Endpoint{Host: addr.String()}
	}
	port, _ := strconv.Atoi(portStr)
	return app.Endpoint{Host: host, Port: port}
}

func toHeaderFields(fields []httpx.Field) []app.HeaderField {
	out := make([]app.HeaderField, len(fields))
	for i, f := range fields {
		out[i] = app.HeaderField{Name: f.Name, Value: f.Value}
	}
	return out
}

func toHTTPXFields(fields []app.HeaderField) []httpx.Field {
	out := make([]httpx.Field, len(fields))
	for i, f := range fields {
		out[i] = httpx.Field{Name: f.Name, Value: f.Value}
	}
	return out
}

// httpFilePath opens a file for a file-bodied http.response.body event and
// returns a reader positioned at Offset, bounded to Length bytes when
// Length > 0.
func httpFilePath(path string, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	if length > 0 {
		return struct {
			io.Reader
			io.Closer
		}{io.LimitReader(f, length), f}, nil
	}
	return f, nil
}
