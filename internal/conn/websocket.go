package conn

import (
	"context"
	"crypto/tls"
	"errors"
	"strconv"

	"github.com/pagi-dev/pagi/app"
	"github.com/pagi-dev/pagi/internal/httpx"
	"github.com/pagi-dev/pagi/internal/scope"
	"github.com/pagi-dev/pagi/internal/ws"
)

// serveWebSocket takes over a connection that presented a valid upgrade
// request: it validates the RFC 6455 handshake, builds a WebSocket scope,
// and runs the application against it until the close handshake completes
// or the transport drops (§4.2's Handshaking → Connected → Closing →
// Closed state machine).
func (c *Conn) serveWebSocket(ctx context.Context, req *httpx.Request) {
	hs, err := ws.ValidateHandshake(req.Header)
	if err != nil {
		c.rejectUpgrade()
		return
	}
	c.wsHandshake = hs

	headers := toHeaderFields(req.Fields)
	client, server := endpoints(c.nc)
	scheme := "ws"
	if _, ok := c.nc.(*tls.Conn); ok {
		scheme = "wss"
	}

	s := app.NewWebSocketScope(c.state, c.loop, c.extensions)
	s.Method, s.Scheme, s.HTTPVersion = req.Method, scheme, req.Proto
	s.Path, s.RawPath, s.QueryString = req.Path, req.RawPath, []byte(req.QueryString)
	s.RootPath, s.Headers, s.Client, s.Server = c.rootPath, headers, client, server

	events := make(chan app.Event, 8)
	events <- app.WebSocketConnectEvent{}

	done := make(chan struct{})
	go c.pumpWebSocketFrames(ctx, events, done)

	adapter := scope.New(app.ScopeWebSocket, c, events)
	if err := c.application.Serve(ctx, s, adapter.Receive, adapter.Send); err != nil {
		c.log.WithError(err).Warn("websocket application returned an error")
	}
	<-done
}

func (c *Conn) rejectUpgrade() {
	body := []byte(httpx.StatusText(400))
	fields := []httpx.Field{
		{Name: []byte("content-length"), Value: []byte(strconv.Itoa(len(body)))},
		{Name: []byte("connection"), Value: []byte("close")},
	}
	_ = httpx.SerializeStart(c.nc, 400, fields, false)
	_ = httpx.SerializeBody(c.nc, body, false, false)
}

// pumpWebSocketFrames reads raw bytes off the transport, parses them into
// frames, reassembles fragmented messages, and answers pings/closes at the
// codec layer before anything application-visible reaches events (§4.2:
// "ping frames ... are not surfaced to the application").
func (c *Conn) pumpWebSocketFrames(ctx context.Context, events chan<- app.Event, done chan struct{}) {
	defer close(events)
	defer close(done)

	asm := ws.NewAssembler(c.wsMaxBytes)
	var buf []byte
	tmp := make([]byte, 4096)

	emit := func(ev app.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// fail sends the close frame matching a codec error, then reports the
	// disconnect with the same code.
	fail := func(err error) {
		code := ws.CloseProtocolError
		if errors.Is(err, ws.ErrInvalidUTF8) {
			code = ws.CloseInvalidPayload
		} else if errors.Is(err, ws.ErrMessageTooLarge) {
			code = ws.CloseMessageTooBig
		}
		c.nc.Write(ws.BuildCloseFrame(code, ""))
		emit(app.WebSocketDisconnectEvent{Code: int(code)})
	}

	for {
		for {
			f, consumed, ok, err := ws.ParseFrame(buf, true)
			if err != nil {
				fail(err)
				return
			}
			if !ok {
				break
			}
			buf = buf[consumed:]

			outcome, ferr := asm.Feed(f)
			if ferr != nil {
				fail(ferr)
				return
			}
			if outcome.Pong != nil {
				if _, werr := c.nc.Write(outcome.Pong); werr != nil {
					emit(app.WebSocketDisconnectEvent{})
					return
				}
			}
			if outcome.GotClose {
				c.nc.Write(outcome.CloseEcho)
				emit(app.WebSocketDisconnectEvent{Code: int(outcome.CloseCode)})
				return
			}
			if outcome.Message != nil {
				ev := app.WebSocketReceiveEvent{}
				if outcome.Message.Text {
					text := string(outcome.Message.Bytes)
					ev.Text = &text
				} else {
					ev.Bytes = outcome.Message.Bytes
				}
				if !emit(ev) {
					return
				}
			}
		}

		n, err := c.nc.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			emit(app.WebSocketDisconnectEvent{})
			return
		}
	}
}
