package conn

import (
	"bufio"
	"io"

	"github.com/pagi-dev/pagi/app"
	"github.com/pagi-dev/pagi/internal/httpx"
	"github.com/pagi-dev/pagi/internal/sse"
	"github.com/pagi-dev/pagi/internal/ws"
)

// Conn implements scope.Sink: validated outbound events from the adapter
// land here and become wire bytes. Exactly one of the HTTP, WebSocket, or
// SSE method groups is exercised per connection, matching whichever scope
// kind serveOneRequest/serveWebSocket constructed.

func (c *Conn) StartHTTP(ev app.HTTPResponseStartEvent) error {
	fields := toHTTPXFields(ev.Headers)
	c.httpTrailers = ev.Trailers
	c.httpChunked = !hasField(fields, "content-length")
	return httpx.SerializeStart(c.nc, ev.Status, fields, c.httpChunked)
}

func (c *Conn) BodyHTTP(ev app.HTTPResponseBodyEvent) error {
	if ev.File != "" {
		return c.writeFileBody(ev)
	}
	// With trailers declared, SerializeTrailers writes the zero chunk.
	return httpx.SerializeBody(c.nc, ev.Body, ev.More || c.httpTrailers, c.httpChunked)
}

func (c *Conn) TrailersHTTP(ev app.HTTPResponseTrailersEvent) error {
	return httpx.SerializeTrailers(c.nc, toHTTPXFields(ev.Headers))
}

// FullFlushHTTP implements the fullflush extension (§4.9): a TCP socket
// write already leaves no server-side buffer to flush, so this is a no-op
// unless the transport exposes an explicit Flush (e.g. a buffered test
// double), in which case it is honored.
func (c *Conn) FullFlushHTTP() error {
	if f, ok := c.nc.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (c *Conn) writeFileBody(ev app.HTTPResponseBodyEvent) error {
	rc, err := httpFilePath(ev.File, ev.Offset, ev.Length)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, defaultFileChunkBytes)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			more := rerr == nil
			if err := httpx.SerializeBody(c.nc, buf[:n], more, c.httpChunked); err != nil {
				return err
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return httpx.SerializeBody(c.nc, nil, c.httpTrailers, c.httpChunked)
			}
			return rerr
		}
	}
}

func (c *Conn) StartSSE(ev app.SSEStartEvent) error {
	fields := toHTTPXFields(ev.Headers)
	if !hasField(fields, "content-type") {
		fields = append(fields, httpx.Field{Name: []byte("content-type"), Value: []byte(sse.ContentType)})
	}
	if err := httpx.SerializeStart(c.nc, ev.Status, fields, false); err != nil {
		return err
	}
	c.sseWriter = bufio.NewWriter(c.nc)
	return nil
}

func (c *Conn) SendSSE(ev app.SSESendEvent) error {
	return sse.WriteEvent(c.sseWriter, sse.Event{
		Name: ev.Event, Data: ev.Data, ID: ev.ID, Retry: ev.Retry, HasRetry: ev.HasRetry,
	})
}

func (c *Conn) AcceptWebSocket(ev app.WebSocketAcceptEvent) error {
	fields := []httpx.Field{
		{Name: []byte("upgrade"), Value: []byte("websocket")},
		{Name: []byte("connection"), Value: []byte("Upgrade")},
		{Name: []byte("sec-websocket-accept"), Value: []byte(c.wsHandshake.Accept)},
	}
	if ev.Subprotocol != "" {
		fields = append(fields, httpx.Field{Name: []byte("sec-websocket-protocol"), Value: []byte(ev.Subprotocol)})
	}
	fields = append(fields, toHTTPXFields(ev.Headers)...)
	return httpx.SerializeStart(c.nc, 101, fields, false)
}

func (c *Conn) SendWebSocket(ev app.WebSocketSendEvent) error {
	var frame []byte
	if ev.Text != nil {
		frame = ws.BuildFrame(ws.OpText, []byte(*ev.Text), true)
	} else {
		frame = ws.BuildFrame(ws.OpBinary, ev.Bytes, true)
	}
	_, err := c.nc.Write(frame)
	return err
}

func (c *Conn) CloseWebSocket(ev app.WebSocketCloseEvent) error {
	frame := ws.BuildCloseFrame(ws.CloseCode(ev.Code), ev.Reason)
	_, err := c.nc.Write(frame)
	return err
}

func hasField(fields []httpx.Field, name string) bool {
	for _, f := range fields {
		if string(f.Name) == name {
			return true
		}
	}
	return false
}
