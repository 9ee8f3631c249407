// Package psgi implements the optional synchronous bridge (component
// C10): it wraps a plain request-in/response-out Handler so it can run
// as a PAGI Application, buffering the request body into an Env and
// polling the handler's response body until exhausted instead of
// requiring the handler to speak events at all.
package psgi

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/pagi-dev/pagi/app"
	"github.com/pagi-dev/pagi/internal/httpx"
)

// Env is the synchronous request environment built from one HTTP scope
// plus its fully-read body, handed to a Handler in place of PSGI's
// environment dictionary.
type Env struct {
	Method      string
	Path        string
	RawPath     string
	QueryString string
	HTTPVersion string
	Scheme      string
	Headers     httpx.Header
	RemoteHost  string
	RemotePort  int
	Body        io.Reader
	State       *app.State
}

// Handler is a synchronous request handler: read Env.Body, return a
// complete or streaming Response.
type Handler func(ctx context.Context, env *Env) (*httpx.Response, error)

// Adapter runs a Handler as a PAGI Application under an HTTP scope.
type Adapter struct {
	handler Handler
}

// New wraps handler as an app.Application.
func New(handler Handler) *Adapter {
	return &Adapter{handler: handler}
}

// Serve implements app.Application. sc must be *app.HTTPScope; any other
// scope kind is a programming error in how the adapter was wired up.
func (a *Adapter) Serve(ctx context.Context, sc app.Scope, receive app.Receive, send app.Send) error {
	hs, ok := sc.(*app.HTTPScope)
	if !ok {
		return nil
	}

	body, err := readFullBody(ctx, receive)
	if err != nil {
		return err
	}

	env := &Env{
		Method:      hs.Method,
		Path:        hs.Path,
		RawPath:     hs.RawPath,
		QueryString: string(hs.QueryString),
		HTTPVersion: hs.HTTPVersion,
		Scheme:      hs.Scheme,
		Headers:     headerFromFields(hs.Headers),
		RemoteHost:  hs.Client.Host,
		RemotePort:  hs.Client.Port,
		Body:        bytes.NewReader(body),
		State:       hs.State,
	}

	resp, err := a.handler(ctx, env)
	if err != nil {
		return writeInternalError(ctx, send)
	}
	return writeResponse(ctx, send, resp)
}

func readFullBody(ctx context.Context, receive app.Receive) ([]byte, error) {
	var buf bytes.Buffer
	for {
		ev, err := receive(ctx)
		if err != nil {
			return nil, err
		}
		switch e := ev.(type) {
		case app.HTTPRequestEvent:
			buf.Write(e.Body)
			if !e.More {
				return buf.Bytes(), nil
			}
		case app.HTTPDisconnectEvent:
			return buf.Bytes(), nil
		}
	}
}

// writeResponse emits http.response.start plus one or more
// http.response.body events, polling resp.Body until exhausted so a
// handler that streams its response body doesn't need to be fully
// buffered here.
func writeResponse(ctx context.Context, send app.Send, resp *httpx.Response) error {
	headers := fieldsFromHeader(resp.Header)
	if err := send(ctx, app.HTTPResponseStartEvent{Status: resp.StatusCode, Headers: headers}); err != nil {
		return err
	}

	if resp.Body == nil {
		return send(ctx, app.HTTPResponseBodyEvent{More: false})
	}

	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			more := rerr == nil
			if err := send(ctx, app.HTTPResponseBodyEvent{Body: chunk, More: more}); err != nil {
				return err
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				if n == 0 {
					return send(ctx, app.HTTPResponseBodyEvent{More: false})
				}
				return nil
			}
			return rerr
		}
	}
}

// writeInternalError answers a handler failure with a bare 500 and no
// leaked detail.
func writeInternalError(ctx context.Context, send app.Send) error {
	body := []byte(httpx.StatusText(500))
	if err := send(ctx, app.HTTPResponseStartEvent{Status: 500, Headers: []app.HeaderField{
		{Name: []byte("content-length"), Value: []byte(strconv.Itoa(len(body)))},
		{Name: []byte("content-type"), Value: []byte("text/plain; charset=utf-8")},
	}}); err != nil {
		return err
	}
	return send(ctx, app.HTTPResponseBodyEvent{Body: body, More: false})
}

func headerFromFields(fields []app.HeaderField) httpx.Header {
	h := make(httpx.Header, len(fields))
	for _, f := range fields {
		h.Add(string(f.Name), string(f.Value))
	}
	return h
}

// fieldsFromHeader lowers a handler's httpx.Header response headers into
// the scope contract's lowercase-named field sequence, coalescing Cookie
// lines the way request parsing does (see httpx.Header.OrderedFields).
func fieldsFromHeader(h httpx.Header) []app.HeaderField {
	ordered := h.OrderedFields()
	out := make([]app.HeaderField, len(ordered))
	for i, f := range ordered {
		out[i] = app.HeaderField{Name: f.Name, Value: f.Value}
	}
	return out
}
