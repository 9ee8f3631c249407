package main

import (
	"context"
	"strconv"

	"github.com/pagi-dev/pagi/app"
)

// newDemoApplication returns the built-in application pagid runs when no
// application has been wired in by an embedder: a 200 OK for every HTTP
// request, an echo for every WebSocket message, and a three-beat SSE
// heartbeat. It exists so `pagid serve` is runnable and inspectable on its
// own; real deployments embed internal/acceptor and internal/lifespan in
// their own main with their own Application instead of this one.
func newDemoApplication() app.Application {
	return app.ApplicationFunc(func(ctx context.Context, sc app.Scope, receive app.Receive, send app.Send) error {
		switch sc.Kind() {
		case app.ScopeLifespan:
			return serveDemoLifespan(ctx, receive, send)
		case app.ScopeHTTP:
			return serveDemoHTTP(ctx, receive, send)
		case app.ScopeWebSocket:
			return serveDemoWebSocket(ctx, receive, send)
		case app.ScopeSSE:
			return serveDemoSSE(ctx, sc, send)
		default:
			return nil
		}
	})
}

func serveDemoLifespan(ctx context.Context, receive app.Receive, send app.Send) error {
	for {
		ev, err := receive(ctx)
		if err != nil {
			return err
		}
		switch ev.(type) {
		case app.LifespanStartupEvent:
			if err := send(ctx, app.LifespanStartupCompleteEvent{}); err != nil {
				return err
			}
		case app.LifespanShutdownEvent:
			return send(ctx, app.LifespanShutdownCompleteEvent{})
		}
	}
}

func serveDemoHTTP(ctx context.Context, receive app.Receive, send app.Send) error {
	for {
		ev, err := receive(ctx)
		if err != nil {
			return err
		}
		if e, ok := ev.(app.HTTPRequestEvent); ok && !e.More {
			break
		}
		if _, ok := ev.(app.HTTPDisconnectEvent); ok {
			return nil
		}
	}

	body := []byte("pagid\n")
	if err := send(ctx, app.HTTPResponseStartEvent{Status: 200, Headers: []app.HeaderField{
		{Name: []byte("content-type"), Value: []byte("text/plain; charset=utf-8")},
		{Name: []byte("content-length"), Value: []byte(strconv.Itoa(len(body)))},
	}}); err != nil {
		return err
	}
	return send(ctx, app.HTTPResponseBodyEvent{Body: body, More: false})
}

func serveDemoWebSocket(ctx context.Context, receive app.Receive, send app.Send) error {
	if _, err := receive(ctx); err != nil {
		return err
	}
	if err := send(ctx, app.WebSocketAcceptEvent{}); err != nil {
		return err
	}
	for {
		ev, err := receive(ctx)
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case app.WebSocketReceiveEvent:
			if err := send(ctx, app.WebSocketSendEvent{Text: e.Text, Bytes: e.Bytes}); err != nil {
				return err
			}
		case app.WebSocketDisconnectEvent:
			return nil
		}
	}
}

func serveDemoSSE(ctx context.Context, sc app.Scope, send app.Send) error {
	if err := send(ctx, app.SSEStartEvent{Status: 200}); err != nil {
		return err
	}
	loop := sc.CommonFields().Pagi.Loop
	for i := 0; i < 3; i++ {
		if err := send(ctx, app.SSESendEvent{Event: "tick", Data: strconv.Itoa(i)}); err != nil {
			return err
		}
		if loop == nil {
			continue
		}
		select {
		case <-loop.After(int64(1e9)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
