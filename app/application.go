package app

import "context"

// Receive returns the next event for a scope, blocking until one is
// available. It never returns (nil, nil); a non-nil error is fatal to the
// call (e.g. ctx cancellation).
type Receive func(ctx context.Context) (Event, error)

// Send delivers one event to the server, enforcing per-scope ordering
// (§4.5). An event type foreign to the scope returns a typed error (see
// internal/scope); a recognized event sent out of phase is dropped and
// returns nil. Calling it after the connection has gone away is not a
// no-op: the error from the failed transport write is returned.
type Send func(ctx context.Context, ev Event) error

// Application is the three-argument callable contract: given a scope and
// the receive/send functions bound to it, drive the interaction to
// completion and return. The server never calls methods on an Application
// concurrently for the same scope; different scopes may run concurrently
// in the same worker process.
type Application interface {
	Serve(ctx context.Context, scope Scope, receive Receive, send Send) error
}

// ApplicationFunc adapts a plain function to the Application interface,
// the same shape as http.HandlerFunc adapts a function to http.Handler.
type ApplicationFunc func(ctx context.Context, scope Scope, receive Receive, send Send) error

func (f ApplicationFunc) Serve(ctx context.Context, scope Scope, receive Receive, send Send) error {
	return f(ctx, scope, receive, send)
}
