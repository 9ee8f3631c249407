// Package scope implements the scope/event adapter (component C5): it
// presents the (scope, receive, send) contract to applications, enforces
// per-scope-type event ordering, and forwards validated outbound events to
// a Sink that performs the actual wire I/O. The connection state machine
// (internal/conn) owns the Sink implementation and the inbound event
// production; this package owns only the contract and its invariants.
//
// Built around channel-based request/response plumbing, generalized from
// one request shape into the three live scope kinds plus lifespan, with a
// typed state machine in place of an untyped dict walk.
package scope

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pagi-dev/pagi/app"
)

// ErrUnknownEvent is returned by Send when the application sends an event
// type that is not a member of the current scope's accepted set (§4.5's
// fail-fast contract).
var ErrUnknownEvent = errors.New("scope: unexpected event type for this scope")

// ErrAdapterReused is returned when a WebSocket accept or close event is
// sent after the adapter has already closed. Other events sent after the
// terminal state are dropped without an error.
var ErrAdapterReused = errors.New("scope: adapter already completed")

// Sink is implemented by the connection state machine to perform the wire
// effects of validated outbound events. Adapter never touches the
// transport directly.
type Sink interface {
	StartHTTP(ev app.HTTPResponseStartEvent) error
	BodyHTTP(ev app.HTTPResponseBodyEvent) error
	TrailersHTTP(ev app.HTTPResponseTrailersEvent) error
	FullFlushHTTP() error

	AcceptWebSocket(ev app.WebSocketAcceptEvent) error
	SendWebSocket(ev app.WebSocketSendEvent) error
	CloseWebSocket(ev app.WebSocketCloseEvent) error

	StartSSE(ev app.SSEStartEvent) error
	SendSSE(ev app.SSESendEvent) error
}

// sendPhase tracks where an HTTP response cycle is, so out-of-order or
// repeated events can be dropped per §4.5.
type sendPhase int

const (
	phaseNotStarted sendPhase = iota
	phaseBodyOpen
	phaseTrailersOpen
	phaseDone
)

// Adapter is one instance per application invocation, shared by the
// receive and send closures handed to the application.
type Adapter struct {
	kind app.ScopeType
	sink Sink

	mu          sync.Mutex
	phase       sendPhase
	trailersSet bool // true when the start event declared trailers:true

	incoming <-chan app.Event
}

// New builds an Adapter for one application invocation. incoming is the
// inbound event stream fed by the connection state machine (body chunks,
// disconnects, websocket frames); it is closed when no further events will
// ever arrive.
func New(kind app.ScopeType, sink Sink, incoming <-chan app.Event) *Adapter {
	return &Adapter{kind: kind, sink: sink, incoming: incoming}
}

// Receive implements app.Receive: it returns the next inbound event,
// blocking until one arrives or ctx is canceled.
func (a *Adapter) Receive(ctx context.Context) (app.Event, error) {
	select {
	case ev, ok := <-a.incoming:
		if !ok {
			return disconnectEventFor(a.kind), nil
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func disconnectEventFor(kind app.ScopeType) app.Event {
	switch kind {
	case app.ScopeWebSocket:
		return app.WebSocketDisconnectEvent{}
	case app.ScopeSSE:
		return app.SSEDisconnectEvent{}
	default:
		return app.HTTPDisconnectEvent{}
	}
}

// Send implements app.Send: it validates ev against the current scope's
// accepted event set and ordering state, then forwards it to the Sink.
func (a *Adapter) Send(ctx context.Context, ev app.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.kind {
	case app.ScopeHTTP:
		return a.sendHTTP(ev)
	case app.ScopeWebSocket:
		return a.sendWebSocket(ev)
	case app.ScopeSSE:
		return a.sendSSE(ev)
	default:
		return fmt.Errorf("%w: send is not valid on a %s scope", ErrUnknownEvent, a.kind)
	}
}

// sendHTTP validates an outbound event against the HTTP response phase
// machine. A recognized event type sent in the wrong phase is a valid
// member of the scope's event set arriving out of order, so it is
// silently dropped (§4.5) rather than failed: only ev's own type being
// foreign to the scope reaches ErrUnknownEvent.
func (a *Adapter) sendHTTP(ev app.Event) error {
	switch e := ev.(type) {
	case app.HTTPResponseStartEvent:
		if a.phase != phaseNotStarted {
			return nil
		}
		a.trailersSet = e.Trailers
		a.phase = phaseBodyOpen
		return a.sink.StartHTTP(e)

	case app.HTTPResponseBodyEvent:
		if a.phase != phaseBodyOpen {
			return nil
		}
		if !e.More {
			if a.trailersSet {
				a.phase = phaseTrailersOpen
			} else {
				a.phase = phaseDone
			}
		}
		return a.sink.BodyHTTP(e)

	case app.HTTPResponseTrailersEvent:
		if a.phase != phaseTrailersOpen {
			return nil
		}
		a.phase = phaseDone
		return a.sink.TrailersHTTP(e)

	case app.HTTPResponseFullFlushEvent:
		return a.sink.FullFlushHTTP()

	default:
		return fmt.Errorf("%w: %T on http scope", ErrUnknownEvent, ev)
	}
}

// sendWebSocket validates an outbound event against the WebSocket
// accept/send/close phase machine, applying the same silent-drop rule as
// sendHTTP for a recognized type arriving out of phase. ErrAdapterReused
// is distinct from both: it flags reuse of an already-closed adapter, not
// an ordering mistake within one still-live invocation.
func (a *Adapter) sendWebSocket(ev app.Event) error {
	switch e := ev.(type) {
	case app.WebSocketAcceptEvent:
		if a.phase == phaseDone {
			return ErrAdapterReused
		}
		if a.phase != phaseNotStarted {
			return nil
		}
		a.phase = phaseBodyOpen
		return a.sink.AcceptWebSocket(e)
	case app.WebSocketSendEvent:
		if a.phase != phaseBodyOpen {
			return nil
		}
		return a.sink.SendWebSocket(e)
	case app.WebSocketCloseEvent:
		if a.phase == phaseDone {
			return ErrAdapterReused
		}
		a.phase = phaseDone
		return a.sink.CloseWebSocket(e)
	default:
		return fmt.Errorf("%w: %T on websocket scope", ErrUnknownEvent, ev)
	}
}

// sendSSE validates an outbound event against the SSE start/send phase
// machine, applying the same silent-drop rule as sendHTTP for a
// recognized type arriving out of phase.
func (a *Adapter) sendSSE(ev app.Event) error {
	switch e := ev.(type) {
	case app.SSEStartEvent:
		if a.phase != phaseNotStarted {
			return nil
		}
		a.phase = phaseBodyOpen
		return a.sink.StartSSE(e)
	case app.SSESendEvent:
		if a.phase != phaseBodyOpen {
			return nil
		}
		return a.sink.SendSSE(e)
	default:
		return fmt.Errorf("%w: %T on sse scope", ErrUnknownEvent, ev)
	}
}
