package app

// EventType names one of the fixed per-scope event schemas in §6.
type EventType string

const (
	EventHTTPRequest    EventType = "http.request"
	EventHTTPDisconnect EventType = "http.disconnect"

	EventHTTPResponseStart    EventType = "http.response.start"
	EventHTTPResponseBody     EventType = "http.response.body"
	EventHTTPResponseTrailers EventType = "http.response.trailers"
	EventHTTPResponseFlush    EventType = "http.response.fullflush"

	EventWebSocketConnect    EventType = "websocket.connect"
	EventWebSocketReceive    EventType = "websocket.receive"
	EventWebSocketDisconnect EventType = "websocket.disconnect"
	EventWebSocketAccept     EventType = "websocket.accept"
	EventWebSocketSend       EventType = "websocket.send"
	EventWebSocketClose      EventType = "websocket.close"

	EventSSEStart      EventType = "sse.start"
	EventSSESend       EventType = "sse.send"
	EventSSEDisconnect EventType = "sse.disconnect"

	EventLifespanStartup         EventType = "lifespan.startup"
	EventLifespanStartupComplete EventType = "lifespan.startup.complete"
	EventLifespanStartupFailed   EventType = "lifespan.startup.failed"
	EventLifespanShutdown        EventType = "lifespan.shutdown"
	EventLifespanShutdownComplete EventType = "lifespan.shutdown.complete"
)

// Event is implemented by every concrete event struct. The untyped
// {type:...} dictionaries of the source spec are boundary-only in this
// implementation: internally everything is one of these Go types, and a
// type switch replaces a dynamic "type" field lookup (§9).
type Event interface {
	EventType() EventType
}

// --- HTTP request-side ---

type HTTPRequestEvent struct {
	Body []byte
	More bool
}

func (HTTPRequestEvent) EventType() EventType { return EventHTTPRequest }

type HTTPDisconnectEvent struct{}

func (HTTPDisconnectEvent) EventType() EventType { return EventHTTPDisconnect }

// --- HTTP response-side ---

type HTTPResponseStartEvent struct {
	Status   int
	Headers  []HeaderField
	Trailers bool
}

func (HTTPResponseStartEvent) EventType() EventType { return EventHTTPResponseStart }

// HTTPResponseBodyEvent carries either inline Body bytes or a file
// reference (File non-empty); §4.10's file:<path> form is canonical, the
// raw file-handle variant is not implemented (§9 open question).
type HTTPResponseBodyEvent struct {
	Body   []byte
	File   string
	Offset int64
	Length int64
	More   bool
}

func (HTTPResponseBodyEvent) EventType() EventType { return EventHTTPResponseBody }

type HTTPResponseTrailersEvent struct {
	Headers []HeaderField
}

func (HTTPResponseTrailersEvent) EventType() EventType { return EventHTTPResponseTrailers }

// HTTPResponseFullFlushEvent is only valid when the "fullflush" extension
// was advertised on the scope (§4.9).
type HTTPResponseFullFlushEvent struct{}

func (HTTPResponseFullFlushEvent) EventType() EventType { return EventHTTPResponseFlush }

// --- WebSocket request-side ---

type WebSocketConnectEvent struct{}

func (WebSocketConnectEvent) EventType() EventType { return EventWebSocketConnect }

// WebSocketReceiveEvent carries exactly one of Text or Bytes, matching
// which frame opcode (text vs binary) the assembled message used.
type WebSocketReceiveEvent struct {
	Text  *string
	Bytes []byte
}

func (WebSocketReceiveEvent) EventType() EventType { return EventWebSocketReceive }

type WebSocketDisconnectEvent struct {
	Code int
}

func (WebSocketDisconnectEvent) EventType() EventType { return EventWebSocketDisconnect }

// --- WebSocket response-side ---

type WebSocketAcceptEvent struct {
	Subprotocol string
	Headers     []HeaderField
}

func (WebSocketAcceptEvent) EventType() EventType { return EventWebSocketAccept }

type WebSocketSendEvent struct {
	Text  *string
	Bytes []byte
}

func (WebSocketSendEvent) EventType() EventType { return EventWebSocketSend }

type WebSocketCloseEvent struct {
	Code   int
	Reason string
}

func (WebSocketCloseEvent) EventType() EventType { return EventWebSocketClose }

// --- SSE response-side / request-side disconnect ---

type SSEStartEvent struct {
	Status  int
	Headers []HeaderField
}

func (SSEStartEvent) EventType() EventType { return EventSSEStart }

type SSESendEvent struct {
	Event    string
	Data     string
	ID       string
	Retry    int
	HasRetry bool
}

func (SSESendEvent) EventType() EventType { return EventSSESend }

type SSEDisconnectEvent struct{}

func (SSEDisconnectEvent) EventType() EventType { return EventSSEDisconnect }

// --- Lifespan ---

type LifespanStartupEvent struct{}

func (LifespanStartupEvent) EventType() EventType { return EventLifespanStartup }

type LifespanStartupCompleteEvent struct{}

func (LifespanStartupCompleteEvent) EventType() EventType { return EventLifespanStartupComplete }

type LifespanStartupFailedEvent struct {
	Message string
}

func (LifespanStartupFailedEvent) EventType() EventType { return EventLifespanStartupFailed }

type LifespanShutdownEvent struct{}

func (LifespanShutdownEvent) EventType() EventType { return EventLifespanShutdown }

type LifespanShutdownCompleteEvent struct{}

func (LifespanShutdownCompleteEvent) EventType() EventType { return EventLifespanShutdownComplete }
