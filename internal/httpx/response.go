package httpx

import "io"

// Response is the response shape internal/psgi hands to and receives from
// a synchronous Handler: a PSGI-style "build the whole response, then
// return it" value, distinct from the wire path internal/conn drives
// through SerializeStart/SerializeBody/SerializeTrailers one event at a
// time. Proto and Status are carried through for handlers that want to set
// them explicitly; the psgi bridge itself only forwards StatusCode.
type Response struct {
	Proto      string    // e.g. "HTTP/1.1" (defaults to "HTTP/1.1" if empty)
	StatusCode int       // e.g. 200
	Status     string    // e.g. "OK"
	Header     Header    // response headers
	Body       io.Reader // may be nil
}
