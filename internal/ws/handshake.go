// Package ws implements the RFC 6455 WebSocket handshake and frame codec:
// handshake validation, frame parsing/serialization, fragmentation
// assembly, and control-frame validation, built as a reusable codec
// rather than a single handler function.
package ws

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/pagi-dev/pagi/internal/httpx"
)

// wsGUID is the fixed magic string combined with Sec-WebSocket-Key to
// compute Sec-WebSocket-Accept (RFC 6455 §1.3).
const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ErrHandshake means the request did not satisfy RFC 6455's upgrade
// preconditions; the connection should fail with 400 Bad Request.
var ErrHandshake = errors.New("ws: invalid handshake")

// Handshake holds the negotiated values from a validated upgrade request.
type Handshake struct {
	Accept      string   // value for the Sec-WebSocket-Accept response header
	Subprotocols []string // client-offered values, in order
}

// ValidateHandshake checks the upgrade preconditions required by §4.2:
// Upgrade: websocket, Connection: upgrade, Sec-WebSocket-Version: 13, and
// a present Sec-WebSocket-Key. It returns the computed Accept value and
// the offered subprotocol list (for the application to choose from via
// websocket.accept).
func ValidateHandshake(h httpx.Header) (*Handshake, error) {
	if !containsToken(h.Get("Connection"), "upgrade") {
		return nil, errors.Join(ErrHandshake, errors.New("missing Connection: upgrade"))
	}
	if !strings.EqualFold(strings.TrimSpace(h.Get("Upgrade")), "websocket") {
		return nil, errors.Join(ErrHandshake, errors.New("missing Upgrade: websocket"))
	}
	if h.Get("Sec-Websocket-Version") != "13" {
		return nil, errors.Join(ErrHandshake, errors.New("unsupported Sec-WebSocket-Version"))
	}
	key := h.Get("Sec-Websocket-Key")
	if key == "" {
		return nil, errors.Join(ErrHandshake, errors.New("missing Sec-WebSocket-Key"))
	}

	var subs []string
	if raw := h.Get("Sec-Websocket-Protocol"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				subs = append(subs, p)
			}
		}
	}

	return &Handshake{
		Accept:       AcceptKey(key),
		Subprotocols: subs,
	}, nil
}

// AcceptKey computes Sec-WebSocket-Accept from a client-supplied
// Sec-WebSocket-Key, per RFC 6455 §1.3: SHA-1(key + GUID), base64-encoded.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + wsGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func containsToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
