package ws

import (
	"bytes"
	"errors"
	"testing"
)

func maskedFrame(opcode Opcode, payload []byte, fin bool) []byte {
	unmasked := BuildFrame(opcode, payload, fin)
	// flip the mask bit and insert a zero mask key (payload XOR 0 == payload)
	unmasked[1] |= 0x80
	headerLen := len(unmasked) - len(payload)
	out := make([]byte, 0, len(unmasked)+4)
	out = append(out, unmasked[:headerLen]...)
	out = append(out, 0, 0, 0, 0)
	out = append(out, payload...)
	return out
}

func TestParseFrameRoundTripText(t *testing.T) {
	wire := maskedFrame(OpText, []byte("hello"), true)
	f, n, ok, err := ParseFrame(wire, true)
	if err != nil || !ok {
		t.Fatalf("parse failed: ok=%v err=%v", ok, err)
	}
	if n != len(wire) {
		t.Fatalf("consumed %d, want %d", n, len(wire))
	}
	if string(f.Payload) != "hello" || !f.Fin || f.Opcode != OpText {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseFrameIncomplete(t *testing.T) {
	wire := maskedFrame(OpText, []byte("hello world"), true)
	_, _, ok, err := ParseFrame(wire[:3], true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected incomplete frame to report ok=false")
	}
}

func TestParseFrameRejectsReservedBits(t *testing.T) {
	wire := maskedFrame(OpText, []byte("x"), true)
	wire[0] |= 0x40 // set RSV1
	_, _, _, err := ParseFrame(wire, true)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseFrameRejectsUnmaskedClientFrame(t *testing.T) {
	wire := BuildFrame(OpText, []byte("x"), true) // unmasked
	_, _, _, err := ParseFrame(wire, true)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol for unmasked client frame, got %v", err)
	}
}

func TestParseFrameControlFrameSizeLimit(t *testing.T) {
	ok125 := maskedFrame(OpPing, bytes.Repeat([]byte{'a'}, 125), true)
	if _, _, ok, err := ParseFrame(ok125, true); !ok || err != nil {
		t.Fatalf("125-byte control frame should be accepted: ok=%v err=%v", ok, err)
	}

	bad126 := maskedFrame(OpPing, bytes.Repeat([]byte{'a'}, 126), true)
	if _, _, _, err := ParseFrame(bad126, true); !errors.Is(err, ErrProtocol) {
		t.Fatalf("126-byte control frame should be a protocol error, got %v", err)
	}
}

func TestParseFrameFragmentedControlRejected(t *testing.T) {
	wire := maskedFrame(OpPing, []byte("x"), false)
	_, _, _, err := ParseFrame(wire, true)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol for fragmented control frame, got %v", err)
	}
}

func TestParseFrameInvalidUTF8Text(t *testing.T) {
	wire := maskedFrame(OpText, []byte{0xff, 0xfe}, true)
	_, _, _, err := ParseFrame(wire, true)
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestAcceptKeyKnownVector(t *testing.T) {
	// RFC 6455 §1.3 worked example.
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("AcceptKey = %q, want %q", got, want)
	}
}
