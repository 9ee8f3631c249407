package blocking

import (
	"context"
	"encoding/gob"
	"os"
	"testing"
	"time"
)

func init() {
	gob.Register("")
}

// TestHelperProcess is not a real test: it is re-executed as a subprocess
// (os.Args[0] under PAGI_BLOCKING_HELPER=1) standing in for a run_blocking
// worker, speaking the same length-prefixed gob protocol Pool.Call uses.
// This is the re-exec-self-as-helper pattern for testing subprocess
// behavior without a separate helper binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("PAGI_BLOCKING_HELPER") != "1" {
		return
	}
	enc := gob.NewEncoder(newLengthPrefixWriter(os.Stdout))
	dec := gob.NewDecoder(newLengthPrefixReader(os.Stdin))
	for {
		var call Call
		if err := dec.Decode(&call); err != nil {
			return
		}
		var res Result
		switch call.Function {
		case "echo":
			res.Value = call.Args
		case "fail":
			res.Err = "helper: requested failure"
		default:
			res.Err = "helper: unknown function"
		}
		if err := enc.Encode(res); err != nil {
			return
		}
	}
}

func helperPoolConfig() Config {
	return Config{
		Command:     os.Args[0],
		Args:        []string{"-test.run=^TestHelperProcess$"},
		Env:         []string{"PAGI_BLOCKING_HELPER=1"},
		Size:        2,
		IdleTimeout: 50 * time.Millisecond,
	}
}

func TestPoolCallEchoesArgs(t *testing.T) {
	p := newPoolWithHelperEnv(t, helperPoolConfig())
	defer p.Close()

	v, err := p.Call(context.Background(), Call{Function: "echo", Args: "hello"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v != "hello" {
		t.Fatalf("expected echoed value %q, got %v", "hello", v)
	}
}

func TestPoolCallPropagatesHelperError(t *testing.T) {
	p := newPoolWithHelperEnv(t, helperPoolConfig())
	defer p.Close()

	_, err := p.Call(context.Background(), Call{Function: "fail"})
	if err == nil {
		t.Fatalf("expected an error from the fail call")
	}
}

func TestPoolCallRespectsContextCancellation(t *testing.T) {
	cfg := helperPoolConfig()
	cfg.Size = 1
	p := newPoolWithHelperEnv(t, cfg)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Call(ctx, Call{Function: "echo", Args: "x"})
	if err == nil {
		t.Fatalf("expected context cancellation error")
	}
}

// newPoolWithHelperEnv builds a Pool whose spawned subprocesses are the
// TestHelperProcess above, and closes it when the test ends. The
// PAGI_BLOCKING_HELPER=1 that each exec.Cmd needs comes in through cfg.Env,
// as set by helperPoolConfig.
func newPoolWithHelperEnv(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p := New(cfg)
	t.Cleanup(func() { p.Close() })
	return p
}
