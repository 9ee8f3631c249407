// Package blocking implements the optional subprocess pool backing
// send's run_blocking escape hatch: a bounded set of long-lived worker
// subprocesses, each communicating over a length-prefixed gob pipe, used
// to run synchronous application code without stalling a connection's
// goroutine. Idle subprocesses are reaped by a ticker rather than a cache
// library, because the set of live subprocesses must be exact for process
// accounting (see the design log).
package blocking

import (
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Call after Close.
var ErrPoolClosed = errors.New("blocking: pool closed")

// Call is one run_blocking invocation: a function name the subprocess
// dispatches on, and opaque gob-encodable arguments/result.
type Call struct {
	Function string
	Args     any
}

// Result carries either a decoded value or an error message reported by
// the subprocess.
type Result struct {
	Value any
	Err   string
}

// Config controls pool sizing, subprocess command line, and idle reaping.
type Config struct {
	Command     string
	Args        []string
	Env         []string
	Size        int
	IdleTimeout time.Duration
	Log         *logrus.Entry
}

// Pool owns a set of subprocess workers, spawning one lazily per Call up
// to Size and reusing idle ones so each subprocess's own in-process state
// (e.g. a cached DB connection) survives across calls.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	workers []*worker
	closed  bool

	stop chan struct{}
	done chan struct{}
}

type worker struct {
	cmd      *exec.Cmd
	enc      *gob.Encoder
	dec      *gob.Decoder
	lastUsed time.Time
	mu       sync.Mutex
}

// New builds a Pool. Subprocesses are not started until first use.
func New(cfg Config) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Minute
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &Pool{cfg: cfg, stop: make(chan struct{}), done: make(chan struct{})}
	go p.reapLoop()
	return p
}

// Call runs fn(args) on a pooled subprocess and returns its decoded
// result, blocking the caller's goroutine (not the worker process's
// acceptor) until the subprocess replies or ctx is done.
func (p *Pool) Call(ctx context.Context, call Call) (any, error) {
	w, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(w)

	type outcome struct {
		res Result
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if err := w.enc.Encode(call); err != nil {
			resCh <- outcome{err: fmt.Errorf("blocking: encode call: %w", err)}
			return
		}
		var res Result
		if err := w.dec.Decode(&res); err != nil {
			resCh <- outcome{err: fmt.Errorf("blocking: decode result: %w", err)}
			return
		}
		resCh <- outcome{res: res}
	}()

	select {
	case o := <-resCh:
		if o.err != nil {
			return nil, o.err
		}
		if o.res.Err != "" {
			return nil, errors.New(o.res.Err)
		}
		return o.res.Value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) acquire(ctx context.Context) (*worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	for _, w := range p.workers {
		if w.mu.TryLock() {
			return w, nil
		}
	}
	if len(p.workers) < p.cfg.Size {
		w, err := p.spawn()
		if err != nil {
			return nil, err
		}
		w.mu.Lock()
		p.workers = append(p.workers, w)
		return w, nil
	}
	return nil, fmt.Errorf("blocking: pool exhausted (size %d)", p.cfg.Size)
}

func (p *Pool) release(w *worker) {
	w.lastUsed = time.Now()
	w.mu.Unlock()
}

func (p *Pool) spawn() (*worker, error) {
	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	if len(p.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &worker{
		cmd:      cmd,
		enc:      gob.NewEncoder(newLengthPrefixWriter(stdin)),
		dec:      gob.NewDecoder(newLengthPrefixReader(stdout)),
		lastUsed: time.Now(),
	}, nil
}

// reapLoop kills subprocesses idle longer than IdleTimeout. It runs for
// the pool's lifetime; Close stops it.
func (p *Pool) reapLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

func (p *Pool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.workers[:0]
	for _, w := range p.workers {
		if !w.mu.TryLock() {
			kept = append(kept, w) // in use
			continue
		}
		idleFor := time.Since(w.lastUsed)
		if idleFor >= p.cfg.IdleTimeout {
			p.cfg.Log.WithField("pid", w.cmd.Process.Pid).Info("reaping idle blocking worker")
			w.cmd.Process.Kill()
			w.mu.Unlock()
			continue
		}
		w.mu.Unlock()
		kept = append(kept, w)
	}
	p.workers = kept
}

// Close stops the reaper and kills every live subprocess.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()

	close(p.stop)
	<-p.done

	var result *multierror.Error
	for _, w := range workers {
		if err := w.cmd.Process.Kill(); err != nil {
			result = multierror.Append(result, fmt.Errorf("kill pid %d: %w", w.cmd.Process.Pid, err))
		}
	}
	return result.ErrorOrNil()
}

// lengthPrefixWriter/-Reader frame each gob message with a 4-byte
// big-endian length so the subprocess side can delimit messages on a
// plain stdin/stdout pipe without relying on gob's own (undocumented)
// framing behavior across a pipe.

type lengthPrefixWriter struct {
	w io.Writer
}

func newLengthPrefixWriter(w io.Writer) *lengthPrefixWriter {
	return &lengthPrefixWriter{w: w}
}

func (lw *lengthPrefixWriter) Write(p []byte) (int, error) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
	if _, err := lw.w.Write(hdr[:]); err != nil {
		return 0, err
	}
	return lw.w.Write(p)
}

// lengthPrefixReader hands gob's Decoder one message at a time, buffering
// whatever the caller's slice couldn't hold in one Read so a short read
// never drops the tail of a message.
type lengthPrefixReader struct {
	r   io.Reader
	buf []byte
}

func newLengthPrefixReader(r io.Reader) *lengthPrefixReader {
	return &lengthPrefixReader{r: r}
}

func (lr *lengthPrefixReader) Read(p []byte) (int, error) {
	if len(lr.buf) == 0 {
		var hdr [4]byte
		if _, err := io.ReadFull(lr.r, hdr[:]); err != nil {
			return 0, err
		}
		n := binary.BigEndian.Uint32(hdr[:])
		lr.buf = make([]byte, n)
		if _, err := io.ReadFull(lr.r, lr.buf); err != nil {
			return 0, err
		}
	}
	n := copy(p, lr.buf)
	lr.buf = lr.buf[n:]
	return n, nil
}
