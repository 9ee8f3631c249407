// Package acceptor implements the worker-process accept loop (component
// C8): accept connections off the shared listener, spawn one goroutine
// per connection running the C4 state machine, enforce a per-worker live
// connection cap, and drain cleanly once max_requests is reached or the
// process context is canceled.
package acceptor

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/pagi-dev/pagi/app"
	"github.com/pagi-dev/pagi/internal/conn"
)

// Config wires an Acceptor to its listener, application, and limits.
type Config struct {
	Listener       net.Listener
	Application    app.Application
	State          *app.State
	Loop           app.Loop
	MaxConnections int64 // 0 = unlimited
	MaxRequests    int64 // 0 = unlimited; triggers a clean drain
	ConnOptions    []conn.Option
	Log            *logrus.Entry
}

// Acceptor owns the listener for the lifetime of one worker process.
type Acceptor struct {
	cfg Config
	sem *semaphore.Weighted

	wg             sync.WaitGroup
	requestsServed int64
	mu             sync.Mutex
	stopOnce       sync.Once
	stopAccept     chan struct{}
}

// New builds an Acceptor. A zero MaxConnections means no admission limit
// (the kernel listen backlog is the only bound).
func New(cfg Config) *Acceptor {
	limit := cfg.MaxConnections
	if limit <= 0 {
		limit = 1 << 20 // effectively unlimited without special-casing semaphore.Acquire
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Acceptor{cfg: cfg, sem: semaphore.NewWeighted(limit), stopAccept: make(chan struct{})}
}

// Run accepts connections until ctx is canceled or MaxRequests is reached,
// then waits for in-flight connections (including WebSocket close
// handshakes in progress) to finish before returning — this is the
// worker's half of graceful shutdown; the supervisor's TERM only cancels
// ctx, it never force-closes a connection directly.
func (a *Acceptor) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
		case <-a.stopAccept:
		}
		a.cfg.Listener.Close()
	}()

	for {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			break
		}

		nc, err := a.cfg.Listener.Accept()
		if err != nil {
			a.sem.Release(1)
			break
		}

		a.wg.Add(1)
		go a.serve(ctx, nc)
	}

	a.wg.Wait()
	return nil
}

func (a *Acceptor) serve(ctx context.Context, nc net.Conn) {
	defer a.wg.Done()
	defer a.sem.Release(1)

	opts := append(append([]conn.Option{}, a.cfg.ConnOptions...), conn.WithOnRequest(a.onRequest))
	c := conn.New(nc, a.cfg.Application, a.cfg.State, a.cfg.Loop, opts...)
	c.Serve(ctx)
}

func (a *Acceptor) onRequest() {
	if a.cfg.MaxRequests <= 0 {
		return
	}
	a.mu.Lock()
	a.requestsServed++
	reached := a.requestsServed >= a.cfg.MaxRequests
	a.mu.Unlock()
	if reached {
		a.stopOnce.Do(func() { close(a.stopAccept) })
	}
}
