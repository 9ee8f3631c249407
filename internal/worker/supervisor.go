// Package worker implements the parent-process side of the pre-fork
// worker pool (component C7): it starts N worker processes sharing one
// listening socket, respawns a worker whenever it exits (whether from a
// crash or a clean max_requests drain), and drives graceful shutdown by
// escalating TERM to KILL across a configurable deadline.
//
// Workers here are separate OS processes started with os/exec, not
// fork(2) children, so each gets an entirely fresh Go runtime and
// scheduler by construction — there is no inherited-state-across-fork
// hazard to guard against (see the design log's note on FIXFORK).
package worker

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Child is one running worker process, abstracted so the supervisor's
// respawn and shutdown-escalation logic can be tested without spawning
// real processes.
type Child interface {
	// Wait blocks until the process exits and returns its outcome.
	Wait() error
	// Signal delivers sig to the process.
	Signal(sig os.Signal) error
	Pid() int
}

// Spawner starts one worker process. id is the worker's stable slot
// index (0..N-1), stable across respawns, useful for log correlation.
type Spawner interface {
	Spawn(ctx context.Context, id int) (Child, error)
}

// Config controls the supervisor's pool size and shutdown behavior.
type Config struct {
	WorkerCount     int
	ShutdownTimeout time.Duration
	RespawnBackoff  time.Duration
	Log             *logrus.Entry
}

// Supervisor owns the worker pool for the lifetime of the parent process.
type Supervisor struct {
	spawner Spawner
	cfg     Config

	mu       sync.Mutex
	children map[int]Child
}

// New builds a Supervisor. cfg.WorkerCount, ShutdownTimeout, and
// RespawnBackoff fall back to sane defaults when zero.
func New(spawner Spawner, cfg Config) *Supervisor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RespawnBackoff <= 0 {
		cfg.RespawnBackoff = time.Second
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Supervisor{spawner: spawner, cfg: cfg, children: make(map[int]Child)}
}

// Run starts the pool and blocks until ctx is canceled, at which point it
// drives graceful shutdown to completion before returning. ctx cancellation
// is the parent's signal-handling entry point (see cmd/pagid), delivered via
// signal.NotifyContext on TERM/INT.
func (s *Supervisor) Run(ctx context.Context) error {
	shuttingDown := make(chan struct{})
	var g errgroup.Group

	for i := 0; i < s.cfg.WorkerCount; i++ {
		id := i
		g.Go(func() error {
			s.superviseOne(ctx, id, shuttingDown)
			return nil
		})
	}

	<-ctx.Done()
	close(shuttingDown)
	s.signalAll(syscall.SIGTERM)

	done := make(chan struct{})
	go func() { g.Wait(); close(done) }()

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		s.cfg.Log.Warn("worker(s) did not exit before shutdown timeout, killing")
		s.signalAll(syscall.SIGKILL)
		<-done
		return nil
	}
}

// superviseOne keeps worker slot id populated: spawn, wait, and unless a
// shutdown is in progress, spawn a replacement — this is the single code
// path for both crash-respawn and post-drain respawn, since a worker
// exiting 0 after max_requests looks identical to the supervisor.
func (s *Supervisor) superviseOne(ctx context.Context, id int, shuttingDown <-chan struct{}) {
	log := s.cfg.Log.WithField("worker", id)
	for {
		child, err := s.spawner.Spawn(ctx, id)
		if err != nil {
			log.WithError(err).Error("failed to start worker")
			select {
			case <-time.After(s.cfg.RespawnBackoff):
			case <-shuttingDown:
				return
			}
			continue
		}

		s.mu.Lock()
		s.children[id] = child
		s.mu.Unlock()
		log.WithField("pid", child.Pid()).Info("worker started")

		err = child.Wait()

		s.mu.Lock()
		delete(s.children, id)
		s.mu.Unlock()

		select {
		case <-shuttingDown:
			return
		default:
		}

		if err != nil {
			log.WithError(err).Warn("worker exited unexpectedly, respawning")
		} else {
			log.Info("worker drained cleanly, respawning")
		}
	}
}

func (s *Supervisor) signalAll(sig os.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.children {
		if err := c.Signal(sig); err != nil {
			s.cfg.Log.WithField("worker", id).WithError(err).Warn("failed to signal worker")
		}
	}
}
