// Package lifespan implements the lifespan coordinator (component C6): it
// runs once per worker process, invoking the application's lifespan scope
// before the acceptor starts taking traffic and again at shutdown, and owns
// construction of the shared app.State container threaded into every
// subsequent request scope in that process.
package lifespan

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pagi-dev/pagi/app"
)

// Coordinator runs the startup/shutdown rendezvous for one worker process.
type Coordinator struct {
	state *app.State
	loop  app.Loop
	log   *logrus.Entry

	startupDone  bool
	shutdownDone bool
}

// New builds a Coordinator sharing state and loop with every request scope
// the worker will later construct.
func New(state *app.State, loop app.Loop, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{state: state, loop: loop, log: log}
}

// State returns the shared state container applications mutate during
// startup and read from during request handling.
func (c *Coordinator) State() *app.State { return c.state }

// Startup invokes application against a lifespan scope and drives it
// through lifespan.startup. If the application never implements a
// lifespan application (it returns immediately without consuming the
// startup event, or it rejects the scope), startup is treated as trivially
// complete per §4.6 and Shutdown becomes a no-op.
func (c *Coordinator) Startup(ctx context.Context, application app.Application) error {
	sc := app.NewLifespanScope(c.state, c.loop)

	events := make(chan app.Event, 2)
	events <- app.LifespanStartupEvent{}

	result := make(chan error, 1)
	receive := func(ctx context.Context) (app.Event, error) {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, context.Canceled
			}
			return ev, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	send := func(ctx context.Context, ev app.Event) error {
		switch e := ev.(type) {
		case app.LifespanStartupCompleteEvent:
			c.startupDone = true
			result <- nil
		case app.LifespanStartupFailedEvent:
			result <- fmt.Errorf("lifespan startup failed: %s", e.Message)
		}
		return nil
	}

	go func() {
		err := application.Serve(ctx, sc, receive, send)
		close(events)
		if err != nil {
			select {
			case result <- err:
			default:
			}
		} else if !c.startupDone {
			// application returned without completing startup: treat as
			// an application that does not implement lifespan.
			select {
			case result <- nil:
			default:
			}
		}
	}()

	err := <-result
	if err != nil {
		c.log.WithError(err).Error("lifespan startup failed")
		return err
	}
	c.log.Debug("lifespan startup complete")
	return nil
}

// Shutdown drives the lifespan.shutdown rendezvous. It is a no-op if
// startup never completed (application does not implement lifespan).
func (c *Coordinator) Shutdown(ctx context.Context, application app.Application) error {
	if !c.startupDone {
		return nil
	}
	sc := app.NewLifespanScope(c.state, c.loop)

	events := make(chan app.Event, 2)
	events <- app.LifespanShutdownEvent{}

	result := make(chan error, 1)
	receive := func(ctx context.Context) (app.Event, error) {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, context.Canceled
			}
			return ev, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	send := func(ctx context.Context, ev app.Event) error {
		if _, ok := ev.(app.LifespanShutdownCompleteEvent); ok {
			c.shutdownDone = true
			select {
			case result <- nil:
			default:
			}
		}
		return nil
	}

	go func() {
		err := application.Serve(ctx, sc, receive, send)
		close(events)
		if err != nil {
			select {
			case result <- err:
			default:
			}
		} else {
			select {
			case result <- nil:
			default:
			}
		}
	}()

	err := <-result
	if err != nil {
		c.log.WithError(err).Error("lifespan shutdown failed")
		return err
	}
	c.log.Debug("lifespan shutdown complete")
	return nil
}
