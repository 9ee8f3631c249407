package lifespan

import (
	"context"
	"testing"

	"github.com/pagi-dev/pagi/app"
)

func TestStartupCompleteSucceeds(t *testing.T) {
	state := app.NewState()
	c := New(state, nil, nil)

	application := app.ApplicationFunc(func(ctx context.Context, sc app.Scope, receive app.Receive, send app.Send) error {
		ev, err := receive(ctx)
		if err != nil {
			return err
		}
		if _, ok := ev.(app.LifespanStartupEvent); !ok {
			t.Fatalf("expected LifespanStartupEvent, got %T", ev)
		}
		sc.CommonFields().State.Set("ready", true)
		return send(ctx, app.LifespanStartupCompleteEvent{})
	})

	if err := c.Startup(context.Background(), application); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := state.Get("ready")
	if !ok || v != true {
		t.Fatalf("expected state mutation during startup to be visible, got %v", v)
	}
}

func TestStartupFailurePropagates(t *testing.T) {
	c := New(app.NewState(), nil, nil)
	application := app.ApplicationFunc(func(ctx context.Context, sc app.Scope, receive app.Receive, send app.Send) error {
		if _, err := receive(ctx); err != nil {
			return err
		}
		return send(ctx, app.LifespanStartupFailedEvent{Message: "db unreachable"})
	})

	err := c.Startup(context.Background(), application)
	if err == nil {
		t.Fatal("expected startup failure to propagate")
	}
}

func TestShutdownNoopWithoutLifespanApplication(t *testing.T) {
	c := New(app.NewState(), nil, nil)
	application := app.ApplicationFunc(func(ctx context.Context, sc app.Scope, receive app.Receive, send app.Send) error {
		return nil // rejects lifespan by returning immediately
	})
	if err := c.Startup(context.Background(), application); err != nil {
		t.Fatalf("unexpected startup error: %v", err)
	}
	if err := c.Shutdown(context.Background(), application); err != nil {
		t.Fatalf("shutdown should be a no-op, got: %v", err)
	}
}

func TestShutdownRendezvous(t *testing.T) {
	c := New(app.NewState(), nil, nil)
	startApp := app.ApplicationFunc(func(ctx context.Context, sc app.Scope, receive app.Receive, send app.Send) error {
		ev, _ := receive(ctx)
		switch ev.(type) {
		case app.LifespanStartupEvent:
			return send(ctx, app.LifespanStartupCompleteEvent{})
		case app.LifespanShutdownEvent:
			return send(ctx, app.LifespanShutdownCompleteEvent{})
		}
		return nil
	})

	if err := c.Startup(context.Background(), startApp); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if err := c.Shutdown(context.Background(), startApp); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !c.shutdownDone {
		t.Fatal("expected shutdown rendezvous to complete")
	}
}
