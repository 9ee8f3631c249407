package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"syscall"
	"time"

	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pagi-dev/pagi/app"
	"github.com/pagi-dev/pagi/internal/acceptor"
	"github.com/pagi-dev/pagi/internal/config"
	"github.com/pagi-dev/pagi/internal/lifespan"
	"github.com/pagi-dev/pagi/internal/loop"
	"github.com/pagi-dev/pagi/internal/metrics"
	"github.com/pagi-dev/pagi/internal/worker"
)

func newServeCmd() *cobra.Command {
	cfg := config.Default()
	config.ApplyEnv(&cfg)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server: a pre-fork supervisor, or one worker when PAGI_WORKER=1 is inherited from it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	cfg.BindFlags(cmd.Flags())
	return cmd
}

func runServe(parent context.Context, cfg config.Config) error {
	log := logrus.NewEntry(logrus.StandardLogger())
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if os.Getenv(worker.WorkerRoleEnv) == "1" {
		return runWorker(ctx, cfg, log)
	}
	return runSupervisor(ctx, cfg, log)
}

// runSupervisor is the parent process: it owns the listening socket and
// hands a duplicated file descriptor to every worker it execs, so the
// kernel load-balances accepts across them without any coordination
// between worker processes.
func runSupervisor(ctx context.Context, cfg config.Config, log *logrus.Entry) error {
	addr := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
	ln, err := worker.ListenReusePort("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("listener is not TCP")
	}
	lf, err := tcpLn.File()
	if err != nil {
		return fmt.Errorf("duplicate listener fd: %w", err)
	}
	defer lf.Close()
	// The dup'd fd in lf keeps the socket alive for workers; the parent
	// itself never accepts on ln.
	ln.Close()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	spawner := worker.ExecSpawner{
		BinaryPath:   self,
		Args:         []string{"serve"},
		Env:          append(os.Environ(), cfg.ToEnv()...),
		ListenerFile: lf,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
	}
	sup := worker.New(spawner, worker.Config{
		WorkerCount:     cfg.WorkerCount,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Log:             log,
	})

	log.WithFields(logrus.Fields{"address": addr, "workers": cfg.WorkerCount}).Info("pagid supervisor starting")
	return sup.Run(ctx)
}

// runWorker is one pre-forked worker process: it inherits the listening
// socket via PAGI_LISTENER_FD, runs the lifespan startup rendezvous, then
// drives the accept loop until shutdown.
func runWorker(ctx context.Context, cfg config.Config, log *logrus.Entry) error {
	fdStr := os.Getenv(worker.ListenerFDEnv)
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", worker.ListenerFDEnv, fdStr, err)
	}
	ln, err := net.FileListener(os.NewFile(uintptr(fd), "pagi-listener"))
	if err != nil {
		return fmt.Errorf("listener from inherited fd: %w", err)
	}
	defer ln.Close()

	if cfg.TLSEnabled() {
		certCache := config.NewCertCache(cfg.TLSCertFile, cfg.TLSKeyFile, time.Minute)
		ln = tls.NewListener(ln, &tls.Config{GetCertificate: certCache.GetCertificate})
	}

	state := app.NewState()
	l := loop.New()
	application := newDemoApplication()

	lc := lifespan.New(state, l, log)
	if err := lc.Startup(ctx, application); err != nil {
		return fmt.Errorf("lifespan startup failed: %w", err)
	}

	reg := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: reg.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	a := acceptor.New(acceptor.Config{
		Listener:       ln,
		Application:    application,
		State:          state,
		Loop:           l,
		MaxConnections: cfg.MaxConnections,
		MaxRequests:    cfg.MaxRequestsPerWork,
		Log:            log,
	})

	log.WithField("pid", os.Getpid()).Info("pagid worker ready")
	runErr := a.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := lc.Shutdown(shutdownCtx, application); err != nil {
		log.WithError(err).Warn("lifespan shutdown failed")
	}
	return runErr
}
